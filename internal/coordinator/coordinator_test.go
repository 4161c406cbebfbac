package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/internal/coordinator"
	"github.com/optimode/mailprobe/internal/parse"
	"github.com/optimode/mailprobe/types"
)

type fakeBlocklist struct {
	disposable bool
	calls      atomic.Int64
}

func (f *fakeBlocklist) IsDisposable(context.Context, string) bool {
	f.calls.Add(1)
	return f.disposable
}

type fakeResolver struct {
	res   types.DNSResult
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeResolver) Lookup(ctx context.Context, _ string) types.DNSResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.DNSResult{}
		}
	}
	return f.res
}

type fakeProber struct {
	rcptCode       int // RCPT TO reply for real addresses
	catchAllAccept bool
	delay          time.Duration
	verifies       atomic.Int64
	catchAlls      atomic.Int64
}

func (f *fakeProber) Verify(ctx context.Context, _ string, _ []types.MX) types.ProbeResult {
	f.verifies.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.ProbeResult{Error: ctx.Err().Error()}
		}
	}
	resp := &types.SMTPResponse{Code: f.rcptCode, Message: "scripted"}
	return types.ProbeResult{Success: resp.Positive(), Response: resp}
}

func (f *fakeProber) TestCatchAll(ctx context.Context, _ string, _ []types.MX) bool {
	f.catchAlls.Add(1)
	return f.catchAllAccept
}

func mxDNS() types.DNSResult {
	return types.DNSResult{HasMX: true, Records: []types.MX{{Priority: 5, Exchange: "mx.example.com"}}, HasA: true}
}

func newCoordinator(cfg coordinator.Config, bl *fakeBlocklist, res *fakeResolver, pr *fakeProber) *coordinator.Coordinator {
	return coordinator.New("example.com", cfg, bl, res, pr)
}

func mustParse(t *testing.T, raw string) parse.Email {
	t.Helper()
	e := parse.NewEmail(raw)
	assert.True(t, e.Valid)
	return e
}

func TestVerify_DeliverableFlow(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250, catchAllAccept: false}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "alice@example.com"))
	assert.NoError(t, err)
	assert.Equal(t, types.StatusDeliverable, got.Status)
	assert.Equal(t, 100, got.Score)
	assert.Empty(t, got.Reason)
	assert.Equal(t, int64(86_400_000), got.TTL)
	assert.NotZero(t, got.CheckedAt)
}

func TestVerify_NoMailPath(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: types.DNSResult{}}
	pr := &fakeProber{}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "nobody@example.com"))
	assert.NoError(t, err)
	assert.Equal(t, types.StatusUndeliverable, got.Status)
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, "Domain has no valid mail server", got.Reason)
	assert.Equal(t, int64(3_600_000), got.TTL)
	// no mail path: the prober must never run
	assert.Equal(t, int64(0), pr.verifies.Load())
}

func TestVerify_CatchAllDomainIsRisky(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250, catchAllAccept: true}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "user@example.com"))
	assert.NoError(t, err)
	assert.Equal(t, types.StatusRisky, got.Status)
	assert.Equal(t, 100, got.Score)
	assert.Contains(t, got.Reason, "catch-all")
}

func TestVerify_MailboxRejected(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 550}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "ghost@example.com"))
	assert.NoError(t, err)
	assert.Equal(t, types.StatusUndeliverable, got.Status)
	assert.Equal(t, 0, got.Score)
	assert.Contains(t, got.Reason, "mailbox does not exist")
}

func TestVerify_CachedResultReturnedVerbatim(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	email := mustParse(t, "alice@example.com")
	first, err := c.Verify(context.Background(), email)
	assert.NoError(t, err)

	second, err := c.Verify(context.Background(), email)
	assert.NoError(t, err)
	assert.Equal(t, first, second) // bit-for-bit, including CheckedAt
	assert.Equal(t, int64(1), pr.verifies.Load())
}

func TestVerify_EmailCacheExpiry(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250}
	c := newCoordinator(coordinator.Config{Now: clock}, bl, res, pr)
	defer c.Close()

	email := mustParse(t, "alice@example.com")
	_, err := c.Verify(context.Background(), email)
	assert.NoError(t, err)

	advance(25 * time.Hour) // past the 24h TTL of a deliverable result
	_, err = c.Verify(context.Background(), email)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), pr.verifies.Load())
}

func TestVerify_SingleDNSLookupPerDomain(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	for _, addr := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := c.Verify(context.Background(), mustParse(t, addr))
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), res.calls.Load())
}

func TestVerify_SingleCatchAllProbePerDomain(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250, catchAllAccept: false}
	c := newCoordinator(coordinator.Config{MaxConcurrency: 10}, bl, res, pr)
	defer c.Close()

	var wg sync.WaitGroup
	addrs := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, addr := range addrs {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			_, _ = c.Verify(context.Background(), mustParse(t, a))
		}(addr)
	}
	wg.Wait()

	assert.Equal(t, int64(1), pr.catchAlls.Load())
}

func TestVerify_AdmissionGate(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250, delay: 300 * time.Millisecond}
	c := newCoordinator(coordinator.Config{MaxConcurrency: 1}, bl, res, pr)
	defer c.Close()

	firstDone := make(chan types.Result, 1)
	go func() {
		got, err := c.Verify(context.Background(), mustParse(t, "first@example.com"))
		assert.NoError(t, err)
		firstDone <- got
	}()

	// let the first request occupy the gate
	time.Sleep(50 * time.Millisecond)

	_, err := c.Verify(context.Background(), mustParse(t, "second@example.com"))
	assert.ErrorIs(t, err, coordinator.ErrTooManyConcurrent)

	first := <-firstDone
	assert.Equal(t, types.StatusDeliverable, first.Status)
}

func TestVerify_PipelineTimeout(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS(), delay: time.Second}
	pr := &fakeProber{rcptCode: 250}
	c := newCoordinator(coordinator.Config{PipelineTimeout: 50 * time.Millisecond}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "slow@example.com"))
	assert.NoError(t, err)
	assert.Equal(t, types.StatusTimeout, got.Status)
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, (15 * time.Minute).Milliseconds(), got.TTL)
}

func TestVerify_ClosedCoordinator(t *testing.T) {
	bl := &fakeBlocklist{}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 250}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	c.Close()

	_, err := c.Verify(context.Background(), mustParse(t, "a@example.com"))
	assert.ErrorIs(t, err, coordinator.ErrClosed)
}

func TestVerify_DisposableDomainScoresLow(t *testing.T) {
	bl := &fakeBlocklist{disposable: true}
	res := &fakeResolver{res: mxDNS()}
	pr := &fakeProber{rcptCode: 450}
	c := newCoordinator(coordinator.Config{}, bl, res, pr)
	defer c.Close()

	got, err := c.Verify(context.Background(), mustParse(t, "tmp@example.com"))
	assert.NoError(t, err)
	// 20 (disposable) + 30 (not catch-all) + 10 (4xx) = 60
	assert.Equal(t, types.StatusUnknown, got.Status)
	assert.Equal(t, 60, got.Score)
	assert.Contains(t, got.Reason, "Disposable email domain")
}
