// Package coordinator serializes all verification work for one domain.
//
// A Coordinator is a single-writer actor: one dispatcher goroutine owns
// the domain cache, the email result cache and the in-flight counter, and
// processes an inbox of requests. Pipelines admitted by the dispatcher
// run in their own goroutines, bounded by the admission gate, and report
// back through the inbox. Cross-domain parallelism comes from many
// coordinators; intra-domain state needs no locks.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/optimode/mailprobe/internal/lru"
	"github.com/optimode/mailprobe/internal/metrics"
	"github.com/optimode/mailprobe/internal/parse"
	"github.com/optimode/mailprobe/internal/score"
	"github.com/optimode/mailprobe/types"
)

// ErrTooManyConcurrent is returned when the per-domain admission gate is
// closed. Callers are expected to retry later.
var ErrTooManyConcurrent = errors.New("Too many concurrent verifications")

// ErrClosed is returned for requests arriving after Close.
var ErrClosed = errors.New("coordinator: closed")

// Blocklist answers disposable-domain lookups.
type Blocklist interface {
	IsDisposable(ctx context.Context, domain string) bool
}

// Resolver resolves the mail path for a domain.
type Resolver interface {
	Lookup(ctx context.Context, domain string) types.DNSResult
}

// Prober runs SMTP mailbox and catch-all probes.
type Prober interface {
	Verify(ctx context.Context, email string, mxRecords []types.MX) types.ProbeResult
	TestCatchAll(ctx context.Context, domain string, mxRecords []types.MX) bool
}

// Config configures a Coordinator. Zero fields get defaults.
type Config struct {
	MaxConcurrency  int           // admission gate width. Default: 5
	PipelineTimeout time.Duration // overall deadline per verification. Default: 10s
	DNSCacheTTL     time.Duration // domain cache entry lifetime. Default: 30m
	CacheSize       int           // LRU bound of the email cache. Default: 1024
	Logger          hclog.Logger
	Now             func() time.Time // injectable for testing
}

func (cfg *Config) setDefaults() {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 10 * time.Second
	}
	if cfg.DNSCacheTTL <= 0 {
		cfg.DNSCacheTTL = 30 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// dnsEntry is the per-domain DNS cache slot. res is written exactly once
// before done is closed; waiters read it only after done.
type dnsEntry struct {
	res       types.DNSResult
	done      chan struct{}
	createdAt time.Time
}

// catchAllEntry is the once-per-coordinator catch-all probe slot, with
// the same write-once-before-close discipline.
type catchAllEntry struct {
	val  types.CatchAll
	done chan struct{}
}

type emailEntry struct {
	res       types.Result
	createdAt time.Time
}

type request struct {
	ctx   context.Context
	email parse.Email
	reply chan reply
}

type reply struct {
	res types.Result
	err error
}

type completion struct {
	key   string
	res   types.Result
	cache bool
}

type catchAllGrant struct {
	entry *catchAllEntry
	owner bool
}

// Coordinator is the per-domain verification actor.
type Coordinator struct {
	domain    string
	cfg       Config
	blocklist Blocklist
	resolver  Resolver
	prober    Prober
	log       hclog.Logger

	reqCh         chan *request
	doneCh        chan completion
	catchAllCh    chan chan catchAllGrant
	catchAllReset chan *catchAllEntry
	quit          chan struct{}
	closeOnce     sync.Once

	// Dispatcher-owned state. Only the run loop touches these.
	active   int
	dns      *dnsEntry
	catchAll *catchAllEntry
	emails   *lru.Cache[emailEntry]
}

// New creates and starts a Coordinator for domain.
func New(domain string, cfg Config, bl Blocklist, res Resolver, pr Prober) *Coordinator {
	cfg.setDefaults()
	c := &Coordinator{
		domain:        domain,
		cfg:           cfg,
		blocklist:     bl,
		resolver:      res,
		prober:        pr,
		log:           cfg.Logger.Named("coordinator").With("domain", domain),
		reqCh:         make(chan *request),
		doneCh:        make(chan completion, cfg.MaxConcurrency),
		catchAllCh:    make(chan chan catchAllGrant),
		catchAllReset: make(chan *catchAllEntry, 1),
		quit:          make(chan struct{}),
		emails:        lru.New[emailEntry](cfg.CacheSize),
	}
	go c.run()
	return c
}

// Close stops the dispatcher. In-flight pipelines finish but their
// results are discarded.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// Verify runs the full pipeline for email, which must already have
// passed the syntax gate. Requests are admitted FIFO.
func (c *Coordinator) Verify(ctx context.Context, email parse.Email) (types.Result, error) {
	req := &request{ctx: ctx, email: email, reply: make(chan reply, 1)}

	select {
	case c.reqCh <- req:
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	case <-c.quit:
		return types.Result{}, ErrClosed
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	case <-c.quit:
		return types.Result{}, ErrClosed
	}
}

func (c *Coordinator) run() {
	for {
		select {
		case req := <-c.reqCh:
			// Completions already queued were sent before this request's
			// reply could have been observed; apply them first so a
			// re-verify right after a result sees it in the cache.
			c.drainCompletions()
			c.handleRequest(req)
		case grantCh := <-c.catchAllCh:
			grantCh <- c.grantCatchAll()
		case entry := <-c.catchAllReset:
			// A probe was abandoned before producing an answer; allow a
			// later verification to claim a fresh one.
			if c.catchAll == entry {
				c.catchAll = nil
			}
		case comp := <-c.doneCh:
			c.applyCompletion(comp)
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) applyCompletion(comp completion) {
	c.active--
	if comp.cache {
		c.emails.Put(comp.key, emailEntry{res: comp.res, createdAt: c.cfg.Now()})
	}
	metrics.Verifications.WithLabelValues(comp.res.Status).Inc()
}

func (c *Coordinator) drainCompletions() {
	for {
		select {
		case comp := <-c.doneCh:
			c.applyCompletion(comp)
		default:
			return
		}
	}
}

// handleRequest runs the synchronous part of the protocol: cache
// eviction, the email cache lookup and the admission gate. Everything
// that suspends happens in a pipeline goroutine.
func (c *Coordinator) handleRequest(req *request) {
	now := c.cfg.Now()
	key := req.email.Address()

	// Lazy eviction of the expired domain entry. An entry still being
	// filled (done not closed) is never evicted. Empty results are not
	// kept either: a transient DoH failure and a genuinely dead domain
	// are indistinguishable here, and the email cache already throttles
	// repeats per address.
	if c.dns != nil {
		select {
		case <-c.dns.done:
			if now.Sub(c.dns.createdAt) > c.cfg.DNSCacheTTL || !c.dns.res.Valid() {
				c.dns = nil
			}
		default:
		}
	}

	if entry, ok := c.emails.Get(key); ok {
		if now.Sub(entry.createdAt) > time.Duration(entry.res.TTL)*time.Millisecond {
			c.emails.Delete(key)
		} else {
			metrics.CacheHits.WithLabelValues("email").Inc()
			req.reply <- reply{res: entry.res}
			return
		}
	}

	if c.active >= c.cfg.MaxConcurrency {
		metrics.AdmissionRejected.Inc()
		c.log.Debug("admission rejected", "email", key, "active", c.active)
		req.reply <- reply{err: ErrTooManyConcurrent}
		return
	}
	c.active++

	dnsOwner := false
	if c.dns == nil {
		c.dns = &dnsEntry{done: make(chan struct{}), createdAt: now}
		dnsOwner = true
	} else {
		metrics.CacheHits.WithLabelValues("domain").Inc()
	}

	go c.pipeline(req, c.dns, dnsOwner)
}

func (c *Coordinator) grantCatchAll() catchAllGrant {
	if c.catchAll == nil {
		c.catchAll = &catchAllEntry{done: make(chan struct{})}
		return catchAllGrant{entry: c.catchAll, owner: true}
	}
	return catchAllGrant{entry: c.catchAll, owner: false}
}

// pipeline runs the suspending stages for one verification and reports
// the outcome back to the dispatcher.
func (c *Coordinator) pipeline(req *request, dns *dnsEntry, dnsOwner bool) {
	ctx, cancel := context.WithTimeout(req.ctx, c.cfg.PipelineTimeout)
	defer cancel()

	addr := req.email.Address()

	in := score.Inputs{SyntaxValid: true}
	in.IsDisposable = c.blocklist.IsDisposable(ctx, c.domain)

	if dnsOwner {
		metrics.DNSLookups.Inc()
		dns.res = c.resolver.Lookup(ctx, c.domain)
		close(dns.done)
	} else {
		select {
		case <-dns.done:
		case <-ctx.Done():
			c.finish(req, addr, c.timeoutResult(addr), ctx)
			return
		}
	}
	in.DNS = dns.res

	if in.DNS.Valid() && in.DNS.HasMX {
		in.SMTP = c.prober.Verify(ctx, addr, in.DNS.Records)
		in.CatchAll = c.resolveCatchAll(ctx, in.DNS.Records)
	}

	if ctx.Err() != nil {
		c.finish(req, addr, c.timeoutResult(addr), ctx)
		return
	}

	out := score.Evaluate(in)
	res := types.Result{
		Email:     addr,
		Status:    out.Status,
		Score:     out.Score,
		Reason:    out.Reason,
		CheckedAt: c.cfg.Now().UnixMilli(),
		TTL:       out.TTL.Milliseconds(),
	}
	c.log.Debug("verification complete", "email", addr, "status", res.Status, "score", res.Score)
	c.complete(req, completion{key: addr, res: res, cache: true})
}

// resolveCatchAll returns the domain's catch-all state, probing at most
// once per coordinator lifetime. Waiters piggyback on an in-flight probe.
func (c *Coordinator) resolveCatchAll(ctx context.Context, mxRecords []types.MX) types.CatchAll {
	grantCh := make(chan catchAllGrant, 1)
	select {
	case c.catchAllCh <- grantCh:
	case <-ctx.Done():
		return types.CatchAllUnknown
	case <-c.quit:
		return types.CatchAllUnknown
	}
	grant := <-grantCh

	if grant.owner {
		if c.prober.TestCatchAll(ctx, c.domain, mxRecords) {
			grant.entry.val = types.CatchAllYes
		} else if ctx.Err() == nil {
			grant.entry.val = types.CatchAllNo
		} else {
			// Abandoned mid-probe: leave unknown and free the slot.
			select {
			case c.catchAllReset <- grant.entry:
			case <-c.quit:
			}
		}
		close(grant.entry.done)
		if grant.entry.val != types.CatchAllUnknown {
			metrics.CatchAllProbes.WithLabelValues(catchAllLabel(grant.entry.val)).Inc()
		}
		return grant.entry.val
	}

	select {
	case <-grant.entry.done:
		return grant.entry.val
	case <-ctx.Done():
		return types.CatchAllUnknown
	}
}

func catchAllLabel(v types.CatchAll) string {
	if v == types.CatchAllYes {
		return "catchall"
	}
	return "not_catchall"
}

func (c *Coordinator) finish(req *request, addr string, res types.Result, ctx context.Context) {
	// Only a genuine deadline expiry is worth caching for fast retry;
	// a caller hang-up is not a verdict about the address.
	cache := errors.Is(ctx.Err(), context.DeadlineExceeded)
	c.log.Debug("verification timed out", "email", addr)
	c.complete(req, completion{key: addr, res: res, cache: cache})
}

func (c *Coordinator) complete(req *request, comp completion) {
	select {
	case c.doneCh <- comp:
	case <-c.quit:
	}
	req.reply <- reply{res: comp.res}
}

func (c *Coordinator) timeoutResult(addr string) types.Result {
	return types.Result{
		Email:     addr,
		Status:    types.StatusTimeout,
		Score:     0,
		Reason:    "Verification timed out",
		CheckedAt: c.cfg.Now().UnixMilli(),
		TTL:       score.TimeoutTTL.Milliseconds(),
	}
}
