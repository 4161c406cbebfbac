package blocklist_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/internal/blocklist"
)

// fakeKV is an in-memory KV with an optional forced error.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
	gets int
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return "", f.err
	}
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", blocklist.ErrNotFound
}

func (f *fakeKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string]string{}
	}
	f.data[key] = value
	return nil
}

func TestIsDisposable_ExactHit(t *testing.T) {
	kv := &fakeKV{data: map[string]string{"blocklist/disposable/mailinator.com": "1"}}
	c := blocklist.New(kv, time.Second)
	assert.True(t, c.IsDisposable(context.Background(), "mailinator.com"))
	assert.True(t, c.IsDisposable(context.Background(), "MAILINATOR.com"))
}

func TestIsDisposable_RegistrableParentFallback(t *testing.T) {
	kv := &fakeKV{data: map[string]string{"blocklist/disposable/mailinator.com": "1"}}
	c := blocklist.New(kv, time.Second)
	assert.True(t, c.IsDisposable(context.Background(), "mx1.mailinator.com"))
}

func TestIsDisposable_Miss(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	c := blocklist.New(kv, time.Second)
	assert.False(t, c.IsDisposable(context.Background(), "mail.example.com"))
	// exact + registrable parent were both tried
	assert.Equal(t, 2, kv.gets)
}

func TestIsDisposable_BackendErrorSwallowed(t *testing.T) {
	kv := &fakeKV{err: errors.New("connection refused")}
	c := blocklist.New(kv, time.Second)
	assert.False(t, c.IsDisposable(context.Background(), "mailinator.com"))
}

func TestIsDisposable_EmbeddedSnapshotFallback(t *testing.T) {
	c := blocklist.New(nil, time.Second)
	assert.True(t, c.IsDisposable(context.Background(), "mailinator.com"))
	assert.True(t, c.IsDisposable(context.Background(), "mx.guerrillamail.com"))
	assert.False(t, c.IsDisposable(context.Background(), "example.com"))
}

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "# comment\nmailinator.com\n\nTRASHMAIL.com\n")
	}))
	defer srv.Close()

	kv := &fakeKV{}
	n, err := blocklist.Load(context.Background(), srv.Client(), srv.URL, kv)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "1", kv.data["blocklist/disposable/mailinator.com"])
	assert.Equal(t, "1", kv.data["blocklist/disposable/trashmail.com"])
}
