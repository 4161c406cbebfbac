// Package blocklist answers "is this a disposable-email domain?" against
// a shared key/value store, falling back to an embedded snapshot when no
// store is configured.
//
// The key schema blocklist/disposable/<domain> is canonical and must be
// preserved for interoperability with existing datasets.
package blocklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optimode/mailprobe/internal/domainutil"
)

// KeyPrefix is the canonical key namespace for disposable domains.
const KeyPrefix = "blocklist/disposable/"

// ErrNotFound is returned by KV implementations when a key is absent.
var ErrNotFound = errors.New("blocklist: key not found")

// KV is the read side of the shared key/value store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
}

// SetterKV is the write side, used only by the one-shot loader.
type SetterKV interface {
	Set(ctx context.Context, key, value string) error
}

// RedisKV adapts a go-redis client to the KV interfaces.
type RedisKV struct {
	Client *redis.Client
}

func (r RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (r RedisKV) Set(ctx context.Context, key, value string) error {
	return r.Client.Set(ctx, key, value, 0).Err()
}

// Client looks up disposable domains. A nil KV falls back to the
// embedded snapshot so the library works without external services.
type Client struct {
	kv      KV
	timeout time.Duration
}

// New creates a blocklist client. kv may be nil.
func New(kv KV, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{kv: kv, timeout: timeout}
}

// IsDisposable reports whether domain, or its registrable parent, is on
// the disposable list. Backend errors and timeouts are swallowed and
// report false: a blocklist outage must not block verification.
func (c *Client) IsDisposable(ctx context.Context, domain string) bool {
	domain = strings.ToLower(domain)
	parent := domainutil.Registrable(domain)

	if c.kv == nil {
		return snapshotHas(domain) || (parent != "" && snapshotHas(parent))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if hit, err := c.lookup(ctx, domain); err == nil {
		if hit {
			return true
		}
	} else {
		return false
	}

	if parent == "" || parent == domain {
		return false
	}
	hit, err := c.lookup(ctx, parent)
	return err == nil && hit
}

func (c *Client) lookup(ctx context.Context, domain string) (bool, error) {
	_, err := c.kv.Get(ctx, KeyPrefix+domain)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Load fetches a newline-separated domain list from url and writes one
// key per domain into kv. It returns the number of domains written.
// Lines starting with '#' are comments.
func Load(ctx context.Context, client *http.Client, url string, kv SetterKV) (int, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("blocklist: fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("blocklist: fetch %s: status %d", url, resp.StatusCode)
	}

	n := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		domain := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if domain == "" || strings.HasPrefix(domain, "#") {
			continue
		}
		if err := kv.Set(ctx, KeyPrefix+domain, "1"); err != nil {
			return n, fmt.Errorf("blocklist: store %s: %w", domain, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, err
	}
	return n, nil
}
