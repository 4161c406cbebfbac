package mailprobe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/optimode/mailprobe/check"
	"github.com/optimode/mailprobe/internal/blocklist"
	"github.com/optimode/mailprobe/internal/coordinator"
	"github.com/optimode/mailprobe/internal/doh"
	"github.com/optimode/mailprobe/internal/parse"
	"github.com/optimode/mailprobe/internal/score"
	"github.com/optimode/mailprobe/internal/smtpprobe"
	"github.com/optimode/mailprobe/types"
)

// Verifier estimates the deliverability of email addresses. One logical
// coordinator per domain serializes and bounds all work against that
// domain's mail exchangers; coordinators are created on first use and
// live for the lifetime of the Verifier.
type Verifier struct {
	cfg       Config
	blocklist *blocklist.Client
	resolver  *doh.Resolver
	prober    *smtpprobe.Prober

	mu     sync.Mutex
	coords map[string]*coordinator.Coordinator
	closed bool
}

// New creates a Verifier. SMTPHeloDomain and ProbeEmail are required:
// probing real mail servers with a bogus identity gets the prober's IP
// blocklisted.
func New(cfg Config) (*Verifier, error) {
	if cfg.SMTPHeloDomain == "" || cfg.ProbeEmail == "" {
		return nil, ErrInvalidConfig
	}
	cfg.setDefaults()

	return &Verifier{
		cfg:       cfg,
		blocklist: blocklist.New(cfg.Blocklist, cfg.BlocklistTimeout),
		resolver: doh.New(doh.Config{
			Endpoint: cfg.DoHEndpoint,
			Timeout:  cfg.DNSTimeout,
			Client:   cfg.HTTPClient,
		}),
		prober: smtpprobe.New(smtpprobe.Config{
			HeloDomain: cfg.SMTPHeloDomain,
			ProbeEmail: cfg.ProbeEmail,
			Timeout:    cfg.SMTPTimeout,
			Port:       cfg.SMTPPort,
			Dial:       cfg.Dial,
			Logger:     cfg.Logger,
		}),
		coords: make(map[string]*coordinator.Coordinator),
	}, nil
}

// Verify runs the full pipeline for one address: syntax, blocklist, DNS,
// SMTP probe, catch-all probe, scoring. Results are cached per address
// for their TTL; re-verifying within the TTL returns the cached result
// verbatim.
func (v *Verifier) Verify(ctx context.Context, rawEmail string) (types.Result, error) {
	if strings.TrimSpace(rawEmail) == "" {
		return types.Result{}, ErrMissingEmail
	}

	email, reason := check.Syntax(rawEmail)
	if reason != "" {
		// Syntax failures never reach a coordinator and are not cached.
		return v.syntaxFailure(email), nil
	}

	coord, err := v.coordinatorFor(email.Domain)
	if err != nil {
		return types.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.OverallTimeout)
	defer cancel()

	return coord.Verify(ctx, email)
}

// ConcurrencyOptions configures concurrent processing for VerifyMany.
type ConcurrencyOptions struct {
	// Workers is the number of concurrent goroutines. Default: 5
	Workers int
}

// VerifyMany verifies multiple emails concurrently. The result order
// matches the input slice order. Emails are sorted by domain internally
// so addresses sharing a domain hit the same coordinator back to back,
// exploiting its DNS and catch-all caches.
func (v *Verifier) VerifyMany(ctx context.Context, emails []string, opts ...ConcurrencyOptions) ([]types.Result, error) {
	workers := 5
	if len(opts) > 0 && opts[0].Workers > 0 {
		workers = opts[0].Workers
	}

	results := make([]types.Result, len(emails))
	type job struct {
		idx    int
		email  string
		domain string
	}

	// Build and sort jobs by domain for coordinator cache locality
	jobSlice := make([]job, len(emails))
	for i, e := range emails {
		domain := ""
		if atIdx := strings.LastIndex(e, "@"); atIdx >= 0 {
			domain = strings.ToLower(e[atIdx+1:])
		}
		jobSlice[i] = job{idx: i, email: e, domain: domain}
	}
	sort.Slice(jobSlice, func(i, j int) bool {
		return jobSlice[i].domain < jobSlice[j].domain
	})

	// Feed sorted jobs into bounded channel
	bufSize := len(emails)
	if bufSize > 1000 {
		bufSize = 1000
	}
	jobs := make(chan job, bufSize)
	go func() {
		for _, j := range jobSlice {
			jobs <- j
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := v.Verify(ctx, j.email)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("verifying %q: %w", j.email, err)
					}
					mu.Unlock()
					continue
				}
				results[j.idx] = res
			}
		}()
	}

	wg.Wait()
	return results, firstErr
}

// Close stops all coordinators. Safe to call multiple times.
func (v *Verifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for _, c := range v.coords {
		c.Close()
	}
}

// coordinatorFor returns the coordinator owning domain, creating it on
// first use.
func (v *Verifier) coordinatorFor(domain string) (*coordinator.Coordinator, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrClosed
	}
	if c, ok := v.coords[domain]; ok {
		return c, nil
	}
	c := coordinator.New(domain, coordinator.Config{
		MaxConcurrency:  v.cfg.MaxConcurrencyPerMX,
		PipelineTimeout: v.cfg.PipelineTimeout,
		DNSCacheTTL:     v.cfg.DNSCacheTTL,
		CacheSize:       v.cfg.CacheSize,
		Logger:          v.cfg.Logger,
	}, v.blocklist, v.resolver, v.prober)
	v.coords[domain] = c
	return c, nil
}

func (v *Verifier) syntaxFailure(email parse.Email) types.Result {
	out := score.Evaluate(score.Inputs{SyntaxValid: false})
	return types.Result{
		Email:     email.Address(),
		Status:    out.Status,
		Score:     out.Score,
		Reason:    out.Reason,
		CheckedAt: nowMillis(),
		TTL:       out.TTL.Milliseconds(),
	}
}
