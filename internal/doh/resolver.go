// Package doh resolves mail-path DNS records (MX, A, AAAA) over
// DNS-over-HTTPS with a JSON response body.
package doh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optimode/mailprobe/types"
)

// DefaultEndpoint is the Cloudflare JSON DoH endpoint.
const DefaultEndpoint = "https://cloudflare-dns.com/dns-query"

// DNS record types as they appear in the JSON answer.
const (
	typeA    = 1
	typeMX   = 15
	typeAAAA = 28
)

// Resolver issues DoH queries for one domain at a time.
// The zero value is not usable; construct with New.
type Resolver struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// Config configures a Resolver. Zero fields get defaults.
type Config struct {
	Endpoint string        // DoH endpoint URL. Default: DefaultEndpoint
	Timeout  time.Duration // per-request deadline. Default: 5s
	Client   *http.Client  // injectable for testing
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Resolver{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
	}
}

// answer is one resource record in a DoH JSON response.
type answer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

// response is the DoH JSON response body.
type response struct {
	Status int      `json:"Status"`
	Answer []answer `json:"Answer"`
}

// Lookup resolves the mail path for domain: MX and A are queried
// concurrently, AAAA only when A came back empty. Any error degrades to
// the empty DNSResult; callers treat that as "domain has no mail path".
func (r *Resolver) Lookup(ctx context.Context, domain string) types.DNSResult {
	var mxAnswers, aAnswers []answer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mxAnswers, err = r.query(gctx, domain, "MX")
		return err
	})
	g.Go(func() error {
		var err error
		aAnswers, err = r.query(gctx, domain, "A")
		return err
	})
	if err := g.Wait(); err != nil {
		return types.DNSResult{}
	}

	records := parseMX(mxAnswers, domain)
	hasA := hasRecords(aAnswers, typeA)

	if !hasA {
		if aaaa, err := r.query(ctx, domain, "AAAA"); err == nil {
			hasA = hasRecords(aaaa, typeAAAA)
		}
	}

	return types.DNSResult{
		HasMX:   len(records) > 0,
		Records: records,
		HasA:    hasA,
	}
}

// query performs one GET <endpoint>?name=<domain>&type=<qtype> request.
func (r *Resolver) query(ctx context.Context, domain, qtype string) ([]answer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := fmt.Sprintf("%s?name=%s&type=%s", r.endpoint, url.QueryEscape(domain), qtype)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh: %s query for %s: status %d", qtype, domain, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("doh: read response: %w", err)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("doh: decode response: %w", err)
	}
	return parsed.Answer, nil
}

// parseMX extracts MX records from "<prio> <exchange>" answer data,
// strips the trailing dot from the exchange and stably sorts ascending
// by priority so that ties keep DNS response order.
func parseMX(answers []answer, domain string) []types.MX {
	var records []types.MX
	for _, a := range answers {
		if a.Type != typeMX {
			continue
		}
		prio, exchange, ok := splitMXData(a.Data)
		if !ok {
			continue
		}
		// A single dot means "no mail accepted here" (null MX, RFC 7505).
		if exchange == "" || exchange == "." {
			continue
		}
		records = append(records, types.MX{
			Priority: prio,
			Exchange: strings.TrimSuffix(exchange, "."),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})
	return records
}

func splitMXData(data string) (uint16, string, bool) {
	fields := strings.Fields(data)
	if len(fields) != 2 {
		return 0, "", false
	}
	prio, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(prio), fields[1], true
}

func hasRecords(answers []answer, rrType int) bool {
	for _, a := range answers {
		if a.Type == rrType {
			return true
		}
	}
	return false
}
