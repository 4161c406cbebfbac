package mailprobe

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/optimode/mailprobe/internal/blocklist"
)

// Config configures a Verifier. SMTPHeloDomain and ProbeEmail are
// required; everything else has a default.
type Config struct {
	// SMTPHeloDomain is the hostname presented in HELO. Required.
	SMTPHeloDomain string
	// ProbeEmail is the envelope sender used in MAIL FROM. Required.
	ProbeEmail string

	// MaxConcurrencyPerMX is the per-domain admission gate width. Default: 5
	MaxConcurrencyPerMX int
	// SMTPTimeout bounds one whole MX dialog. Default: 5s
	SMTPTimeout time.Duration
	// SMTPPort is the SMTP port. Default: "25"
	SMTPPort string
	// DNSTimeout bounds one DoH request. Default: 5s
	DNSTimeout time.Duration
	// DoHEndpoint is the DNS-over-HTTPS JSON endpoint.
	// Default: https://cloudflare-dns.com/dns-query
	DoHEndpoint string
	// BlocklistTimeout caps a disposable-domain lookup. Default: 2s
	BlocklistTimeout time.Duration
	// PipelineTimeout is the coordinator's overall deadline per
	// verification. Default: 10s
	PipelineTimeout time.Duration
	// OverallTimeout wraps the full Verify call. Default: 25s
	OverallTimeout time.Duration
	// DNSCacheTTL is the lifetime of a per-domain DNS cache entry.
	// Default: 30m
	DNSCacheTTL time.Duration
	// CacheSize bounds the per-domain email result cache. Default: 1024
	CacheSize int
	// GrayRetryAfter is the advisory retry interval handed to callers on
	// transient failures; the core does not consume it. Default: 1h
	GrayRetryAfter time.Duration

	// Blocklist is the shared KV store holding disposable domains.
	// When nil, the embedded snapshot is used.
	Blocklist blocklist.KV
	// HTTPClient is used for DoH requests. Injectable for testing.
	HTTPClient *http.Client
	// Dial is used for SMTP connections. Injectable for testing.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
	// Logger receives structured per-stage logs. Default: a null logger.
	Logger hclog.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MaxConcurrencyPerMX <= 0 {
		cfg.MaxConcurrencyPerMX = 5
	}
	if cfg.SMTPTimeout <= 0 {
		cfg.SMTPTimeout = 5 * time.Second
	}
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "25"
	}
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = 5 * time.Second
	}
	if cfg.BlocklistTimeout <= 0 {
		cfg.BlocklistTimeout = 2 * time.Second
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 10 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 25 * time.Second
	}
	if cfg.DNSCacheTTL <= 0 {
		cfg.DNSCacheTTL = 30 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.GrayRetryAfter <= 0 {
		cfg.GrayRetryAfter = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
}
