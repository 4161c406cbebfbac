// Package mailprobe estimates whether an email address would accept
// mail, without delivering any. It combines a syntax gate, a
// disposable-domain blocklist, DNS-over-HTTPS resolution and a live
// SMTP RCPT TO probe into a scored verdict, coordinated per domain so
// no mail exchanger sees more than a bounded number of concurrent
// probes.
//
// Basic usage:
//
//	v, err := mailprobe.New(mailprobe.Config{
//	    SMTPHeloDomain: "verifier.example.com",
//	    ProbeEmail:     "probe@verifier.example.com",
//	})
//	result, err := v.Verify(ctx, "user@example.com")
//
// Results carry a status (DELIVERABLE, RISKY, UNKNOWN, UNDELIVERABLE,
// TIMEOUT), a score in [0,100] and a cache TTL derived from confidence.
package mailprobe

import (
	"time"

	"github.com/optimode/mailprobe/types"
)

// Result is a re-export from the types package so that consumers don't
// need to import the types package directly.
type Result = types.Result

// Status constants re-exported.
const (
	StatusDeliverable   = types.StatusDeliverable
	StatusRisky         = types.StatusRisky
	StatusUnknown       = types.StatusUnknown
	StatusUndeliverable = types.StatusUndeliverable
	StatusTimeout       = types.StatusTimeout
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
