// Package score maps the tuple of pipeline stage outcomes to a numeric
// score, a verdict and a cache TTL. It is a pure function: no clock, no
// network, no hidden state.
package score

import (
	"strings"
	"time"

	"github.com/optimode/mailprobe/types"
)

// Inputs are the stage outcomes feeding one scoring decision.
type Inputs struct {
	SyntaxValid  bool
	DNS          types.DNSResult
	IsDisposable bool
	CatchAll     types.CatchAll
	SMTP         types.ProbeResult
}

// Outcome is the scored verdict. TTL is the cache lifetime of the result.
type Outcome struct {
	Status types.Status
	Score  int
	Reason string
	TTL    time.Duration
}

// TimeoutTTL is the short cache lifetime of synthetic TIMEOUT results,
// allowing fast retries.
const TimeoutTTL = 15 * time.Minute

// Evaluate derives the outcome from the stage results.
//
// The additive model starts at zero and walks three buckets (disposable,
// catch-all, SMTP), clamped to [0,100]. Verdict derivation considers
// catch-all before the perfect-score check so a catch-all domain can
// never be DELIVERABLE, and an UNDELIVERABLE verdict forces the score
// to zero.
func Evaluate(in Inputs) Outcome {
	if !in.SyntaxValid {
		return Outcome{
			Status: types.StatusUndeliverable,
			Score:  0,
			Reason: "Invalid email syntax",
			TTL:    ttlForScore(0),
		}
	}
	if !in.DNS.Valid() {
		return Outcome{
			Status: types.StatusUndeliverable,
			Score:  0,
			Reason: "Domain has no valid mail server",
			TTL:    ttlForScore(0),
		}
	}

	score := 0
	var reasons []string

	if in.IsDisposable {
		score += 20
		reasons = append(reasons, "Disposable email domain")
	} else {
		score += 50
	}

	switch in.CatchAll {
	case types.CatchAllYes:
		score += 20
		reasons = append(reasons, "catch-all domain")
	case types.CatchAllNo:
		score += 30
	}

	smtpCode := 0
	hasCode := false
	if in.SMTP.Response != nil {
		smtpCode = in.SMTP.Response.Code
		hasCode = smtpCode > 0
	}

	switch {
	case in.SMTP.Success:
		score += 50
	case hasCode && smtpCode >= 500:
		reasons = append(reasons, "mailbox does not exist")
	case hasCode && smtpCode >= 400:
		score += 10
		reasons = append(reasons, "temporary mailbox failure")
	}

	if score > 100 {
		score = 100
	}

	status := verdict(score, in.CatchAll, smtpCode, hasCode)
	if status == types.StatusUndeliverable {
		score = 0
	}

	reason := strings.Join(reasons, ", ")
	if status == types.StatusDeliverable {
		reason = ""
	}

	return Outcome{
		Status: status,
		Score:  score,
		Reason: reason,
		TTL:    ttlForScore(score),
	}
}

func verdict(score int, catchAll types.CatchAll, smtpCode int, hasCode bool) types.Status {
	switch {
	case catchAll == types.CatchAllYes && score >= 70:
		return types.StatusRisky
	case score == 100:
		return types.StatusDeliverable
	case score < 70 || !hasCode:
		return types.StatusUnknown
	case smtpCode >= 500:
		return types.StatusUndeliverable
	default:
		return types.StatusUnknown
	}
}

func ttlForScore(score int) time.Duration {
	switch {
	case score >= 90:
		return 24 * time.Hour
	case score >= 70:
		return 12 * time.Hour
	case score >= 50:
		return 6 * time.Hour
	default:
		return time.Hour
	}
}
