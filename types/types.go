// Package types contains the shared types for mailprobe.
// This package does not import anything from other mailprobe packages
// to avoid circular imports.
package types

// Status is the verdict of a verification.
type Status = string

const (
	StatusDeliverable   Status = "DELIVERABLE"
	StatusRisky         Status = "RISKY"
	StatusUnknown       Status = "UNKNOWN"
	StatusUndeliverable Status = "UNDELIVERABLE"
	StatusTimeout       Status = "TIMEOUT"
)

// MX is a single mail-exchanger record. Lower Priority is preferred;
// ties keep DNS response order.
type MX struct {
	Priority uint16 `json:"priority"`
	Exchange string `json:"exchange"`
}

// DNSResult is the resolved mail path for one domain.
// Immutable after creation.
type DNSResult struct {
	HasMX   bool `json:"hasMx"`
	Records []MX `json:"records"`
	HasA    bool `json:"hasA"`
}

// Valid reports whether the domain has any mail path at all.
func (d DNSResult) Valid() bool {
	return d.HasMX || d.HasA
}

// SMTPResponse is a parsed SMTP reply. Code 0 denotes "no parseable
// response / read error".
type SMTPResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Positive reports whether the reply is in the 2xx/3xx class.
func (r SMTPResponse) Positive() bool {
	return r.Code >= 200 && r.Code < 400
}

// Permanent reports whether the reply is a 5xx.
func (r SMTPResponse) Permanent() bool {
	return r.Code >= 500 && r.Code < 600
}

// ProbeResult is the outcome of one SMTP mailbox probe.
// Success is true iff RCPT TO returned a positive response.
type ProbeResult struct {
	Success  bool          `json:"success"`
	Response *SMTPResponse `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// CatchAll is the tri-state catch-all knowledge for a domain.
// It stays CatchAllUnknown until a catch-all probe has run.
type CatchAll int

const (
	CatchAllUnknown CatchAll = iota
	CatchAllNo
	CatchAllYes
)

// Result is the outcome of one email verification.
// CheckedAt is epoch milliseconds, TTL is a duration in milliseconds.
type Result struct {
	Email     string `json:"email"`
	Status    Status `json:"status"`
	Score     int    `json:"score"`
	Reason    string `json:"reason,omitempty"`
	CheckedAt int64  `json:"checkedAt"`
	TTL       int64  `json:"ttl"`
}
