// Package smtpprobe speaks just enough SMTP to learn whether a mailbox
// would accept mail, without ever issuing DATA.
//
// One probe is one dialog against one MX: banner, HELO, best-effort
// STARTTLS, MAIL FROM, RCPT TO, QUIT. The RCPT TO reply is the decisive
// answer; everything before it only qualifies the attempt.
package smtpprobe

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"math/big"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/optimode/mailprobe/types"
)

// Config configures a Prober. Zero fields get defaults.
type Config struct {
	HeloDomain string        // hostname presented in HELO. Required.
	ProbeEmail string        // envelope sender for MAIL FROM. Required.
	Timeout    time.Duration // single deadline for one whole MX dialog. Default: 5s
	Port       string        // SMTP port. Default: "25"
	// Dial is injectable for testing. Defaults to a net.Dialer.
	Dial   func(ctx context.Context, network, address string) (net.Conn, error)
	Logger hclog.Logger
}

// Prober runs mailbox and catch-all probes against a domain's MX list.
type Prober struct {
	cfg Config
	log hclog.Logger
}

// New creates a Prober.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Prober{cfg: cfg, log: log.Named("smtpprobe")}
}

// Verify probes the mailbox of email against mxRecords in priority order.
// A positive RCPT TO reply succeeds; a 5xx RCPT TO reply is authoritative
// and stops the MX walk. Connect failures, timeouts, 4xx replies and
// unparseable responses fall through to the next MX.
func (p *Prober) Verify(ctx context.Context, email string, mxRecords []types.MX) types.ProbeResult {
	if len(mxRecords) == 0 {
		return types.ProbeResult{Success: false, Error: "no MX records to probe"}
	}

	var lastErr error
	for _, mx := range mxRecords {
		if err := ctx.Err(); err != nil {
			return types.ProbeResult{Success: false, Error: err.Error()}
		}

		host := strings.TrimSuffix(mx.Exchange, ".")
		resp, err := p.probeMX(ctx, host, email)
		if err != nil {
			p.log.Debug("mx attempt failed", "mx", host, "err", err)
			lastErr = err
			continue
		}

		switch {
		case resp.Positive():
			return types.ProbeResult{Success: true, Response: resp}
		case resp.Permanent():
			// Authoritative rejection; do not try further MX hosts.
			return types.ProbeResult{Success: false, Response: resp}
		default:
			// 4xx or unparseable: transient, try the next MX.
			lastErr = fmt.Errorf("transient RCPT reply from %s: %d %s", host, resp.Code, resp.Message)
		}
	}

	return types.ProbeResult{Success: false, Error: fmt.Sprintf("all MX hosts exhausted: %v", lastErr)}
}

// TestCatchAll probes a random, almost certainly nonexistent local part
// at domain. A positive RCPT TO implies the domain accepts arbitrary
// recipients.
func (p *Prober) TestCatchAll(ctx context.Context, domain string, mxRecords []types.MX) bool {
	addr := randomLocal() + "@" + domain
	res := p.Verify(ctx, addr, mxRecords)
	return res.Success
}

// errTLSPoisoned marks a session that answered STARTTLS positively but
// failed the handshake; such sessions cannot be trusted to continue in
// plaintext and must be reopened.
var errTLSPoisoned = errors.New("smtpprobe: session poisoned after failed TLS upgrade")

// probeMX runs one dialog against one MX and returns the RCPT TO reply.
// On a poisoned STARTTLS session it reopens once in plaintext.
func (p *Prober) probeMX(ctx context.Context, host, email string) (*types.SMTPResponse, error) {
	resp, err := p.dialog(ctx, host, email, true)
	if errors.Is(err, errTLSPoisoned) {
		resp, err = p.dialog(ctx, host, email, false)
	}
	return resp, err
}

func (p *Prober) dialog(ctx context.Context, host, email string, tryTLS bool) (*types.SMTPResponse, error) {
	deadline := time.Now().Add(p.cfg.Timeout)
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := p.cfg.Dial(dctx, "tcp", net.JoinHostPort(host, p.cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", host, err)
	}
	// Outer cancellation must truly interrupt pending reads.
	stop := context.AfterFunc(dctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(deadline)

	s := &session{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}

	banner, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("read banner from %s: %w", host, err)
	}
	if !banner.Positive() {
		return nil, fmt.Errorf("banner from %s: %d %s", host, banner.Code, banner.Message)
	}

	if resp, err := s.cmd("HELO " + p.cfg.HeloDomain); err != nil {
		return nil, fmt.Errorf("HELO: %w", err)
	} else if !resp.Positive() {
		return nil, fmt.Errorf("HELO rejected by %s: %d %s", host, resp.Code, resp.Message)
	}

	if tryTLS {
		if err := p.upgradeTLS(s, host, deadline); err != nil {
			return nil, err
		}
	}

	if resp, err := s.cmd("MAIL FROM:<" + p.cfg.ProbeEmail + ">"); err != nil {
		return nil, fmt.Errorf("MAIL FROM: %w", err)
	} else if !resp.Positive() {
		return nil, fmt.Errorf("MAIL FROM rejected by %s: %d %s", host, resp.Code, resp.Message)
	}

	rcpt, err := s.cmd("RCPT TO:<" + email + ">")
	if err != nil {
		return nil, fmt.Errorf("RCPT TO: %w", err)
	}

	s.quit()
	return rcpt, nil
}

// upgradeTLS attempts STARTTLS. A negative STARTTLS reply leaves the
// plaintext session usable. A positive reply followed by a failed
// handshake poisons the session. After a successful upgrade HELO is
// re-sent, as the server forgets prior state.
func (p *Prober) upgradeTLS(s *session, host string, deadline time.Time) error {
	resp, err := s.cmd("STARTTLS")
	if err != nil {
		return fmt.Errorf("STARTTLS: %w", err)
	}
	if !resp.Positive() {
		p.log.Debug("starttls not offered, continuing plaintext", "mx", host, "code", resp.Code)
		return nil
	}

	tlsConn := tls.Client(s.conn, &tls.Config{ServerName: host})
	_ = tlsConn.SetDeadline(deadline)
	if err := tlsConn.Handshake(); err != nil {
		p.log.Debug("tls handshake failed, reopening plaintext", "mx", host, "err", err)
		return errTLSPoisoned
	}

	s.conn = tlsConn
	s.r = bufio.NewReader(tlsConn)
	s.w = bufio.NewWriter(tlsConn)

	rehelo, err := s.cmd("HELO " + p.cfg.HeloDomain)
	if err != nil {
		return fmt.Errorf("HELO after STARTTLS: %w", err)
	}
	if !rehelo.Positive() {
		return fmt.Errorf("HELO after STARTTLS rejected by %s: %d %s", host, rehelo.Code, rehelo.Message)
	}
	return nil
}

// session is one SMTP dialog over one connection.
type session struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func (s *session) cmd(line string) (*types.SMTPResponse, error) {
	if _, err := s.w.WriteString(line + "\r\n"); err != nil {
		return nil, err
	}
	if err := s.w.Flush(); err != nil {
		return nil, err
	}
	return s.read()
}

// responseLine matches one SMTP reply line: code, continuation marker,
// text. Multi-line replies use '-' until the final space-separated line.
var responseLine = regexp.MustCompile(`^(\d{3})([ -])(.*)$`)

// read drains one (possibly multi-line) SMTP reply. A reply that does
// not match the response grammar yields code 0, which callers treat as
// a transient failure.
func (s *session) read() (*types.SMTPResponse, error) {
	var (
		code  int
		parts []string
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		m := responseLine.FindStringSubmatch(line)
		if m == nil {
			return &types.SMTPResponse{Code: 0, Message: line}, nil
		}
		code, _ = strconv.Atoi(m[1])
		parts = append(parts, m[3])
		if m[2] == " " {
			break
		}
	}
	return &types.SMTPResponse{Code: code, Message: strings.Join(parts, " ")}, nil
}

// quit sends QUIT best-effort; the reply is irrelevant.
func (s *session) quit() {
	_ = s.conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = s.w.WriteString("QUIT\r\n")
	_ = s.w.Flush()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomLocal generates a local part unlikely to exist: a fixed probe-
// prefix and 8-10 random base-36 characters.
func randomLocal() string {
	n := 8 + randInt(3)
	var b strings.Builder
	b.WriteString("probe-")
	for i := 0; i < n; i++ {
		b.WriteByte(base36[randInt(len(base36))])
	}
	return b.String()
}

func randInt(max int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
