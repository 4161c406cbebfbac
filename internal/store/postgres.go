// Package store persists verification results to PostgreSQL so that
// operators can audit and replay past verdicts across restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/optimode/mailprobe/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS verification_results (
	email      TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	status     TEXT NOT NULL,
	score      INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	checked_at BIGINT NOT NULL,
	ttl        BIGINT NOT NULL,
	job_id     TEXT
);
CREATE INDEX IF NOT EXISTS verification_results_domain_idx
	ON verification_results (domain);
`

const upsert = `
INSERT INTO verification_results (email, domain, status, score, reason, checked_at, ttl, job_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
ON CONFLICT (email) DO UPDATE SET
	domain = EXCLUDED.domain,
	status = EXCLUDED.status,
	score = EXCLUDED.score,
	reason = EXCLUDED.reason,
	checked_at = EXCLUDED.checked_at,
	ttl = EXCLUDED.ttl,
	job_id = COALESCE(EXCLUDED.job_id, verification_results.job_id)
`

// Postgres stores one row per verified address, newest verdict wins.
type Postgres struct {
	db *sql.DB
}

// Open connects to the database at url and ensures the schema exists.
func Open(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Save upserts one result keyed by address, with no job association.
func (p *Postgres) Save(ctx context.Context, res types.Result) error {
	return p.SaveWithJob(ctx, res, "")
}

// SaveWithJob upserts one result keyed by address, tagged with the batch
// job that requested it. An empty jobID stores NULL and preserves any
// previously recorded job.
func (p *Postgres) SaveWithJob(ctx context.Context, res types.Result, jobID string) error {
	_, err := p.db.ExecContext(ctx, upsert,
		res.Email, domainOf(res.Email), string(res.Status), res.Score,
		res.Reason, res.CheckedAt, res.TTL, jobID)
	if err != nil {
		return fmt.Errorf("upserting %q: %w", res.Email, err)
	}
	return nil
}

// Get returns the stored result for email, or sql.ErrNoRows.
func (p *Postgres) Get(ctx context.Context, email string) (types.Result, error) {
	var res types.Result
	var status string
	err := p.db.QueryRowContext(ctx,
		`SELECT email, status, score, reason, checked_at, ttl
		 FROM verification_results WHERE email = $1`, email).
		Scan(&res.Email, &status, &res.Score, &res.Reason, &res.CheckedAt, &res.TTL)
	if err != nil {
		return types.Result{}, err
	}
	res.Status = types.Status(status)
	return res, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
