package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/types"
)

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("alice@example.com"))
	assert.Equal(t, "example.com", domainOf(`"a@b"@example.com`))
	assert.Equal(t, "", domainOf("no-at-sign"))
}

// TestRoundTrip needs a live database; point MAILPROBE_TEST_DATABASE_URL
// at a scratch postgres to run it.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("MAILPROBE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MAILPROBE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := Open(ctx, dsn)
	assert.NoError(t, err)
	defer func() { _ = pg.Close() }()

	res := types.Result{
		Email:     "alice@example.com",
		Status:    types.StatusDeliverable,
		Score:     100,
		CheckedAt: 1700000000000,
		TTL:       86400000,
	}
	assert.NoError(t, pg.Save(ctx, res))

	got, err := pg.Get(ctx, res.Email)
	assert.NoError(t, err)
	assert.Equal(t, res, got)

	// Upsert replaces the verdict for the same address.
	res.Status = types.StatusRisky
	res.Score = 80
	res.Reason = "catch-all domain"
	assert.NoError(t, pg.SaveWithJob(ctx, res, "job-42"))

	got, err = pg.Get(ctx, res.Email)
	assert.NoError(t, err)
	assert.Equal(t, res, got)
}
