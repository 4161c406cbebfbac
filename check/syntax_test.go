package check_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/check"
)

func TestSyntax_Valid(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@example.co.uk",
		"user+tag@example.com",
		"o'brien@example.ie",
		`"quoted local"@example.com`,
		"info@münchen.de",
	}
	for _, raw := range valid {
		email, reason := check.Syntax(raw)
		assert.Empty(t, reason, "input %q", raw)
		assert.True(t, email.Valid, "input %q", raw)
	}
}

func TestSyntax_Invalid(t *testing.T) {
	tests := []struct {
		raw    string
		reason string
	}{
		{"", "empty"},
		{"not-an-email", "invalid email syntax"},
		{"user@", "invalid email syntax"},
		{"@example.com", "invalid email syntax"},
		{"user@localhost", "at least two labels"},
		{".user@example.com", "dot"},
		{"us..er@example.com", "dots"},
		{"user@-bad-.com", "hyphen"},
		{"user@example.notarealtld", "public suffix"},
		{"user@example.123", "TLD"},
	}
	for _, tt := range tests {
		_, reason := check.Syntax(tt.raw)
		assert.NotEmpty(t, reason, "input %q", tt.raw)
		assert.Contains(t, strings.ToLower(reason), strings.ToLower(tt.reason), "input %q", tt.raw)
	}
}

func TestSyntax_LengthLimits(t *testing.T) {
	longLocal := strings.Repeat("a", 65) + "@example.com"
	_, reason := check.Syntax(longLocal)
	assert.Contains(t, reason, "local part exceeds")

	longAddr := strings.Repeat("a", 64) + "@" + strings.Repeat("b", 200) + ".com"
	_, reason = check.Syntax(longAddr)
	assert.NotEmpty(t, reason)
}

func TestSyntax_NormalizesDomain(t *testing.T) {
	email, reason := check.Syntax("Alice@EXAMPLE.Com")
	assert.Empty(t, reason)
	assert.Equal(t, "example.com", email.Domain)
	assert.Equal(t, "Alice@example.com", email.Address())
}
