// Package domainutil splits hostnames against the embedded public-suffix
// table: registrable domain (eTLD+1) extraction and suffix membership.
package domainutil

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Registrable returns the registrable domain (eTLD+1) for host, e.g.
// "example.co.uk" for "mail.example.co.uk". The empty string is returned
// when host is itself a public suffix or cannot be split.
func Registrable(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return etld1
}

// ListedSuffix reports whether the suffix of host is present on the
// public-suffix list as an ICANN entry. Bare hostnames and made-up TLDs
// fail this test.
func ListedSuffix(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	_, icann := publicsuffix.PublicSuffix(host)
	return icann
}
