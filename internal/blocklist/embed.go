package blocklist

import (
	_ "embed"
	"strings"
)

// Snapshot of well-known disposable providers, used when no KV store is
// configured. The external store remains the source of truth in service
// deployments.
//
//go:embed list.txt
var rawList string

var snapshot map[string]struct{}

func init() {
	snapshot = make(map[string]struct{})
	for _, line := range strings.Split(rawList, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			snapshot[strings.ToLower(line)] = struct{}{}
		}
	}
}

func snapshotHas(domain string) bool {
	_, ok := snapshot[domain]
	return ok
}
