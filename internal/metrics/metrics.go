// Package metrics holds the Prometheus collectors for mailprobe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verifications counts completed verifications by final status.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailprobe_verifications_total",
		Help: "Completed email verifications by final status.",
	}, []string{"status"})

	// CacheHits counts lookups served from the coordinator caches.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailprobe_cache_hits_total",
		Help: "Verification lookups served from cache, by cache kind.",
	}, []string{"cache"})

	// AdmissionRejected counts verifications refused by the per-domain
	// concurrency gate.
	AdmissionRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailprobe_admission_rejected_total",
		Help: "Verifications refused by the per-domain admission gate.",
	})

	// CatchAllProbes counts catch-all probes by result.
	CatchAllProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailprobe_catchall_probes_total",
		Help: "Catch-all probes run, by result.",
	}, []string{"result"})

	// DNSLookups counts DoH lookups actually issued (cache misses).
	DNSLookups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailprobe_dns_lookups_total",
		Help: "DNS-over-HTTPS lookups issued by coordinators.",
	})
)
