package kademlia

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the small set of operational counters a production DHT node
// wants: malformed-message and timeout/unreachable counts alongside the
// per-kind message and routing-table gauges.
type Metrics struct {
	MalformedMessages prometheus.Counter
	RequestTimeouts    prometheus.Counter
	PeerUnreachable    prometheus.Counter
	BucketEvictions    prometheus.Counter
	MessagesSent       *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	InFlightLookups    prometheus.Gauge
	RoutingTableSize    prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for the process-wide default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_malformed_messages_total",
			Help: "Datagrams dropped by the wire codec because they failed to parse.",
		}),
		RequestTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_request_timeouts_total",
			Help: "Outbound requests that received no matching response before their deadline.",
		}),
		PeerUnreachable: factory.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_peer_unreachable_total",
			Help: "Outbound sends that failed at the socket layer.",
		}),
		BucketEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_bucket_evictions_total",
			Help: "Routing table entries evicted because their liveness probe timed out.",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kademlia_messages_sent_total",
			Help: "Outbound messages by kind.",
		}, []string{"kind"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kademlia_messages_received_total",
			Help: "Inbound messages by kind.",
		}, []string{"kind"}),
		InFlightLookups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kademlia_inflight_lookups",
			Help: "Iterative lookups currently in progress. Registered but not updated by the lookup engine, so it reads 0.",
		}),
		RoutingTableSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kademlia_routing_table_contacts",
			Help: "Total contacts currently held across all buckets.",
		}),
	}
}

// Serve starts an HTTP server exposing reg on addr at /metrics on a
// background goroutine and returns immediately; stop it with the returned
// *http.Server's Shutdown/Close. A listen error is discarded.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
