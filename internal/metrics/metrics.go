// Package metrics holds the relay's prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthrelay"

// Metrics is the set of relay collectors, registered on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	sessionsCreated  prometheus.Counter
	envelopes        *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	finalized        prometheus.Counter
	polls            *prometheus.CounterVec
	pollWait         prometheus.Histogram
	chunksStaged     prometheus.Counter
	chunkBytesStaged prometheus.Counter
	chunksServed     prometheus.Counter
	sessionsSwept    prometheus.Counter
}

// New creates and registers the relay collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Number of sessions created",
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_ingested_total",
			Help:      "Number of provider envelopes ingested",
		}, []string{"version"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Number of rejected session operations",
		}, []string{"code"}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finalized_total",
			Help:      "Number of sessions finalized",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Number of long-polls by outcome",
		}, []string{"outcome"}),
		pollWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_wait_seconds",
			Help:      "Time a long-poll was held open",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		chunksStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_staged_total",
			Help:      "Number of chunk blobs staged",
		}),
		chunkBytesStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_staged_total",
			Help:      "Ciphertext bytes staged as chunks",
		}),
		chunksServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_served_total",
			Help:      "Number of chunk blobs served",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Number of sessions removed by the TTL sweep",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsCreated, m.envelopes, m.rejections, m.finalized,
		m.polls, m.pollWait, m.chunksStaged, m.chunkBytesStaged,
		m.chunksServed, m.sessionsSwept,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) EnvelopeIngested(version int) {
	if m != nil {
		m.envelopes.WithLabelValues(strconv.Itoa(version)).Inc()
	}
}

// Rejected counts a rejected operation by its error code.
func (m *Metrics) Rejected(code string) {
	if m != nil {
		m.rejections.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) Finalized() {
	if m != nil {
		m.finalized.Inc()
	}
}

// Polled records a finished long-poll. outcome is "ready", "timeout" or "error".
func (m *Metrics) Polled(outcome string, seconds float64) {
	if m != nil {
		m.polls.WithLabelValues(outcome).Inc()
		m.pollWait.Observe(seconds)
	}
}

func (m *Metrics) ChunkStaged(size int) {
	if m != nil {
		m.chunksStaged.Inc()
		m.chunkBytesStaged.Add(float64(size))
	}
}

func (m *Metrics) ChunkServed() {
	if m != nil {
		m.chunksServed.Inc()
	}
}

func (m *Metrics) Swept(n int) {
	if m != nil {
		m.sessionsSwept.Add(float64(n))
	}
}
