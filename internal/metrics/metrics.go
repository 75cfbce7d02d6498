package metrics

import (
	"time"

	"github.com/flowpbx/neteq/internal/neteq/arrival"
	"github.com/flowpbx/neteq/internal/neteq/packetbuffer"
	"github.com/prometheus/client_golang/prometheus"
)

// SessionStatsProvider is the subset of engine.Instance the collector
// reads at scrape time, kept as an interface so this package never
// imports the engine facade directly.
type SessionStatsProvider interface {
	NumPacketsBuffered() int
	BufferStats() packetbuffer.Stats
	ArrivalStats() *arrival.Stats
}

// Session pairs one active decoder instance with a label (e.g. its SSRC)
// for per-session metric labeling. ID is the session's UUID, carried
// through for API responses; metrics labeling uses Label, not ID, to
// keep cardinality stable across a session's lifetime.
type Session struct {
	Label    string
	ID       string
	Provider SessionStatsProvider
}

// SessionLister returns the currently active sessions at scrape time.
type SessionLister func() []Session

// Collector is a prometheus.Collector that gathers NetEQ jitter-buffer
// metrics across all active decoder sessions at scrape time.
type Collector struct {
	sessions  SessionLister
	startTime time.Time

	packetsBufferedDesc *prometheus.Desc
	discardedDesc        *prometheus.Desc
	cumulativeLostDesc    *prometheus.Desc
	fractionLostDesc      *prometheus.Desc
	jitterSamplesDesc     *prometheus.Desc
	optimalLevelDesc      *prometheus.Desc
	sessionsActiveDesc    *prometheus.Desc
	uptimeDesc            *prometheus.Desc
}

// NewCollector creates a metrics collector; sessions is called fresh on
// every Collect so newly opened/closed sessions are reflected without
// re-registering the collector.
func NewCollector(sessions SessionLister, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		startTime: startTime,

		packetsBufferedDesc: prometheus.NewDesc(
			"neteqd_packets_buffered",
			"Number of packets currently held in the jitter buffer",
			[]string{"session"}, nil,
		),
		discardedDesc: prometheus.NewDesc(
			"neteqd_packets_discarded_total",
			"Total packets discarded by the jitter buffer, by reason",
			[]string{"session", "reason"}, nil,
		),
		cumulativeLostDesc: prometheus.NewDesc(
			"neteqd_cumulative_lost",
			"RFC 3550 cumulative number of packets lost",
			[]string{"session"}, nil,
		),
		fractionLostDesc: prometheus.NewDesc(
			"neteqd_fraction_lost",
			"RFC 3550 fraction lost over the last reporting interval, 0-255 fixed-point",
			[]string{"session"}, nil,
		),
		jitterSamplesDesc: prometheus.NewDesc(
			"neteqd_jitter_samples",
			"RFC 3550 interarrival jitter estimate, in samples",
			[]string{"session"}, nil,
		),
		optimalLevelDesc: prometheus.NewDesc(
			"neteqd_optimal_buffer_level_q8",
			"Automode's computed optimal buffer level, Q8 fixed-point packets",
			[]string{"session"}, nil,
		),
		sessionsActiveDesc: prometheus.NewDesc(
			"neteqd_sessions_active",
			"Number of active decoder sessions",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"neteqd_uptime_seconds",
			"Seconds since the neteqd process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsBufferedDesc
	ch <- c.discardedDesc
	ch <- c.cumulativeLostDesc
	ch <- c.fractionLostDesc
	ch <- c.jitterSamplesDesc
	ch <- c.optimalLevelDesc
	ch <- c.sessionsActiveDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries every active
// session's facade directly (no I/O, no context needed) at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	sessions := c.sessions()

	for _, s := range sessions {
		ch <- prometheus.MustNewConstMetric(
			c.packetsBufferedDesc, prometheus.GaugeValue,
			float64(s.Provider.NumPacketsBuffered()), s.Label,
		)

		bufStats := s.Provider.BufferStats()
		ch <- prometheus.MustNewConstMetric(
			c.discardedDesc, prometheus.CounterValue,
			float64(bufStats.DiscardedDuplicate), s.Label, "duplicate",
		)
		ch <- prometheus.MustNewConstMetric(
			c.discardedDesc, prometheus.CounterValue,
			float64(bufStats.DiscardedOverflow), s.Label, "overflow",
		)

		if arr := s.Provider.ArrivalStats(); arr != nil {
			ch <- prometheus.MustNewConstMetric(
				c.cumulativeLostDesc, prometheus.GaugeValue,
				float64(arr.CumulativeLost()), s.Label,
			)
			ch <- prometheus.MustNewConstMetric(
				c.fractionLostDesc, prometheus.GaugeValue,
				float64(arr.FractionLost()), s.Label,
			)
			ch <- prometheus.MustNewConstMetric(
				c.jitterSamplesDesc, prometheus.GaugeValue,
				float64(arr.JitterSamples()), s.Label,
			)
			ch <- prometheus.MustNewConstMetric(
				c.optimalLevelDesc, prometheus.GaugeValue,
				float64(arr.OptimalBufferLevelQ8()), s.Label,
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.sessionsActiveDesc, prometheus.GaugeValue, float64(len(sessions)),
	)
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
