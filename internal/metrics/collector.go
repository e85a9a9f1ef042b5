package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InterviewCounter reports how many interviews are stored.
type InterviewCounter interface {
	Count(ctx context.Context) (int, error)
}

// SessionState reports the transcript session's active interview.
type SessionState interface {
	ActiveID() (int64, bool)
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	store   InterviewCounter
	session SessionState

	interviews    *prometheus.Desc
	storeUp       *prometheus.Desc
	sessionActive *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either argument may be nil; its gauges then report 0.
func NewCollector(store InterviewCounter, session SessionState) *Collector {
	return &Collector{
		store:   store,
		session: session,
		interviews: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "interviews"),
			"Number of stored interview records.",
			nil, nil,
		),
		storeUp: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "up"),
			"Whether the last scrape could read the interview store.",
			nil, nil,
		),
		sessionActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "active"),
			"1 while a transcript session is active.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.interviews
	ch <- c.storeUp
	ch <- c.sessionActive
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var count, up float64
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		n, err := c.store.Count(ctx)
		cancel()
		if err == nil {
			count, up = float64(n), 1
		}
	}
	ch <- prometheus.MustNewConstMetric(c.interviews, prometheus.GaugeValue, count)
	ch <- prometheus.MustNewConstMetric(c.storeUp, prometheus.GaugeValue, up)

	var active float64
	if c.session != nil {
		if _, ok := c.session.ActiveID(); ok {
			active = 1
		}
	}
	ch <- prometheus.MustNewConstMetric(c.sessionActive, prometheus.GaugeValue, active)
}
