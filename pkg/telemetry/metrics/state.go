package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
)

// Sources are the components whose state is exported on each scrape.
// Nil fields are skipped.
type Sources struct {
	Ledger    *quota.Ledger
	Failovers *routing.FailoverStats

	// Dropped returns the request log's dropped entry count.
	Dropped func() int64
}

// stateCollector reads component state at scrape time.
//
// Metrics:
//   - smolrouter_quota_key_status: keys per provider, model and status
//   - smolrouter_quota_resets_total: exhausted pairs restored per provider
//   - smolrouter_failovers_total: failovers per alias
//   - smolrouter_logsink_dropped_total: request log entries dropped
type stateCollector struct {
	src     Sources
	limiter *CardinalityLimiter

	keyStatus *prometheus.Desc
	resets    *prometheus.Desc
	failovers *prometheus.Desc
	dropped   *prometheus.Desc
}

func newStateCollector(namespace string, src Sources, limiter *CardinalityLimiter) *stateCollector {
	return &stateCollector{
		src:     src,
		limiter: limiter,
		keyStatus: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "quota_key_status"),
			"Number of keys in each quota status per provider and model",
			[]string{"provider", "model", "status"}, nil,
		),
		resets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "quota_resets_total"),
			"Exhausted key/model pairs restored by the reset sweeper",
			[]string{"provider"}, nil,
		),
		failovers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failovers_total"),
			"Moves to the next instance of an alias",
			[]string{"alias"}, nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "logsink_dropped_total"),
			"Request log entries dropped because the write queue was full",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (s *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.keyStatus
	ch <- s.resets
	ch <- s.failovers
	ch <- s.dropped
}

type keyStatusLabels struct {
	provider, model, status string
}

// Collect implements prometheus.Collector.
func (s *stateCollector) Collect(ch chan<- prometheus.Metric) {
	if l := s.src.Ledger; l != nil {
		counts := make(map[keyStatusLabels]int)
		for _, provider := range l.Providers() {
			for _, st := range l.Stats(provider) {
				model := st.Model
				if !s.limiter.Allow(provider + "/" + model) {
					model = "other"
				}
				counts[keyStatusLabels{provider, model, string(st.Status)}]++
			}
		}
		for k, n := range counts {
			ch <- prometheus.MustNewConstMetric(s.keyStatus, prometheus.GaugeValue, float64(n), k.provider, k.model, k.status)
		}
		for provider, n := range l.ResetsByProvider() {
			ch <- prometheus.MustNewConstMetric(s.resets, prometheus.CounterValue, float64(n), provider)
		}
	}

	if f := s.src.Failovers; f != nil {
		for alias, n := range f.Snapshot().PerAlias {
			ch <- prometheus.MustNewConstMetric(s.failovers, prometheus.CounterValue, float64(n), alias)
		}
	}

	if s.src.Dropped != nil {
		ch <- prometheus.MustNewConstMetric(s.dropped, prometheus.CounterValue, float64(s.src.Dropped()))
	}
}
