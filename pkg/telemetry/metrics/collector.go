package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mitchins/SmolRouter/pkg/config"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "smolrouter"

// Collector owns SmolRouter's Prometheus metrics.
//
// Event metrics (requests, upstream attempts, funnel waits) are updated as
// things happen. State metrics (quota keys, failovers, dropped log
// entries) are read from their owners on each scrape; see Watch.
//
// When metrics are disabled every Record and Observe method is a no-op.
type Collector struct {
	enabled   bool
	namespace string
	registry  *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics

	// cardinalityLimiter bounds the model label, which clients choose.
	cardinalityLimiter *CardinalityLimiter

	watchOnce sync.Once
}

// NewCollector creates a collector registered with registry. A nil
// registry gets a fresh one, so tests and multiple servers do not share
// the global default.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		enabled:            cfg.IsEnabled(),
		namespace:          namespace,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
	c.requestMetrics = NewRequestMetrics(namespace, registry)
	c.upstreamMetrics = NewUpstreamMetrics(namespace, registry)
	return c
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// RecordRequest records a finished inbound request.
//
// Example:
//
//	collector.RecordRequest("openai_chat", 200, 1200*time.Millisecond)
func (c *Collector) RecordRequest(endpoint string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordRequest(endpoint, strconv.Itoa(status), duration)
}

// ObserveAttempt counts one upstream attempt and its outcome.
func (c *Collector) ObserveAttempt(provider, outcome string) {
	if !c.enabled {
		return
	}
	c.upstreamMetrics.RecordAttempt(provider, outcome)
}

// ObserveFunnelWait counts a google-genai call that had to queue.
func (c *Collector) ObserveFunnelWait() {
	if !c.enabled {
		return
	}
	c.upstreamMetrics.RecordFunnelWait()
}

// Watch registers the scrape-time metrics read from src. Only the first
// call has an effect.
func (c *Collector) Watch(src Sources) {
	if !c.enabled {
		return
	}
	c.watchOnce.Do(func() {
		c.registry.MustRegister(newStateCollector(c.namespace, src, c.cardinalityLimiter))
	})
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be used: it has been seen before or
// the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
