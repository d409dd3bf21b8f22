package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mitchins/SmolRouter/pkg/quota"
)

// Benchmark_Collector_RecordRequest benchmarks request recording
func Benchmark_Collector_RecordRequest(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordRequest("openai_chat", 200, time.Second)
	}
}

// Benchmark_Collector_RecordRequest_Parallel benchmarks parallel request recording
func Benchmark_Collector_RecordRequest_Parallel(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.RecordRequest("openai_chat", 200, time.Second)
		}
	})
}

func Benchmark_Collector_ObserveAttempt(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.ObserveAttempt("gemini", "success")
	}
}

// Benchmark_Scrape measures a full gather with a populated ledger.
func Benchmark_Scrape(b *testing.B) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	ledger := quota.NewLedger()
	ledger.Configure("gemini", quota.ProviderQuota{Keys: []string{"k1", "k2", "k3"}})
	for _, model := range []string{"flash", "pro", "flash-lite"} {
		if _, err := ledger.Select("gemini", model); err != nil {
			b.Fatal(err)
		}
	}
	collector.Watch(Sources{Ledger: ledger})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := registry.Gather(); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_CardinalityLimiter_Allow(b *testing.B) {
	cl := NewCardinalityLimiter(1000)
	cl.Allow("gemini/flash")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cl.Allow("gemini/flash")
	}
}
