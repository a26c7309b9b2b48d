package apiclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

// outcomes seen by countOutcome on a busy client, roughly in production proportion.
var benchmarkOutcomes = []error{
	nil, nil, nil, nil, nil, nil,
	&APIError{Status: 404, Message: "not found"},
	&APIError{Status: 422, Message: "invalid"},
	&NetworkError{BaseURL: "https://api.example", Err: errors.New("connection refused")},
	&SessionExpiredError{Cause: errors.New("refresh rejected")},
	context.DeadlineExceeded,
}

func BenchmarkCountOutcome(b *testing.B) {
	c := &Client{metrics: NewMetrics(MetricsConfig{Enabled: true})}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.countOutcome(benchmarkOutcomes[i%len(benchmarkOutcomes)])
	}
}

func BenchmarkCountOutcomeParallel(b *testing.B) {
	c := &Client{metrics: NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.countOutcome(benchmarkOutcomes[i%len(benchmarkOutcomes)])
			c.metrics.Observe(MetricCallLatency, time.Duration(i%600)*time.Millisecond)
			i++
		}
	})
}

func BenchmarkCountOutcomeDisabled(b *testing.B) {
	c := &Client{metrics: NewMetrics(MetricsConfig{})}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.countOutcome(benchmarkOutcomes[i%len(benchmarkOutcomes)])
	}
}
