package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/storefront-mobile/apiclient"
)

// latency summarizes one phase. Percentiles use the nearest-rank method.
type latency struct {
	calls    int
	failures int64
	elapsed  time.Duration
	min      time.Duration
	p50      time.Duration
	p99      time.Duration
	max      time.Duration
}

func summarize(elapsed time.Duration, samples []time.Duration, failures int64) latency {
	l := latency{calls: len(samples), failures: failures, elapsed: elapsed}
	if len(samples) == 0 {
		return l
	}
	slices.Sort(samples)
	l.min = samples[0]
	l.max = samples[len(samples)-1]
	l.p50 = nearestRank(samples, 0.50)
	l.p99 = nearestRank(samples, 0.99)
	return l
}

// nearestRank expects sorted, non-empty samples and q in (0, 1].
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	return sorted[max(rank, 1)-1]
}

func (l latency) throughput() float64 {
	if l.elapsed <= 0 {
		return 0
	}
	return float64(l.calls) / l.elapsed.Seconds()
}

// refreshDelta is what one phase did to the client's refresh counters.
type refreshDelta struct {
	apiRefreshCalls int
	started         uint64
	waiters         uint64
	retries         uint64
	expired         uint64
}

func diffRefresh(before, after apiclient.MetricsSnapshot, apiCalls int) refreshDelta {
	d := func(id apiclient.MetricID) uint64 { return after.Counters[id] - before.Counters[id] }
	return refreshDelta{
		apiRefreshCalls: apiCalls,
		started:         d(apiclient.MetricRefreshStarted),
		waiters:         d(apiclient.MetricRefreshWaiterQueued),
		retries:         d(apiclient.MetricRetryAfterRefresh),
		expired:         d(apiclient.MetricSessionExpired),
	}
}

type phaseReport struct {
	name    string
	latency latency
	refresh refreshDelta
}

func writeReport(w io.Writer, phases []phaseReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\tcalls\tfail\tcalls/s\tmin\tp50\tp99\tmax\trefreshes\twaiters\tretries\texpired\t")
	for _, p := range phases {
		l, r := p.latency, p.refresh
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t\n",
			p.name, l.calls, l.failures, l.throughput(),
			l.min.Round(time.Microsecond), l.p50.Round(time.Microsecond),
			l.p99.Round(time.Microsecond), l.max.Round(time.Microsecond),
			r.apiRefreshCalls, r.waiters, r.retries, r.expired)
	}
	return tw.Flush()
}

// coalesced reports whether every wave triggered exactly one refresh on the API.
func coalesced(phases []phaseReport) bool {
	for _, p := range phases[1:] {
		if p.refresh.apiRefreshCalls != 1 {
			return false
		}
	}
	return true
}
