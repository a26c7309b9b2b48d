package internaldefs

import (
	"github.com/storefront-mobile/apiclient"
)

// CounterDef names one client counter for exporters.
type CounterDef struct {
	ID   apiclient.MetricID
	Name string
	Help string
}

// HistogramDef names one client latency histogram for exporters.
type HistogramDef struct {
	ID   apiclient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: apiclient.MetricCallStarted, Name: "storefront_api_calls_total", Help: "Logical API calls started."},
	{ID: apiclient.MetricCallSuccess, Name: "storefront_api_call_success_total", Help: "API calls that returned a 2xx JSON body."},
	{ID: apiclient.MetricCallTimeout, Name: "storefront_api_call_timeout_total", Help: "API calls that exceeded the request timeout."},
	{ID: apiclient.MetricCallNetworkError, Name: "storefront_api_call_network_error_total", Help: "API calls that could not reach the base URL."},
	{ID: apiclient.MetricCallAPIError, Name: "storefront_api_call_api_error_total", Help: "API calls answered with a non-2xx status."},
	{ID: apiclient.MetricUnauthorizedPassthrough, Name: "storefront_api_unauthorized_passthrough_total", Help: "401 responses returned to the caller without a refresh."},
	{ID: apiclient.MetricRefreshStarted, Name: "storefront_api_refresh_started_total", Help: "Token refreshes started."},
	{ID: apiclient.MetricRefreshSuccess, Name: "storefront_api_refresh_success_total", Help: "Token refreshes that produced a new token."},
	{ID: apiclient.MetricRefreshFailure, Name: "storefront_api_refresh_failure_total", Help: "Token refreshes that failed and cleared the session."},
	{ID: apiclient.MetricRefreshWaiterQueued, Name: "storefront_api_refresh_waiter_queued_total", Help: "Calls queued behind an in-flight refresh."},
	{ID: apiclient.MetricRefreshWaiterRejected, Name: "storefront_api_refresh_waiter_rejected_total", Help: "Queued calls rejected because the refresh failed."},
	{ID: apiclient.MetricRetryAfterRefresh, Name: "storefront_api_retry_after_refresh_total", Help: "Calls replayed with a refreshed token."},
	{ID: apiclient.MetricSessionExpired, Name: "storefront_api_session_expired_total", Help: "Calls failed with session expired."},
	{ID: apiclient.MetricLogin, Name: "storefront_api_login_total", Help: "Successful logins."},
	{ID: apiclient.MetricLogout, Name: "storefront_api_logout_total", Help: "Logouts."},
	{ID: apiclient.MetricRateLimitWait, Name: "storefront_api_rate_limit_wait_total", Help: "Attempts delayed by the client-side rate limiter."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: apiclient.MetricCallLatency, Name: "storefront_api_call_latency_seconds", Help: "Logical API call latency, including refresh and retry."},
}

// EventsDroppedName is the counter of session events lost to backpressure.
const (
	EventsDroppedName = "storefront_api_events_dropped_total"
	EventsDroppedHelp = "Session events dropped due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters without native
// histogram support.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
