// Package prometheus exposes apiclient metrics through prometheus/client_golang.
//
// [Collector] turns a client MetricsSnapshot into const metrics on every scrape.
// [Exporter] wraps it in a private registry and a promhttp handler. Counter names are
// prefixed storefront_api_ and end in _total; the single histogram is
// storefront_api_call_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate client state.
package prometheus
