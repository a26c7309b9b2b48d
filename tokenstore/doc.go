// Package tokenstore persists the client session token and the remember-me flag.
//
// Three backends are provided: [Memory] for tests and short-lived processes, [File] for
// a single device that must survive restarts, and [Redis] for fleets of workers that
// share one session.
//
// # What this package must NOT do
//
//   - Import apiclient (no upward imports).
//   - Interpret tokens. Values are opaque strings.
//   - Log stored values.
package tokenstore
