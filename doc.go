// Package apiclient is the authenticated HTTP client of the storefront mobile app.
//
// Every call goes to one fixed base URL with JSON default headers and a hard per-attempt
// timeout (10 s by default). A 401 on a call that carried a bearer token triggers one
// token refresh and one retry. Concurrent 401s share a single in-flight refresh: the
// first caller performs it and the others queue in arrival order and receive the same
// outcome. If the refresh fails the token is deleted and every queued call fails with
// [ErrSessionExpired].
//
// Failures are reported with a small vocabulary: [ErrTimeout], [ErrNetworkUnreachable],
// [ErrSessionExpired] and [*APIError]. Callers never need to inspect HTTP status codes.
//
// # Architecture boundaries
//
// apiclient is the public surface: [Client], [Builder], [Config] and the session value
// types. Token persistence is delegated to a [tokenstore.Store]. Exporters under
// metrics/export read [MetricsSnapshot] and never reach into the Client.
//
// # What this package must NOT do
//
//   - Retry a logical call more than once.
//   - Run more than one refresh at a time per Client.
//   - Leave a queued caller unsettled.
//   - Log tokens or passwords.
package apiclient
