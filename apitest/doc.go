// Package apitest runs an in-process fake of the storefront API for tests and load tests.
//
// Tokens are JWTs signed by a [jwt.Manager], but the server also accepts opaque tokens
// registered with [Server.Accept]. Whether a token is accepted is decided by the server
// state, not by the token expiry, so tests can expire every session at once with
// [Server.ExpireAll].
package apitest
