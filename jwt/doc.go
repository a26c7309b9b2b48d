// Package jwt issues and verifies the bearer tokens exchanged with the storefront API.
//
// The client itself never verifies signatures: it only needs [Inspect] to read the expiry
// of the token it holds. [Manager] is used by servers and by the apitest fake API.
package jwt
