// Package gateway assembles the request pipeline and serves it.
//
// A Gateway fronts a single API: it terminates TLS according to the
// listener mode, runs the security policy chain, enforces subscriptions
// and rate limits, and proxies admitted requests to the backend through a
// circuit breaker.
package gateway
