// Package proxy forwards admitted requests to the gateway's backend.
//
// The proxy is a thin layer over net/http/httputil.ReverseProxy that
// applies the backend timeout, sets X-Forwarded-* headers, propagates the
// trace context and maps transport errors to 502 and 504 responses.
package proxy
