// Package health serves liveness, readiness and detailed health probes
// for the gateway.
//
// Checks are plain context-aware functions registered on a Checker. The
// readiness probe also reports unready while the gateway is draining so
// load balancers stop routing before the listener closes.
package health
