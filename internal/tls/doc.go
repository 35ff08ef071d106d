// Package tls builds the gateway listener's crypto/tls configuration.
//
// The listener mode decides what the handshake asks of clients:
//
//   - SIMPLE: server certificate only, no client certificate requested
//   - MUTUAL: a client certificate verified against the client CA is required
//   - OPTIONAL_MUTUAL: a client certificate is requested and verified if given
//   - REQUEST: a client certificate is requested but not verified
//   - INSECURE: plaintext, no TLS at all
//
// Trust verification happens here, during the handshake; security policies
// only inspect the resulting connection state.
package tls
