// Package mtls provides the client-certificate gate of the gateway's
// security chain.
//
// The gate inspects the TLS session negotiated by the listener. It does
// not verify trust itself; the listener's crypto/tls configuration does
// that during the handshake. Per request the gate either lets the request
// continue or interrupts it with a 401 failure keyed by one of
// SSL_SESSION_REQUIRED, CLIENT_CERTIFICATE_INVALID or
// CLIENT_CERTIFICATE_MISSING.
//
// Independently, ExtractToken derives a CERTIFICATE security token from
// the leaf certificate for subscription matching:
//
//	p := mtls.New(mtls.WithLogger(logger), mtls.WithMetrics(metrics))
//
//	ec := policy.NewExecutionContext(r, p.SessionOptions())
//	if err := p.Decide(ctx, ec); err != nil {
//	    // write the *policy.Failure
//	}
//	token, ok := p.ExtractToken(ctx, ec)
package mtls
