package mtls

import (
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// Outcome classifies the client certificate situation of a request.
type Outcome int

// Extraction outcomes.
const (
	// OutcomeSessionAbsent means the request did not arrive over TLS.
	OutcomeSessionAbsent Outcome = iota
	// OutcomePeerUnverified means the peer identity was not established.
	OutcomePeerUnverified
	// OutcomeEmpty means the peer presented no certificate.
	OutcomeEmpty
	// OutcomePresent means the peer presented at least one certificate.
	OutcomePresent
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSessionAbsent:
		return "session_absent"
	case OutcomePeerUnverified:
		return "peer_unverified"
	case OutcomeEmpty:
		return "empty"
	case OutcomePresent:
		return "present"
	default:
		return "unknown"
	}
}

// ChainResult is the result of Extract.
type ChainResult struct {
	Outcome Outcome

	// Chain is the peer chain, leaf first. Set only for OutcomePresent.
	Chain []policy.Certificate

	// Err is the retrieval error behind OutcomePeerUnverified, if any.
	Err error
}

// Leaf returns the first certificate of a present chain.
func (r ChainResult) Leaf() (policy.Certificate, bool) {
	if r.Outcome != OutcomePresent || len(r.Chain) == 0 {
		return nil, false
	}
	return r.Chain[0], true
}

// Extract classifies the session's peer certificate chain. It never
// fails: every retrieval error is reported as OutcomePeerUnverified,
// whether or not it wraps policy.ErrPeerUnverified.
func Extract(session policy.TLSSession) ChainResult {
	if session == nil {
		return ChainResult{Outcome: OutcomeSessionAbsent}
	}

	chain, err := session.PeerCertificates()
	if err != nil {
		return ChainResult{Outcome: OutcomePeerUnverified, Err: err}
	}
	if len(chain) == 0 {
		return ChainResult{Outcome: OutcomeEmpty}
	}
	return ChainResult{Outcome: OutcomePresent, Chain: chain}
}
