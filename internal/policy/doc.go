// Package policy defines the contract shared by the gateway's security
// policies and the ordered chain that runs them.
//
// A SecurityPolicy makes two independent decisions per request:
//
//   - Decide either admits the request (nil) or interrupts it with a
//     *Failure that the gateway serializes as-is.
//   - ExtractToken optionally yields a SecurityToken that the
//     subscription stage matches against provisioned subscriptions. It
//     never rejects a request.
//
// Policies declare Metadata once at registration. Lower priorities run
// first, so a policy with a negative priority is evaluated before every
// policy at DefaultPriority.
//
//	chain := policy.NewChain([]policy.SecurityPolicy{apiKeyPolicy, mtlsPolicy})
//	ec := policy.NewExecutionContext(r, policy.SessionOptions{RequireVerifiedChain: true})
//	if err := chain.Decide(ctx, ec); err != nil {
//	    // err is a *policy.Failure
//	}
package policy
