// Package subscription resolves the subscription a security token is
// provisioned under.
//
// Policies that declare RequiresSubscription hand their extracted token to
// the gateway, which looks it up in a Store keyed by API, token type and
// token value. MemoryStore serves statically configured subscriptions and
// is hot-reloaded from the configuration file; RedisStore reads
// subscriptions provisioned by an external plan manager.
package subscription
