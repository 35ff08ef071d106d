// Package apikey provides an API-key security policy.
//
// The policy reads the key from a request header, or a query parameter
// when configured, and matches it against statically configured keys
// stored as sha256, sha512 or bcrypt hashes. It runs at default priority
// and requires a subscription; its token is the matched key's id.
package apikey
