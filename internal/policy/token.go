package policy

// TokenType classifies a SecurityToken.
type TokenType string

// Token types.
const (
	TokenTypeNone        TokenType = "NONE"
	TokenTypeCertificate TokenType = "CERTIFICATE"
	TokenTypeAPIKey      TokenType = "API_KEY"
)

// SecurityToken is the opaque caller identity produced by a policy.
type SecurityToken struct {
	Type  TokenType `json:"tokenType" yaml:"tokenType"`
	Value string    `json:"value" yaml:"value"`
}

// ForClientCertificate returns a CERTIFICATE token.
func ForClientCertificate(value string) SecurityToken {
	return SecurityToken{Type: TokenTypeCertificate, Value: value}
}

// ForAPIKey returns an API_KEY token.
func ForAPIKey(value string) SecurityToken {
	return SecurityToken{Type: TokenTypeAPIKey, Value: value}
}

// IsZero reports whether the token carries no identity.
func (t SecurityToken) IsZero() bool {
	return t.Value == "" || t.Type == "" || t.Type == TokenTypeNone
}
