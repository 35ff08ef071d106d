package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// Subscription statuses.
const (
	StatusAccepted = "ACCEPTED"
	StatusPending  = "PENDING"
	StatusPaused   = "PAUSED"
	StatusClosed   = "CLOSED"
)

// FailurePlanUnresolvable interrupts requests whose identity has no
// active subscription on the API.
const FailurePlanUnresolvable policy.FailureKey = "GATEWAY_PLAN_UNRESOLVABLE"

// Store errors.
var (
	// ErrNotFound indicates no subscription matches the token.
	ErrNotFound = errors.New("subscription not found")

	// ErrInvalidSubscription indicates a malformed subscription record.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("subscription store closed")
)

// Subscription binds a caller identity to an API.
type Subscription struct {
	ID        string           `yaml:"id" json:"id"`
	API       string           `yaml:"api" json:"api"`
	TokenType policy.TokenType `yaml:"tokenType" json:"tokenType"`
	Token     string           `yaml:"token" json:"token"`
	Status    string           `yaml:"status,omitempty" json:"status,omitempty"`
	StartAt   *time.Time       `yaml:"startAt,omitempty" json:"startAt,omitempty"`
	EndAt     *time.Time       `yaml:"endAt,omitempty" json:"endAt,omitempty"`
}

// Validate checks the fields needed to index the subscription.
func (s *Subscription) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidSubscription)
	case s.API == "":
		return fmt.Errorf("%w: api is required", ErrInvalidSubscription)
	case s.Token == "":
		return fmt.Errorf("%w: token is required", ErrInvalidSubscription)
	}

	switch s.TokenType {
	case policy.TokenTypeCertificate, policy.TokenTypeAPIKey:
	default:
		return fmt.Errorf("%w: unsupported token type %q", ErrInvalidSubscription, s.TokenType)
	}

	switch s.Status {
	case "", StatusAccepted, StatusPending, StatusPaused, StatusClosed:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSubscription, s.Status)
	}
}

// IsActive reports whether the subscription admits traffic at now. An
// empty status counts as accepted.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != "" && s.Status != StatusAccepted {
		return false
	}
	if s.StartAt != nil && now.Before(*s.StartAt) {
		return false
	}
	if s.EndAt != nil && !now.Before(*s.EndAt) {
		return false
	}
	return true
}

// Store looks up subscriptions.
type Store interface {
	// Find returns the subscription of token on api, or an error matching
	// ErrNotFound. Inactive subscriptions are returned; callers check
	// IsActive.
	Find(ctx context.Context, api string, token policy.SecurityToken) (*Subscription, error)

	// Close releases the store's resources.
	Close() error
}

// Key returns the index key of a subscription.
func Key(api string, tokenType policy.TokenType, token string) string {
	return api + ":" + string(tokenType) + ":" + token
}
