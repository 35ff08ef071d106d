package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

func validSubscription() Subscription {
	return Subscription{
		ID:        "sub-1",
		API:       "orders",
		TokenType: policy.TokenTypeCertificate,
		Token:     "0cc175b9c0f1b6a831c399e269772661",
		Status:    StatusAccepted,
	}
}

func TestSubscription_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Subscription)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Subscription) {}},
		{name: "empty status", mutate: func(s *Subscription) { s.Status = "" }},
		{name: "api key token", mutate: func(s *Subscription) { s.TokenType = policy.TokenTypeAPIKey }},
		{name: "missing id", mutate: func(s *Subscription) { s.ID = "" }, wantErr: true},
		{name: "missing api", mutate: func(s *Subscription) { s.API = "" }, wantErr: true},
		{name: "missing token", mutate: func(s *Subscription) { s.Token = "" }, wantErr: true},
		{name: "none token type", mutate: func(s *Subscription) { s.TokenType = policy.TokenTypeNone }, wantErr: true},
		{name: "unknown status", mutate: func(s *Subscription) { s.Status = "LOST" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := validSubscription()
			tt.mutate(&sub)

			err := sub.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSubscription)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscription_IsActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{name: "accepted", sub: Subscription{Status: StatusAccepted}, want: true},
		{name: "empty status", sub: Subscription{}, want: true},
		{name: "pending", sub: Subscription{Status: StatusPending}, want: false},
		{name: "paused", sub: Subscription{Status: StatusPaused}, want: false},
		{name: "closed", sub: Subscription{Status: StatusClosed}, want: false},
		{name: "not started", sub: Subscription{StartAt: &after}, want: false},
		{name: "started", sub: Subscription{StartAt: &before}, want: true},
		{name: "ended", sub: Subscription{EndAt: &before}, want: false},
		{name: "ends exactly now", sub: Subscription{EndAt: &now}, want: false},
		{name: "within window", sub: Subscription{StartAt: &before, EndAt: &after}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.sub.IsActive(now))
		})
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "orders:CERTIFICATE:abc", Key("orders", policy.TokenTypeCertificate, "abc"))
}
