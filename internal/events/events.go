package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeRegistered      = "account_registered"
	TypeLoggedIn        = "account_logged_in"
	TypeLoginFailed     = "login_failed"
	TypeTokenRefreshed  = "token_refreshed"
	TypeLoggedOut       = "account_logged_out"
	TypeSessionsRevoked = "sessions_revoked"
)

type Event struct {
	Type       string    `json:"type"`
	AccountID  uint      `json:"account_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
