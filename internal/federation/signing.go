package federation

import (
	"context"
	"fmt"

	"github.com/watzon/actra/internal/collab"
)

// SigningSender signs outgoing deliveries whose hook did not supply a
// token, resolving the action type from storage so the claims are
// complete.
type SigningSender struct {
	next    Sender
	tokens  *TokenService
	actions collab.ActionStore
}

func NewSigningSender(next Sender, tokens *TokenService, actions collab.ActionStore) *SigningSender {
	return &SigningSender{next: next, tokens: tokens, actions: actions}
}

func (s *SigningSender) Send(ctx context.Context, d *Delivery) error {
	if d.Token == "" {
		a, err := s.actions.GetActionByID(ctx, d.ActionID)
		if err != nil {
			return fmt.Errorf("resolving action %s for signing: %w", d.ActionID, err)
		}
		token, err := s.tokens.Sign(a.ActionID, a.Type, a.Subtype, d.Target)
		if err != nil {
			return fmt.Errorf("signing delivery token: %w", err)
		}
		d.Token = token
	}
	return s.next.Send(ctx, d)
}
