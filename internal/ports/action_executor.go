package ports

import (
	"context"

	"github.com/bnema/ritual-rpa/internal/domain"
)

type ActionExecutor interface {
	Connect(ctx context.Context, conn ConnectionInfo) (ActionSession, error)
}

// ActionSession drives one connected browser profile.
type ActionSession interface {
	VerifyAuthenticated(ctx context.Context) (bool, error)
	// NavigateToDestination returns false without an error when the page loaded but
	// the message input never appeared.
	NavigateToDestination(ctx context.Context, url string) (bool, error)
	// CheckAccessError returns a reason when the page shows an access problem.
	CheckAccessError(ctx context.Context) (string, bool)
	PerformAction(ctx context.Context, kind domain.ActionKind, target string) (bool, error)
	Disconnect() error
}
