package ports

import (
	"context"

	"github.com/bnema/ritual-rpa/internal/domain"
)

// ConnectionInfo is what a started profile exposes for automation.
type ConnectionInfo struct {
	// ProfileID is the resolved profile id, also set when the profile was started by serial.
	ProfileID string
	// DebuggerURL is a CDP websocket or http endpoint.
	DebuggerURL string
	DebugPort   string
}

type ProfileLauncher interface {
	Start(ctx context.Context, profile domain.ProfileRef) (ConnectionInfo, error)
	// Stop reports false for a profile that was already stopped or refused; that is not an error.
	Stop(ctx context.Context, profile domain.ProfileRef) (bool, error)
	CheckConnection(ctx context.Context) error
	// Close releases the shared transport.
	Close() error
}
