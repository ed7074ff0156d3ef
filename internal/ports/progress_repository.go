package ports

import (
	"context"

	"github.com/bnema/ritual-rpa/internal/domain"
)

type ProgressRepository interface {
	// Load returns domain.ErrStateNotFound when nothing has been persisted yet.
	Load(ctx context.Context) (domain.ProgressState, error)
	Save(ctx context.Context, state domain.ProgressState) error
}

type BlockRepository interface {
	Load(ctx context.Context, category domain.BlockCategory) ([]domain.BlockRecord, error)
	Save(ctx context.Context, category domain.BlockCategory, records []domain.BlockRecord) error
}

type RosterSource interface {
	Entries(ctx context.Context) ([]domain.RosterEntry, error)
}
