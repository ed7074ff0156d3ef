package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
)

type blockIndex struct {
	byName    map[domain.AccountName]domain.BlockRecord
	byProfile map[string]domain.AccountName
}

func newBlockIndex() blockIndex {
	return blockIndex{
		byName:    map[domain.AccountName]domain.BlockRecord{},
		byProfile: map[string]domain.AccountName{},
	}
}

func (b blockIndex) add(record domain.BlockRecord) {
	key := record.Key()
	record.Account = key.Name
	record.ProfileKey = key.Profile
	b.byName[key.Name] = record
	if key.Profile != "" {
		b.byProfile[key.Profile] = key.Name
	}
}

func (b blockIndex) remove(name domain.AccountName) bool {
	record, ok := b.byName[name]
	if !ok {
		return false
	}
	delete(b.byName, name)
	if record.ProfileKey != "" && b.byProfile[record.ProfileKey] == name {
		delete(b.byProfile, record.ProfileKey)
	}
	return true
}

// lookup matches on name first, then on profile so a renamed roster entry still
// resolves to its record.
func (b blockIndex) lookup(key domain.AccountKey) (domain.BlockRecord, bool) {
	key = key.Normalized()
	if record, ok := b.byName[key.Name]; ok {
		return record, true
	}
	if key.Profile == "" {
		return domain.BlockRecord{}, false
	}
	if name, ok := b.byProfile[key.Profile]; ok {
		record, ok := b.byName[name]
		return record, ok
	}
	return domain.BlockRecord{}, false
}

func (b blockIndex) records() []domain.BlockRecord {
	out := make([]domain.BlockRecord, 0, len(b.byName))
	for _, record := range b.byName {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// AccountRegistry holds the roster and the two block lists. Block lists change
// only through Block and Unblock.
type AccountRegistry struct {
	repo   ports.BlockRepository
	clock  ports.Clock
	logger zerolog.Logger

	mu       sync.RWMutex
	accounts []domain.Account
	blocks   map[domain.BlockCategory]blockIndex
}

func NewAccountRegistry(repo ports.BlockRepository, clock ports.Clock, logger zerolog.Logger) *AccountRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	blocks := make(map[domain.BlockCategory]blockIndex, len(domain.BlockCategories))
	for _, category := range domain.BlockCategories {
		blocks[category] = newBlockIndex()
	}

	return &AccountRegistry{repo: repo, clock: clock, logger: logger, blocks: blocks}
}

func (r *AccountRegistry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, category := range domain.BlockCategories {
		records, err := r.repo.Load(ctx, category)
		if err != nil {
			return fmt.Errorf("load %s block list: %w", category, err)
		}
		index := newBlockIndex()
		for _, record := range records {
			record.Category = category
			index.add(record)
		}
		r.blocks[category] = index
	}

	return nil
}

func (r *AccountRegistry) SetAccounts(accounts []domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts = append([]domain.Account(nil), accounts...)
}

func (r *AccountRegistry) Accounts() []domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Account(nil), r.accounts...)
}

func (r *AccountRegistry) Find(name domain.AccountName) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Name == name {
			return account, nil
		}
	}
	return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
}

// Block records the account under category. It returns false when the account
// was already blocked there, in which case nothing is written. When the block
// list cannot be saved the record still holds for this process, so the account
// is not retried during the run, and the error wraps ErrPersistence.
func (r *AccountRegistry) Block(ctx context.Context, category domain.BlockCategory, account domain.Account, reason string) (bool, error) {
	if !category.Valid() {
		return false, fmt.Errorf("block account: unknown category %q", category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.blocks[category]
	if _, ok := index.lookup(account.Key()); ok {
		return false, nil
	}

	index.add(domain.BlockRecord{
		Category:   category,
		Account:    account.Name,
		ProfileKey: account.Profile.Key(),
		Target:     account.Target,
		Reason:     reason,
		BlockedAt:  r.clock.Now(),
	})
	if err := r.repo.Save(ctx, category, index.records()); err != nil {
		return true, fmt.Errorf("%w: save %s block list: %w", domain.ErrPersistence, category, err)
	}

	r.logger.Warn().
		Str("account", string(account.Name)).
		Str("profile", account.Profile.Display()).
		Str("category", string(category)).
		Str("reason", reason).
		Msg("account blocked")
	return true, nil
}

// Unblock removes the account from the given categories, or from all of them
// when none are given. It reports whether any record was removed.
func (r *AccountRegistry) Unblock(ctx context.Context, name domain.AccountName, categories ...domain.BlockCategory) (bool, error) {
	if len(categories) == 0 {
		categories = domain.BlockCategories
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for _, category := range categories {
		index, ok := r.blocks[category]
		if !ok {
			return removed, fmt.Errorf("unblock account: unknown category %q", category)
		}
		if !index.remove(name) {
			continue
		}
		removed = true
		if err := r.repo.Save(ctx, category, index.records()); err != nil {
			return removed, fmt.Errorf("%w: save %s block list: %w", domain.ErrPersistence, category, err)
		}
		r.logger.Info().Str("account", string(name)).Str("category", string(category)).Msg("account unblocked")
	}

	return removed, nil
}

// IsBlocked reports whether the account is blocked under any category.
func (r *AccountRegistry) IsBlocked(account domain.Account) bool {
	_, ok := r.BlockRecord(account)
	return ok
}

func (r *AccountRegistry) BlockRecord(account domain.Account) (domain.BlockRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, category := range domain.BlockCategories {
		if record, ok := r.blocks[category].lookup(account.Key()); ok {
			return record, true
		}
	}
	return domain.BlockRecord{}, false
}

// Eligible returns the roster minus blocked accounts, in roster order.
func (r *AccountRegistry) Eligible() []domain.Account {
	accounts := r.Accounts()
	out := make([]domain.Account, 0, len(accounts))
	for _, account := range accounts {
		if r.IsBlocked(account) {
			continue
		}
		out = append(out, account)
	}
	return out
}

// Blocked lists records for the given categories, or all of them when none are given.
func (r *AccountRegistry) Blocked(categories ...domain.BlockCategory) []domain.BlockRecord {
	if len(categories) == 0 {
		categories = domain.BlockCategories
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.BlockRecord
	for _, category := range categories {
		index, ok := r.blocks[category]
		if !ok {
			continue
		}
		out = append(out, index.records()...)
	}
	return out
}
