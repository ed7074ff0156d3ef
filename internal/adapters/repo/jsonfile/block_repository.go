package jsonfile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
)

// BlockRepository keeps one document per block category in the state directory.
type BlockRepository struct {
	docs  map[domain.BlockCategory]document
	clock ports.Clock
}

var _ ports.BlockRepository = (*BlockRepository)(nil)

func NewBlockRepository(dir string, clock ports.Clock) (*BlockRepository, error) {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	channel, err := newDocument(dir, ChannelBlockFileName)
	if err != nil {
		return nil, err
	}
	unauthorized, err := newDocument(dir, UnauthorizedFileName)
	if err != nil {
		return nil, err
	}

	return &BlockRepository{
		docs: map[domain.BlockCategory]document{
			domain.BlockChannel:      channel,
			domain.BlockUnauthorized: unauthorized,
		},
		clock: clock,
	}, nil
}

func (r *BlockRepository) document(category domain.BlockCategory) (document, error) {
	doc, ok := r.docs[category]
	if !ok {
		return document{}, fmt.Errorf("unknown block category %q", category)
	}
	return doc, nil
}

func (r *BlockRepository) Load(ctx context.Context, category domain.BlockCategory) ([]domain.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := r.document(category)
	if err != nil {
		return nil, err
	}

	doc.mu.RLock()
	defer doc.mu.RUnlock()

	var file blockFileSchema
	if _, err := doc.read(&file); err != nil {
		return nil, err
	}

	entries := file.Blocked
	if category == domain.BlockUnauthorized {
		entries = file.Unauthorized
	}

	records := make([]domain.BlockRecord, 0, len(entries))
	for key, entry := range entries {
		name := entry.AccountName
		if name == "" {
			name = key
		}
		record := domain.BlockRecord{
			Category:   category,
			Account:    domain.AccountName(name),
			ProfileKey: entry.ProfileID,
			Reason:     entry.Reason,
			BlockedAt:  parseTime(entry.BlockedAt),
		}
		if entry.DiscordUsername != nil {
			record.Target = *entry.DiscordUsername
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Account < records[j].Account })

	return records, nil
}

func (r *BlockRepository) Save(ctx context.Context, category domain.BlockCategory, records []domain.BlockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := r.document(category)
	if err != nil {
		return err
	}

	entries := make(map[string]blockRecordSchema, len(records))
	for _, record := range records {
		entry := blockRecordSchema{
			AccountName: string(record.Account),
			ProfileID:   record.ProfileKey,
			Reason:      record.Reason,
			BlockedAt:   formatTime(record.BlockedAt),
		}
		if record.Target != "" {
			target := record.Target
			entry.DiscordUsername = &target
		}
		entries[string(record.Account)] = entry
	}

	file := blockFileSchema{LastUpdated: r.clock.Now().Format(time.RFC3339)}
	if category == domain.BlockUnauthorized {
		file.Unauthorized = entries
	} else {
		file.Blocked = entries
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()

	return doc.write(file)
}
