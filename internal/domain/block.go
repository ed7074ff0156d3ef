package domain

import (
	"fmt"
	"strings"
	"time"
)

type BlockCategory string

const (
	// BlockUnauthorized marks accounts whose session never authenticated.
	BlockUnauthorized BlockCategory = "unauthorized"
	// BlockChannel marks accounts that authenticated but cannot open the destination.
	BlockChannel BlockCategory = "channel"
)

var BlockCategories = []BlockCategory{BlockUnauthorized, BlockChannel}

func (c BlockCategory) Valid() bool {
	switch c {
	case BlockUnauthorized, BlockChannel:
		return true
	default:
		return false
	}
}

func ParseBlockCategory(raw string) (BlockCategory, error) {
	category := BlockCategory(strings.ToLower(strings.TrimSpace(raw)))
	if !category.Valid() {
		return "", fmt.Errorf("unknown block category %q", raw)
	}
	return category, nil
}

type BlockRecord struct {
	Category   BlockCategory
	Account    AccountName
	ProfileKey string
	Target     string
	Reason     string
	BlockedAt  time.Time
}

func (r BlockRecord) Key() AccountKey {
	return AccountKey{Name: r.Account, Profile: r.ProfileKey}.Normalized()
}
