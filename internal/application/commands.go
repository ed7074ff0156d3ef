package application

import (
	"fmt"
	"strings"

	"github.com/bnema/ritual-rpa/internal/domain"
)

type RunMode string

const (
	ModeSmart  RunMode = "smart"
	ModeChain  RunMode = "chain"
	ModeTarget RunMode = "target"
	ModePairs  RunMode = "pairs"
)

var RunModes = []RunMode{ModeSmart, ModeChain, ModeTarget, ModePairs}

func (m RunMode) Valid() bool {
	switch m {
	case ModeSmart, ModeChain, ModeTarget, ModePairs:
		return true
	default:
		return false
	}
}

type RunCommand struct {
	Mode       RunMode
	MaxActions int
	Target     domain.AccountName
	Pairs      []ExplicitPair
	// Settings is applied to the persisted settings before planning.
	Settings domain.SettingsPatch
	// Execution replaces the orchestrator's execution settings for this run.
	Execution *ExecutionConfig
	// DryRun stops after planning.
	DryRun bool
}

func (c RunCommand) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown run mode %q", c.Mode)
	}
	if c.MaxActions < 0 {
		return fmt.Errorf("max actions must not be negative, got %d", c.MaxActions)
	}
	if c.Mode == ModeTarget && strings.TrimSpace(string(c.Target)) == "" {
		return fmt.Errorf("target mode requires a target account")
	}
	if c.Mode == ModePairs && len(c.Pairs) == 0 {
		return fmt.Errorf("pairs mode requires at least one pair")
	}
	return nil
}

// ParseExplicitPair reads GIVER:RECEIVER or GIVER:RECEIVER:KIND.
func ParseExplicitPair(raw string) (ExplicitPair, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ExplicitPair{}, fmt.Errorf("invalid pair %q: expected GIVER:RECEIVER[:bless|curse]", raw)
	}

	pair := ExplicitPair{
		Giver:    domain.AccountName(strings.TrimSpace(parts[0])),
		Receiver: domain.AccountName(strings.TrimSpace(parts[1])),
	}
	if pair.Giver == "" || pair.Receiver == "" {
		return ExplicitPair{}, fmt.Errorf("invalid pair %q: giver and receiver are required", raw)
	}
	if len(parts) == 3 {
		kind, err := domain.ParseActionKind(parts[2])
		if err != nil {
			return ExplicitPair{}, fmt.Errorf("invalid pair %q: %w", raw, err)
		}
		pair.Action = kind
	}
	return pair, nil
}
