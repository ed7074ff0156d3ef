package domain

import (
	"fmt"
	"strings"
)

type ActionKind string

const (
	ActionBless ActionKind = "bless"
	ActionCurse ActionKind = "curse"
)

var ActionKinds = []ActionKind{ActionBless, ActionCurse}

func (k ActionKind) Valid() bool {
	switch k {
	case ActionBless, ActionCurse:
		return true
	default:
		return false
	}
}

// Command is the slash command typed for the action.
func (k ActionKind) Command() string {
	return "/" + string(k)
}

func ParseActionKind(raw string) (ActionKind, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	return kind, nil
}
