package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type ProfileKind int

const (
	ProfileKindNone ProfileKind = iota
	ProfileKindID
	ProfileKindSerial
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileKindID:
		return "profile_id"
	case ProfileKindSerial:
		return "serial_number"
	default:
		return "none"
	}
}

// ProfileRef addresses one remote browser profile either by its opaque id or by
// its numeric serial. Exactly one variant is set; build it with NewProfileRef or
// ParseProfileRef.
type ProfileRef struct {
	kind   ProfileKind
	id     string
	serial int
}

func ProfileByID(id string) (ProfileRef, error) {
	return NewProfileRef(id, nil)
}

func ProfileBySerial(serial int) (ProfileRef, error) {
	return NewProfileRef("", &serial)
}

// NewProfileRef validates the identifier pair. A serial takes precedence when
// both are given; a blank id with no serial is rejected.
func NewProfileRef(id string, serial *int) (ProfileRef, error) {
	if serial != nil {
		if *serial <= 0 {
			return ProfileRef{}, fmt.Errorf("%w: serial number must be positive, got %d", ErrInvalidProfileRef, *serial)
		}
		return ProfileRef{kind: ProfileKindSerial, serial: *serial}, nil
	}

	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ProfileRef{}, fmt.Errorf("%w: profile id or serial number is required", ErrInvalidProfileRef)
	}

	return ProfileRef{kind: ProfileKindID, id: trimmed}, nil
}

// ParseProfileRef treats an all-digit value as a serial and anything else as a profile id.
func ParseProfileRef(raw string) (ProfileRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && isDigits(trimmed) {
		serial, err := strconv.Atoi(trimmed)
		if err != nil {
			return ProfileRef{}, fmt.Errorf("%w: parse serial %q: %v", ErrInvalidProfileRef, trimmed, err)
		}
		return NewProfileRef("", &serial)
	}

	return NewProfileRef(trimmed, nil)
}

func (p ProfileRef) Kind() ProfileKind { return p.kind }

func (p ProfileRef) IsZero() bool { return p.kind == ProfileKindNone }

func (p ProfileRef) ID() (string, bool) {
	return p.id, p.kind == ProfileKindID
}

func (p ProfileRef) Serial() (int, bool) {
	return p.serial, p.kind == ProfileKindSerial
}

// Key is the stable string form used for indexes and persisted records.
func (p ProfileRef) Key() string {
	switch p.kind {
	case ProfileKindSerial:
		return strconv.Itoa(p.serial)
	case ProfileKindID:
		return p.id
	default:
		return ""
	}
}

func (p ProfileRef) Display() string {
	if p.kind == ProfileKindSerial {
		return "#" + strconv.Itoa(p.serial)
	}
	return p.id
}

func (p ProfileRef) String() string { return p.Display() }

func (p ProfileRef) MarshalText() ([]byte, error) {
	return []byte(p.Key()), nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
