package toml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/ritual-rpa/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// accountSchema stores the profile either as profile_id or as serial_number,
// matching the two ways a browser profile can be addressed.
type accountSchema struct {
	Name            string `toml:"name"`
	ProfileID       string `toml:"profile_id,omitempty"`
	SerialNumber    int    `toml:"serial_number,omitempty"`
	DiscordUsername string `toml:"discord_username"`
}

func toSchema(entry domain.RosterEntry) accountSchema {
	encoded := accountSchema{
		Name:            strings.TrimSpace(entry.Name),
		DiscordUsername: strings.TrimSpace(entry.Target),
	}

	profile := strings.TrimSpace(entry.Profile)
	if serial, err := strconv.Atoi(profile); err == nil && serial > 0 {
		encoded.SerialNumber = serial
	} else {
		encoded.ProfileID = profile
	}
	return encoded
}

func fromSchema(account accountSchema) domain.RosterEntry {
	profile := account.ProfileID
	if account.SerialNumber != 0 {
		profile = strconv.Itoa(account.SerialNumber)
	}

	return domain.RosterEntry{
		Name:    account.Name,
		Profile: profile,
		Target:  account.DiscordUsername,
	}
}
