package domain

import (
	"errors"
	"fmt"
	"strings"
)

var placeholderPatterns = []string{
	"YOUR_ADSPOWER_PROFILE_ID",
	"YOUR_PROFILE_ID",
	"PLACEHOLDER",
	"EXAMPLE_ID",
}

func IsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// RosterEntry is an unvalidated roster row as read from a file or sheet.
type RosterEntry struct {
	Name    string
	Profile string
	Target  string
}

// BuildRoster validates entries and returns the accounts that passed. Errors are
// joined; warnings never drop an account.
func BuildRoster(entries []RosterEntry) ([]Account, []string, error) {
	accounts := make([]Account, 0, len(entries))
	warnings := make([]string, 0)
	seen := make(map[AccountName]struct{}, len(entries))
	var errs []error

	for i, entry := range entries {
		num := i + 1
		name := strings.TrimSpace(entry.Name)
		label := fmt.Sprintf("account %d", num)
		if name != "" {
			label = fmt.Sprintf("account %d (%s)", num, name)
		}

		var entryErrs []error
		if name == "" {
			entryErrs = append(entryErrs, fmt.Errorf("%s: name is required", label))
		}
		if _, dup := seen[AccountName(name)]; dup && name != "" {
			entryErrs = append(entryErrs, fmt.Errorf("%s: duplicate name", label))
		}

		rawProfile := strings.TrimSpace(entry.Profile)
		var profile ProfileRef
		switch {
		case rawProfile == "":
			entryErrs = append(entryErrs, fmt.Errorf("%s: profile is required", label))
		case IsPlaceholder(rawProfile):
			entryErrs = append(entryErrs, fmt.Errorf("%s: profile contains placeholder value %q", label, rawProfile))
		default:
			parsed, err := ParseProfileRef(rawProfile)
			if err != nil {
				entryErrs = append(entryErrs, fmt.Errorf("%s: %w", label, err))
			}
			profile = parsed
		}

		target := strings.TrimSpace(entry.Target)
		if target == "" {
			entryErrs = append(entryErrs, fmt.Errorf("%s: target username is required", label))
		} else if strings.HasPrefix(strings.ToLower(target), "username") {
			warnings = append(warnings, fmt.Sprintf("%s: target username looks like a placeholder", label))
		}

		if len(entryErrs) > 0 {
			errs = append(errs, entryErrs...)
			continue
		}

		seen[AccountName(name)] = struct{}{}
		accounts = append(accounts, Account{Name: AccountName(name), Profile: profile, Target: target})
	}

	return accounts, warnings, errors.Join(errs...)
}
