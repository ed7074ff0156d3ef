package domain

import "strings"

type AccountName string

type Account struct {
	Name    AccountName
	Profile ProfileRef
	// Target is the username other accounts mention when acting on this account.
	Target string
}

func (a Account) Key() AccountKey {
	return AccountKey{Name: a.Name, Profile: a.Profile.Key()}
}

func (a Account) Display() string {
	if a.Profile.IsZero() {
		return string(a.Name)
	}
	return string(a.Name) + " (" + a.Profile.Display() + ")"
}

// AccountKey identifies an account by name and profile so that a record written
// under an older name still matches the same browser profile.
type AccountKey struct {
	Name    AccountName
	Profile string
}

func (k AccountKey) Normalized() AccountKey {
	return AccountKey{
		Name:    AccountName(strings.TrimSpace(string(k.Name))),
		Profile: strings.TrimSpace(k.Profile),
	}
}

func IndexByName(accounts []Account) map[AccountName]Account {
	byName := make(map[AccountName]Account, len(accounts))
	for _, account := range accounts {
		byName[account.Name] = account
	}
	return byName
}
