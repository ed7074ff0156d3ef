package domain

import "time"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

type AccountProgress struct {
	BlessReceived   int
	CurseReceived   int
	BlessGivenToday int
	CurseGivenToday int
	LastActionDate  string
	LastActionTime  string
}

func (p AccountProgress) TotalGivenToday() int {
	return p.BlessGivenToday + p.CurseGivenToday
}

func (p AccountProgress) Received(kind ActionKind) int {
	switch kind {
	case ActionBless:
		return p.BlessReceived
	case ActionCurse:
		return p.CurseReceived
	default:
		return 0
	}
}

func (p *AccountProgress) ResetDaily() {
	p.BlessGivenToday = 0
	p.CurseGivenToday = 0
}

// IsStale reports whether the today-counters belong to a date other than today.
func (p AccountProgress) IsStale(today string) bool {
	return p.LastActionDate != "" && p.LastActionDate != today
}

type ActionLogEntry struct {
	Time     string
	Giver    AccountName
	Receiver AccountName
	Action   ActionKind
	Success  bool
}

type DailyStats struct {
	Date              string
	AccountsProcessed []AccountName
	TotalBless        int
	TotalCurse        int
	Actions           []ActionLogEntry
}

func (d *DailyStats) touch(giver AccountName) {
	for _, name := range d.AccountsProcessed {
		if name == giver {
			return
		}
	}
	d.AccountsProcessed = append(d.AccountsProcessed, giver)
}

// Append records one action outcome. Entries are never rewritten.
func (d *DailyStats) Append(entry ActionLogEntry) {
	d.touch(entry.Giver)
	if entry.Success {
		switch entry.Action {
		case ActionBless:
			d.TotalBless++
		case ActionCurse:
			d.TotalCurse++
		}
	}
	d.Actions = append(d.Actions, entry)
}

const (
	DefaultDailyLimit  = 5
	DefaultTargetCount = 10
)

type Settings struct {
	DailyLimitPerAccount int
	TargetBless          int
	TargetCurse          int
	CreatedAt            time.Time
}

func DefaultSettings(now time.Time) Settings {
	return Settings{
		DailyLimitPerAccount: DefaultDailyLimit,
		TargetBless:          DefaultTargetCount,
		TargetCurse:          DefaultTargetCount,
		CreatedAt:            now,
	}
}

func (s Settings) Target(kind ActionKind) int {
	switch kind {
	case ActionBless:
		return s.TargetBless
	case ActionCurse:
		return s.TargetCurse
	default:
		return 0
	}
}

// SettingsPatch carries optional overrides; nil fields are left untouched.
type SettingsPatch struct {
	DailyLimitPerAccount *int
	TargetBless          *int
	TargetCurse          *int
}

func (p SettingsPatch) IsEmpty() bool {
	return p.DailyLimitPerAccount == nil && p.TargetBless == nil && p.TargetCurse == nil
}

func (s Settings) Apply(p SettingsPatch) Settings {
	if p.DailyLimitPerAccount != nil {
		s.DailyLimitPerAccount = *p.DailyLimitPerAccount
	}
	if p.TargetBless != nil {
		s.TargetBless = *p.TargetBless
	}
	if p.TargetCurse != nil {
		s.TargetCurse = *p.TargetCurse
	}
	return s
}

type ProgressState struct {
	Settings    Settings
	Accounts    map[AccountName]AccountProgress
	DailyStats  map[string]DailyStats
	LastUpdated time.Time
}

func NewProgressState(now time.Time) ProgressState {
	return ProgressState{
		Settings:   DefaultSettings(now),
		Accounts:   map[AccountName]AccountProgress{},
		DailyStats: map[string]DailyStats{},
	}
}
