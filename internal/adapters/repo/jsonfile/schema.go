package jsonfile

type stateSchema struct {
	Settings    settingsSchema              `json:"settings"`
	Accounts    map[string]progressSchema   `json:"accounts"`
	DailyStats  map[string]dailyStatsSchema `json:"daily_stats"`
	LastUpdated string                      `json:"last_updated"`
}

type settingsSchema struct {
	DailyLimitPerAccount *int   `json:"daily_limit_per_account"`
	TargetBless          *int   `json:"target_bless"`
	TargetCurse          *int   `json:"target_curse"`
	CreatedAt            string `json:"created_at,omitempty"`
}

type progressSchema struct {
	BlessReceived   int    `json:"bless_received"`
	CurseReceived   int    `json:"curse_received"`
	BlessGivenToday int    `json:"bless_given_today"`
	CurseGivenToday int    `json:"curse_given_today"`
	LastActionDate  string `json:"last_action_date"`
	LastActionTime  string `json:"last_action_time"`
}

type dailyStatsSchema struct {
	Date              string              `json:"date"`
	AccountsProcessed []string            `json:"accounts_processed"`
	TotalBless        int                 `json:"total_bless"`
	TotalCurse        int                 `json:"total_curse"`
	Actions           []actionEntrySchema `json:"actions"`
}

type actionEntrySchema struct {
	Time     string `json:"time"`
	Giver    string `json:"giver"`
	Receiver string `json:"receiver"`
	Action   string `json:"action"`
	Success  bool   `json:"success"`
}

type blockRecordSchema struct {
	AccountName     string  `json:"account_name"`
	ProfileID       string  `json:"adspower_id"`
	DiscordUsername *string `json:"discord_username"`
	Reason          string  `json:"reason"`
	BlockedAt       string  `json:"blocked_at"`
}

// blockFileSchema covers both block documents; only the key matching the
// category is populated.
type blockFileSchema struct {
	Blocked      map[string]blockRecordSchema `json:"blocked_accounts,omitempty"`
	Unauthorized map[string]blockRecordSchema `json:"unauthorized_accounts,omitempty"`
	LastUpdated  string                       `json:"last_updated"`
}
