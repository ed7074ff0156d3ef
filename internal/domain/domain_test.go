package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfileRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantKind    ProfileKind
		wantKey     string
		wantDisplay string
		wantErr     bool
	}{
		{name: "numeric is serial", raw: "42", wantKind: ProfileKindSerial, wantKey: "42", wantDisplay: "#42"},
		{name: "alphanumeric is profile id", raw: "jx81kd", wantKind: ProfileKindID, wantKey: "jx81kd", wantDisplay: "jx81kd"},
		{name: "trims whitespace", raw: "  k1abc ", wantKind: ProfileKindID, wantKey: "k1abc", wantDisplay: "k1abc"},
		{name: "blank rejected", raw: "   ", wantErr: true},
		{name: "zero serial rejected", raw: "0", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ref, err := ParseProfileRef(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidProfileRef)
				assert.True(t, ref.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ref.Kind())
			assert.Equal(t, tt.wantKey, ref.Key())
			assert.Equal(t, tt.wantDisplay, ref.Display())
		})
	}
}

func TestNewProfileRefSerialTakesPrecedence(t *testing.T) {
	t.Parallel()

	serial := 7
	ref, err := NewProfileRef("abc", &serial)
	require.NoError(t, err)

	got, ok := ref.Serial()
	assert.True(t, ok)
	assert.Equal(t, 7, got)
	_, isID := ref.ID()
	assert.False(t, isID)
}

func TestParseActionKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseActionKind(" Bless ")
	require.NoError(t, err)
	assert.Equal(t, ActionBless, kind)
	assert.Equal(t, "/bless", kind.Command())

	_, err = ParseActionKind("smite")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDailyStatsAppend(t *testing.T) {
	t.Parallel()

	stats := DailyStats{Date: "2026-02-14"}
	stats.Append(ActionLogEntry{Time: "10:00:00", Giver: "a", Receiver: "b", Action: ActionBless, Success: true})
	stats.Append(ActionLogEntry{Time: "10:01:00", Giver: "a", Receiver: "c", Action: ActionCurse, Success: false})
	stats.Append(ActionLogEntry{Time: "10:02:00", Giver: "b", Receiver: "a", Action: ActionCurse, Success: true})

	assert.Equal(t, []AccountName{"a", "b"}, stats.AccountsProcessed)
	assert.Equal(t, 1, stats.TotalBless)
	assert.Equal(t, 1, stats.TotalCurse)
	require.Len(t, stats.Actions, 3)
	assert.False(t, stats.Actions[1].Success)
}

func TestAccountProgressIsStale(t *testing.T) {
	t.Parallel()

	assert.False(t, AccountProgress{}.IsStale("2026-02-14"))
	assert.False(t, AccountProgress{LastActionDate: "2026-02-14"}.IsStale("2026-02-14"))
	assert.True(t, AccountProgress{LastActionDate: "2026-02-13"}.IsStale("2026-02-14"))
}

func TestSettingsApplyIgnoresNilFields(t *testing.T) {
	t.Parallel()

	limit := 3
	settings := Settings{DailyLimitPerAccount: 5, TargetBless: 10, TargetCurse: 10}
	updated := settings.Apply(SettingsPatch{DailyLimitPerAccount: &limit})

	assert.Equal(t, 3, updated.DailyLimitPerAccount)
	assert.Equal(t, 10, updated.TargetBless)
	assert.Equal(t, 10, updated.TargetCurse)
	assert.True(t, SettingsPatch{}.IsEmpty())
}

func TestBuildRoster(t *testing.T) {
	t.Parallel()

	accounts, warnings, err := BuildRoster([]RosterEntry{
		{Name: "alpha", Profile: "12", Target: "alpha_user"},
		{Name: "beta", Profile: "k9x2", Target: "username_here"},
		{Name: "", Profile: "13", Target: "x"},
		{Name: "gamma", Profile: "YOUR_PROFILE_ID", Target: "gamma_user"},
		{Name: "alpha", Profile: "14", Target: "dup"},
		{Name: "delta", Profile: "15", Target: ""},
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "account 3: name is required")
	assert.ErrorContains(t, err, "placeholder")
	assert.ErrorContains(t, err, "account 5 (alpha): duplicate name")
	assert.ErrorContains(t, err, "account 6 (delta): target username is required")

	require.Len(t, accounts, 2)
	assert.Equal(t, AccountName("alpha"), accounts[0].Name)
	assert.Equal(t, ProfileKindSerial, accounts[0].Profile.Kind())
	assert.Equal(t, ProfileKindID, accounts[1].Profile.Kind())
	assert.Len(t, warnings, 1)
}

func TestSessionErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := error(&SessionError{Kind: ErrAccessDenied, Giver: "alpha", Reason: "no access", Err: cause})

	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "destination access denied for alpha: no access: boom", err.Error())

	var sessionErr *SessionError
	require.True(t, errors.As(err, &sessionErr))
	assert.True(t, sessionErr.Terminal())
	assert.False(t, (&SessionError{Kind: ErrTransientAction}).Terminal())
}
