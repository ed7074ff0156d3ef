package discord

import (
	"math/rand/v2"
	"strings"
	"time"
)

// Timing holds the human-like delays used while driving the client.
type Timing struct {
	TypingDelayMin    time.Duration
	TypingDelayMax    time.Duration
	ActionDelayMin    time.Duration
	ActionDelayMax    time.Duration
	AutocompleteWait  time.Duration
	CommandSubmitWait time.Duration
	ResponseTimeout   time.Duration
	NavigationTimeout time.Duration
	InputTimeout      time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		TypingDelayMin:    50 * time.Millisecond,
		TypingDelayMax:    150 * time.Millisecond,
		ActionDelayMin:    200 * time.Millisecond,
		ActionDelayMax:    500 * time.Millisecond,
		AutocompleteWait:  2 * time.Second,
		CommandSubmitWait: 3 * time.Second,
		ResponseTimeout:   5 * time.Second,
		NavigationTimeout: 45 * time.Second,
		InputTimeout:      15 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.TypingDelayMax <= 0 {
		t.TypingDelayMin, t.TypingDelayMax = def.TypingDelayMin, def.TypingDelayMax
	}
	if t.ActionDelayMax <= 0 {
		t.ActionDelayMin, t.ActionDelayMax = def.ActionDelayMin, def.ActionDelayMax
	}
	if t.AutocompleteWait <= 0 {
		t.AutocompleteWait = def.AutocompleteWait
	}
	if t.CommandSubmitWait <= 0 {
		t.CommandSubmitWait = def.CommandSubmitWait
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = def.ResponseTimeout
	}
	if t.NavigationTimeout <= 0 {
		t.NavigationTimeout = def.NavigationTimeout
	}
	if t.InputTimeout <= 0 {
		t.InputTimeout = def.InputTimeout
	}
	return t
}

// Selectors are CSS selector alternatives for the parts of the client UI the
// executor looks for. Each group is queried as one selector list.
type Selectors struct {
	App            []string
	ChannelContent []string
	MessageInput   []string
	Autocomplete   []string
	LoggedIn       []string
	LoginForm      []string
	AccessNotice   []string
	Messages       string
}

func DefaultSelectors() Selectors {
	return Selectors{
		App: []string{
			`[class*="app-"]`,
			`[class*="layers-"]`,
			`[data-list-id]`,
			`#app-mount`,
		},
		ChannelContent: []string{
			`div[role="textbox"]`,
			`[data-list-id="chat-messages"]`,
			`main[class*="chat-"]`,
			`div[class*="chat-"]`,
			`[class*="scrollerInner-"]`,
			`form[class*="form-"]`,
		},
		MessageInput: []string{
			`div[role="textbox"]`,
			`[contenteditable="true"][data-slate-editor="true"]`,
			`[contenteditable="true"]`,
		},
		Autocomplete: []string{
			`[class*="autocomplete"]`,
			`[class*="Autocomplete"]`,
			`[role="listbox"]`,
		},
		LoggedIn: []string{
			`[class*="avatar-"]`,
			`[aria-label="User Settings"]`,
			`[class*="panels-"]`,
		},
		LoginForm: []string{
			`input[type="email"]`,
			`input[name="email"]`,
		},
		AccessNotice: []string{
			`[class*="notice-"]`,
			`[class*="error"]`,
		},
		Messages: `[id^="chat-messages-"]`,
	}
}

func selectorList(selectors []string) string {
	return strings.Join(selectors, ", ")
}

// accessPhrases are matched case-insensitively against visible page text.
var accessPhrases = []string{
	"you don't have access to this channel",
	"you do not have permission",
	"this channel is read-only",
	"missing access",
	"no access",
}

const maxReasonLength = 100

func isLoginURL(rawURL string) bool {
	return strings.Contains(rawURL, "/login") || strings.Contains(rawURL, "/register")
}

func accessPattern() string {
	return "/" + strings.Join(accessPhrases, "|") + "/i"
}

func matchesAccessPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range accessPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func truncateReason(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > maxReasonLength {
		return string(runes[:maxReasonLength])
	}
	return text
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
