package domain

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrStateNotFound     = errors.New("state not found")
	ErrInvalidProfileRef = errors.New("invalid profile reference")
	ErrUnknownAction     = errors.New("unknown action")
	ErrSecretNotFound    = errors.New("secret not found")
)

// Session failure taxonomy.
var (
	ErrLaunchFailed    = errors.New("profile launch failed")
	ErrUnauthorized    = errors.New("session not authenticated")
	ErrAccessDenied    = errors.New("destination access denied")
	ErrTransientAction = errors.New("transient action failure")
	ErrPersistence     = errors.New("persistence failure")
)

// SessionError classifies a failed giver session. Kind is one of the taxonomy
// sentinels above so callers can use errors.Is.
type SessionError struct {
	Kind   error
	Giver  AccountName
	Reason string
	Err    error
}

func (e *SessionError) Error() string {
	msg := e.Kind.Error() + " for " + string(e.Giver)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Terminal reports whether the failure ends the giver's session.
func (e *SessionError) Terminal() bool {
	return !errors.Is(e.Kind, ErrTransientAction)
}
