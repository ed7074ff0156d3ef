package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

var ErrNotConnected = errors.New("browser session is not connected")

// Executor attaches to browsers already started by the profile launcher and
// drives the chat client through CDP.
type Executor struct {
	timing    Timing
	selectors Selectors
	logger    zerolog.Logger
}

var _ ports.ActionExecutor = (*Executor)(nil)

func NewExecutor(timing Timing, selectors Selectors, logger zerolog.Logger) *Executor {
	if len(selectors.MessageInput) == 0 {
		selectors = DefaultSelectors()
	}
	return &Executor{
		timing:    timing.withDefaults(),
		selectors: selectors,
		logger:    logger,
	}
}

// Connect attaches to the profile's browser and reuses its first tab. The
// browser itself belongs to the launcher; Disconnect only drops the CDP link.
func (e *Executor) Connect(ctx context.Context, conn ports.ConnectionInfo) (ports.ActionSession, error) {
	controlURL, err := resolveControlURL(conn.DebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("resolve debugger url: %w", err)
	}

	linkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	browser := rod.New().ControlURL(controlURL).Context(linkCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := firstPage(browser)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}

	logger := e.logger.With().Str("profile", conn.ProfileID).Logger()
	logger.Debug().Str("debugger", controlURL).Msg("attached to browser")

	return &session{
		page:      page,
		cancel:    cancel,
		timing:    e.timing,
		selectors: e.selectors,
		logger:    logger,
		sleep:     sleepContext,
	}, nil
}

func resolveControlURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotConnected
	}
	if strings.HasPrefix(raw, "ws://") || strings.HasPrefix(raw, "wss://") {
		return raw, nil
	}
	return launcher.ResolveURL(raw)
}

func firstPage(browser *rod.Browser) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page != nil {
			return page, nil
		}
	}
	return browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

type session struct {
	page      *rod.Page
	cancel    context.CancelFunc
	timing    Timing
	selectors Selectors
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

var _ ports.ActionSession = (*session)(nil)

func (s *session) currentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *session) VerifyAuthenticated(ctx context.Context) (bool, error) {
	if s.page == nil {
		return false, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if url := s.currentURL(); isLoginURL(url) {
		s.logger.Info().Str("url", url).Msg("login page shown")
		return false, nil
	}

	page := s.page.Context(ctx)
	if found, _, err := page.Has(selectorList(s.selectors.LoggedIn)); err == nil && found {
		return true, nil
	}
	if found, _, err := page.Has(selectorList(s.selectors.LoginForm)); err == nil && found {
		s.logger.Info().Msg("login form present")
		return false, nil
	}

	// Neither marker is visible yet; a slow load is treated as logged in.
	s.logger.Debug().Msg("login state unconfirmed")
	return true, nil
}

func (s *session) NavigateToDestination(ctx context.Context, url string) (bool, error) {
	if s.page == nil {
		return false, ErrNotConnected
	}
	if !strings.Contains(url, "/@me/") {
		s.logger.Debug().Str("url", url).Msg("destination is a server channel")
	}

	page := s.page.Context(ctx).Timeout(s.timing.NavigationTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return false, fmt.Errorf("navigate to channel: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return false, fmt.Errorf("wait for channel load: %w", err)
	}
	if current := s.currentURL(); isLoginURL(current) {
		return false, fmt.Errorf("%w: redirected to %s", domain.ErrUnauthorized, current)
	}

	if !s.waitFor(ctx, s.selectors.App, 10*time.Second) {
		s.logger.Debug().Msg("app container not found")
	}
	if !s.waitFor(ctx, s.selectors.ChannelContent, 8*time.Second) {
		s.logger.Debug().Msg("channel content not found")
	}

	ready := s.waitFor(ctx, s.selectors.MessageInput, s.timing.InputTimeout)
	if err := s.sleep(ctx, 2*time.Second); err != nil {
		return false, err
	}
	if !ready {
		s.logger.Warn().Msg("message input not found")
	}
	return ready, nil
}

func (s *session) waitFor(ctx context.Context, selectors []string, timeout time.Duration) bool {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	_, err := page.Element(selectorList(selectors))
	return err == nil
}

func (s *session) CheckAccessError(ctx context.Context) (string, bool) {
	if s.page == nil {
		return "", false
	}
	page := s.page.Context(ctx)

	if found, el, err := page.HasR("div, span, h2, h3", accessPattern()); err == nil && found {
		if text, err := el.Text(); err == nil {
			return truncateReason(text), true
		}
		return "channel access denied", true
	}

	for _, selector := range s.selectors.AccessNotice {
		found, el, err := page.Has(selector)
		if err != nil || !found {
			continue
		}
		text, err := el.Text()
		if err == nil && matchesAccessPhrase(text) {
			return truncateReason(text), true
		}
	}
	return "", false
}

// PerformAction types the slash command, picks the target from the
// autocomplete list and submits. A missing bot reply is logged, not failed.
func (s *session) PerformAction(ctx context.Context, kind domain.ActionKind, target string) (bool, error) {
	if s.page == nil {
		return false, ErrNotConnected
	}
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownAction, kind)
	}

	logger := s.logger.With().Str("action", string(kind)).Str("receiver", target).Logger()
	before := s.lastMessageID(ctx)

	inputPage := s.page.Context(ctx).Timeout(s.timing.InputTimeout)
	field, err := inputPage.Element(selectorList(s.selectors.MessageInput))
	inputPage.CancelTimeout()
	if err != nil {
		return false, fmt.Errorf("find message input: %w", err)
	}

	steps := []func() error{
		func() error { return s.pause(ctx, s.timing.ActionDelayMin, s.timing.ActionDelayMax) },
		func() error { return field.Context(ctx).Click(proto.InputMouseButtonLeft, 1) },
		func() error { return s.pause(ctx, 500*time.Millisecond, time.Second) },
		func() error { return s.clearInput() },
		func() error { return s.typeText(ctx, kind.Command()) },
		func() error { return s.awaitAutocomplete(ctx) },
		func() error { return s.page.Keyboard.Type(input.Enter) },
		func() error { return s.sleep(ctx, 1500*time.Millisecond) },
	}
	if target != "" {
		steps = append(steps,
			func() error { return s.pause(ctx, 300*time.Millisecond, 600*time.Millisecond) },
			func() error { return s.typeText(ctx, target) },
			func() error { return s.awaitAutocomplete(ctx) },
			func() error { return s.page.Keyboard.Type(input.Enter) },
			func() error { return s.sleep(ctx, time.Second) },
		)
	}
	steps = append(steps,
		func() error { return s.pause(ctx, 500*time.Millisecond, 800*time.Millisecond) },
		func() error { return s.page.Keyboard.Type(input.Enter) },
		func() error { return s.sleep(ctx, s.timing.CommandSubmitWait) },
	)

	for _, step := range steps {
		if err := step(); err != nil {
			return false, fmt.Errorf("send %s: %w", kind.Command(), err)
		}
	}

	if !s.awaitResponse(ctx, before) {
		logger.Warn().Msg("no bot response detected")
	}
	logger.Info().Msg("command sent")
	return true, nil
}

func (s *session) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		if err := s.page.InsertText(string(r)); err != nil {
			return fmt.Errorf("type text: %w", err)
		}
		if err := s.pause(ctx, s.timing.TypingDelayMin, s.timing.TypingDelayMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) clearInput() error {
	keyboard := s.page.Keyboard
	if err := keyboard.Press(input.ControlLeft); err != nil {
		return err
	}
	if err := keyboard.Type(input.KeyA); err != nil {
		_ = keyboard.Release(input.ControlLeft)
		return err
	}
	if err := keyboard.Release(input.ControlLeft); err != nil {
		return err
	}
	return keyboard.Type(input.Backspace)
}

func (s *session) awaitAutocomplete(ctx context.Context) error {
	if err := s.sleep(ctx, s.timing.AutocompleteWait); err != nil {
		return err
	}
	if !s.waitFor(ctx, s.selectors.Autocomplete, 6*time.Second) {
		s.logger.Debug().Msg("no autocomplete popup")
		return ctx.Err()
	}
	return s.sleep(ctx, 500*time.Millisecond)
}

func (s *session) lastMessageID(ctx context.Context) string {
	messages, err := s.page.Context(ctx).Elements(s.selectors.Messages)
	if err != nil || messages.Empty() {
		return ""
	}
	id, err := messages.Last().Attribute("id")
	if err != nil || id == nil {
		return ""
	}
	return *id
}

func (s *session) awaitResponse(ctx context.Context, before string) bool {
	deadline := time.Now().Add(s.timing.ResponseTimeout)
	for time.Now().Before(deadline) {
		if current := s.lastMessageID(ctx); current != "" && current != before {
			return true
		}
		if err := s.sleep(ctx, 500*time.Millisecond); err != nil {
			return false
		}
	}
	return false
}

func (s *session) pause(ctx context.Context, lo, hi time.Duration) error {
	return s.sleep(ctx, randomBetween(lo, hi))
}

func (s *session) Disconnect() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.page = nil
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
