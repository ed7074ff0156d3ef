package application

import (
	"context"
	"math/rand/v2"
	"time"
)

// DelayRange is an inclusive random delay window.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

type PacingConfig struct {
	Settle      time.Duration
	Action      DelayRange
	Account     DelayRange
	ExtraChance float64
	Extra       DelayRange
}

// Pacer randomizes the waits between actions and between sessions.
type Pacer struct {
	cfg   PacingConfig
	float func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPacer(cfg PacingConfig) *Pacer {
	return &Pacer{cfg: cfg, float: rand.Float64, sleep: sleepContext}
}

// NoPacing returns a pacer that never waits.
func NoPacing() *Pacer {
	return &Pacer{
		float: func() float64 { return 1 },
		sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func (p *Pacer) pick(r DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(p.float()*float64(r.Max-r.Min))
}

func (p *Pacer) Settle(ctx context.Context) error {
	return p.sleep(ctx, p.cfg.Settle)
}

func (p *Pacer) BetweenActions(ctx context.Context) error {
	return p.sleep(ctx, p.pick(p.cfg.Action))
}

// BetweenSessions waits the account delay and, with probability ExtraChance,
// an additional pause.
func (p *Pacer) BetweenSessions(ctx context.Context) error {
	if err := p.sleep(ctx, p.pick(p.cfg.Account)); err != nil {
		return err
	}
	if p.cfg.ExtraChance > 0 && p.float() < p.cfg.ExtraChance {
		return p.sleep(ctx, p.pick(p.cfg.Extra))
	}
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
