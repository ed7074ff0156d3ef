package application

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
)

// ShutdownCoordinator tracks open profiles so they can be stopped on
// cancellation. RequestShutdown only flips a flag and is safe from a signal
// handler; Cleanup does the work.
type ShutdownCoordinator struct {
	launcher ports.ProfileLauncher
	logger   zerolog.Logger

	requested atomic.Bool
	cleanOnce sync.Once

	mu   sync.Mutex
	open map[string]domain.ProfileRef
}

func NewShutdownCoordinator(launcher ports.ProfileLauncher, logger zerolog.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		launcher: launcher,
		logger:   logger,
		open:     map[string]domain.ProfileRef{},
	}
}

func (c *ShutdownCoordinator) RequestShutdown() {
	if c.requested.CompareAndSwap(false, true) {
		c.logger.Warn().Msg("shutdown requested, no new sessions will start")
	}
}

func (c *ShutdownCoordinator) ShutdownRequested() bool {
	return c.requested.Load()
}

func (c *ShutdownCoordinator) Register(profile domain.ProfileRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open[profile.Key()] = profile
}

func (c *ShutdownCoordinator) Unregister(profile domain.ProfileRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.open, profile.Key())
}

// Open lists the currently registered profiles in key order.
func (c *ShutdownCoordinator) Open() []domain.ProfileRef {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.open))
	for key := range c.open {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]domain.ProfileRef, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.open[key])
	}
	return out
}

// Cleanup stops every open profile once, then closes the launcher transport.
// Later calls return immediately. Stop failures are logged and do not abort the
// loop; each profile is unregistered after its attempt either way.
func (c *ShutdownCoordinator) Cleanup(ctx context.Context) {
	c.cleanOnce.Do(func() {
		c.requested.Store(true)

		profiles := c.Open()
		if len(profiles) > 0 {
			c.logger.Info().Int("profiles", len(profiles)).Msg("stopping open profiles")
		}
		for _, profile := range profiles {
			stopped, err := c.launcher.Stop(ctx, profile)
			switch {
			case err != nil:
				c.logger.Error().Err(err).Str("profile", profile.Display()).Msg("stop profile during cleanup")
			case !stopped:
				c.logger.Debug().Str("profile", profile.Display()).Msg("profile already stopped")
			}
			c.Unregister(profile)
		}

		if err := c.launcher.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close launcher transport")
		}
	})
}
