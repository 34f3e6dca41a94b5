// -- internal/humanoid/humanoid.go --
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cherry/internal/config"
)

// Config tunes the movement and typing model.
type Config struct {
	// Fitts's law coefficients in milliseconds.
	FittsA float64
	FittsB float64
	// MovementSpeed scales movement time; 2.0 moves twice as fast.
	MovementSpeed float64
	// JitterPx is the standard deviation of per-sample pointer noise.
	JitterPx float64
	// TypingInterval is the mean inter-key delay.
	TypingInterval time.Duration
	// MaxClicksPerMinute bounds clicks over a sliding minute. Zero disables the limit.
	MaxClicksPerMinute int
	// Rng makes the model deterministic in tests.
	Rng *rand.Rand
	// Sleep replaces the context-aware sleeper in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the persona used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		FittsA:             120,
		FittsB:             90,
		MovementSpeed:      1.0,
		JitterPx:           0.6,
		TypingInterval:     50 * time.Millisecond,
		MaxClicksPerMinute: 60,
	}
}

// ConfigFromDesktop overlays the desktop settings onto the default persona.
func ConfigFromDesktop(d config.DesktopConfig) Config {
	cfg := DefaultConfig()
	if d.MovementSpeed > 0 {
		cfg.MovementSpeed = d.MovementSpeed
	}
	if d.TypingInterval > 0 {
		cfg.TypingInterval = d.TypingInterval
	}
	cfg.MaxClicksPerMinute = d.MaxClicksPerMinute
	return cfg
}

// Controller turns coordinate-level intents into human-like input on a Device.
// It owns the device: every input primitive goes through its mutex, so two
// actions never interleave their events.
type Controller struct {
	device  Device
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error

	// inputMu serialises whole actions; rngMu guards rng only.
	inputMu sync.Mutex
	rngMu   sync.Mutex
	rng     *rand.Rand
}

// New creates a Controller over the given device.
func New(device Device, cfg Config, logger *zap.Logger) *Controller {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MovementSpeed <= 0 {
		cfg.MovementSpeed = 1.0
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	c := &Controller{
		device: device,
		cfg:    cfg,
		logger: logger.Named("humanoid"),
		rng:    rng,
		sleep:  sleep,
	}
	if cfg.MaxClicksPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxClicksPerMinute)), cfg.MaxClicksPerMinute)
	}
	return c
}

// Device exposes the underlying device for read-only queries such as ScreenSize.
func (c *Controller) Device() Device {
	return c.device
}

// CognitivePause waits for a normally distributed delay, clamped at zero.
func (c *Controller) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	ms := meanMs + c.normal()*stdDevMs
	if ms < 0 {
		ms = 0
	}
	return c.sleep(ctx, time.Duration(ms*float64(time.Millisecond)))
}

func (c *Controller) normal() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.NormFloat64()
}

func (c *Controller) uniform() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64()
}

// SleepContext pauses for d, returning early with ctx's error when it is
// cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
