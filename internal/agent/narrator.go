package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/observability"
)

// Speaker identifies who a narrated line belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "cherry"
)

// NarrationSink is a front end that shows or voices narrated lines.
type NarrationSink interface {
	Announce(ctx context.Context, speaker Speaker, text string) error
}

// Narrator fans narrated lines out to every sink. It suppresses an agent line
// identical to the previous one, and shows the thinking line at most once per task.
type Narrator struct {
	logger  *zap.Logger
	sinks   []NarrationSink
	timeout time.Duration

	mu            sync.Mutex
	lastSpoken    string
	thinkingShown bool
}

// NewNarrator creates a narrator. Each sink call is bounded by timeout.
func NewNarrator(logger *zap.Logger, timeout time.Duration, sinks ...NarrationSink) *Narrator {
	return &Narrator{
		logger:  logger.Named("narrator"),
		sinks:   sinks,
		timeout: timeout,
	}
}

// Reset clears the duplicate-suppression state at the start of a task.
func (n *Narrator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSpoken = ""
	n.thinkingShown = false
}

// Speak narrates text as the agent. It returns false when the line was suppressed.
func (n *Narrator) Speak(ctx context.Context, text string) bool {
	return n.speak(ctx, text, false)
}

// Think narrates a thinking line; only the first one per task is shown.
func (n *Narrator) Think(ctx context.Context, text string) bool {
	return n.speak(ctx, text, true)
}

func (n *Narrator) speak(ctx context.Context, text string, thinking bool) bool {
	n.mu.Lock()
	if thinking && n.thinkingShown {
		n.mu.Unlock()
		return false
	}
	if thinking {
		n.thinkingShown = true
	}
	if text == n.lastSpoken {
		n.mu.Unlock()
		return false
	}
	n.lastSpoken = text
	n.mu.Unlock()

	n.Announce(ctx, SpeakerAgent, text)
	return true
}

// Announce delivers a line to every sink without duplicate suppression. Sinks
// run concurrently and the call returns by the narration timeout even when a
// sink ignores its context. Sink failures are logged, never returned.
func (n *Narrator) Announce(ctx context.Context, speaker Speaker, text string) {
	if len(n.sinks) == 0 {
		return
	}
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if n.timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, n.timeout)
	}
	defer cancel()

	results := make(chan error, len(n.sinks))
	for _, sink := range n.sinks {
		go func(sink NarrationSink) {
			results <- sink.Announce(sctx, speaker, text)
		}(sink)
	}

	for pending := len(n.sinks); pending > 0; pending-- {
		select {
		case err := <-results:
			if err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Warn("Narration sink failed", zap.String("speaker", string(speaker)), zap.Error(err))
			}
		case <-sctx.Done():
			// Stragglers finish into the buffered channel.
			if !errors.Is(sctx.Err(), context.Canceled) {
				n.logger.Warn("Narration sink failed",
					zap.String("speaker", string(speaker)),
					zap.Int("pending", pending),
					zap.Error(sctx.Err()))
			}
			return
		}
	}
}

// -- Sinks --

// ConsoleSink prints lines as "speaker: text", coloured by speaker when enabled.
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewConsoleSink creates a console sink writing to w.
func NewConsoleSink(w io.Writer, color bool) *ConsoleSink {
	return &ConsoleSink{w: w, color: color}
}

var speakerColors = map[Speaker]string{
	SpeakerUser:  "cyan",
	SpeakerAgent: "magenta",
}

func (c *ConsoleSink) Announce(_ context.Context, speaker Speaker, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := string(speaker)
	if c.color {
		if code := observability.ColorFor(speakerColors[speaker]); code != "" {
			label = code + label + observability.ColorReset
		}
	}
	_, err := fmt.Fprintf(c.w, "%s: %s\n", label, text)
	return err
}

// LogSink records narration in the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("narration")}
}

func (l *LogSink) Announce(_ context.Context, speaker Speaker, text string) error {
	l.logger.Info("Narration", zap.String("speaker", string(speaker)), zap.String("text", text))
	return nil
}
