package agent

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStartedEntry is always the first history entry of a task.
const TaskStartedEntry = "Task started with extended execution time"

// Clock abstracts time for the session so tests can control elapsed time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Session is the per-task mutable state of the control loop. A new Session is
// created for every goal and nothing in it outlives the task.
//
// Methods are safe for concurrent use: a step that exceeds its timeout is
// abandoned, not joined, and may still touch the session.
type Session struct {
	ID        string
	Goal      string
	StartedAt time.Time

	clock Clock

	mu                sync.Mutex
	history           []string
	repeats           map[string]int
	lastScreen        string
	hasScreen         bool
	unchangedCount    int
	consecutiveSpeaks int
	// loopMark is the first history index the loop guard looks at.
	loopMark int
}

// NewSession starts a task clock and seeds the history.
func NewSession(goal string, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Session{
		ID:        uuid.NewString(),
		Goal:      goal,
		StartedAt: clock.Now(),
		clock:     clock,
		history:   []string{TaskStartedEntry},
		repeats:   make(map[string]int),
		loopMark:  1,
	}
}

// Elapsed returns the time since the task started.
func (s *Session) Elapsed() time.Duration {
	return s.clock.Now().Sub(s.StartedAt)
}

// Remaining returns how much of budget is left, never negative.
func (s *Session) Remaining(budget time.Duration) time.Duration {
	if r := budget - s.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// Append adds an entry to the history.
func (s *Session) Append(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// History returns a copy of the full history.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// HistoryTail returns a copy of the last n entries.
func (s *Session) HistoryTail(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), s.history[start:]...)
}

// LoopHistory returns the entries the loop guard may inspect: everything after
// the seed entry and after the last intervention.
func (s *Session) LoopHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopMark >= len(s.history) {
		return nil
	}
	return append([]string(nil), s.history[s.loopMark:]...)
}

// MarkLoopGuard hides the current history from later loop checks, so the
// guard fires once per run of repeated actions.
func (s *Session) MarkLoopGuard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopMark = len(s.history)
}

// RecordRepeat counts a proposal of action and returns the new count.
func (s *Session) RecordRepeat(action Action) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := action.RepeatKey()
	s.repeats[key]++
	return s.repeats[key]
}

// ObserveScreen records a screen description and returns how many consecutive
// observations have been identical to their predecessor.
func (s *Session) ObserveScreen(description string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasScreen && description == s.lastScreen {
		s.unchangedCount++
	} else {
		s.unchangedCount = 0
	}
	s.lastScreen = description
	s.hasScreen = true
	return s.unchangedCount
}

// RecordSpeak increments the consecutive speak counter for a speak action and
// resets it for anything else. It returns the new count.
func (s *Session) RecordSpeak(isSpeak bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isSpeak {
		s.consecutiveSpeaks++
	} else {
		s.consecutiveSpeaks = 0
	}
	return s.consecutiveSpeaks
}

// -- History entry formats --

// SuccessEntry formats "Step N: name(params) -> result (took X.Xs)".
func SuccessEntry(step int, action Action, result string, took time.Duration) string {
	if result == "" {
		result = "Completed"
	}
	return fmt.Sprintf("Step %d: %s -> %s (took %.1fs)", step, action, Truncate(result, 100), took.Seconds())
}

// TimeoutEntry formats "Step N: name -> TIMEOUT after Xs".
func TimeoutEntry(step int, name ActionName, timeout time.Duration) string {
	return fmt.Sprintf("Step %d: %s -> TIMEOUT after %ss", step, name, FormatSeconds(timeout))
}

// ErrorEntry formats "Step N: name -> ERROR: msg".
func ErrorEntry(step int, name ActionName, msg string) string {
	return fmt.Sprintf("Step %d: %s -> ERROR: %s", step, name, Truncate(msg, 100))
}

// FormatSeconds prints a duration in seconds without trailing zeros (60, 2.5).
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// entryActionName extracts the action name from a history entry. Entries that
// are not step entries stand for themselves.
func entryActionName(entry string) string {
	rest, ok := strings.CutPrefix(entry, "Step ")
	if !ok {
		return entry
	}
	_, rest, ok = strings.Cut(rest, ": ")
	if !ok {
		return entry
	}
	end := len(rest)
	if i := strings.IndexByte(rest, '('); i >= 0 && i < end {
		end = i
	}
	if i := strings.Index(rest, " ->"); i >= 0 && i < end {
		end = i
	}
	return rest[:end]
}

// DetectLoop reports whether the last window entries contain at most
// maxDistinct distinct action names. Histories shorter than window never loop.
func DetectLoop(history []string, window, maxDistinct int) bool {
	if window <= 0 || len(history) < window {
		return false
	}
	distinct := make(map[string]struct{}, window)
	for _, entry := range history[len(history)-window:] {
		distinct[entryActionName(entry)] = struct{}{}
	}
	return len(distinct) <= maxDistinct
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
