// File: internal/agent/session_test.go
package agent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewSession(t *testing.T) {
	clock := newFakeClock()
	s := NewSession("open the calculator", clock)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, []string{TaskStartedEntry}, s.History())
	assert.Zero(t, s.Elapsed())

	clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, s.Elapsed())
	assert.Equal(t, 30*time.Second, s.Remaining(2*time.Minute))
	assert.Zero(t, s.Remaining(time.Minute))
}

func TestSession_HistoryTail(t *testing.T) {
	s := NewSession("goal", newFakeClock())
	for i := 1; i <= 12; i++ {
		s.Append(fmt.Sprintf("Step %d: wait({}) -> ok", i))
	}

	tail := s.HistoryTail(8)
	require.Len(t, tail, 8)
	assert.Equal(t, "Step 5: wait({}) -> ok", tail[0])
	assert.Equal(t, "Step 12: wait({}) -> ok", tail[7])

	// Mutating the copy must not affect the session.
	tail[0] = "changed"
	assert.NotEqual(t, "changed", s.HistoryTail(8)[0])
	assert.Len(t, s.HistoryTail(100), 13)
}

func TestSession_RepeatsUseCanonicalParams(t *testing.T) {
	s := NewSession("goal", newFakeClock())
	a := NewAction(ClickMouseParams{X: 10, Y: 20})
	b := NewAction(ClickMouseParams{X: 10, Y: 21})

	assert.Equal(t, 1, s.RecordRepeat(a))
	assert.Equal(t, 2, s.RecordRepeat(a))
	assert.Equal(t, 1, s.RecordRepeat(b))
	assert.Equal(t, 2, s.repeats[a.RepeatKey()])
}

func TestSession_ObserveScreen(t *testing.T) {
	s := NewSession("goal", newFakeClock())

	assert.Equal(t, 0, s.ObserveScreen("desktop"))
	assert.Equal(t, 1, s.ObserveScreen("desktop"))
	assert.Equal(t, 2, s.ObserveScreen("desktop"))
	assert.Equal(t, 0, s.ObserveScreen("browser"))
	assert.Equal(t, "browser", s.lastScreen)
	assert.Equal(t, 0, s.unchangedCount)
}

func TestSession_RecordSpeak(t *testing.T) {
	s := NewSession("goal", newFakeClock())
	assert.Equal(t, 1, s.RecordSpeak(true))
	assert.Equal(t, 2, s.RecordSpeak(true))
	assert.Equal(t, 0, s.RecordSpeak(false))
	assert.Equal(t, 1, s.RecordSpeak(true))
	assert.Equal(t, 1, s.consecutiveSpeaks)
}

func TestHistoryEntries(t *testing.T) {
	action := NewAction(TypeTextParams{Text: "hi"})

	assert.Equal(t, `Step 3: type_text({"text":"hi"}) -> Typed: hi... (took 1.2s)`,
		SuccessEntry(3, action, "Typed: hi...", 1234*time.Millisecond))
	assert.Equal(t, `Step 1: type_text({"text":"hi"}) -> Completed (took 0.0s)`,
		SuccessEntry(1, action, "", 0))
	assert.Equal(t, "Step 4: wait -> TIMEOUT after 60s", TimeoutEntry(4, ActionWait, time.Minute))
	assert.Equal(t, "Step 5: scroll -> ERROR: boom", ErrorEntry(5, ActionScroll, "boom"))
	assert.Equal(t, "2.5", FormatSeconds(2500*time.Millisecond))

	long := SuccessEntry(1, action, string(make([]byte, 300)), time.Second)
	assert.Less(t, len(long), 200)

	assert.Equal(t, "héll", Truncate("héllo", 4), "cuts on runes, not bytes")
	assert.Equal(t, "hi", Truncate("hi", 100))
}

func TestDetectLoop(t *testing.T) {
	step := func(n int, name string) string {
		return fmt.Sprintf("Step %d: %s({}) -> ok (took 1.0s)", n, name)
	}

	tests := []struct {
		name    string
		history []string
		want    bool
	}{
		{
			name:    "short history never loops",
			history: []string{TaskStartedEntry, step(1, "wait"), step(2, "wait"), step(3, "wait")},
			want:    false,
		},
		{
			name:    "single action repeated",
			history: []string{step(1, "wait"), step(2, "wait"), step(3, "wait"), step(4, "wait"), step(5, "wait")},
			want:    true,
		},
		{
			name: "two actions alternating",
			history: []string{step(1, "click_mouse"), step(2, "scroll"), step(3, "click_mouse"),
				step(4, "scroll"), "Step 5: scroll -> ERROR: boom"},
			want: true,
		},
		{
			name: "three distinct actions",
			history: []string{step(1, "click_mouse"), step(2, "scroll"), step(3, "type_text"),
				step(4, "scroll"), step(5, "scroll")},
			want: false,
		},
		{
			name: "only the last window counts",
			history: []string{step(1, "type_text"), step(2, "open_website"), step(3, "wait"),
				step(4, "wait"), step(5, "wait"), step(6, "wait"), step(7, "wait")},
			want: true,
		},
		{
			name: "timeout entries carry the bare name",
			history: []string{TaskStartedEntry, "Step 1: wait -> TIMEOUT after 60s", step(2, "wait"),
				step(3, "wait"), step(4, "wait")},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(tt.history, 5, 2))
			// Detection is a pure function of its input.
			assert.Equal(t, tt.want, DetectLoop(tt.history, 5, 2))
		})
	}
}

func TestSession_LoopHistory(t *testing.T) {
	s := NewSession("goal", newFakeClock())
	assert.Empty(t, s.LoopHistory(), "the seed entry is not an action")

	s.Append("Step 1: scroll({}) -> ok (took 1.0s)")
	s.Append("Step 2: scroll({}) -> ok (took 1.0s)")
	assert.Equal(t, []string{"Step 1: scroll({}) -> ok (took 1.0s)", "Step 2: scroll({}) -> ok (took 1.0s)"}, s.LoopHistory())

	s.MarkLoopGuard()
	assert.Empty(t, s.LoopHistory())

	s.Append("Step 3: speak({}) -> ok (took 0.0s)")
	assert.Equal(t, []string{"Step 3: speak({}) -> ok (took 0.0s)"}, s.LoopHistory())
	assert.Len(t, s.History(), 4, "marking never drops history")
}

func TestSession_ConcurrentAppend(t *testing.T) {
	s := NewSession("goal", newFakeClock())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(fmt.Sprintf("entry %d", i))
			_ = s.HistoryTail(8)
		}(i)
	}
	require.True(t, waitTimeout(&wg, 2*time.Second), "appends did not finish in time")
	assert.Len(t, s.History(), 21)
}
