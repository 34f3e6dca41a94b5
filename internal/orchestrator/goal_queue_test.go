package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGoalQueue_Submit(t *testing.T) {
	q := NewGoalQueue(zap.NewNop(), 2)

	g1, err := q.Submit("  open firefox ", SourceCLI)
	require.NoError(t, err)
	assert.Equal(t, "open firefox", g1.Text)
	assert.NotEmpty(t, g1.ID)
	assert.False(t, g1.SubmittedAt.IsZero())

	_, err = q.Submit("check mail", SourceVoice)
	require.NoError(t, err)

	_, err = q.Submit("one too many", SourceStdin)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	_, err = q.Submit("   ", SourceStdin)
	assert.ErrorIs(t, err, ErrEmptyGoal)

	got := <-q.Goals()
	assert.Equal(t, g1, got, "goals are delivered in submission order")
}

func TestGoalQueue_Close(t *testing.T) {
	q := NewGoalQueue(zap.NewNop(), 1)
	_, err := q.Submit("pending", SourceCLI)
	require.NoError(t, err)

	q.Close()
	q.Close()

	_, err = q.Submit("late", SourceCLI)
	assert.ErrorIs(t, err, ErrQueueClosed)

	g, ok := <-q.Goals()
	require.True(t, ok, "pending goals survive Close")
	assert.Equal(t, "pending", g.Text)
	_, ok = <-q.Goals()
	assert.False(t, ok)
}

func TestGoalQueue_ConcurrentSubmitAndClose(t *testing.T) {
	q := NewGoalQueue(zap.NewNop(), 8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Submit("goal", SourceStdin)
		}()
	}
	q.Close()
	wg.Wait()
	assert.LessOrEqual(t, q.Len(), 8)
}
