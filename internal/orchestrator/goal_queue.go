package orchestrator

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("goal queue is full")
	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("goal queue is closed")
	// ErrEmptyGoal is returned by Submit for a blank goal.
	ErrEmptyGoal = errors.New("goal is empty")
)

// Goal sources.
const (
	SourceCLI   = "cli"
	SourceStdin = "stdin"
	SourceVoice = "voice"
)

// Goal is one user request. It is immutable once submitted.
type Goal struct {
	ID          string
	Text        string
	Source      string
	SubmittedAt time.Time
}

// GoalQueue is a bounded FIFO between goal producers (CLI, stdin, voice front
// ends) and the single task runner.
type GoalQueue struct {
	logger *zap.Logger
	goals  chan Goal

	mu     sync.Mutex
	closed bool
}

// NewGoalQueue creates a queue holding at most size pending goals.
func NewGoalQueue(logger *zap.Logger, size int) *GoalQueue {
	if size <= 0 {
		size = 1
	}
	return &GoalQueue{
		logger: logger.Named("goal_queue"),
		goals:  make(chan Goal, size),
	}
}

// Submit enqueues a goal without blocking.
func (q *GoalQueue) Submit(text, source string) (Goal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Goal{}, ErrEmptyGoal
	}
	goal := Goal{
		ID:          uuid.NewString(),
		Text:        text,
		Source:      source,
		SubmittedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Goal{}, ErrQueueClosed
	}
	select {
	case q.goals <- goal:
		q.logger.Debug("Goal queued", zap.String("goal_id", goal.ID), zap.String("source", source), zap.Int("pending", len(q.goals)))
		return goal, nil
	default:
		q.logger.Warn("Goal rejected, queue full", zap.String("source", source), zap.Int("capacity", cap(q.goals)))
		return Goal{}, ErrQueueFull
	}
}

// Goals is the consumer side. It is closed by Close.
func (q *GoalQueue) Goals() <-chan Goal {
	return q.goals
}

// Len returns the number of pending goals.
func (q *GoalQueue) Len() int {
	return len(q.goals)
}

// Close stops accepting goals. Pending goals can still be drained.
func (q *GoalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.goals)
}
