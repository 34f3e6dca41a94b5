package schemas

import "time"

// -- Task Schemas --

// TaskState is the lifecycle state of a single agent task.
type TaskState string

const (
	TaskIdle            TaskState = "IDLE"
	TaskRunning         TaskState = "RUNNING"
	TaskFinished        TaskState = "FINISHED"
	TaskTimedOut        TaskState = "TIMED_OUT"
	TaskMaxStepsReached TaskState = "MAX_STEPS_REACHED"
	TaskAborted         TaskState = "ABORTED"
)

// IsTerminal reports whether the state ends a task.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskTimedOut, TaskMaxStepsReached, TaskAborted:
		return true
	default:
		return false
	}
}

// TaskRecord is the persisted summary of one task run.
type TaskRecord struct {
	ID         string        `json:"id"`
	Goal       string        `json:"goal"`
	Source     string        `json:"source"`
	State      TaskState     `json:"state"`
	Summary    string        `json:"summary"`
	Steps      int           `json:"steps"`
	History    []string      `json:"history"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}
