// Package tasks runs index mutations outside the request path. Tasks for the
// same document key execute one at a time in the order they were scheduled;
// tasks for different keys run concurrently up to a worker limit.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrRunnerClosed = errors.New("task runner is closed")
)

type Op string

const (
	OpIndex  Op = "index"
	OpDelete Op = "delete"
)

// Task is one index mutation. It is JSON-encoded when it travels through
// Kafka.
type Task struct {
	Op          Op        `json:"op"`
	Key         string    `json:"key"`
	Content     []byte    `json:"content,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func IndexTask(key string, content []byte) Task {
	return Task{Op: OpIndex, Key: key, Content: content, ScheduledAt: time.Now().UTC()}
}

func DeleteTask(key string) Task {
	return Task{Op: OpDelete, Key: key, ScheduledAt: time.Now().UTC()}
}

// Handler applies a task. Errors are logged and the task is dropped.
type Handler func(ctx context.Context, t Task) error

// Scheduler accepts tasks for asynchronous execution. Schedule returns as
// soon as the task is queued.
type Scheduler interface {
	Schedule(ctx context.Context, t Task) error
}

// safeRun calls h and converts a panic into an error.
func safeRun(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return h(ctx, t)
}

func logTaskFailure(logger *slog.Logger, t Task, err error) {
	logger.Error("index task failed, dropping",
		"op", t.Op,
		"key", t.Key,
		"queued_for", time.Since(t.ScheduledAt).Round(time.Millisecond),
		"error", err,
	)
}
