package syncer

import (
	"context"
	"log"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

// TaskBackend is the part of the remote API the task engine uses.
type TaskBackend interface {
	CreateTask(ctx context.Context, task remote.TaskDTO) (*remote.TaskDTO, error)
	GetTasks(ctx context.Context) ([]remote.TaskDTO, error)
}

// GoalBackend is the part of the remote API the goal engine uses.
type GoalBackend interface {
	CreateGoal(ctx context.Context, goal remote.GoalDTO) (*remote.GoalDTO, error)
	GetGoals(ctx context.Context) ([]remote.GoalDTO, error)
	UpdateGoalProgress(ctx context.Context, id string, progress int) error
}

// TimerBackend is the part of the remote API the timer engine uses.
type TimerBackend interface {
	CreateTimerSession(ctx context.Context, session remote.TimerSessionDTO) (string, error)
	GetTimerSessions(ctx context.Context) ([]remote.TimerSessionDTO, error)
	GetFocusStats(ctx context.Context, days int) (*remote.FocusStatsDTO, error)
}

// Backend is everything the engines need. *remote.Client implements it.
type Backend interface {
	TaskBackend
	GoalBackend
	TimerBackend
}

var _ Backend = (*remote.Client)(nil)

func defaultLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return logger
}

// flight collapses concurrent calls of the same operation.
type flight struct {
	group singleflight.Group
}

// doOnce runs fn once for every concurrent caller of key. The run is
// detached from the cancellation of the caller that started it, so one
// caller giving up does not fail the others. A caller whose ctx ends first
// stops waiting and gets cancelled(ctx.Err()); the run finishes for the rest.
func doOnce[T any](ctx context.Context, f *flight, key string, fn func(context.Context) T, cancelled func(error) T) T {
	ch := f.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx)), nil
	})
	select {
	case r := <-ch:
		return r.Val.(T)
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}
