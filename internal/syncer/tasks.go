package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

const resourceTask = "task"

// TaskEngine synchronizes tasks.
type TaskEngine struct {
	db      *localdb.DB
	backend TaskBackend
	gate    auth.Gate
	logger  *log.Logger
	flight  flight
}

// NewTaskEngine creates a task engine. If logger is nil, a default logger
// writing to stderr is used.
func NewTaskEngine(db *localdb.DB, backend TaskBackend, gate auth.Gate, logger *log.Logger) *TaskEngine {
	return &TaskEngine{
		db:      db,
		backend: backend,
		gate:    gate,
		logger:  defaultLogger(logger),
	}
}

// Push creates every local task that has no backend id on the backend and
// records the assigned id locally. A queued outbox create for the task, due
// or backing off, is taken over; a task whose create the outbox is sending
// right now is left to it.
func (e *TaskEngine) Push(ctx context.Context) *PushResult {
	return doOnce(ctx, &e.flight, "push", e.push, pushCancelled)
}

func (e *TaskEngine) push(ctx context.Context) *PushResult {
	result := &PushResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	tasks, err := e.db.GetTasks(ctx, localdb.TaskFilter{Unsynced: true})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load unsynced tasks: %w", err))
		return result
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if !takeOver(ctx, e.db, resourceTask, task.Ref, result) {
			continue
		}

		created, err := e.backend.CreateTask(ctx, remote.TaskToDTO(task))
		if err != nil {
			e.logger.Printf("Failed to push task %s (%s): %v", task.Ref, task.Title, err)
			result.fail(resourceTask, task.Ref, err)
			continue
		}
		if err := e.db.AssignTaskRemoteID(ctx, task.Ref.LocalID, created.ID); err != nil {
			result.fail(resourceTask, task.Ref, err)
			continue
		}
		result.ok(task.Ref.WithRemote(created.ID), created.ID)
		e.logger.Printf("Pushed task %d as %s (%s)", task.Ref.LocalID, created.ID, task.Title)
	}

	e.logger.Printf("Task push complete: synced=%d skipped=%d errors=%d",
		result.SyncedCount, result.Skipped, len(result.Errors))
	return result
}

// Pull stores backend tasks that are not known locally. A local task with no
// backend id but the same title and creation second as a backend task is
// the same record created before either side knew the other's id; it is
// linked instead of duplicated.
func (e *TaskEngine) Pull(ctx context.Context) *PullResult {
	return doOnce(ctx, &e.flight, "pull", e.pull, pullCancelled)
}

func (e *TaskEngine) pull(ctx context.Context) *PullResult {
	result := &PullResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	dtos, err := e.backend.GetTasks(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to fetch tasks: %w", err))
		return result
	}
	result.Fetched = len(dtos)

	locals, err := e.db.GetTasks(ctx, localdb.TaskFilter{})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load local tasks: %w", err))
		return result
	}

	byRemote := make(map[string]*model.Task, len(locals))
	byContent := make(map[contentKey]*model.Task)
	for _, t := range locals {
		if t.Ref.HasRemote() {
			byRemote[t.Ref.RemoteID] = t
			continue
		}
		byContent[keyOf(t.Title, t.CreatedAt)] = t
	}

	for _, dto := range dtos {
		task, err := dto.ToTask()
		if err != nil {
			result.fail(resourceTask, model.RemoteRef(dto.ID), err)
			continue
		}
		if _, ok := byRemote[task.Ref.RemoteID]; ok {
			result.Unchanged++
			continue
		}

		key := keyOf(task.Title, task.CreatedAt)
		if local, ok := byContent[key]; ok {
			if err := e.db.AssignTaskRemoteID(ctx, local.Ref.LocalID, task.Ref.RemoteID); err != nil {
				result.fail(resourceTask, task.Ref, err)
				continue
			}
			delete(byContent, key)
			byRemote[task.Ref.RemoteID] = local
			result.Linked++
			e.logger.Printf("Linked local task %d to %s (%s)", local.Ref.LocalID, task.Ref.RemoteID, task.Title)
			continue
		}

		if err := e.db.AddTask(ctx, task); err != nil {
			result.fail(resourceTask, task.Ref, err)
			continue
		}
		byRemote[task.Ref.RemoteID] = task
		result.Inserted++
	}

	e.logger.Printf("Task pull complete: fetched=%d inserted=%d linked=%d errors=%d",
		result.Fetched, result.Inserted, result.Linked, len(result.Errors))
	return result
}

// Sync pushes then pulls.
func (e *TaskEngine) Sync(ctx context.Context) (*PushResult, *PullResult) {
	push := e.Push(ctx)
	if isAuthFailure(push.Errors) {
		return push, &PullResult{Errors: []error{authRequired()}}
	}
	return push, e.Pull(ctx)
}

func isAuthFailure(errs []error) bool {
	return len(errs) == 1 && errors.Is(errs[0], ErrAuthenticationRequired)
}
