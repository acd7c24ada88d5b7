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

const resourceGoal = "goal"

// GoalEngine synchronizes goals.
type GoalEngine struct {
	db      *localdb.DB
	backend GoalBackend
	gate    auth.Gate
	logger  *log.Logger
	flight  flight
}

// NewGoalEngine creates a goal engine.
func NewGoalEngine(db *localdb.DB, backend GoalBackend, gate auth.Gate, logger *log.Logger) *GoalEngine {
	return &GoalEngine{
		db:      db,
		backend: backend,
		gate:    gate,
		logger:  defaultLogger(logger),
	}
}

// Push creates every local goal without a backend id. Related task refs are
// refreshed from the task table first so tasks pushed earlier in the same
// sync are sent under their backend ids.
func (e *GoalEngine) Push(ctx context.Context) *PushResult {
	return doOnce(ctx, &e.flight, "push", e.push, pushCancelled)
}

func (e *GoalEngine) push(ctx context.Context) *PushResult {
	result := &PushResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	goals, err := e.db.GetGoals(ctx, localdb.GoalFilter{Unsynced: true})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load unsynced goals: %w", err))
		return result
	}

	for _, goal := range goals {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if !takeOver(ctx, e.db, resourceGoal, goal.Ref, result) {
			continue
		}

		goal.RelatedTasks = e.currentRefs(ctx, goal.RelatedTasks)
		created, err := e.backend.CreateGoal(ctx, remote.GoalToDTO(goal))
		if err != nil {
			e.logger.Printf("Failed to push goal %s (%s): %v", goal.Ref, goal.Title, err)
			result.fail(resourceGoal, goal.Ref, err)
			continue
		}
		if err := e.db.AssignGoalRemoteID(ctx, goal.Ref.LocalID, created.ID); err != nil {
			result.fail(resourceGoal, goal.Ref, err)
			continue
		}
		result.ok(goal.Ref.WithRemote(created.ID), created.ID)
		e.logger.Printf("Pushed goal %d as %s (%s)", goal.Ref.LocalID, created.ID, goal.Title)
	}

	e.logger.Printf("Goal push complete: synced=%d skipped=%d errors=%d",
		result.SyncedCount, result.Skipped, len(result.Errors))
	return result
}

// currentRefs replaces local-only task refs with the task's stored ref.
func (e *GoalEngine) currentRefs(ctx context.Context, refs []model.Ref) []model.Ref {
	out := make([]model.Ref, 0, len(refs))
	for _, r := range refs {
		if r.Kind == model.RefLocal {
			if t, err := e.db.GetTask(ctx, r.LocalID); err == nil {
				r = t.Ref
			}
		}
		out = append(out, r)
	}
	return out
}

// Pull stores backend goals not known locally, linking by title and
// creation second as TaskEngine.Pull does. Wire task ids are resolved
// against the local task table.
func (e *GoalEngine) Pull(ctx context.Context) *PullResult {
	return doOnce(ctx, &e.flight, "pull", e.pull, pullCancelled)
}

func (e *GoalEngine) pull(ctx context.Context) *PullResult {
	result := &PullResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	dtos, err := e.backend.GetGoals(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to fetch goals: %w", err))
		return result
	}
	result.Fetched = len(dtos)

	locals, err := e.db.GetGoals(ctx, localdb.GoalFilter{})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load local goals: %w", err))
		return result
	}
	resolve, err := e.taskResolver(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	byRemote := make(map[string]*model.Goal, len(locals))
	byContent := make(map[contentKey]*model.Goal)
	for _, g := range locals {
		if g.Ref.HasRemote() {
			byRemote[g.Ref.RemoteID] = g
			continue
		}
		byContent[keyOf(g.Title, g.CreatedAt)] = g
	}

	for _, dto := range dtos {
		goal, err := dto.ToGoal(resolve)
		if err != nil {
			result.fail(resourceGoal, model.RemoteRef(dto.ID), err)
			continue
		}
		if _, ok := byRemote[goal.Ref.RemoteID]; ok {
			result.Unchanged++
			continue
		}

		key := keyOf(goal.Title, goal.CreatedAt)
		if local, ok := byContent[key]; ok {
			if err := e.db.AssignGoalRemoteID(ctx, local.Ref.LocalID, goal.Ref.RemoteID); err != nil {
				result.fail(resourceGoal, goal.Ref, err)
				continue
			}
			delete(byContent, key)
			byRemote[goal.Ref.RemoteID] = local
			result.Linked++
			continue
		}

		if err := e.db.AddGoal(ctx, goal); err != nil {
			result.fail(resourceGoal, goal.Ref, err)
			continue
		}
		byRemote[goal.Ref.RemoteID] = goal
		result.Inserted++
	}

	e.logger.Printf("Goal pull complete: fetched=%d inserted=%d linked=%d errors=%d",
		result.Fetched, result.Inserted, result.Linked, len(result.Errors))
	return result
}

// taskResolver maps wire task ids to refs: known backend ids become synced
// refs, decimal ids local refs, anything else remote refs.
func (e *GoalEngine) taskResolver(ctx context.Context) (func(string) model.Ref, error) {
	tasks, err := e.db.GetTasks(ctx, localdb.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load local tasks: %w", err)
	}
	known := make(map[string]model.Ref, len(tasks))
	for _, t := range tasks {
		if t.Ref.HasRemote() {
			known[t.Ref.RemoteID] = t.Ref
		}
	}
	return func(id string) model.Ref {
		if r, ok := known[id]; ok {
			return r
		}
		return model.ParseLooseID(id)
	}, nil
}

// UpdateProgress sends a progress-only patch for the goal with the given
// live id. It fails with ErrAuthenticationRequired when signed out and with
// localdb.ErrNotFound when the goal has no backend id yet.
func (e *GoalEngine) UpdateProgress(ctx context.Context, id string, progress int) error {
	if _, ok := auth.Ready(e.gate); !ok {
		return authRequired()
	}
	goal, err := e.db.FindGoal(ctx, id)
	if err != nil {
		return err
	}
	if !goal.Ref.HasRemote() {
		return fmt.Errorf("goal %s has no backend id: %w", goal.Ref, localdb.ErrNotFound)
	}
	if err := e.backend.UpdateGoalProgress(ctx, goal.Ref.RemoteID, progress); err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			return fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
		}
		return fmt.Errorf("failed to update goal progress: %w", err)
	}
	return nil
}

// Sync pushes then pulls.
func (e *GoalEngine) Sync(ctx context.Context) (*PushResult, *PullResult) {
	push := e.Push(ctx)
	if isAuthFailure(push.Errors) {
		return push, &PullResult{Errors: []error{authRequired()}}
	}
	return push, e.Pull(ctx)
}
