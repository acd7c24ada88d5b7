package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
)

// AddGoal stores a new goal and queues its creation on the backend.
func (s *Store) AddGoal(ctx context.Context, goal *model.Goal) (*model.Goal, error) {
	g := cloneGoal(goal)
	g.Ref = model.Ref{}
	g.SetProgress(g.Progress, s.now())

	s.mu.Lock()
	if err := s.db.AddGoal(ctx, g); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.Goals = append([]*model.Goal{g}, s.state.Goals...)
	out := cloneGoal(g)
	s.mu.Unlock()

	s.emit(Event{Type: EventCreated, Resource: outbox.ResourceGoal, ID: out.ID()})
	s.mirror(ctx, outbox.ResourceGoal, outbox.OpCreate, out.Ref.LocalID, "", nil)
	return out, nil
}

// UpdateGoal applies patch to the goal with the given local or backend id.
func (s *Store) UpdateGoal(ctx context.Context, id string, patch model.GoalPatch) (*model.Goal, error) {
	g, err := s.updateGoal(ctx, id, patch.Apply)
	if err != nil {
		return nil, err
	}
	if payload, err := goalPayload(g, patch); err != nil {
		s.logger.Printf("Failed to build update for goal %s: %v", g.ID(), err)
	} else {
		s.mirror(ctx, outbox.ResourceGoal, outbox.OpUpdate, g.Ref.LocalID, g.Ref.RemoteID, payload)
	}
	return g, nil
}

// UpdateGoalProgress sets progress, clamped to 0..100. Reaching 100 marks
// the goal completed. The backend receives a progress-only patch.
func (s *Store) UpdateGoalProgress(ctx context.Context, id string, progress int) (*model.Goal, error) {
	g, err := s.updateGoal(ctx, id, func(g *model.Goal, now time.Time) { g.SetProgress(progress, now) })
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, outbox.ResourceGoal, outbox.OpProgress, g.Ref.LocalID, g.Ref.RemoteID,
		outbox.ProgressPayload{Progress: g.Progress})
	return g, nil
}

func (s *Store) updateGoal(ctx context.Context, id string, apply func(*model.Goal, time.Time)) (*model.Goal, error) {
	s.mu.Lock()
	i := indexByID(s.state.Goals, id, goalRef)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	g := cloneGoal(s.state.Goals[i])
	apply(g, s.now())
	if err := s.db.UpdateGoal(ctx, g); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.Goals[i] = g
	out := cloneGoal(g)
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, Resource: outbox.ResourceGoal, ID: out.ID()})
	return out, nil
}

// DeleteGoal removes a goal locally and queues its deletion.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexByID(s.state.Goals, id, goalRef)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	ref := s.state.Goals[i].Ref
	if err := s.db.DeleteGoal(ctx, ref.LocalID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.Goals = append(s.state.Goals[:i], s.state.Goals[i+1:]...)
	s.mu.Unlock()

	s.emit(Event{Type: EventDeleted, Resource: outbox.ResourceGoal, ID: ref.ID()})
	s.deleteRemote(ctx, outbox.ResourceGoal, ref)
	return nil
}
