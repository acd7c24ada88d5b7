package store

import (
	"context"
	"fmt"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/syncer"
)

// AddTask stores a new task and queues its creation on the backend.
func (s *Store) AddTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	t := cloneTask(task)
	t.Ref = model.Ref{}

	s.mu.Lock()
	if err := s.db.AddTask(ctx, t); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.Tasks = append([]*model.Task{t}, s.state.Tasks...)
	out := cloneTask(t)
	s.mu.Unlock()

	s.emit(Event{Type: EventCreated, Resource: outbox.ResourceTask, ID: out.ID()})
	s.mirror(ctx, outbox.ResourceTask, outbox.OpCreate, out.Ref.LocalID, "", nil)
	return out, nil
}

// UpdateTask applies patch to the task with the given local or backend id.
func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()
	i := indexByID(s.state.Tasks, id, taskRef)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	t := cloneTask(s.state.Tasks[i])
	patch.Apply(t, s.now())
	if err := s.db.UpdateTask(ctx, t); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.Tasks[i] = t
	out := cloneTask(t)
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, Resource: outbox.ResourceTask, ID: out.ID()})
	if payload, err := taskPayload(out, patch); err != nil {
		s.logger.Printf("Failed to build update for task %s: %v", out.ID(), err)
	} else {
		s.mirror(ctx, outbox.ResourceTask, outbox.OpUpdate, out.Ref.LocalID, out.Ref.RemoteID, payload)
	}
	return out, nil
}

// DeleteTask removes a task locally and queues its deletion.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexByID(s.state.Tasks, id, taskRef)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	ref := s.state.Tasks[i].Ref
	if err := s.db.DeleteTask(ctx, ref.LocalID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.Tasks = append(s.state.Tasks[:i], s.state.Tasks[i+1:]...)
	s.mu.Unlock()

	s.emit(Event{Type: EventDeleted, Resource: outbox.ResourceTask, ID: ref.ID()})
	s.deleteRemote(ctx, outbox.ResourceTask, ref)
	return nil
}

// deleteRemote queues a delete. A record that never reached the backend
// only has its queued entries cancelled. Deletes of backend records are
// queued even while signed out so a later pull does not bring them back.
func (s *Store) deleteRemote(ctx context.Context, resource string, ref model.Ref) {
	if s.outbox == nil {
		return
	}
	if _, err := s.outbox.Enqueue(ctx, resource, outbox.OpDelete, ref.LocalID, ref.RemoteID, nil); err != nil {
		s.logger.Printf("Failed to queue delete of %s %s: %v", resource, ref, err)
		return
	}
	if ref.RemoteID != "" {
		s.outbox.Kick()
	}
}

// ToggleTaskComplete flips completion and returns the new value. A task in
// memory goes through UpdateTask. A task known only by id is toggled
// directly on the backend and the backend's value is returned; that path
// needs the user to be signed in.
func (s *Store) ToggleTaskComplete(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	i := indexByID(s.state.Tasks, id, taskRef)
	var completed bool
	if i >= 0 {
		completed = s.state.Tasks[i].Completed
	}
	s.mu.RUnlock()

	if i >= 0 {
		next := !completed
		t, err := s.UpdateTask(ctx, id, model.TaskPatch{Completed: &next})
		if err != nil {
			return false, err
		}
		return t.Completed, nil
	}

	if _, ok := auth.Ready(s.gate); !ok {
		return false, syncer.ErrAuthenticationRequired
	}
	return s.client.ToggleTaskComplete(ctx, id)
}
