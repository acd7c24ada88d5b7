package store

import (
	"context"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
)

// TimerOptions configures StartTimer.
type TimerOptions struct {
	TaskID string
	GoalID string
	// Duration overrides the length configured in settings.
	Duration time.Duration
}

// StartTimer opens a session of type typ. The session is stored right away
// so a running timer survives a restart; it reaches the backend once
// stopped.
func (s *Store) StartTimer(ctx context.Context, typ model.SessionType, opts TimerOptions) (*ActiveTimer, error) {
	s.mu.Lock()
	if s.state.ActiveTimer != nil {
		s.mu.Unlock()
		return nil, ErrTimerRunning
	}

	planned := opts.Duration
	if planned <= 0 {
		planned = s.state.Settings.DurationFor(typ)
	}
	now := s.now()
	session := &model.TimerSession{
		Type:      typ,
		TaskID:    opts.TaskID,
		GoalID:    opts.GoalID,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.AddSession(ctx, session); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.ActiveTimer = &ActiveTimer{Session: session, Planned: planned}
	s.state.Sessions = append([]*model.TimerSession{cloneSession(session)}, s.state.Sessions...)
	out := cloneTimer(s.state.ActiveTimer)
	s.mu.Unlock()

	s.emit(Event{Type: EventTimerStarted, Resource: outbox.ResourceSession, ID: session.ID()})
	return out, nil
}

// StartFocus starts a focus session.
func (s *Store) StartFocus(ctx context.Context, opts TimerOptions) (*ActiveTimer, error) {
	return s.StartTimer(ctx, model.SessionFocus, opts)
}

// StartBreak starts a break.
func (s *Store) StartBreak(ctx context.Context, opts TimerOptions) (*ActiveTimer, error) {
	return s.StartTimer(ctx, model.SessionBreak, opts)
}

// StartDeepFocus starts a deep focus session.
func (s *Store) StartDeepFocus(ctx context.Context, opts TimerOptions) (*ActiveTimer, error) {
	return s.StartTimer(ctx, model.SessionDeep, opts)
}

// StopTimer closes the running session and queues it for the backend.
func (s *Store) StopTimer(ctx context.Context, completed bool, notes string) (*model.TimerSession, error) {
	s.mu.Lock()
	if s.state.ActiveTimer == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveTimer
	}
	session := cloneSession(s.state.ActiveTimer.Session)
	session.Stop(s.now(), completed)
	if notes != "" {
		session.Notes = notes
	}
	if err := s.db.UpdateSession(ctx, session); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state.ActiveTimer = nil
	if i := indexByLocal(s.state.Sessions, session.Ref.LocalID, sessionRef); i >= 0 {
		s.state.Sessions[i] = cloneSession(session)
	} else {
		s.state.Sessions = append([]*model.TimerSession{cloneSession(session)}, s.state.Sessions...)
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventTimerStopped, Resource: outbox.ResourceSession, ID: session.ID()})
	s.mirror(ctx, outbox.ResourceSession, outbox.OpCreate, session.Ref.LocalID, "", nil)
	return session, nil
}

// CancelTimer discards the running session.
func (s *Store) CancelTimer(ctx context.Context) error {
	s.mu.Lock()
	if s.state.ActiveTimer == nil {
		s.mu.Unlock()
		return ErrNoActiveTimer
	}
	ref := s.state.ActiveTimer.Session.Ref
	if err := s.db.DeleteSession(ctx, ref.LocalID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.ActiveTimer = nil
	if i := indexByLocal(s.state.Sessions, ref.LocalID, sessionRef); i >= 0 {
		s.state.Sessions = append(s.state.Sessions[:i], s.state.Sessions[i+1:]...)
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventDeleted, Resource: outbox.ResourceSession, ID: ref.ID()})
	return nil
}

// UpdateSettings validates and stores settings. Settings stay on this
// device.
func (s *Store) UpdateSettings(ctx context.Context, settings model.UserSettings) (model.UserSettings, error) {
	s.mu.Lock()
	saved, err := s.db.UpdateSettings(ctx, settings)
	if err != nil {
		s.mu.Unlock()
		return model.UserSettings{}, err
	}
	s.state.Settings = saved
	s.mu.Unlock()

	s.emit(Event{Type: EventSettings, Resource: ResourceSettings})
	return saved, nil
}
