// Package store is the in-memory application state shared by the CLI and the
// dashboard.
//
// Every action runs in two phases. The local phase writes the local database
// and updates memory before the action returns. The remote phase runs only
// when the user is signed in: it queues the matching backend call in the
// outbox and wakes the dispatcher. Remote failures are logged and never undo
// the local phase or reach the caller.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/syncer"
)

var (
	// ErrNotFound is returned when an id matches no record in memory.
	ErrNotFound = errors.New("not found")
	// ErrNoActiveTimer is returned by StopTimer and CancelTimer when no
	// timer is running.
	ErrNoActiveTimer = errors.New("no active timer")
	// ErrTimerRunning is returned by StartTimer while another timer runs.
	ErrTimerRunning = errors.New("a timer is already running")
)

// Client is the backend API the store needs: the sync engines' calls plus
// the direct completion toggle.
type Client interface {
	syncer.Backend
	ToggleTaskComplete(ctx context.Context, id string) (bool, error)
}

// Deps are the collaborators of a Store.
type Deps struct {
	DB     *localdb.DB
	Client Client
	Gate   auth.Gate
	// Outbox carries the remote phase of actions. Without one, actions stay
	// local until the next SyncAll.
	Outbox *outbox.Dispatcher
	Logger *log.Logger
	Now    func() time.Time
}

// ActiveTimer is the running timer.
type ActiveTimer struct {
	Session *model.TimerSession
	// Planned is the intended length of the session.
	Planned time.Duration
}

// Remaining returns the planned time left at now, never negative.
func (a *ActiveTimer) Remaining(now time.Time) time.Duration {
	left := a.Planned - now.Sub(a.Session.StartTime)
	if left < 0 {
		return 0
	}
	return left
}

// State is a snapshot of everything the store holds.
type State struct {
	Tasks       []*model.Task
	Goals       []*model.Goal
	Sessions    []*model.TimerSession
	Settings    model.UserSettings
	ActiveTimer *ActiveTimer
	LastSync    time.Time
	Loading     bool
}

// Store holds the current view of tasks, goals and sessions.
type Store struct {
	db     *localdb.DB
	client Client
	gate   auth.Gate
	outbox *outbox.Dispatcher
	logger *log.Logger
	now    func() time.Time

	tasks  *syncer.TaskEngine
	goals  *syncer.GoalEngine
	timers *syncer.TimerEngine

	mu    sync.RWMutex
	state State

	subsMu sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// New creates a store. Call Load before reading state.
func New(deps Deps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		db:     deps.DB,
		client: deps.Client,
		gate:   deps.Gate,
		outbox: deps.Outbox,
		logger: logger,
		now:    now,
		tasks:  syncer.NewTaskEngine(deps.DB, deps.Client, deps.Gate, logger),
		goals:  syncer.NewGoalEngine(deps.DB, deps.Client, deps.Gate, logger),
		timers: syncer.NewTimerEngine(deps.DB, deps.Client, deps.Gate, logger),
		subs:   make(map[int]func(Event)),
		state:  State{Settings: model.DefaultSettings()},
	}
	if s.outbox != nil {
		s.outbox.OnDelivered(s.applyDelivery)
	}
	return s
}

// Tasks returns a copy of the tasks in memory.
func (s *Store) Tasks() []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.state.Tasks)
}

// Goals returns a copy of the goals in memory.
func (s *Store) Goals() []*model.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGoals(s.state.Goals)
}

// Sessions returns a copy of the sessions in memory, newest first.
func (s *Store) Sessions() []*model.TimerSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSessions(s.state.Sessions)
}

// Settings returns the current settings.
func (s *Store) Settings() model.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings
}

// ActiveTimer returns the running timer or nil.
func (s *Store) ActiveTimer() *ActiveTimer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTimer(s.state.ActiveTimer)
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Tasks:       cloneTasks(s.state.Tasks),
		Goals:       cloneGoals(s.state.Goals),
		Sessions:    cloneSessions(s.state.Sessions),
		Settings:    s.state.Settings,
		ActiveTimer: cloneTimer(s.state.ActiveTimer),
		LastSync:    s.state.LastSync,
		Loading:     s.state.Loading,
	}
}

// Load reads the local database into memory. When the user is signed in it
// then pulls tasks and goals and shows the merged session view; failures of
// that step are logged, not returned.
func (s *Store) Load(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.reload(ctx); err != nil {
		return err
	}
	s.emit(Event{Type: EventLoaded})

	if _, ok := auth.Ready(s.gate); !ok {
		return nil
	}

	s.drainOutbox(ctx)
	for _, pull := range []*syncer.PullResult{s.tasks.Pull(ctx), s.goals.Pull(ctx)} {
		for _, err := range pull.Errors {
			s.logger.Printf("Pull during load: %v", err)
		}
	}
	merge := s.timers.Merge(ctx)
	for _, err := range merge.Errors {
		s.logger.Printf("Session merge during load: %v", err)
	}

	if err := s.reload(ctx); err != nil {
		return err
	}
	if merge.Success() {
		s.setSessions(merge.Sessions)
	}
	s.emit(Event{Type: EventSyncComplete})
	return nil
}

// reload replaces memory with the local database contents.
func (s *Store) reload(ctx context.Context) error {
	tasks, err := s.db.GetTasks(ctx, localdb.TaskFilter{})
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	goals, err := s.db.GetGoals(ctx, localdb.GoalFilter{})
	if err != nil {
		return fmt.Errorf("failed to load goals: %w", err)
	}
	sessions, err := s.db.GetSessions(ctx, localdb.SessionFilter{})
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	settings, err := s.db.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tasks = tasks
	s.state.Goals = goals
	s.state.Sessions = sessions
	s.state.Settings = settings

	s.state.ActiveTimer = nil
	for _, sess := range sessions {
		if sess.EndTime == nil {
			s.state.ActiveTimer = &ActiveTimer{
				Session: cloneSession(sess),
				Planned: settings.DurationFor(sess.Type),
			}
			break
		}
	}
	return nil
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.state.Loading = v
	s.mu.Unlock()
}

func (s *Store) setSessions(sessions []*model.TimerSession) {
	s.mu.Lock()
	s.state.Sessions = cloneSessions(sessions)
	s.mu.Unlock()
}

// SyncPair is the push and pull result of one resource.
type SyncPair struct {
	Push *syncer.PushResult
	Pull *syncer.PullResult
}

// SyncReport collects the results of SyncAll.
type SyncReport struct {
	Tasks    SyncPair
	Goals    SyncPair
	Sessions SyncPair
	Merge    *syncer.MergeResult
	Finished time.Time
}

// Errors returns every error of the report in resource order.
func (r *SyncReport) Errors() []error {
	var errs []error
	for _, p := range []SyncPair{r.Tasks, r.Goals, r.Sessions} {
		if p.Push != nil {
			errs = append(errs, p.Push.Errors...)
		}
		if p.Pull != nil {
			errs = append(errs, p.Pull.Errors...)
		}
	}
	if r.Merge != nil {
		errs = append(errs, r.Merge.Errors...)
	}
	return errs
}

// Success reports whether every step finished without errors.
func (r *SyncReport) Success() bool { return len(r.Errors()) == 0 }

// SyncAll pushes then pulls tasks, goals and sessions, in that order so
// goals can reference freshly pushed tasks, then rebuilds memory. Per-record
// failures are in the report; the error is non-nil only when the user is
// signed out or the local database fails.
func (s *Store) SyncAll(ctx context.Context) (*SyncReport, error) {
	if _, ok := auth.Ready(s.gate); !ok {
		return nil, syncer.ErrAuthenticationRequired
	}

	s.drainOutbox(ctx)

	report := &SyncReport{}
	report.Tasks.Push, report.Tasks.Pull = s.tasks.Sync(ctx)
	report.Goals.Push, report.Goals.Pull = s.goals.Sync(ctx)
	report.Sessions.Push, report.Sessions.Pull = s.timers.Sync(ctx)
	report.Merge = s.timers.Merge(ctx)

	if err := s.reload(ctx); err != nil {
		return report, err
	}
	if report.Merge.Success() {
		s.setSessions(report.Merge.Sessions)
	}

	report.Finished = s.now()
	s.mu.Lock()
	s.state.LastSync = report.Finished
	s.mu.Unlock()

	if errs := report.Errors(); len(errs) > 0 {
		s.logger.Printf("Sync finished with %d errors", len(errs))
	}
	s.emit(Event{Type: EventSyncComplete})
	return report, nil
}

// Refresh reloads local data and, when signed in, runs SyncAll.
func (s *Store) Refresh(ctx context.Context) error {
	if _, ok := auth.Ready(s.gate); !ok {
		if err := s.reload(ctx); err != nil {
			return err
		}
		s.emit(Event{Type: EventLoaded})
		return nil
	}
	_, err := s.SyncAll(ctx)
	return err
}

// OnAuthChange reacts to sign-in and sign-out. Signing in syncs everything
// and wakes the outbox; signing out keeps the local view as is.
func (s *Store) OnAuthChange(ctx context.Context, authenticated bool) {
	if !authenticated {
		s.logger.Printf("Signed out; changes stay local until the next sign-in")
		return
	}
	report, err := s.SyncAll(ctx)
	if err != nil {
		s.logger.Printf("Sync after sign-in failed: %v", err)
		return
	}
	s.logger.Printf("Synced after sign-in: tasks=%d goals=%d sessions=%d",
		report.Tasks.Push.SyncedCount, report.Goals.Push.SyncedCount, report.Sessions.Push.SyncedCount)
	if s.outbox != nil {
		s.outbox.Kick()
	}
}

// Flush delivers every due outbox entry now.
func (s *Store) Flush(ctx context.Context) (outbox.DrainResult, error) {
	if s.outbox == nil {
		return outbox.DrainResult{}, nil
	}
	return s.outbox.Drain(ctx)
}

// drainOutbox sends queued entries before a pull so deletes and edits made
// offline reach the backend before its records are read back.
func (s *Store) drainOutbox(ctx context.Context) {
	if s.outbox == nil {
		return
	}
	if _, err := s.outbox.Drain(ctx); err != nil {
		s.logger.Printf("Failed to drain outbox before sync: %v", err)
	}
}

// FocusStats returns focus statistics, from the backend when reachable.
func (s *Store) FocusStats(ctx context.Context, days int) (*syncer.StatsResult, error) {
	return s.timers.FocusStats(ctx, days)
}

// TaskStats returns task counts from the local database.
func (s *Store) TaskStats(ctx context.Context) (localdb.TaskStats, error) {
	return s.db.GetTaskStats(ctx)
}

// mirror runs the remote phase of an action.
func (s *Store) mirror(ctx context.Context, resource, op string, localID int64, remoteID string, payload any) {
	if s.outbox == nil {
		return
	}
	if _, ok := auth.Ready(s.gate); !ok {
		return
	}
	if _, err := s.outbox.Enqueue(ctx, resource, op, localID, remoteID, payload); err != nil {
		s.logger.Printf("Failed to queue %s %s %d: %v", op, resource, localID, err)
		return
	}
	s.outbox.Kick()
}

// applyDelivery records backend ids assigned by outbox creates.
func (s *Store) applyDelivery(d outbox.Delivery) {
	if d.Op != outbox.OpCreate || d.RemoteID == "" {
		return
	}

	s.mu.Lock()
	found := false
	switch d.Resource {
	case outbox.ResourceTask:
		if i := indexByLocal(s.state.Tasks, d.LocalID, taskRef); i >= 0 {
			s.state.Tasks[i].Ref = s.state.Tasks[i].Ref.WithRemote(d.RemoteID)
			found = true
		}
	case outbox.ResourceGoal:
		if i := indexByLocal(s.state.Goals, d.LocalID, goalRef); i >= 0 {
			s.state.Goals[i].Ref = s.state.Goals[i].Ref.WithRemote(d.RemoteID)
			found = true
		}
	case outbox.ResourceSession:
		if i := indexByLocal(s.state.Sessions, d.LocalID, sessionRef); i >= 0 {
			s.state.Sessions[i].MarkSynced(d.RemoteID)
			found = true
		}
	}
	s.mu.Unlock()

	if found {
		s.emit(Event{Type: EventSynced, Resource: d.Resource, ID: d.RemoteID})
	}
}

func taskRef(t *model.Task) model.Ref            { return t.Ref }
func goalRef(g *model.Goal) model.Ref            { return g.Ref }
func sessionRef(s *model.TimerSession) model.Ref { return s.Ref }

func indexByLocal[T any](items []T, localID int64, ref func(T) model.Ref) int {
	if localID <= 0 {
		return -1
	}
	for i, item := range items {
		if ref(item).LocalID == localID {
			return i
		}
	}
	return -1
}

// indexByID finds an item by local or backend id.
func indexByID[T any](items []T, id string, ref func(T) model.Ref) int {
	for i, item := range items {
		if ref(item).Matches(id) {
			return i
		}
	}
	return -1
}
