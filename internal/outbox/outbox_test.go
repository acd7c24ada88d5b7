package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

type call struct {
	method string
	id     string
	body   string
}

// fakeSender records calls. failures maps a method name to the errors
// returned by successive calls.
type fakeSender struct {
	mu       sync.Mutex
	calls    []call
	failures map[string][]error
	next     int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: map[string][]error{}}
}

func (f *fakeSender) record(method, id string, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := json.Marshal(body)
	f.calls = append(f.calls, call{method: method, id: id, body: string(b)})
	if errs := f.failures[method]; len(errs) > 0 {
		f.failures[method] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeSender) newID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("%s-%d", prefix, f.next)
}

func (f *fakeSender) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.method+" "+c.id)
	}
	return out
}

func (f *fakeSender) CreateTask(ctx context.Context, task remote.TaskDTO) (*remote.TaskDTO, error) {
	if err := f.record("CreateTask", "", task); err != nil {
		return nil, err
	}
	task.ID = f.newID("task")
	return &task, nil
}

func (f *fakeSender) UpdateTask(ctx context.Context, id string, patch any) error {
	return f.record("UpdateTask", id, patch)
}

func (f *fakeSender) DeleteTask(ctx context.Context, id string) error {
	return f.record("DeleteTask", id, nil)
}

func (f *fakeSender) CreateGoal(ctx context.Context, goal remote.GoalDTO) (*remote.GoalDTO, error) {
	if err := f.record("CreateGoal", "", goal); err != nil {
		return nil, err
	}
	goal.ID = f.newID("goal")
	return &goal, nil
}

func (f *fakeSender) UpdateGoal(ctx context.Context, id string, patch any) error {
	return f.record("UpdateGoal", id, patch)
}

func (f *fakeSender) UpdateGoalProgress(ctx context.Context, id string, progress int) error {
	return f.record("UpdateGoalProgress", id, progress)
}

func (f *fakeSender) DeleteGoal(ctx context.Context, id string) error {
	return f.record("DeleteGoal", id, nil)
}

func (f *fakeSender) CreateTimerSession(ctx context.Context, s remote.TimerSessionDTO) (string, error) {
	if err := f.record("CreateTimerSession", "", s); err != nil {
		return "", err
	}
	return f.newID("sess"), nil
}

func (f *fakeSender) UpdateTimerSession(ctx context.Context, id string, patch any) error {
	return f.record("UpdateTimerSession", id, patch)
}

func (f *fakeSender) DeleteTimerSession(ctx context.Context, id string) error {
	return f.record("DeleteTimerSession", id, nil)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db     *localdb.DB
	sender *fakeSender
	gate   *auth.Static
	clock  *clock
	d      *Dispatcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	db, err := localdb.Open(filepath.Join(t.TempDir(), "test.db"), localdb.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sender := newFakeSender()
	gate := auth.NewStatic("jwt")
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Now = clk.Now
	return &fixture{db: db, sender: sender, gate: gate, clock: clk, d: New(db, sender, gate, cfg)}
}

func (f *fixture) addTask(t *testing.T, title string) *model.Task {
	t.Helper()
	task := &model.Task{Title: title}
	if err := f.db.AddTask(context.Background(), task); err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}
	return task
}

func (f *fixture) enqueue(t *testing.T, resource, op string, localID int64, remoteID string, payload any) {
	t.Helper()
	if _, err := f.d.Enqueue(context.Background(), resource, op, localID, remoteID, payload); err != nil {
		t.Fatalf("Enqueue(%s %s) failed: %v", op, resource, err)
	}
}

func (f *fixture) drain(t *testing.T) DrainResult {
	t.Helper()
	result, err := f.d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	return result
}

func TestDrain_CreateThenUpdateInOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.addTask(t, "Write report")

	var deliveries []Delivery
	f.d.OnDelivered(func(d Delivery) { deliveries = append(deliveries, d) })

	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)
	f.enqueue(t, ResourceTask, OpUpdate, task.Ref.LocalID, "", map[string]any{"completed": true})

	result := f.drain(t)
	if result.Sent != 2 {
		t.Fatalf("Sent = %d, want 2 (%+v)", result.Sent, result)
	}

	got := f.sender.methods()
	want := []string{"CreateTask ", "UpdateTask task-1"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("calls = %q, want %q", got, want)
	}

	stored, err := f.db.GetTask(ctx, task.Ref.LocalID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if stored.Ref.RemoteID != "task-1" {
		t.Errorf("RemoteID = %q, want task-1", stored.Ref.RemoteID)
	}
	if len(deliveries) != 2 || deliveries[0].RemoteID != "task-1" || deliveries[0].Op != OpCreate {
		t.Errorf("deliveries = %+v", deliveries)
	}

	pending, _ := f.db.CountOutbox(ctx, localdb.OutboxPending)
	if pending != 0 {
		t.Errorf("pending = %d, want 0", pending)
	}
}

func TestEnqueue_DeleteBeforeDeliveryCancels(t *testing.T) {
	f := setup(t)
	task := f.addTask(t, "oops")

	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)
	entry, err := f.d.Enqueue(context.Background(), ResourceTask, OpDelete, task.Ref.LocalID, "", nil)
	if err != nil {
		t.Fatalf("Enqueue(delete) failed: %v", err)
	}
	if entry != nil {
		t.Errorf("delete entry = %+v, want nil", entry)
	}

	result := f.drain(t)
	if result.Sent != 0 {
		t.Errorf("Sent = %d, want 0", result.Sent)
	}
	if calls := f.sender.methods(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestDrain_DeleteSendsCapturedRemoteID(t *testing.T) {
	f := setup(t)

	f.enqueue(t, ResourceGoal, OpDelete, 9, "goal-abc", nil)
	f.sender.failures["DeleteGoal"] = []error{fmt.Errorf("GET: %w", remote.ErrNotFound)}

	result := f.drain(t)
	if result.Sent != 1 {
		t.Errorf("Sent = %d, want 1 (not found counts as deleted)", result.Sent)
	}
	if calls := f.sender.methods(); len(calls) != 1 || calls[0] != "DeleteGoal goal-abc" {
		t.Errorf("calls = %v", calls)
	}
}

func TestDrain_RetriesWithBackoffThenDies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.addTask(t, "flaky")

	boom := errors.New("connection refused")
	f.sender.failures["CreateTask"] = []error{boom, boom, boom}
	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)

	for attempt := 1; attempt <= 3; attempt++ {
		result := f.drain(t)
		if attempt < 3 && result.Retried != 1 {
			t.Fatalf("attempt %d: Retried = %d, want 1", attempt, result.Retried)
		}
		if attempt == 3 && result.Dead != 1 {
			t.Fatalf("attempt %d: Dead = %d, want 1", attempt, result.Dead)
		}
		f.clock.Advance(2 * time.Minute)
	}

	dead, err := f.db.ListOutbox(ctx, localdb.OutboxFilter{Status: localdb.OutboxDead})
	if err != nil {
		t.Fatalf("ListOutbox() failed: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError != boom.Error() {
		t.Errorf("dead = %+v", dead)
	}
}

func TestDrain_PermanentErrorDiesImmediately(t *testing.T) {
	f := setup(t)
	task := f.addTask(t, "bad")

	f.sender.failures["CreateTask"] = []error{&remote.APIError{Status: 422, Message: "title too long"}}
	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)

	if result := f.drain(t); result.Dead != 1 {
		t.Errorf("Dead = %d, want 1", result.Dead)
	}
}

func TestDrain_UnauthorizedPausesWithoutAttempt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.addTask(t, "a")
	b := f.addTask(t, "b")

	f.sender.failures["CreateTask"] = []error{remote.ErrUnauthorized}
	f.enqueue(t, ResourceTask, OpCreate, a.Ref.LocalID, "", nil)
	f.enqueue(t, ResourceTask, OpCreate, b.Ref.LocalID, "", nil)

	result := f.drain(t)
	if !result.Paused {
		t.Error("Paused = false, want true")
	}
	if calls := f.sender.methods(); len(calls) != 1 {
		t.Errorf("calls = %v, want a single create", calls)
	}

	entries, _ := f.db.ListOutbox(ctx, localdb.OutboxFilter{Status: localdb.OutboxPending})
	if len(entries) != 2 {
		t.Fatalf("pending = %d, want 2", len(entries))
	}
	if entries[0].Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", entries[0].Attempts)
	}
}

func TestDrain_FailedCreateBlocksLaterEntriesForSameRecord(t *testing.T) {
	f := setup(t)
	a := f.addTask(t, "a")
	b := f.addTask(t, "b")

	f.sender.failures["CreateTask"] = []error{errors.New("timeout")}
	f.enqueue(t, ResourceTask, OpCreate, a.Ref.LocalID, "", nil)
	f.enqueue(t, ResourceTask, OpUpdate, a.Ref.LocalID, "", map[string]any{"title": "a2"})
	f.enqueue(t, ResourceTask, OpCreate, b.Ref.LocalID, "", nil)

	result := f.drain(t)
	if result.Retried != 1 || result.Sent != 1 || result.Waiting != 1 {
		t.Errorf("result = %+v, want 1 retried 1 sent 1 waiting", result)
	}
	for _, c := range f.sender.methods() {
		if strings.HasPrefix(c, "UpdateTask") {
			t.Errorf("update sent before its create: %q", c)
		}
	}

	f.clock.Advance(2 * time.Minute)
	result = f.drain(t)
	if result.Sent != 2 {
		t.Errorf("second drain Sent = %d, want 2", result.Sent)
	}
}

func TestDrain_UpdateWithoutBackendCopyIsSuperseded(t *testing.T) {
	f := setup(t)
	task := f.addTask(t, "never pushed")

	f.enqueue(t, ResourceTask, OpUpdate, task.Ref.LocalID, "", map[string]any{"title": "x"})

	result := f.drain(t)
	if result.Superseded != 1 || result.Sent != 0 {
		t.Errorf("result = %+v, want 1 superseded", result)
	}
}

func TestDrain_ProgressAndSessionCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	goal := &model.Goal{Ref: model.RemoteRef("goal-7"), Title: "Run"}
	if err := f.db.AddGoal(ctx, goal); err != nil {
		t.Fatalf("AddGoal() failed: %v", err)
	}
	session := &model.TimerSession{Type: model.SessionFocus, StartTime: f.clock.Now(), Duration: 1500, Completed: true}
	if err := f.db.AddSession(ctx, session); err != nil {
		t.Fatalf("AddSession() failed: %v", err)
	}

	f.enqueue(t, ResourceGoal, OpProgress, goal.Ref.LocalID, "", ProgressPayload{Progress: 100})
	f.enqueue(t, ResourceSession, OpCreate, session.Ref.LocalID, "", nil)

	if result := f.drain(t); result.Sent != 2 {
		t.Fatalf("Sent = %d, want 2", result.Sent)
	}

	got, err := f.db.GetSession(ctx, session.Ref.LocalID)
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if !got.SyncedToBackend || got.BackendID() == "" {
		t.Errorf("session not marked synced: %+v", got.Ref)
	}
	calls := f.sender.methods()
	if calls[0] != "UpdateGoalProgress goal-7" {
		t.Errorf("calls[0] = %q, want progress patch", calls[0])
	}
}

func TestDrain_SignedOutDoesNothing(t *testing.T) {
	f := setup(t)
	task := f.addTask(t, "offline")
	f.gate.Set("")

	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)

	result := f.drain(t)
	if !result.Paused {
		t.Error("Paused = false, want true")
	}
	if calls := f.sender.methods(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestRun_KickDrains(t *testing.T) {
	f := setup(t)
	task := f.addTask(t, "kicked")

	delivered := make(chan Delivery, 1)
	f.d.OnDelivered(func(d Delivery) { delivered <- d })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.d.Run(ctx)

	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)
	f.d.Kick()

	select {
	case d := <-delivered:
		if d.LocalID != task.Ref.LocalID {
			t.Errorf("LocalID = %d, want %d", d.LocalID, task.Ref.LocalID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestDrain_LeavesClaimedEntryUntilLeaseLapses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.addTask(t, "claimed elsewhere")
	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)

	entries, _ := f.db.PendingOutbox(ctx, ResourceTask)
	if len(entries) != 1 {
		t.Fatalf("pending = %d, want 1", len(entries))
	}
	ok, err := f.db.ClaimOutbox(ctx, entries[0].ID, f.clock.Now(), time.Minute)
	if err != nil || !ok {
		t.Fatalf("ClaimOutbox() = %v, %v", ok, err)
	}

	if result := f.drain(t); result.Sent != 0 {
		t.Errorf("Sent = %d while another drain holds the entry", result.Sent)
	}
	if calls := f.sender.methods(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	stats, err := f.d.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", stats.InFlight)
	}

	f.clock.Advance(2 * time.Minute)
	if result := f.drain(t); result.Sent != 1 {
		t.Errorf("Sent after lease lapsed = %d, want 1", result.Sent)
	}
}

func TestDrain_SkipsCreateTakenOverBySync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.addTask(t, "pushed inline")

	f.sender.failures["CreateTask"] = []error{errors.New("503")}
	f.enqueue(t, ResourceTask, OpCreate, task.Ref.LocalID, "", nil)
	f.enqueue(t, ResourceTask, OpUpdate, task.Ref.LocalID, "", map[string]any{"title": "renamed"})
	if result := f.drain(t); result.Retried != 1 {
		t.Fatalf("Retried = %d, want 1", result.Retried)
	}

	busy, err := f.db.TakeOverCreate(ctx, ResourceTask, task.Ref.LocalID, "superseded by push")
	if err != nil || busy {
		t.Fatalf("TakeOverCreate() = %v, %v, want not busy", busy, err)
	}
	if err := f.db.AssignTaskRemoteID(ctx, task.Ref.LocalID, "task-99"); err != nil {
		t.Fatalf("AssignTaskRemoteID() failed: %v", err)
	}

	f.clock.Advance(time.Hour)
	result := f.drain(t)
	if result.Sent != 1 {
		t.Fatalf("Sent = %d, want the update only", result.Sent)
	}
	calls := f.sender.methods()
	if got := calls[len(calls)-1]; got != "UpdateTask task-99" {
		t.Errorf("last call = %q, want UpdateTask task-99", got)
	}
	for _, c := range calls[1:] {
		if strings.HasPrefix(c, "CreateTask") {
			t.Errorf("create sent again after push took it over: %v", calls)
		}
	}
}

func TestBackoffCeiling(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{1000, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.ceiling(tt.attempt); got != tt.want {
			t.Errorf("ceiling(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
	if got := (BackoffConfig{}).ceiling(3); got != 4*time.Second {
		t.Errorf("zero config ceiling(3) = %s, want 4s", got)
	}
}

func TestNextRetryAt_Bounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultBackoff()
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		attempt int
		max     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{3, 4 * time.Second},
		{10, 60 * time.Second},
		{200, 60 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := NextRetryAt(now, tt.attempt, cfg, rng)
			if got.Before(now) || got.Sub(now) > tt.max {
				t.Errorf("NextRetryAt(attempt=%d) = +%s, want within [0, %s]", tt.attempt, got.Sub(now), tt.max)
			}
		}
	}
}
