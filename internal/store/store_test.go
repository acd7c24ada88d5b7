package store

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
	"github.com/MSghais/focus-afk-sub001/internal/syncer"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *Store
	db      *localdb.DB
	server  *fakeServer
	gate    *auth.Static
	clock   *testClock
	outbox  *outbox.Dispatcher
	client  *remote.Client
	path    string
	baseURL string
}

func setupStore(t *testing.T, token string) *harness {
	t.Helper()
	h := &harness{
		gate:  auth.NewStatic(token),
		clock: &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
		path:  filepath.Join(t.TempDir(), "focus.db"),
	}
	server, srv := newFakeServer(t)
	h.server = server
	h.baseURL = srv.URL
	h.open(t)
	h.server.clearLog()
	return h
}

// open builds a fresh store over h.path, as a restarted process would.
func (h *harness) open(t *testing.T) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	db, err := localdb.Open(h.path, localdb.WithClock(h.clock.Now), localdb.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h.db = db
	h.client = remote.New(nil, h.baseURL, h.gate, quiet)

	cfg := outbox.DefaultConfig()
	cfg.Logger = quiet
	cfg.Now = h.clock.Now
	h.outbox = outbox.New(db, h.client, h.gate, cfg)

	h.store = New(Deps{DB: db, Client: h.client, Gate: h.gate, Outbox: h.outbox, Logger: quiet, Now: h.clock.Now})
	if err := h.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
}

func (h *harness) flush(t *testing.T) outbox.DrainResult {
	t.Helper()
	result, err := h.store.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	return result
}

func (h *harness) addTask(t *testing.T, title string) *model.Task {
	t.Helper()
	task, err := h.store.AddTask(context.Background(), &model.Task{Title: title})
	if err != nil {
		t.Fatalf("AddTask(%q) failed: %v", title, err)
	}
	return task
}

func TestAddTask_SignedOutStaysLocal(t *testing.T) {
	h := setupStore(t, "")
	ctx := context.Background()

	task := h.addTask(t, "Write report")
	if task.Ref.Kind != model.RefLocal || task.Ref.LocalID == 0 {
		t.Errorf("Ref = %v, want a local ref", task.Ref)
	}

	tasks := h.store.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Write report" {
		t.Fatalf("Tasks() = %+v, want the new task", tasks)
	}

	counts, err := h.db.GetCounts(ctx)
	if err != nil {
		t.Fatalf("GetCounts() failed: %v", err)
	}
	if counts.PendingOutbox != 0 {
		t.Errorf("PendingOutbox = %d, want 0", counts.PendingOutbox)
	}
	if reqs := h.server.log(); len(reqs) != 0 {
		t.Errorf("requests = %v, want none", reqs)
	}
}

func TestAddTask_SignedInMirrors(t *testing.T) {
	h := setupStore(t, "jwt")

	var synced []Event
	h.store.Subscribe(func(e Event) {
		if e.Type == EventSynced {
			synced = append(synced, e)
		}
	})

	task := h.addTask(t, "Write report")
	if result := h.flush(t); result.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", result.Sent)
	}

	if h.server.count("tasks") != 1 {
		t.Fatalf("backend tasks = %d, want 1", h.server.count("tasks"))
	}
	got := h.store.Tasks()[0]
	if got.Ref.LocalID != task.Ref.LocalID || got.Ref.RemoteID == "" {
		t.Errorf("Ref = %v, want local %d with a backend id", got.Ref, task.Ref.LocalID)
	}
	if got.ID() != got.Ref.RemoteID {
		t.Errorf("ID() = %q, want backend id %q", got.ID(), got.Ref.RemoteID)
	}
	if len(synced) != 1 || synced[0].Resource != outbox.ResourceTask {
		t.Errorf("synced events = %+v", synced)
	}
}

func TestUpdateTask_SendsChangedFieldsOnly(t *testing.T) {
	h := setupStore(t, "jwt")
	ctx := context.Background()

	h.addTask(t, "draft")
	h.flush(t)
	remoteID := h.store.Tasks()[0].Ref.RemoteID

	title := "final"
	updated, err := h.store.UpdateTask(ctx, remoteID, model.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.Title != "final" {
		t.Errorf("Title = %q, want final", updated.Title)
	}
	h.flush(t)

	body := h.server.body("PUT /tasks/" + remoteID)
	if len(body) != 1 || body["title"] != "final" {
		t.Errorf("PUT body = %v, want only the title", body)
	}
	rec, _ := h.server.get("tasks", remoteID)
	if rec["title"] != "final" {
		t.Errorf("backend title = %v, want final", rec["title"])
	}
}

func TestUpdateTask_UnknownID(t *testing.T) {
	h := setupStore(t, "")
	title := "x"
	_, err := h.store.UpdateTask(context.Background(), "404", model.TaskPatch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTask_BeforeDeliveryCancelsCreate(t *testing.T) {
	h := setupStore(t, "jwt")

	task := h.addTask(t, "oops")
	if err := h.store.DeleteTask(context.Background(), task.ID()); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	h.flush(t)

	if reqs := h.server.log(); len(reqs) != 0 {
		t.Errorf("requests = %v, want none", reqs)
	}
	if n := len(h.store.Tasks()); n != 0 {
		t.Errorf("tasks in memory = %d, want 0", n)
	}
}

func TestDeleteTask_SignedOutIsNotResurrected(t *testing.T) {
	h := setupStore(t, "jwt")
	ctx := context.Background()

	h.addTask(t, "old")
	h.flush(t)
	remoteID := h.store.Tasks()[0].Ref.RemoteID

	h.gate.Set("")
	if err := h.store.DeleteTask(ctx, remoteID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}

	h.gate.Set("jwt")
	report, err := h.store.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if !report.Success() {
		t.Errorf("report errors = %v", report.Errors())
	}
	if _, ok := h.server.get("tasks", remoteID); ok {
		t.Error("backend still has the deleted task")
	}
	if n := len(h.store.Tasks()); n != 0 {
		t.Errorf("tasks after sync = %d, want 0", n)
	}
}

func TestToggleTaskComplete(t *testing.T) {
	h := setupStore(t, "jwt")
	ctx := context.Background()

	task := h.addTask(t, "toggle me")
	done, err := h.store.ToggleTaskComplete(ctx, task.ID())
	if err != nil {
		t.Fatalf("ToggleTaskComplete() failed: %v", err)
	}
	if !done || !h.store.Tasks()[0].Completed {
		t.Errorf("completed = %v, want true in result and memory", done)
	}

	// Not in memory: goes straight to the backend.
	h.server.put("tasks", "elsewhere", map[string]any{"title": "from phone", "completed": false})
	done, err = h.store.ToggleTaskComplete(ctx, "elsewhere")
	if err != nil {
		t.Fatalf("ToggleTaskComplete(remote) failed: %v", err)
	}
	if !done {
		t.Error("remote toggle = false, want true")
	}
	rec, _ := h.server.get("tasks", "elsewhere")
	if rec["completed"] != true {
		t.Errorf("backend completed = %v, want true", rec["completed"])
	}

	h.gate.Set("")
	if _, err := h.store.ToggleTaskComplete(ctx, "elsewhere"); !errors.Is(err, syncer.ErrAuthenticationRequired) {
		t.Errorf("signed-out remote toggle error = %v, want ErrAuthenticationRequired", err)
	}
}

func TestUpdateGoalProgress_HundredCompletes(t *testing.T) {
	h := setupStore(t, "jwt")
	ctx := context.Background()

	goal, err := h.store.AddGoal(ctx, &model.Goal{Title: "Ship v1"})
	if err != nil {
		t.Fatalf("AddGoal() failed: %v", err)
	}
	h.flush(t)
	remoteID := h.store.Goals()[0].Ref.RemoteID
	if remoteID == "" {
		t.Fatal("goal has no backend id after flush")
	}

	got, err := h.store.UpdateGoalProgress(ctx, goal.ID(), 100)
	if err != nil {
		t.Fatalf("UpdateGoalProgress() failed: %v", err)
	}
	if !got.Completed || got.Progress != 100 {
		t.Errorf("goal = progress %d completed %v, want 100 true", got.Progress, got.Completed)
	}
	stored, err := h.db.GetGoal(ctx, goal.Ref.LocalID)
	if err != nil {
		t.Fatalf("GetGoal() failed: %v", err)
	}
	if !stored.Completed {
		t.Error("stored goal not completed")
	}

	h.flush(t)
	body := h.server.body("PATCH /goals/" + remoteID + "/progress")
	if body["progress"] != float64(100) {
		t.Errorf("progress body = %v, want 100", body)
	}
}

func TestUpdateGoal_ClampsProgress(t *testing.T) {
	h := setupStore(t, "")
	ctx := context.Background()

	goal, err := h.store.AddGoal(ctx, &model.Goal{Title: "Read"})
	if err != nil {
		t.Fatalf("AddGoal() failed: %v", err)
	}
	got, err := h.store.UpdateGoalProgress(ctx, goal.ID(), 140)
	if err != nil {
		t.Fatalf("UpdateGoalProgress() failed: %v", err)
	}
	if got.Progress != 100 || !got.Completed {
		t.Errorf("got progress %d completed %v, want 100 true", got.Progress, got.Completed)
	}

	title := "Read more"
	got, err = h.store.UpdateGoal(ctx, goal.ID(), model.GoalPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateGoal() failed: %v", err)
	}
	if got.Title != title || got.Progress != 100 {
		t.Errorf("UpdateGoal() = %q %d", got.Title, got.Progress)
	}
}

func TestTimer_StartStopCancel(t *testing.T) {
	h := setupStore(t, "jwt")
	ctx := context.Background()

	if _, err := h.store.StopTimer(ctx, true, ""); !errors.Is(err, ErrNoActiveTimer) {
		t.Errorf("StopTimer() with no timer = %v, want ErrNoActiveTimer", err)
	}

	active, err := h.store.StartFocus(ctx, TimerOptions{})
	if err != nil {
		t.Fatalf("StartFocus() failed: %v", err)
	}
	if active.Planned != 25*time.Minute {
		t.Errorf("Planned = %s, want 25m", active.Planned)
	}
	if _, err := h.store.StartBreak(ctx, TimerOptions{}); !errors.Is(err, ErrTimerRunning) {
		t.Errorf("second start = %v, want ErrTimerRunning", err)
	}

	h.clock.Advance(25 * time.Minute)
	if left := h.store.ActiveTimer().Remaining(h.clock.Now()); left != 0 {
		t.Errorf("Remaining = %s, want 0", left)
	}
	session, err := h.store.StopTimer(ctx, true, "deep work")
	if err != nil {
		t.Fatalf("StopTimer() failed: %v", err)
	}
	if session.Duration != 1500 || !session.Completed || session.Notes != "deep work" {
		t.Errorf("session = %+v", session)
	}
	if h.store.ActiveTimer() != nil {
		t.Error("timer still active after stop")
	}

	if result := h.flush(t); result.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", result.Sent)
	}
	sessions := h.store.Sessions()
	if len(sessions) != 1 || !sessions[0].SyncedToBackend {
		t.Errorf("sessions = %+v, want one synced session", sessions)
	}

	if _, err := h.store.StartDeepFocus(ctx, TimerOptions{Duration: time.Hour}); err != nil {
		t.Fatalf("StartDeepFocus() failed: %v", err)
	}
	if err := h.store.CancelTimer(ctx); err != nil {
		t.Fatalf("CancelTimer() failed: %v", err)
	}
	if n := len(h.store.Sessions()); n != 1 {
		t.Errorf("sessions after cancel = %d, want 1", n)
	}
	if err := h.store.CancelTimer(ctx); !errors.Is(err, ErrNoActiveTimer) {
		t.Errorf("CancelTimer() twice = %v, want ErrNoActiveTimer", err)
	}
}

func TestLoad_RestoresRunningTimer(t *testing.T) {
	h := setupStore(t, "")
	ctx := context.Background()

	if _, err := h.store.StartFocus(ctx, TimerOptions{TaskID: "7"}); err != nil {
		t.Fatalf("StartFocus() failed: %v", err)
	}

	h.open(t)
	active := h.store.ActiveTimer()
	if active == nil {
		t.Fatal("ActiveTimer() = nil after reload")
	}
	if active.Session.TaskID != "7" || active.Session.Type != model.SessionFocus {
		t.Errorf("restored session = %+v", active.Session)
	}
}

func TestSyncAll_PushesOfflineWork(t *testing.T) {
	h := setupStore(t, "")
	ctx := context.Background()

	if _, err := h.store.SyncAll(ctx); !errors.Is(err, syncer.ErrAuthenticationRequired) {
		t.Fatalf("SyncAll() signed out = %v, want ErrAuthenticationRequired", err)
	}

	task := h.addTask(t, "offline task")
	if _, err := h.store.AddGoal(ctx, &model.Goal{Title: "offline goal", RelatedTasks: []model.Ref{task.Ref}}); err != nil {
		t.Fatalf("AddGoal() failed: %v", err)
	}

	var completes int
	unsubscribe := h.store.Subscribe(func(e Event) {
		if e.Type == EventSyncComplete {
			completes++
		}
	})
	defer unsubscribe()

	h.gate.Set("jwt")
	report, err := h.store.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if !report.Success() {
		t.Fatalf("report errors = %v", report.Errors())
	}
	if report.Tasks.Push.SyncedCount != 1 || report.Goals.Push.SyncedCount != 1 {
		t.Errorf("synced tasks=%d goals=%d, want 1 1", report.Tasks.Push.SyncedCount, report.Goals.Push.SyncedCount)
	}
	if report.Tasks.Pull.Inserted != 0 {
		t.Errorf("pull inserted %d tasks, want 0", report.Tasks.Pull.Inserted)
	}

	taskID := h.store.Tasks()[0].Ref.RemoteID
	goal := h.store.Goals()[0]
	rec, ok := h.server.get("goals", goal.Ref.RemoteID)
	if !ok {
		t.Fatalf("backend goal %q missing", goal.Ref.RemoteID)
	}
	related, _ := rec["relatedTaskIds"].([]any)
	if len(related) != 1 || related[0] != taskID {
		t.Errorf("relatedTaskIds = %v, want [%s]", rec["relatedTaskIds"], taskID)
	}
	if h.store.Snapshot().LastSync.IsZero() {
		t.Error("LastSync not set")
	}
	if completes != 1 {
		t.Errorf("sync_complete events = %d, want 1", completes)
	}
}

func TestOnAuthChange_SyncsOnSignIn(t *testing.T) {
	h := setupStore(t, "")
	h.addTask(t, "written on the train")

	h.gate.Set("jwt")
	h.store.OnAuthChange(context.Background(), true)

	if h.server.count("tasks") != 1 {
		t.Errorf("backend tasks = %d, want 1", h.server.count("tasks"))
	}
	if h.store.Tasks()[0].Ref.RemoteID == "" {
		t.Error("task has no backend id after sign-in")
	}
}

func TestLoad_MergesBackendSessions(t *testing.T) {
	h := setupStore(t, "jwt")
	h.server.put("timer-sessions", "phone-1", map[string]any{
		"type":      "focus",
		"startTime": "2026-05-09T08:00:00.000Z",
		"duration":  1200,
		"completed": true,
	})

	h.open(t)
	sessions := h.store.Sessions()
	if len(sessions) != 1 || sessions[0].BackendID() != "phone-1" {
		t.Errorf("sessions = %+v, want the backend session", sessions)
	}
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	h := setupStore(t, "")
	h.addTask(t, "original")

	snap := h.store.Snapshot()
	snap.Tasks[0].Title = "mutated"
	h.store.Tasks()[0].Title = "mutated again"

	if got := h.store.Tasks()[0].Title; got != "original" {
		t.Errorf("Title = %q, want original", got)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := setupStore(t, "")

	var events []Event
	unsubscribe := h.store.Subscribe(func(e Event) { events = append(events, e) })

	task := h.addTask(t, "a")
	unsubscribe()
	h.addTask(t, "b")

	if len(events) != 1 {
		t.Fatalf("events = %+v, want 1", events)
	}
	e := events[0]
	if e.Type != EventCreated || e.Resource != outbox.ResourceTask || e.ID != task.ID() {
		t.Errorf("event = %+v", e)
	}
	if !e.Time.Equal(h.clock.Now()) {
		t.Errorf("Time = %v, want %v", e.Time, h.clock.Now())
	}
}

func TestUpdateSettings(t *testing.T) {
	h := setupStore(t, "")
	ctx := context.Background()

	settings := h.store.Settings()
	settings.DefaultFocusDuration = 50
	if _, err := h.store.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}

	active, err := h.store.StartFocus(ctx, TimerOptions{})
	if err != nil {
		t.Fatalf("StartFocus() failed: %v", err)
	}
	if active.Planned != 50*time.Minute {
		t.Errorf("Planned = %s, want 50m", active.Planned)
	}

	settings.Theme = "neon"
	if _, err := h.store.UpdateSettings(ctx, settings); err == nil {
		t.Error("UpdateSettings() with bad theme succeeded")
	}
}
