package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/store"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_HealthReportsClients(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v, want ok with 0 clients", body)
	}
}

func TestServer_BroadcastReachesEveryClient(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conns := []*websocket.Conn{dial(t, ctx, server), dial(t, ctx, server), dial(t, ctx, server)}
	for _, c := range conns {
		if msg := readMessage(t, ctx, c); msg.Type != MessageTypeStats {
			t.Fatalf("welcome type = %s, want %s", msg.Type, MessageTypeStats)
		}
	}
	waitForClients(t, server, 3)

	server.Broadcast(Message{Type: MessageTypeSyncComplete})
	for i, c := range conns {
		msg := readMessage(t, ctx, c)
		if msg.Type != MessageTypeSyncComplete {
			t.Errorf("client %d got %s, want %s", i, msg.Type, MessageTypeSyncComplete)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("client %d got zero timestamp", i)
		}
	}
}

func TestServer_HealthCountsFrames(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)
	server.Broadcast(Message{Type: MessageTypeSyncComplete})
	readMessage(t, ctx, conn)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var body health
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Clients != 1 || body.Frames != 1 || body.Dropped != 0 {
		t.Errorf("health = %+v, want 1 client 1 frame", body)
	}
}

func TestServer_StopClosesPages(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("Read() after Stop error = %v, want going away", err)
	}
	if n := server.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Stop, want 0", n)
	}
}

type fakeSource struct {
	state store.State
	subs  []func(store.Event)
}

func (f *fakeSource) Subscribe(fn func(store.Event)) func() {
	f.subs = append(f.subs, fn)
	return func() { f.subs = nil }
}

func (f *fakeSource) Snapshot() store.State { return f.state }

func (f *fakeSource) emit(e store.Event) {
	for _, fn := range f.subs {
		fn(e)
	}
}

func TestHandler_ForwardsTaskUpdates(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source := &fakeSource{state: store.State{
		Tasks: []*model.Task{{Ref: model.SyncedRef(3, "task-abc"), Title: "Write report", Completed: true}},
	}}
	h := NewHandler(server, source, log.New(io.Discard, "", 0))
	h.Attach()
	defer h.Detach()

	conn := dial(t, ctx, server)
	welcome := readMessage(t, ctx, conn)
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("welcome stats: %v", err)
	}
	if stats.Tasks != 1 || stats.TasksCompleted != 1 {
		t.Errorf("welcome stats = %+v", stats)
	}
	waitForClients(t, server, 1)

	source.emit(store.Event{Type: store.EventUpdated, Resource: outbox.ResourceTask, ID: "task-abc", Time: time.Now()})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTaskUpdate {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeTaskUpdate)
	}
	var data struct {
		ID     string `json:"id"`
		Action string `json:"action"`
		Record struct {
			Title string `json:"title"`
		} `json:"record"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if data.ID != "task-abc" || data.Action != "updated" || data.Record.Title != "Write report" {
		t.Errorf("update = %+v", data)
	}

	if next := readMessage(t, ctx, conn); next.Type != MessageTypeStats {
		t.Errorf("follow-up type = %s, want stats", next.Type)
	}
}

func TestStats(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.Local)
	yesterday := now.AddDate(0, 0, -1)
	end := now.Add(-time.Hour)

	snap := store.State{
		Tasks: []*model.Task{
			{Ref: model.LocalRef(1), Title: "late", DueDate: &yesterday},
			{Ref: model.SyncedRef(2, "t2"), Title: "done", Completed: true},
		},
		Goals: []*model.Goal{
			{Ref: model.SyncedRef(1, "g1"), Title: "g", Completed: true, Progress: 100},
		},
		Sessions: []*model.TimerSession{
			{Ref: model.SyncedRef(1, "s1"), Type: model.SessionFocus, StartTime: now.Add(-2 * time.Hour), EndTime: &end, Duration: 1500, Completed: true, SyncedToBackend: true},
			{Ref: model.LocalRef(2), Type: model.SessionFocus, StartTime: now.Add(-30 * time.Minute), EndTime: &now, Duration: 600, Completed: true},
			{Ref: model.LocalRef(3), Type: model.SessionBreak, StartTime: now.Add(-10 * time.Minute), EndTime: &now, Duration: 300, Completed: true},
		},
		ActiveTimer: &store.ActiveTimer{
			Session: &model.TimerSession{Type: model.SessionDeep, StartTime: now.Add(-10 * time.Minute)},
			Planned: 90 * time.Minute,
		},
	}

	got := Stats(snap, now)
	want := StatsData{
		Tasks:          2,
		TasksCompleted: 1,
		TasksOverdue:   1,
		Goals:          1,
		GoalsCompleted: 1,
		FocusToday:     35,
		Unsynced:       3,
		TimerRunning:   true,
		TimerType:      "deep",
		TimerLeft:      80 * 60,
	}
	if got != want {
		t.Errorf("Stats() = %+v\nwant %+v", got, want)
	}
}
