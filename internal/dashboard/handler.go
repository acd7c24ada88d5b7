package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/store"
)

// Source is the part of the store the handler reads.
type Source interface {
	Subscribe(fn func(store.Event)) (unsubscribe func())
	Snapshot() store.State
}

// UpdateData describes one record change.
type UpdateData struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	// Record is the current record, absent after a delete.
	Record any `json:"record,omitempty"`
}

// StatsData summarizes the store.
type StatsData struct {
	Tasks          int        `json:"tasks"`
	TasksCompleted int        `json:"tasks_completed"`
	TasksOverdue   int        `json:"tasks_overdue"`
	Goals          int        `json:"goals"`
	GoalsCompleted int        `json:"goals_completed"`
	FocusToday     int        `json:"focus_minutes_today"`
	Unsynced       int        `json:"unsynced"`
	TimerRunning   bool       `json:"timer_running"`
	TimerType      string     `json:"timer_type,omitempty"`
	TimerLeft      int        `json:"timer_seconds_left,omitempty"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
}

// Handler turns store events into dashboard messages.
type Handler struct {
	server *Server
	source Source
	logger *log.Logger
	now    func() time.Time

	unsubscribe func()
}

// NewHandler wires source to server. It also makes the server greet new
// clients with current stats.
func NewHandler(server *Server, source Source, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	h := &Handler{server: server, source: source, logger: logger, now: time.Now}
	server.SetWelcome(h.statsMessage)
	return h
}

// Attach subscribes to the store. Detach undoes it.
func (h *Handler) Attach() {
	if h.unsubscribe == nil {
		h.unsubscribe = h.source.Subscribe(h.OnEvent)
	}
}

// Detach stops forwarding events.
func (h *Handler) Detach() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
}

// OnEvent forwards one store event.
func (h *Handler) OnEvent(e store.Event) {
	switch e.Type {
	case store.EventSyncComplete, store.EventLoaded:
		h.server.Broadcast(Message{Type: MessageTypeSyncComplete, Timestamp: e.Time})
		h.server.Broadcast(h.statsMessage())
		return
	case store.EventSettings:
		return
	}

	var typ MessageType
	switch e.Resource {
	case outbox.ResourceTask:
		typ = MessageTypeTaskUpdate
	case outbox.ResourceGoal:
		typ = MessageTypeGoalUpdate
	case outbox.ResourceSession:
		typ = MessageTypeSessionUpdate
	default:
		return
	}

	snap := h.source.Snapshot()
	data := UpdateData{ID: e.ID, Action: string(e.Type)}
	if e.Type != store.EventDeleted {
		data.Record = findRecord(snap, e.Resource, e.ID)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s update: %v", e.Resource, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: e.Time, Data: raw})
	h.server.Broadcast(h.statsFrom(snap))
}

func findRecord(snap store.State, resource, id string) any {
	switch resource {
	case outbox.ResourceTask:
		for _, t := range snap.Tasks {
			if t.Ref.Matches(id) {
				return t
			}
		}
	case outbox.ResourceGoal:
		for _, g := range snap.Goals {
			if g.Ref.Matches(id) {
				return g
			}
		}
	case outbox.ResourceSession:
		for _, s := range snap.Sessions {
			if s.Ref.Matches(id) {
				return s
			}
		}
	}
	return nil
}

func (h *Handler) statsMessage() Message {
	return h.statsFrom(h.source.Snapshot())
}

func (h *Handler) statsFrom(snap store.State) Message {
	raw, err := json.Marshal(Stats(snap, h.now()))
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
	}
	return Message{Type: MessageTypeStats, Timestamp: h.now(), Data: raw}
}

// Stats computes StatsData from a snapshot. Today is the local calendar day
// of now.
func Stats(snap store.State, now time.Time) StatsData {
	var st StatsData
	for _, t := range snap.Tasks {
		st.Tasks++
		if t.Completed {
			st.TasksCompleted++
		}
		if t.IsOverdue(now) {
			st.TasksOverdue++
		}
		if !t.Ref.HasRemote() {
			st.Unsynced++
		}
	}
	for _, g := range snap.Goals {
		st.Goals++
		if g.Completed {
			st.GoalsCompleted++
		}
		if !g.Ref.HasRemote() {
			st.Unsynced++
		}
	}

	today := now.In(time.Local).Format("2006-01-02")
	for _, s := range snap.Sessions {
		if !s.SyncedToBackend && s.EndTime != nil {
			st.Unsynced++
		}
		if s.Type == model.SessionFocus && s.Completed &&
			s.StartTime.In(time.Local).Format("2006-01-02") == today {
			st.FocusToday += s.Minutes()
		}
	}

	if a := snap.ActiveTimer; a != nil {
		st.TimerRunning = true
		st.TimerType = string(a.Session.Type)
		st.TimerLeft = int(a.Remaining(now).Seconds())
	}
	if !snap.LastSync.IsZero() {
		ls := snap.LastSync
		st.LastSync = &ls
	}
	return st
}
