package store

import "time"

// EventType names a state change.
type EventType string

const (
	EventLoaded       EventType = "loaded"
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventDeleted      EventType = "deleted"
	EventTimerStarted EventType = "timer_started"
	EventTimerStopped EventType = "timer_stopped"
	// EventSynced is emitted when a record receives its backend id.
	EventSynced       EventType = "synced"
	EventSyncComplete EventType = "sync_complete"
	EventSettings     EventType = "settings"
)

// Resource names used in events besides the outbox resources.
const ResourceSettings = "settings"

// Event describes one change. Resource and ID are empty for whole-state
// events such as EventLoaded.
type Event struct {
	Type     EventType `json:"type"`
	Resource string    `json:"resource,omitempty"`
	ID       string    `json:"id,omitempty"`
	Time     time.Time `json:"time"`
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn runs synchronously on the goroutine that made the change,
// after the store's lock is released.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	s.subsMu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
