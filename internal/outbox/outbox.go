// Package outbox delivers local mutations to the backend.
//
// Store actions never call the backend directly. They append an entry to the
// outbox table and kick the Dispatcher, which sends entries in order,
// retries failures with exponential backoff and gives up after MaxAttempts.
// Entries survive restarts because they live in the local database.
//
// Delivery rules:
//   - Entries are sent in enqueue order. When an entry for a record fails or
//     has to wait, later entries for the same record wait too.
//   - Creates send the record's current row, not the enqueued snapshot.
//   - A create whose record already has a backend id is complete.
//   - Updates resolve the backend id at send time. An update for a record
//     that has neither a backend id nor a queued create is superseded: the
//     next sync push carries the current state.
//   - Deleting a record that never reached the backend cancels its queued
//     entries instead of sending anything.
//   - An entry is claimed (in_flight) for Config.Lease while it is sent. A
//     sync push may take over a create that is not in flight.
//   - ErrUnauthorized pauses delivery without consuming an attempt.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

// Resources.
const (
	ResourceTask    = "task"
	ResourceGoal    = "goal"
	ResourceSession = "session"
)

// Operations.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpProgress = "progress"
)

// Sender is the part of the remote API the dispatcher calls.
type Sender interface {
	CreateTask(ctx context.Context, task remote.TaskDTO) (*remote.TaskDTO, error)
	UpdateTask(ctx context.Context, id string, patch any) error
	DeleteTask(ctx context.Context, id string) error
	CreateGoal(ctx context.Context, goal remote.GoalDTO) (*remote.GoalDTO, error)
	UpdateGoal(ctx context.Context, id string, patch any) error
	UpdateGoalProgress(ctx context.Context, id string, progress int) error
	DeleteGoal(ctx context.Context, id string) error
	CreateTimerSession(ctx context.Context, session remote.TimerSessionDTO) (string, error)
	UpdateTimerSession(ctx context.Context, backendID string, patch any) error
	DeleteTimerSession(ctx context.Context, backendID string) error
}

var _ Sender = (*remote.Client)(nil)

// Config holds dispatcher settings.
type Config struct {
	// Interval is how often Run drains due entries without a kick.
	Interval time.Duration
	// Batch is the page size read from the outbox table.
	Batch int
	// MaxAttempts is the number of failed sends after which an entry is
	// marked dead.
	MaxAttempts int
	// Lease is how long a claimed entry stays in flight before another
	// drain may send it again. It should exceed the HTTP timeout.
	Lease   time.Duration
	Backoff BackoffConfig
	Logger  *log.Logger
	// Now overrides time.Now.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:    5 * time.Second,
		Batch:       50,
		MaxAttempts: 8,
		Lease:       2 * time.Minute,
		Backoff:     DefaultBackoff(),
		Logger:      log.New(os.Stderr, "[outbox] ", log.LstdFlags),
		Now:         time.Now,
	}
}

// Delivery describes an entry that reached the backend.
type Delivery struct {
	Resource string
	Op       string
	LocalID  int64
	// RemoteID is the backend id of the record, assigned by the backend for
	// creates.
	RemoteID string
}

// DrainResult counts what one Drain did.
type DrainResult struct {
	Sent       int
	Superseded int
	Retried    int
	Dead       int
	Waiting    int
	// Paused is true when delivery stopped because the user is signed out
	// or the backend rejected the token.
	Paused bool
}

// Dispatcher sends outbox entries.
type Dispatcher struct {
	db     *localdb.DB
	sender Sender
	gate   auth.Gate
	config *Config
	rng    *rand.Rand

	kick chan struct{}

	drainMu sync.Mutex

	subsMu sync.RWMutex
	subs   []func(Delivery)
}

// New creates a dispatcher. A nil config uses DefaultConfig.
func New(db *localdb.DB, sender Sender, gate auth.Gate, config *Config) *Dispatcher {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Batch <= 0 {
		config.Batch = def.Batch
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.Lease <= 0 {
		config.Lease = def.Lease
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Dispatcher{
		db:     db,
		sender: sender,
		gate:   gate,
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		kick:   make(chan struct{}, 1),
	}
}

// OnDelivered registers fn to run after each successful send.
func (d *Dispatcher) OnDelivered(fn func(Delivery)) {
	d.subsMu.Lock()
	d.subs = append(d.subs, fn)
	d.subsMu.Unlock()
}

func (d *Dispatcher) notify(del Delivery) {
	d.subsMu.RLock()
	subs := append([]func(Delivery){}, d.subs...)
	d.subsMu.RUnlock()
	for _, fn := range subs {
		fn(del)
	}
}

// Enqueue appends an entry for a record. payload is marshalled to JSON; it
// is sent as-is for updates and ignored for creates and deletes. remoteID
// should be the record's backend id when known; deletes need it because the
// local row is gone by the time they are sent.
//
// A delete for a record with no backend id cancels the record's queued
// entries and enqueues nothing; the returned entry is nil in that case.
func (d *Dispatcher) Enqueue(ctx context.Context, resource, op string, localID int64, remoteID string, payload any) (*localdb.OutboxEntry, error) {
	if op == OpDelete && remoteID == "" {
		n, err := d.db.CancelOutbox(ctx, resource, localID, "cancelled: deleted before delivery")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			d.config.Logger.Printf("Cancelled %d queued %s entries for deleted %s %d", n, resource, resource, localID)
		}
		return nil, nil
	}

	var data []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
		}
		data = b
	}

	entry := &localdb.OutboxEntry{
		ID:        uuid.NewString(),
		Resource:  resource,
		Op:        op,
		LocalID:   localID,
		RemoteID:  remoteID,
		Payload:   data,
		CreatedAt: d.config.Now(),
	}
	if err := d.db.EnqueueOutbox(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Kick wakes Run. It never blocks.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drains due entries on every tick and kick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.config.Logger.Printf("Outbox dispatcher started: interval=%s batch=%d", d.config.Interval, d.config.Batch)

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Printf("Outbox dispatcher stopping: %v", ctx.Err())
			return
		case <-ticker.C:
		case <-d.kick:
		}

		result, err := d.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.config.Logger.Printf("Drain failed: %v", err)
			continue
		}
		if result.Sent+result.Retried+result.Dead > 0 {
			d.config.Logger.Printf("Drained outbox: sent=%d superseded=%d retried=%d dead=%d waiting=%d",
				result.Sent, result.Superseded, result.Retried, result.Dead, result.Waiting)
		}
	}
}

// Drain sends every due entry once. Entries that fail are rescheduled and
// not retried within the same call. It returns an error only when the
// outbox table cannot be read.
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	var result DrainResult
	if _, ok := auth.Ready(d.gate); !ok {
		result.Paused = true
		return result, nil
	}

	blocked := make(map[string]bool)
	seen := make(map[string]bool)
	for {
		// Entries already handled in this call may still be due (waiting or
		// rescheduled with zero jitter), so the page grows by len(seen).
		limit := d.config.Batch + len(seen)
		due, err := d.db.DueOutbox(ctx, d.config.Now(), limit)
		if err != nil {
			return result, err
		}

		fresh := 0
		for _, entry := range due {
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			fresh++

			if err := ctx.Err(); err != nil {
				return result, err
			}

			key := targetKey(entry)
			if blocked[key] {
				result.Waiting++
				continue
			}

			switch d.process(ctx, entry, &result) {
			case stateBlocked, stateTaken:
				blocked[key] = true
			case statePaused:
				result.Paused = true
				return result, nil
			}
		}
		if fresh == 0 || len(due) < limit {
			return result, nil
		}
	}
}

type entryState int

const (
	stateDone entryState = iota
	stateBlocked
	statePaused
	stateTaken
)

func targetKey(e *localdb.OutboxEntry) string {
	if e.LocalID == 0 {
		return e.Resource + ":" + e.ID
	}
	return fmt.Sprintf("%s:%d", e.Resource, e.LocalID)
}

// Stats counts entries by status.
type Stats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Dead     int `json:"dead"`
	Done     int `json:"done"`
}

// Stats reports outbox sizes.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Pending, err = d.db.CountOutbox(ctx, localdb.OutboxPending); err != nil {
		return s, err
	}
	if s.InFlight, err = d.db.CountOutbox(ctx, localdb.OutboxInFlight); err != nil {
		return s, err
	}
	if s.Dead, err = d.db.CountOutbox(ctx, localdb.OutboxDead); err != nil {
		return s, err
	}
	if s.Done, err = d.db.CountOutbox(ctx, localdb.OutboxDone); err != nil {
		return s, err
	}
	return s, nil
}

// Prune deletes delivered entries older than age.
func (d *Dispatcher) Prune(ctx context.Context, age time.Duration) (int, error) {
	return d.db.PruneOutbox(ctx, d.config.Now().Add(-age))
}
