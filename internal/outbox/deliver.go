package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

type outcomeKind int

const (
	kindSent outcomeKind = iota
	kindSuperseded
	kindWait
)

type outcome struct {
	kind     outcomeKind
	note     string
	remoteID string
}

func sent(remoteID string) outcome   { return outcome{kind: kindSent, remoteID: remoteID} }
func superseded(note string) outcome { return outcome{kind: kindSuperseded, note: note} }
func wait() outcome                  { return outcome{kind: kindWait} }

// resourceOps binds one resource's local row and remote endpoints.
type resourceOps struct {
	// remoteIDOf returns the row's backend id, "" if none, or
	// localdb.ErrNotFound when the row is gone.
	remoteIDOf func(ctx context.Context, localID int64) (string, error)
	// create sends the row's current state and returns the backend id.
	create func(ctx context.Context, localID int64) (string, error)
	assign func(ctx context.Context, localID int64, remoteID string) error
	update func(ctx context.Context, remoteID string, payload json.RawMessage) error
	remove func(ctx context.Context, remoteID string) error
}

func (d *Dispatcher) ops(resource string) (*resourceOps, error) {
	switch resource {
	case ResourceTask:
		return &resourceOps{
			remoteIDOf: func(ctx context.Context, id int64) (string, error) {
				t, err := d.db.GetTask(ctx, id)
				if err != nil {
					return "", err
				}
				return t.Ref.RemoteID, nil
			},
			create: func(ctx context.Context, id int64) (string, error) {
				t, err := d.db.GetTask(ctx, id)
				if err != nil {
					return "", err
				}
				out, err := d.sender.CreateTask(ctx, remote.TaskToDTO(t))
				if err != nil {
					return "", err
				}
				return out.ID, nil
			},
			assign: d.db.AssignTaskRemoteID,
			update: func(ctx context.Context, rid string, p json.RawMessage) error {
				return d.sender.UpdateTask(ctx, rid, p)
			},
			remove: d.sender.DeleteTask,
		}, nil

	case ResourceGoal:
		return &resourceOps{
			remoteIDOf: func(ctx context.Context, id int64) (string, error) {
				g, err := d.db.GetGoal(ctx, id)
				if err != nil {
					return "", err
				}
				return g.Ref.RemoteID, nil
			},
			create: func(ctx context.Context, id int64) (string, error) {
				g, err := d.db.GetGoal(ctx, id)
				if err != nil {
					return "", err
				}
				out, err := d.sender.CreateGoal(ctx, remote.GoalToDTO(g))
				if err != nil {
					return "", err
				}
				return out.ID, nil
			},
			assign: d.db.AssignGoalRemoteID,
			update: func(ctx context.Context, rid string, p json.RawMessage) error {
				return d.sender.UpdateGoal(ctx, rid, p)
			},
			remove: d.sender.DeleteGoal,
		}, nil

	case ResourceSession:
		return &resourceOps{
			remoteIDOf: func(ctx context.Context, id int64) (string, error) {
				s, err := d.db.GetSession(ctx, id)
				if err != nil {
					return "", err
				}
				return s.BackendID(), nil
			},
			create: func(ctx context.Context, id int64) (string, error) {
				s, err := d.db.GetSession(ctx, id)
				if err != nil {
					return "", err
				}
				return d.sender.CreateTimerSession(ctx, remote.SessionToDTO(s))
			},
			assign: d.db.MarkSessionSynced,
			update: func(ctx context.Context, rid string, p json.RawMessage) error {
				return d.sender.UpdateTimerSession(ctx, rid, p)
			},
			remove: d.sender.DeleteTimerSession,
		}, nil
	}
	return nil, permanentError{fmt.Errorf("unknown outbox resource %q", resource)}
}

func (d *Dispatcher) deliver(ctx context.Context, e *localdb.OutboxEntry) (outcome, error) {
	ops, err := d.ops(e.Resource)
	if err != nil {
		return outcome{}, err
	}

	switch e.Op {
	case OpCreate:
		rid, err := ops.remoteIDOf(ctx, e.LocalID)
		if errors.Is(err, localdb.ErrNotFound) {
			return superseded("record deleted before delivery"), nil
		}
		if err != nil {
			return outcome{}, err
		}
		if rid != "" {
			return superseded("record already on backend"), nil
		}

		rid, err = ops.create(ctx, e.LocalID)
		if err != nil {
			return outcome{}, err
		}
		if err := ops.assign(ctx, e.LocalID, rid); err != nil {
			if errors.Is(err, localdb.ErrNotFound) {
				// deleted while the create was in flight
				if derr := ops.remove(ctx, rid); derr != nil {
					d.config.Logger.Printf("Warning: failed to delete orphaned %s %s: %v", e.Resource, rid, derr)
				}
				return superseded("record deleted during delivery"), nil
			}
			// Retrying would create a duplicate; the next sync links by content.
			d.config.Logger.Printf("Warning: created %s %s but failed to record it locally: %v", e.Resource, rid, err)
		}
		return sent(rid), nil

	case OpUpdate, OpProgress:
		rid := e.RemoteID
		if rid == "" {
			rid, err = ops.remoteIDOf(ctx, e.LocalID)
			if errors.Is(err, localdb.ErrNotFound) {
				return superseded("record deleted before delivery"), nil
			}
			if err != nil {
				return outcome{}, err
			}
		}
		if rid == "" {
			queued, err := d.db.PendingCreates(ctx, e.Resource)
			if err != nil {
				return outcome{}, err
			}
			if queued[e.LocalID] {
				return wait(), nil
			}
			return superseded("no backend copy; next push carries current state"), nil
		}

		if e.Op == OpProgress {
			err = d.sendProgress(ctx, e, rid)
		} else {
			err = ops.update(ctx, rid, json.RawMessage(e.Payload))
		}
		if errors.Is(err, remote.ErrNotFound) {
			return superseded("record no longer on backend"), nil
		}
		if err != nil {
			return outcome{}, err
		}
		return sent(rid), nil

	case OpDelete:
		if e.RemoteID == "" {
			return superseded("record never reached backend"), nil
		}
		err := ops.remove(ctx, e.RemoteID)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return outcome{}, err
		}
		return sent(e.RemoteID), nil
	}
	return outcome{}, permanentError{fmt.Errorf("unknown outbox op %q", e.Op)}
}

// ProgressPayload is the payload of a progress entry.
type ProgressPayload struct {
	Progress int `json:"progress"`
}

func (d *Dispatcher) sendProgress(ctx context.Context, e *localdb.OutboxEntry, rid string) error {
	if e.Resource != ResourceGoal {
		return permanentError{fmt.Errorf("progress entries apply to goals, not %s", e.Resource)}
	}
	var p ProgressPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return permanentError{fmt.Errorf("invalid progress payload: %w", err)}
	}
	return d.sender.UpdateGoalProgress(ctx, rid, p.Progress)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	var perm permanentError
	if errors.As(err, &perm) {
		return true
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		}
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	return false
}

func (d *Dispatcher) process(ctx context.Context, e *localdb.OutboxEntry, result *DrainResult) entryState {
	logger := d.config.Logger

	claimed, err := d.db.ClaimOutbox(ctx, e.ID, d.config.Now(), d.config.Lease)
	if err != nil {
		logger.Printf("Warning: %v", err)
		return stateBlocked
	}
	if !claimed {
		return stateTaken
	}

	out, err := d.deliver(ctx, e)
	if err == nil {
		switch out.kind {
		case kindWait:
			if rerr := d.db.RescheduleOutbox(ctx, e.ID, e.Attempts, e.NextAttemptAt, e.LastError); rerr != nil {
				logger.Printf("Warning: failed to release outbox entry %s: %v", e.ID, rerr)
			}
			result.Waiting++
			return stateBlocked
		case kindSuperseded:
			if cerr := d.db.CompleteOutbox(ctx, e.ID, out.note); cerr != nil {
				logger.Printf("Warning: failed to complete outbox entry %s: %v", e.ID, cerr)
			}
			result.Superseded++
			return stateDone
		default:
			if cerr := d.db.CompleteOutbox(ctx, e.ID, ""); cerr != nil {
				logger.Printf("Warning: failed to complete outbox entry %s: %v", e.ID, cerr)
			}
			result.Sent++
			d.notify(Delivery{Resource: e.Resource, Op: e.Op, LocalID: e.LocalID, RemoteID: out.remoteID})
			return stateDone
		}
	}

	now := d.config.Now()
	if errors.Is(err, remote.ErrUnauthorized) {
		next := NextRetryAt(now, e.Attempts+1, d.config.Backoff, d.rng)
		if rerr := d.db.RescheduleOutbox(ctx, e.ID, e.Attempts, next, err.Error()); rerr != nil {
			logger.Printf("Warning: failed to reschedule outbox entry %s: %v", e.ID, rerr)
		}
		logger.Printf("Backend rejected credentials; pausing delivery")
		return statePaused
	}

	attempts := e.Attempts + 1
	if isPermanent(err) || attempts >= d.config.MaxAttempts {
		if kerr := d.db.KillOutbox(ctx, e.ID, err.Error()); kerr != nil {
			logger.Printf("Warning: failed to mark outbox entry %s dead: %v", e.ID, kerr)
		}
		logger.Printf("Giving up on %s %s %d after %d attempts: %v", e.Op, e.Resource, e.LocalID, attempts, err)
		result.Dead++
		return stateBlocked
	}

	next := NextRetryAt(now, attempts, d.config.Backoff, d.rng)
	if rerr := d.db.RescheduleOutbox(ctx, e.ID, attempts, next, err.Error()); rerr != nil {
		logger.Printf("Warning: failed to reschedule outbox entry %s: %v", e.ID, rerr)
	}
	logger.Printf("Failed to send %s %s %d (attempt %d), retrying at %s: %v",
		e.Op, e.Resource, e.LocalID, attempts, next.Format("15:04:05"), err)
	result.Retried++
	return stateBlocked
}
