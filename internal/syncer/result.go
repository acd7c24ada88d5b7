package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// ErrAuthenticationRequired is reported when an operation needs a token and
// none is available.
var ErrAuthenticationRequired = errors.New("authentication required")

// ItemError is a failure for one record of a batch.
type ItemError struct {
	Resource string
	Ref      model.Ref
	Op       string
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Resource, e.Ref, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Outcome is the per-record result of a push.
type Outcome struct {
	Ref model.Ref
	// RemoteID is the backend id assigned on success.
	RemoteID string
	Err      error
}

// OK reports whether the record was pushed.
func (o Outcome) OK() bool { return o.Err == nil }

// PushResult reports a push of unsynced local records.
type PushResult struct {
	Outcomes    []Outcome
	SyncedCount int
	// Skipped counts records left alone because the outbox is sending their
	// create or already sent it, or, for sessions, the timer is running.
	Skipped int
	Errors  []error
}

// Success reports whether the push finished without errors.
func (r *PushResult) Success() bool { return len(r.Errors) == 0 }

func (r *PushResult) fail(resource string, ref model.Ref, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Ref: ref, Err: err})
	r.Errors = append(r.Errors, &ItemError{Resource: resource, Ref: ref, Op: "push", Err: err})
}

func (r *PushResult) ok(ref model.Ref, remoteID string) {
	r.Outcomes = append(r.Outcomes, Outcome{Ref: ref, RemoteID: remoteID})
	r.SyncedCount++
}

func pushCancelled(err error) *PushResult   { return &PushResult{Errors: []error{err}} }
func pullCancelled(err error) *PullResult   { return &PullResult{Errors: []error{err}} }
func mergeCancelled(err error) *MergeResult { return &MergeResult{Errors: []error{err}} }

// takeOver completes the record's queued outbox create so the caller can
// push the record inline. It reports false when the record must be left to
// the outbox: its create is in flight or was delivered after the record was
// read. Errors are recorded on result.
func takeOver(ctx context.Context, db *localdb.DB, resource string, ref model.Ref, result *PushResult) bool {
	busy, err := db.TakeOverCreate(ctx, resource, ref.LocalID, "superseded by push")
	if err != nil {
		result.fail(resource, ref, err)
		return false
	}
	if busy {
		result.Skipped++
		return false
	}
	return true
}

// PullResult reports a pull of backend records.
type PullResult struct {
	Fetched int
	// Inserted counts backend records stored locally for the first time.
	Inserted int
	// Linked counts local records matched to a backend record by content
	// and given its id.
	Linked int
	// Updated counts local records overwritten by a newer backend copy.
	Updated int
	// Unchanged counts backend records already known locally.
	Unchanged int
	Errors    []error
}

// Success reports whether the pull finished without errors.
func (r *PullResult) Success() bool { return len(r.Errors) == 0 }

func (r *PullResult) fail(resource string, ref model.Ref, err error) {
	r.Errors = append(r.Errors, &ItemError{Resource: resource, Ref: ref, Op: "pull", Err: err})
}

// MergeResult is the combined view of local and backend timer sessions.
type MergeResult struct {
	Sessions []*model.TimerSession
	// Keys holds the merge key of each session: the backend id for backend
	// sessions, "local_<id>" for sessions kept from the local side.
	Keys              []string
	LocalCount        int
	BackendCount      int
	MergedCount       int
	DuplicatesRemoved int
	// Dangling lists local sessions whose backend id was not found remotely.
	Dangling []model.Ref
	Errors   []error
}

// Success reports whether the merge finished without errors.
func (r *MergeResult) Success() bool { return len(r.Errors) == 0 }

func authRequired() error {
	return fmt.Errorf("%w: user is not signed in or no token is available", ErrAuthenticationRequired)
}
