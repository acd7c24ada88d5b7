package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

const resourceSession = "session"

// TimerEngine synchronizes timer sessions.
type TimerEngine struct {
	db      *localdb.DB
	backend TimerBackend
	gate    auth.Gate
	logger  *log.Logger
	flight  flight
}

// NewTimerEngine creates a timer engine.
func NewTimerEngine(db *localdb.DB, backend TimerBackend, gate auth.Gate, logger *log.Logger) *TimerEngine {
	return &TimerEngine{
		db:      db,
		backend: backend,
		gate:    gate,
		logger:  defaultLogger(logger),
	}
}

// Push creates every stopped session with SyncedToBackend false on the
// backend and marks it synced with the returned backend id. A running
// session is skipped until it is stopped.
func (e *TimerEngine) Push(ctx context.Context) *PushResult {
	return doOnce(ctx, &e.flight, "push", e.push, pushCancelled)
}

func (e *TimerEngine) push(ctx context.Context) *PushResult {
	result := &PushResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	sessions, err := e.db.GetSessions(ctx, localdb.SessionFilter{Unsynced: true})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load unsynced sessions: %w", err))
		return result
	}

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if s.EndTime == nil {
			result.Skipped++
			continue
		}
		if !takeOver(ctx, e.db, resourceSession, s.Ref, result) {
			continue
		}

		backendID, err := e.backend.CreateTimerSession(ctx, remote.SessionToDTO(s))
		if err != nil {
			e.logger.Printf("Failed to push session %d: %v", s.Ref.LocalID, err)
			result.fail(resourceSession, s.Ref, err)
			continue
		}
		if err := e.db.MarkSessionSynced(ctx, s.Ref.LocalID, backendID); err != nil {
			result.fail(resourceSession, s.Ref, err)
			continue
		}
		result.ok(s.Ref.WithRemote(backendID), backendID)
	}

	e.logger.Printf("Session push complete: synced=%d skipped=%d errors=%d",
		result.SyncedCount, result.Skipped, len(result.Errors))
	return result
}

// Pull stores backend sessions not known locally and refreshes known ones
// whose backend copy is strictly newer. The newer copy replaces the local
// mutable fields as a whole; fields are never merged individually.
func (e *TimerEngine) Pull(ctx context.Context) *PullResult {
	return doOnce(ctx, &e.flight, "pull", e.pull, pullCancelled)
}

func (e *TimerEngine) pull(ctx context.Context) *PullResult {
	result := &PullResult{}
	if _, ok := auth.Ready(e.gate); !ok {
		result.Errors = append(result.Errors, authRequired())
		return result
	}

	dtos, err := e.backend.GetTimerSessions(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to fetch timer sessions: %w", err))
		return result
	}
	result.Fetched = len(dtos)

	locals, err := e.db.GetSessions(ctx, localdb.SessionFilter{})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to load local sessions: %w", err))
		return result
	}
	byBackend := make(map[string]*model.TimerSession, len(locals))
	for _, s := range locals {
		if s.BackendID() != "" {
			byBackend[s.BackendID()] = s
		}
	}

	for _, dto := range dtos {
		incoming, err := dto.ToSession()
		if err != nil {
			result.fail(resourceSession, model.RemoteRef(dto.ID), err)
			continue
		}

		local, ok := byBackend[incoming.BackendID()]
		if !ok {
			if err := e.db.AddSession(ctx, incoming); err != nil {
				result.fail(resourceSession, incoming.Ref, err)
				continue
			}
			byBackend[incoming.BackendID()] = incoming
			result.Inserted++
			continue
		}

		if !incoming.LastModified().After(local.LastModified()) {
			result.Unchanged++
			continue
		}
		local.CopyMutableFrom(incoming)
		if err := e.db.UpdateSession(ctx, local); err != nil {
			result.fail(resourceSession, local.Ref, err)
			continue
		}
		result.Updated++
	}

	e.logger.Printf("Session pull complete: fetched=%d inserted=%d updated=%d errors=%d",
		result.Fetched, result.Inserted, result.Updated, len(result.Errors))
	return result
}

// Merge builds the combined session view from the local table and the
// backend. It writes nothing.
func (e *TimerEngine) Merge(ctx context.Context) *MergeResult {
	return doOnce(ctx, &e.flight, "merge", e.merge, mergeCancelled)
}

func (e *TimerEngine) merge(ctx context.Context) *MergeResult {
	if _, ok := auth.Ready(e.gate); !ok {
		return &MergeResult{Errors: []error{authRequired()}}
	}

	locals, err := e.db.GetSessions(ctx, localdb.SessionFilter{})
	if err != nil {
		return &MergeResult{Errors: []error{fmt.Errorf("failed to load local sessions: %w", err)}}
	}
	dtos, err := e.backend.GetTimerSessions(ctx)
	if err != nil {
		return &MergeResult{Errors: []error{fmt.Errorf("failed to fetch timer sessions: %w", err)}}
	}

	var errs []error
	remotes := make([]*model.TimerSession, 0, len(dtos))
	for _, dto := range dtos {
		s, err := dto.ToSession()
		if err != nil {
			errs = append(errs, &ItemError{Resource: resourceSession, Ref: model.RemoteRef(dto.ID), Op: "merge", Err: err})
			continue
		}
		remotes = append(remotes, s)
	}

	result := MergeSessions(locals, remotes)
	result.Errors = append(result.Errors, errs...)
	for _, ref := range result.Dangling {
		e.logger.Printf("Keeping session %d: backend id %s not found remotely", ref.LocalID, ref.RemoteID)
	}
	e.logger.Printf("Session merge: local=%d backend=%d merged=%d duplicates=%d",
		result.LocalCount, result.BackendCount, result.MergedCount, result.DuplicatesRemoved)
	return result
}

// LocalKey is the merge key of a session kept from the local side.
func LocalKey(localID int64) string {
	return "local_" + strconv.FormatInt(localID, 10)
}

// MergeSessions combines local and backend sessions.
//
// Every backend session is included under its backend id. A local session
// whose backend id is among them is a duplicate and dropped; the kept
// backend copy learns its local id. A local session whose backend id is not
// among them (dangling) or that has none is kept under LocalKey. The inputs
// are not modified. Output is ordered by start time, newest first, then key.
func MergeSessions(local, backend []*model.TimerSession) *MergeResult {
	result := &MergeResult{
		LocalCount:   len(local),
		BackendCount: len(backend),
	}

	merged := make(map[string]*model.TimerSession, len(local)+len(backend))
	for _, s := range backend {
		if s.BackendID() == "" {
			continue
		}
		c := s.Clone()
		c.SyncedToBackend = true
		merged[s.BackendID()] = c
	}

	for _, s := range local {
		bid := s.BackendID()
		if bid != "" {
			if kept, ok := merged[bid]; ok {
				if !kept.Ref.HasLocal() {
					kept.Ref = kept.Ref.WithLocal(s.Ref.LocalID)
				}
				result.DuplicatesRemoved++
				continue
			}
			result.Dangling = append(result.Dangling, s.Ref)
		}
		merged[LocalKey(s.Ref.LocalID)] = s.Clone()
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := merged[keys[i]], merged[keys[j]]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		return keys[i] < keys[j]
	})

	result.Keys = keys
	result.Sessions = make([]*model.TimerSession, len(keys))
	for i, k := range keys {
		result.Sessions[i] = merged[k]
	}
	result.MergedCount = len(result.Sessions)
	return result
}

// StatsResult is a focus aggregate with its origin.
type StatsResult struct {
	localdb.SessionStats
	// Source is "backend" or "local".
	Source string
}

// FocusStats returns the backend's focus aggregate when signed in and
// reachable, and the local one otherwise.
func (e *TimerEngine) FocusStats(ctx context.Context, days int) (*StatsResult, error) {
	if _, ok := auth.Ready(e.gate); ok {
		dto, err := e.backend.GetFocusStats(ctx, days)
		if err == nil {
			return &StatsResult{SessionStats: statsFromDTO(dto), Source: "backend"}, nil
		}
		e.logger.Printf("Backend focus stats unavailable, using local: %v", err)
	}

	stats, err := e.db.GetFocusStats(ctx, days)
	if err != nil {
		return nil, err
	}
	return &StatsResult{SessionStats: stats, Source: "local"}, nil
}

func statsFromDTO(dto *remote.FocusStatsDTO) localdb.SessionStats {
	stats := localdb.SessionStats{
		TotalSessions:        dto.TotalSessions,
		TotalMinutes:         dto.TotalMinutes,
		AverageSessionLength: dto.AverageSessionLength,
		SessionsByDay:        make([]localdb.DayStats, 0, len(dto.SessionsByDay)),
	}
	for _, d := range dto.SessionsByDay {
		stats.SessionsByDay = append(stats.SessionsByDay, localdb.DayStats{
			Date:     d.Date,
			Sessions: d.Sessions,
			Minutes:  d.Minutes,
		})
	}
	return stats
}

// Sync pushes then pulls.
func (e *TimerEngine) Sync(ctx context.Context) (*PushResult, *PullResult) {
	push := e.Push(ctx)
	if isAuthFailure(push.Errors) {
		return push, &PullResult{Errors: []error{authRequired()}}
	}
	return push, e.Pull(ctx)
}
