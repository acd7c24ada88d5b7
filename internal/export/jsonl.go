package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// Line kinds in a JSONL export.
const (
	KindSettings = "settings"
	KindTask     = "task"
	KindGoal     = "goal"
	KindSession  = "session"
)

// ErrNotEmpty is returned by Import when the target store already has records.
var ErrNotEmpty = errors.New("local store is not empty")

type line struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record"`
}

func writeJSONL(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	put := func(kind string, record any) error {
		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", kind, err)
		}
		return enc.Encode(line{Kind: kind, Record: raw})
	}

	if err := put(KindSettings, snap.Settings); err != nil {
		return err
	}
	for _, t := range snap.Tasks {
		if err := put(KindTask, t); err != nil {
			return err
		}
	}
	for _, g := range snap.Goals {
		if err := put(KindGoal, g); err != nil {
			return err
		}
	}
	for _, s := range snap.Sessions {
		if err := put(KindSession, s); err != nil {
			return err
		}
	}
	return nil
}

// ReadJSONL parses an export written with FormatJSONL. Blank lines are
// skipped; unknown kinds are an error.
func ReadJSONL(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{Settings: model.DefaultSettings()}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		var err error
		switch l.Kind {
		case KindSettings:
			err = json.Unmarshal(l.Record, &snap.Settings)
		case KindTask:
			var t model.Task
			if err = json.Unmarshal(l.Record, &t); err == nil {
				snap.Tasks = append(snap.Tasks, &t)
			}
		case KindGoal:
			var g model.Goal
			if err = json.Unmarshal(l.Record, &g); err == nil {
				snap.Goals = append(snap.Goals, &g)
			}
		case KindSession:
			var s model.TimerSession
			if err = json.Unmarshal(l.Record, &s); err == nil {
				snap.Sessions = append(snap.Sessions, &s)
			}
		default:
			err = fmt.Errorf("unknown kind %q", l.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid record at line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return snap, nil
}

// ImportResult counts inserted records.
type ImportResult struct {
	Tasks    int
	Goals    int
	Sessions int
}

// Import loads snap into an empty store. Local ids are assigned by db and
// every local-id reference between records is rewritten to the new ids;
// backend ids are kept as they are.
func Import(ctx context.Context, db *localdb.DB, snap *Snapshot) (ImportResult, error) {
	var res ImportResult

	counts, err := db.GetCounts(ctx)
	if err != nil {
		return res, err
	}
	if counts.Tasks+counts.Goals+counts.Sessions > 0 {
		return res, ErrNotEmpty
	}

	if _, err := db.UpdateSettings(ctx, snap.Settings); err != nil {
		return res, fmt.Errorf("failed to import settings: %w", err)
	}

	taskIDs := make(map[int64]int64, len(snap.Tasks))
	goalIDs := make(map[int64]int64, len(snap.Goals))

	for _, src := range snap.Tasks {
		t := *src
		old := t.Ref.LocalID
		t.Ref = model.NewRef(0, t.Ref.RemoteID)
		if err := db.AddTask(ctx, &t); err != nil {
			return res, fmt.Errorf("failed to import task %q: %w", src.Title, err)
		}
		if old > 0 {
			taskIDs[old] = t.Ref.LocalID
		}
		res.Tasks++
	}

	for _, src := range snap.Goals {
		g := *src
		old := g.Ref.LocalID
		g.Ref = model.NewRef(0, g.Ref.RemoteID)
		g.RelatedTasks = make([]model.Ref, 0, len(src.RelatedTasks))
		for _, ref := range src.RelatedTasks {
			g.RelatedTasks = append(g.RelatedTasks, remapRef(ref, taskIDs))
		}
		if err := db.AddGoal(ctx, &g); err != nil {
			return res, fmt.Errorf("failed to import goal %q: %w", src.Title, err)
		}
		if old > 0 {
			goalIDs[old] = g.Ref.LocalID
		}
		res.Goals++
	}

	// Tasks were inserted before goals existed, so their goal links are
	// rewritten in a second pass.
	for _, src := range snap.Tasks {
		goalID := remapID(src.GoalID, goalIDs)
		linked := make([]string, 0, len(src.GoalIDs))
		changed := goalID != src.GoalID
		for _, id := range src.GoalIDs {
			n := remapID(id, goalIDs)
			changed = changed || n != id
			linked = append(linked, n)
		}
		if !changed {
			continue
		}
		t, err := findImportedTask(ctx, db, src, taskIDs)
		if err != nil {
			return res, err
		}
		t.GoalID = goalID
		t.GoalIDs = linked
		if err := db.UpdateTask(ctx, t); err != nil {
			return res, fmt.Errorf("failed to relink task %q: %w", t.Title, err)
		}
	}

	for _, src := range snap.Sessions {
		s := *src
		s.Ref = model.NewRef(0, s.Ref.RemoteID)
		s.TaskID = remapID(s.TaskID, taskIDs)
		s.GoalID = remapID(s.GoalID, goalIDs)
		if err := db.AddSession(ctx, &s); err != nil {
			return res, fmt.Errorf("failed to import session: %w", err)
		}
		res.Sessions++
	}
	return res, nil
}

func findImportedTask(ctx context.Context, db *localdb.DB, src *model.Task, ids map[int64]int64) (*model.Task, error) {
	if n, ok := ids[src.Ref.LocalID]; ok {
		return db.GetTask(ctx, n)
	}
	return db.GetTaskByRemoteID(ctx, src.Ref.RemoteID)
}

// remapRef rewrites a local-only reference. References carrying a backend id
// keep it and lose a local id that has no mapping.
func remapRef(ref model.Ref, ids map[int64]int64) model.Ref {
	n, ok := ids[ref.LocalID]
	if !ok {
		n = 0
	}
	if n == 0 && ref.RemoteID == "" {
		return ref
	}
	return model.NewRef(n, ref.RemoteID)
}

// remapID rewrites a decimal local id; backend ids pass through.
func remapID(id string, ids map[int64]int64) string {
	old, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return id
	}
	if n, ok := ids[old]; ok {
		return strconv.FormatInt(n, 10)
	}
	return id
}
