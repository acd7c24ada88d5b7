package export

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *localdb.DB {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "focus.db"),
		localdb.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seed writes a task linked to a goal plus one session for each.
func seed(t *testing.T, db *localdb.DB) (*model.Task, *model.Goal) {
	t.Helper()
	ctx := context.Background()

	// Burn ids so the imported copy gets different ones.
	for i := 0; i < 3; i++ {
		filler := &model.Task{Title: "filler"}
		if err := db.AddTask(ctx, filler); err != nil {
			t.Fatalf("AddTask() failed: %v", err)
		}
		if err := db.DeleteTask(ctx, filler.Ref.LocalID); err != nil {
			t.Fatalf("DeleteTask() failed: %v", err)
		}
		fillerGoal := &model.Goal{Title: "filler"}
		if err := db.AddGoal(ctx, fillerGoal); err != nil {
			t.Fatalf("AddGoal() failed: %v", err)
		}
		if err := db.DeleteGoal(ctx, fillerGoal.Ref.LocalID); err != nil {
			t.Fatalf("DeleteGoal() failed: %v", err)
		}
	}

	goal := &model.Goal{Title: "Learn Go", Progress: 30}
	if err := db.AddGoal(ctx, goal); err != nil {
		t.Fatalf("AddGoal() failed: %v", err)
	}
	task := &model.Task{Title: "Read tour", GoalID: goal.ID(), GoalIDs: []string{goal.ID()}}
	if err := db.AddTask(ctx, task); err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}
	synced := &model.Task{Ref: model.RemoteRef("task-42"), Title: "From backend"}
	if err := db.AddTask(ctx, synced); err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}

	goal.RelatedTasks = []model.Ref{task.Ref, synced.Ref}
	if err := db.UpdateGoal(ctx, goal); err != nil {
		t.Fatalf("UpdateGoal() failed: %v", err)
	}

	end := testNow.Add(-time.Hour)
	session := &model.TimerSession{
		Type:      model.SessionFocus,
		TaskID:    task.ID(),
		GoalID:    goal.ID(),
		StartTime: end.Add(-25 * time.Minute),
		EndTime:   &end,
		Duration:  1500,
		Completed: true,
	}
	if err := db.AddSession(ctx, session); err != nil {
		t.Fatalf("AddSession() failed: %v", err)
	}
	return task, goal
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":       FormatJSON,
		"json":   FormatJSON,
		".jsonl": FormatJSONL,
		"YML":    FormatYAML,
		"toml":   FormatTOML,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestWrite_AllFormatsDecode(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)

	snap, err := Collect(context.Background(), db, testNow)
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if len(snap.Tasks) != 2 || len(snap.Goals) != 1 || len(snap.Sessions) != 1 {
		t.Fatalf("snapshot sizes = %d/%d/%d, want 2/1/1", len(snap.Tasks), len(snap.Goals), len(snap.Sessions))
	}

	for _, format := range []Format{FormatJSON, FormatJSONL, FormatYAML, FormatTOML} {
		var buf bytes.Buffer
		if err := Write(&buf, snap, format); err != nil {
			t.Fatalf("Write(%s) failed: %v", format, err)
		}
		if !strings.Contains(buf.String(), "Read tour") {
			t.Errorf("%s output missing task title:\n%s", format, buf.String())
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, snap, FormatYAML); err != nil {
		t.Fatal(err)
	}
	var fromYAML Snapshot
	if err := yaml.Unmarshal(buf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("yaml.Unmarshal() failed: %v", err)
	}
	if len(fromYAML.Tasks) != 2 {
		t.Errorf("yaml tasks = %d, want 2", len(fromYAML.Tasks))
	}

	buf.Reset()
	if err := Write(&buf, snap, FormatTOML); err != nil {
		t.Fatal(err)
	}
	var fromTOML Snapshot
	if _, err := toml.Decode(buf.String(), &fromTOML); err != nil {
		t.Fatalf("toml.Decode() failed: %v", err)
	}
	if len(fromTOML.Goals) != 1 || fromTOML.Goals[0].Progress != 30 {
		t.Errorf("toml goals = %+v", fromTOML.Goals)
	}
}

func TestReadJSONL_Errors(t *testing.T) {
	if _, err := ReadJSONL(strings.NewReader("{not json}\n")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	_, err := ReadJSONL(strings.NewReader("\n{\"kind\":\"widget\",\"record\":{}}\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("got %v, want unknown kind error at line 2", err)
	}
}

func TestImport_RemapsLocalIDs(t *testing.T) {
	ctx := context.Background()
	src := setupTestDB(t)
	oldTask, oldGoal := seed(t, src)

	snap, err := Collect(ctx, src, testNow)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, snap, FormatJSONL); err != nil {
		t.Fatal(err)
	}

	parsed, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL() failed: %v", err)
	}

	dst := setupTestDB(t)
	res, err := Import(ctx, dst, parsed)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if res.Tasks != 2 || res.Goals != 1 || res.Sessions != 1 {
		t.Fatalf("Import() = %+v", res)
	}

	synced, err := dst.GetTaskByRemoteID(ctx, "task-42")
	if err != nil {
		t.Fatalf("backend id lost: %v", err)
	}

	goals, _ := dst.GetGoals(ctx, localdb.GoalFilter{})
	goal := goals[0]
	if goal.Ref.LocalID == oldGoal.Ref.LocalID {
		t.Fatalf("goal kept old local id %d", goal.Ref.LocalID)
	}

	tasks, _ := dst.GetTasks(ctx, localdb.TaskFilter{})
	var task *model.Task
	for _, tk := range tasks {
		if tk.Title == oldTask.Title {
			task = tk
		}
	}
	if task == nil {
		t.Fatal("imported task not found")
	}
	if task.Ref.LocalID == oldTask.Ref.LocalID {
		t.Errorf("task kept old local id %d", task.Ref.LocalID)
	}
	wantGoal := strconv.FormatInt(goal.Ref.LocalID, 10)
	if task.GoalID != wantGoal || len(task.GoalIDs) != 1 || task.GoalIDs[0] != wantGoal {
		t.Errorf("task goal links = %q %v, want %q", task.GoalID, task.GoalIDs, wantGoal)
	}

	if len(goal.RelatedTasks) != 2 {
		t.Fatalf("related tasks = %v", goal.RelatedTasks)
	}
	if goal.RelatedTasks[0].LocalID != task.Ref.LocalID {
		t.Errorf("related[0] = %v, want local %d", goal.RelatedTasks[0], task.Ref.LocalID)
	}
	if goal.RelatedTasks[1].RemoteID != "task-42" || synced.Ref.RemoteID != "task-42" {
		t.Errorf("related[1] = %v, want task-42", goal.RelatedTasks[1])
	}

	sessions, _ := dst.GetSessions(ctx, localdb.SessionFilter{})
	if len(sessions) != 1 || sessions[0].TaskID != task.ID() || sessions[0].GoalID != wantGoal {
		t.Errorf("session links = %+v", sessions[0])
	}
}

func TestImport_RefusesNonEmptyStore(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	_, err := Import(context.Background(), db, &Snapshot{Settings: model.DefaultSettings()})
	if !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Import() error = %v, want ErrNotEmpty", err)
	}
}
