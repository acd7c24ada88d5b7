package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

// fakeBackend is an in-memory Backend.
type fakeBackend struct {
	mu sync.Mutex

	tasks    []remote.TaskDTO
	goals    []remote.GoalDTO
	sessions []remote.TimerSessionDTO
	stats    *remote.FocusStatsDTO

	nextID    int
	failTitle map[string]error
	failAll   error
	progress  map[string]int
	creates   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failTitle: map[string]error{}, progress: map[string]int{}}
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBackend) CreateTask(ctx context.Context, task remote.TaskDTO) (*remote.TaskDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err := f.failTitle[task.Title]; err != nil {
		return nil, err
	}
	task.ID = f.id("task")
	f.tasks = append(f.tasks, task)
	return &task, nil
}

func (f *fakeBackend) GetTasks(ctx context.Context) ([]remote.TaskDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return append([]remote.TaskDTO(nil), f.tasks...), nil
}

func (f *fakeBackend) CreateGoal(ctx context.Context, goal remote.GoalDTO) (*remote.GoalDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err := f.failTitle[goal.Title]; err != nil {
		return nil, err
	}
	goal.ID = f.id("goal")
	f.goals = append(f.goals, goal)
	return &goal, nil
}

func (f *fakeBackend) GetGoals(ctx context.Context) ([]remote.GoalDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.GoalDTO(nil), f.goals...), nil
}

func (f *fakeBackend) UpdateGoalProgress(ctx context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[id] = progress
	return nil
}

func (f *fakeBackend) CreateTimerSession(ctx context.Context, s remote.TimerSessionDTO) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failAll != nil {
		return "", f.failAll
	}
	if err := f.failTitle[s.Notes]; err != nil {
		return "", err
	}
	s.ID = f.id("sess")
	f.sessions = append(f.sessions, s)
	return s.ID, nil
}

func (f *fakeBackend) GetTimerSessions(ctx context.Context) ([]remote.TimerSessionDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return append([]remote.TimerSessionDTO(nil), f.sessions...), nil
}

func (f *fakeBackend) GetFocusStats(ctx context.Context, days int) (*remote.FocusStatsDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stats == nil {
		return nil, errors.New("stats unavailable")
	}
	return f.stats, nil
}

func setupTestDB(t *testing.T) *localdb.DB {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func signedIn() auth.Gate  { return auth.NewStatic("jwt") }
func signedOut() auth.Gate { return auth.NewStatic("") }
