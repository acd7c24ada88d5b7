package main

import (
	"testing"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"task", "add"}, {"task", "list"}, {"task", "done"}, {"task", "rm"},
		{"goal", "add"}, {"goal", "progress"},
		{"timer", "start"}, {"timer", "stop"}, {"timer", "cancel"},
		{"stats"}, {"sync"}, {"status"}, {"daemon"}, {"export"}, {"import"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}

func TestResolveTaskRefs(t *testing.T) {
	tasks := []*model.Task{
		{Ref: model.SyncedRef(3, "task-abc"), Title: "synced"},
		{Ref: model.LocalRef(4), Title: "local"},
	}

	refs := resolveTaskRefs(tasks, []string{"3", "task-abc", "4", "99", "task-zzz"})

	want := []model.Ref{
		model.SyncedRef(3, "task-abc"),
		model.SyncedRef(3, "task-abc"),
		model.LocalRef(4),
		model.LocalRef(99),
		model.RemoteRef("task-zzz"),
	}
	if len(refs) != len(want) {
		t.Fatalf("got %d refs, want %d", len(refs), len(want))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}
}
