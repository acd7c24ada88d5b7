package store

import (
	"encoding/json"

	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
)

// taskPatchFields lists the wire fields a patch touches.
func taskPatchFields(p model.TaskPatch) []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.Completed != nil, "completed")
	add(p.Priority != nil, "priority")
	add(p.Category != nil, "category")
	add(p.Archived != nil, "archived")
	add(p.DueDate != nil, "dueDate")
	add(p.EstimatedMinutes != nil, "estimatedMinutes")
	add(p.GoalID != nil, "goalId")
	add(p.GoalIDs != nil, "goalIds")
	return f
}

func goalPatchFields(p model.GoalPatch) []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.TargetDate != nil, "targetDate")
	add(p.Completed != nil, "completed")
	add(p.Progress != nil, "progress")
	add(p.Progress != nil, "completed")
	add(p.Category != nil, "category")
	add(p.RelatedTasks != nil, "relatedTaskIds")
	return f
}

// pick marshals dto and keeps only fields. A field dropped by omitempty is
// sent as null so the backend clears it.
func pick(dto any, fields []string) (map[string]any, error) {
	data, err := json.Marshal(dto)
	if err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for _, name := range fields {
		out[name] = all[name]
	}
	return out, nil
}

func taskPayload(t *model.Task, p model.TaskPatch) (map[string]any, error) {
	return pick(remote.TaskToDTO(t), taskPatchFields(p))
}

func goalPayload(g *model.Goal, p model.GoalPatch) (map[string]any, error) {
	return pick(remote.GoalToDTO(g), goalPatchFields(p))
}
