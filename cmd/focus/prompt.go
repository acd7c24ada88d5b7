package main

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/MSghais/focus-afk-sub001/internal/dates"
	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// interactive reports whether prompts can be shown.
func interactive() bool {
	return !jsonOutput &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))
}

func requireTitle(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("title is required")
	}
	return nil
}

func validDate(s string) error {
	_, err := dates.Parse(s, timeNow())
	return err
}

// taskInput holds the raw text of a task form.
type taskInput struct {
	title       string
	description string
	priority    string
	category    string
	due         string
}

func promptTask(in *taskInput) error {
	if in.priority == "" {
		in.priority = string(model.PriorityMedium)
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Title").Value(&in.title).Validate(requireTitle),
		huh.NewText().Title("Description").Value(&in.description),
		huh.NewSelect[string]().
			Title("Priority").
			Options(huh.NewOptions(
				string(model.PriorityLow),
				string(model.PriorityMedium),
				string(model.PriorityHigh),
			)...).
			Value(&in.priority),
		huh.NewInput().Title("Category").Value(&in.category),
		huh.NewInput().
			Title("Due").
			Placeholder("tomorrow 5pm, 2024-06-01, empty for none").
			Value(&in.due).
			Validate(validDate),
	)).Run()
}

// goalInput holds the raw text of a goal form.
type goalInput struct {
	title       string
	description string
	category    string
	target      string
}

func promptGoal(in *goalInput) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Title").Value(&in.title).Validate(requireTitle),
		huh.NewText().Title("Description").Value(&in.description),
		huh.NewInput().Title("Category").Value(&in.category),
		huh.NewInput().
			Title("Target date").
			Placeholder("end of month, 2024-12-31, empty for none").
			Value(&in.target).
			Validate(validDate),
	)).Run()
}

// confirm asks a yes/no question. Without a terminal it returns def.
func confirm(question string, def bool) (bool, error) {
	if !interactive() {
		return def, nil
	}
	answer := def
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&answer).
		Run()
	return answer, err
}
