package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/dates"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/store"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var timeNow = time.Now

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "work",
	Short:   "Manage tasks",
	Long: `Add, list, complete and remove tasks.

IDs are the backend id once a task has been synced, otherwise the local
number shown by "focus task list". Both forms are accepted everywhere.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Long: `Add a task. Without a title and on a terminal, a form is shown.

Examples:
  focus task add "Write report" --priority high --due "friday 5pm"
  focus task add "Read chapter 3" --goal 2 --estimate 45
  focus task add`,
	Args: cobra.MaximumNArgs(1),
	Run:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	Run:   runTaskList,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>...",
	Short: "Mark tasks as completed",
	Args:  cobra.MinimumNArgs(1),
	Run:   runTaskDone,
}

var taskToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip the completion of a task",
	Long: `Flip the completion of a task. A task that exists only on the backend
is toggled there directly.`,
	Args: cobra.ExactArgs(1),
	Run:  runTaskToggle,
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run:     runTaskRm,
}

func init() {
	taskAddCmd.Flags().StringP("description", "d", "", "Task description")
	taskAddCmd.Flags().StringP("priority", "p", "", "Priority: low, medium or high (default medium)")
	taskAddCmd.Flags().StringP("category", "c", "", "Category")
	taskAddCmd.Flags().String("due", "", `Due date ("tomorrow 5pm", "2024-06-01", RFC3339)`)
	taskAddCmd.Flags().Int("estimate", 0, "Estimated minutes")
	taskAddCmd.Flags().StringSlice("goal", nil, "Goal id to link (repeatable)")

	taskListCmd.Flags().BoolP("all", "a", false, "Include completed and archived tasks")
	taskListCmd.Flags().StringP("category", "c", "", "Only this category")
	taskListCmd.Flags().StringP("priority", "p", "", "Only this priority")
	taskListCmd.Flags().Bool("overdue", false, "Only overdue tasks")

	taskRmCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskToggleCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) {
	in := taskInput{}
	if len(args) > 0 {
		in.title = args[0]
	}
	in.description, _ = cmd.Flags().GetString("description")
	in.priority, _ = cmd.Flags().GetString("priority")
	in.category, _ = cmd.Flags().GetString("category")
	in.due, _ = cmd.Flags().GetString("due")
	estimate, _ := cmd.Flags().GetInt("estimate")
	goals, _ := cmd.Flags().GetStringSlice("goal")

	if in.title == "" {
		if !interactive() {
			fatalf("a title is required")
		}
		if err := promptTask(&in); err != nil {
			fatalf("%v", err)
		}
	}

	priority, err := model.ParsePriority(in.priority)
	if err != nil {
		fatalf("%v", err)
	}
	due, err := dates.Parse(in.due, timeNow())
	if err != nil {
		fatalf("%v", err)
	}

	task := &model.Task{
		Title:       in.title,
		Description: in.description,
		Priority:    priority,
		Category:    in.category,
		DueDate:     due,
	}
	if estimate > 0 {
		task.EstimatedMinutes = &estimate
	}
	if len(goals) > 0 {
		task.GoalID = goals[0]
		task.GoalIDs = goals
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	added, err := a.store.AddTask(ctx, task)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(added)
		return
	}
	fmt.Printf("%s Added task %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(added.ID()), added.Title)
	if due != nil {
		fmt.Printf("   Due: %s\n", dates.Format(due))
	}
	if !a.signedIn() {
		fmt.Printf("   %s\n", ui.RenderMuted("Saved locally; it will sync after you sign in."))
	}
}

func runTaskList(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	category, _ := cmd.Flags().GetString("category")
	priorityFlag, _ := cmd.Flags().GetString("priority")
	overdue, _ := cmd.Flags().GetBool("overdue")

	var priority model.Priority
	if priorityFlag != "" {
		p, err := model.ParsePriority(priorityFlag)
		if err != nil {
			fatalf("%v", err)
		}
		priority = p
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	now := timeNow()
	tasks := make([]*model.Task, 0)
	for _, t := range a.store.Tasks() {
		switch {
		case !all && (t.Completed || t.Archived):
		case category != "" && !strings.EqualFold(t.Category, category):
		case priority != "" && t.Priority != priority:
		case overdue && !t.IsOverdue(now):
		default:
			tasks = append(tasks, t)
		}
	}

	if jsonOutput {
		printJSON(tasks)
		return
	}
	fmt.Println(ui.Default().TaskTable(tasks, now))
}

func runTaskDone(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	completed := true
	failed := false
	for _, id := range args {
		task, err := a.store.UpdateTask(ctx, id, model.TaskPatch{Completed: &completed})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), id, err)
			failed = true
			continue
		}
		if !jsonOutput {
			fmt.Printf("%s Completed %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(task.ID()), task.Title)
		}
	}
	if failed {
		a.Close()
		os.Exit(1)
	}
}

func runTaskToggle(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	done, err := a.store.ToggleTaskComplete(ctx, args[0])
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}
	if jsonOutput {
		printJSON(map[string]any{"id": args[0], "completed": done})
		return
	}
	state := "open"
	if done {
		state = "completed"
	}
	fmt.Printf("%s Task %s is now %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), state)
}

func runTaskRm(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	if !yes {
		if !interactive() {
			a.Close()
			fatalf("refusing to delete without --yes")
		}
		ok, err := confirm(fmt.Sprintf("Delete task %s?", args[0]), false)
		if err != nil || !ok {
			fmt.Println("Cancelled.")
			return
		}
	}

	if err := a.store.DeleteTask(ctx, args[0]); err != nil {
		a.Close()
		if errors.Is(err, store.ErrNotFound) {
			fatalf("no task with id %s", args[0])
		}
		fatalf("%v", err)
	}
	if !jsonOutput {
		fmt.Printf("%s Deleted task %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	}
}
