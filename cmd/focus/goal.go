package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/dates"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/store"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "work",
	Short:   "Manage goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a goal",
	Long: `Add a goal, optionally linked to existing tasks.

Examples:
  focus goal add "Learn Go" --target "end of month" --task 3 --task 4
  focus goal add`,
	Args: cobra.MaximumNArgs(1),
	Run:  runGoalAdd,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	Args:  cobra.NoArgs,
	Run:   runGoalList,
}

var goalProgressCmd = &cobra.Command{
	Use:   "progress <id> <percent>",
	Short: "Set the progress of a goal",
	Long: `Set the progress of a goal. Values are clamped to 0-100; 100 marks the
goal as completed.`,
	Args: cobra.ExactArgs(2),
	Run:  runGoalProgress,
}

var goalRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a goal",
	Args:    cobra.ExactArgs(1),
	Run:     runGoalRm,
}

func init() {
	goalAddCmd.Flags().StringP("description", "d", "", "Goal description")
	goalAddCmd.Flags().StringP("category", "c", "", "Category")
	goalAddCmd.Flags().String("target", "", "Target date")
	goalAddCmd.Flags().StringSlice("task", nil, "Related task id (repeatable)")

	goalListCmd.Flags().BoolP("all", "a", false, "Include completed goals")

	goalRmCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalProgressCmd, goalRmCmd)
	rootCmd.AddCommand(goalCmd)
}

func runGoalAdd(cmd *cobra.Command, args []string) {
	in := goalInput{}
	if len(args) > 0 {
		in.title = args[0]
	}
	in.description, _ = cmd.Flags().GetString("description")
	in.category, _ = cmd.Flags().GetString("category")
	in.target, _ = cmd.Flags().GetString("target")
	taskIDs, _ := cmd.Flags().GetStringSlice("task")

	if in.title == "" {
		if !interactive() {
			fatalf("a title is required")
		}
		if err := promptGoal(&in); err != nil {
			fatalf("%v", err)
		}
	}

	target, err := dates.Parse(in.target, timeNow())
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	goal := &model.Goal{
		Title:        in.title,
		Description:  in.description,
		Category:     in.category,
		TargetDate:   target,
		RelatedTasks: resolveTaskRefs(a.store.Tasks(), taskIDs),
	}
	added, err := a.store.AddGoal(ctx, goal)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(added)
		return
	}
	fmt.Printf("%s Added goal %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(added.ID()), added.Title)
	if n := len(added.RelatedTasks); n > 0 {
		fmt.Printf("   Linked tasks: %d\n", n)
	}
}

// resolveTaskRefs turns ids typed by the user into task references, keeping
// unknown ids as they are.
func resolveTaskRefs(tasks []*model.Task, ids []string) []model.Ref {
	refs := make([]model.Ref, 0, len(ids))
	for _, id := range ids {
		ref := model.ParseLooseID(id)
		for _, t := range tasks {
			if t.Ref.Matches(id) {
				ref = t.Ref
				break
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

func runGoalList(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	goals := make([]*model.Goal, 0)
	for _, g := range a.store.Goals() {
		if all || !g.Completed {
			goals = append(goals, g)
		}
	}

	if jsonOutput {
		printJSON(goals)
		return
	}
	fmt.Println(ui.Default().GoalTable(goals))
}

func runGoalProgress(cmd *cobra.Command, args []string) {
	progress, err := strconv.Atoi(args[1])
	if err != nil {
		fatalf("progress must be a number, got %q", args[1])
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	goal, err := a.store.UpdateGoalProgress(ctx, args[0], progress)
	if err != nil {
		a.Close()
		if errors.Is(err, store.ErrNotFound) {
			fatalf("no goal with id %s", args[0])
		}
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(goal)
		return
	}
	fmt.Printf("%s %s %s %d%%\n", ui.RenderAccent(goal.ID()), goal.Title, ui.ProgressBar(goal.Progress, 20), goal.Progress)
	if goal.Completed {
		fmt.Printf("%s Goal completed\n", ui.RenderPass("✓"))
	}
}

func runGoalRm(cmd *cobra.Command, args []string) {
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
		ok, err := confirm(fmt.Sprintf("Delete goal %s?", args[0]), false)
		if err != nil || !ok {
			fmt.Println("Cancelled.")
			return
		}
	}

	if err := a.store.DeleteGoal(ctx, args[0]); err != nil {
		a.Close()
		if errors.Is(err, store.ErrNotFound) {
			fatalf("no goal with id %s", args[0])
		}
		fatalf("%v", err)
	}
	if !jsonOutput {
		fmt.Printf("%s Deleted goal %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	}
}
