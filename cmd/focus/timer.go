package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
	"github.com/MSghais/focus-afk-sub001/internal/store"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var timerCmd = &cobra.Command{
	Use:     "timer",
	GroupID: "work",
	Short:   "Run focus, break and deep-focus timers",
	Long: `Run focus, break and deep-focus timers.

A started timer is saved right away, so it keeps running across commands
and restarts. Stopping it records the session; completed sessions count
towards your focus stats.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start [focus|break|deep]",
	Short: "Start a timer",
	Long: `Start a timer. The length defaults to the one in your settings.

Examples:
  focus timer start
  focus timer start deep --task 3
  focus timer start break --minutes 10 --wait`,
	Args: cobra.MaximumNArgs(1),
	Run:  runTimerStart,
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer and record the session",
	Args:  cobra.NoArgs,
	Run:   runTimerStop,
}

var timerCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard the running timer without recording it",
	Args:  cobra.NoArgs,
	Run:   runTimerCancel,
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running timer",
	Args:  cobra.NoArgs,
	Run:   runTimerStatus,
}

var timerLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	Run:   runTimerLog,
}

func init() {
	timerStartCmd.Flags().String("task", "", "Task the session is for")
	timerStartCmd.Flags().String("goal", "", "Goal the session is for")
	timerStartCmd.Flags().Int("minutes", 0, "Length in minutes (default from settings)")
	timerStartCmd.Flags().Bool("wait", false, "Stay in the foreground and stop the timer when it runs out")

	timerStopCmd.Flags().Bool("abandon", false, "Record the session as not completed")
	timerStopCmd.Flags().StringP("notes", "n", "", "Notes for the session")

	timerLogCmd.Flags().Int("days", 7, "How many days back to list")

	timerCmd.AddCommand(timerStartCmd, timerStopCmd, timerCancelCmd, timerStatusCmd, timerLogCmd)
	rootCmd.AddCommand(timerCmd)
}

func runTimerStart(cmd *cobra.Command, args []string) {
	typ := model.SessionFocus
	if len(args) > 0 {
		t, err := model.ParseSessionType(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		typ = t
	}
	taskID, _ := cmd.Flags().GetString("task")
	goalID, _ := cmd.Flags().GetString("goal")
	minutes, _ := cmd.Flags().GetInt("minutes")
	wait, _ := cmd.Flags().GetBool("wait")

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	timer, err := a.store.StartTimer(ctx, typ, store.TimerOptions{
		TaskID:   taskID,
		GoalID:   goalID,
		Duration: time.Duration(minutes) * time.Minute,
	})
	if err != nil {
		a.Close()
		if errors.Is(err, store.ErrTimerRunning) {
			fatalf("a timer is already running; stop it with \"focus timer stop\"")
		}
		fatalf("%v", err)
	}

	if jsonOutput && !wait {
		printJSON(timer)
		return
	}
	fmt.Printf("%s Started %s timer for %s\n", ui.RenderPass("▶"), typ, ui.FormatDuration(timer.Planned))
	if !wait {
		return
	}

	completed := waitForTimer(ctx, timer)
	// The command context may be cancelled by now.
	session, err := a.store.StopTimer(context.Background(), completed, "")
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}
	printStopped(session)
}

// waitForTimer shows a countdown until the timer runs out or ctx ends. It
// reports whether the timer ran its full length.
func waitForTimer(ctx context.Context, timer *store.ActiveTimer) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		left := timer.Remaining(timeNow())
		if interactive() {
			fmt.Printf("\r%s remaining  ", ui.RenderAccent(ui.FormatDuration(left)))
		}
		if left <= 0 {
			fmt.Println()
			return true
		}
		select {
		case <-ctx.Done():
			fmt.Println()
			return false
		case <-ticker.C:
		}
	}
}

func runTimerStop(cmd *cobra.Command, args []string) {
	abandon, _ := cmd.Flags().GetBool("abandon")
	notes, _ := cmd.Flags().GetString("notes")

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	session, err := a.store.StopTimer(ctx, !abandon, notes)
	if err != nil {
		a.Close()
		if errors.Is(err, store.ErrNoActiveTimer) {
			fatalf("no timer is running")
		}
		fatalf("%v", err)
	}
	printStopped(session)
}

func printStopped(session *model.TimerSession) {
	if jsonOutput {
		printJSON(session)
		return
	}
	length := ui.FormatDuration(time.Duration(session.Duration) * time.Second)
	if session.Completed {
		fmt.Printf("%s %s session completed (%s)\n", ui.RenderPass("✓"), session.Type, length)
	} else {
		fmt.Printf("%s %s session stopped early (%s)\n", ui.RenderWarn("■"), session.Type, length)
	}
}

func runTimerCancel(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	if err := a.store.CancelTimer(ctx); err != nil {
		a.Close()
		if errors.Is(err, store.ErrNoActiveTimer) {
			fatalf("no timer is running")
		}
		fatalf("%v", err)
	}
	if !jsonOutput {
		fmt.Printf("%s Timer discarded\n", ui.RenderWarn("■"))
	}
}

func runTimerStatus(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	timer := a.store.ActiveTimer()
	if jsonOutput {
		printJSON(timer)
		return
	}
	if timer == nil {
		fmt.Println(ui.RenderMuted("No timer running."))
		return
	}
	now := timeNow()
	r := ui.Default()
	fmt.Println(r.KeyValues([][2]string{
		{"Type", string(timer.Session.Type)},
		{"Started", timer.Session.StartTime.Local().Format("15:04:05")},
		{"Elapsed", ui.FormatDuration(now.Sub(timer.Session.StartTime))},
		{"Remaining", r.Accent(ui.FormatDuration(timer.Remaining(now)))},
	}))
}

func runTimerLog(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		fatalf("--days must be positive")
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	since := timeNow().AddDate(0, 0, -days)
	sessions, err := a.db.GetSessions(ctx, localdb.SessionFilter{Since: since})
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(sessions)
		return
	}
	fmt.Fprintln(os.Stdout, ui.Default().SessionTable(sessions))
}
