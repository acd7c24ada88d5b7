package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/store"
	"github.com/MSghais/focus-afk-sub001/internal/syncer"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push local changes and pull from the backend",
	Long: `Push every local record the backend has not seen, pull the backend's
records, and merge timer sessions.

Queued changes are delivered first, so records deleted offline are not
pulled back. Failures of single records are reported and do not stop the
rest of the sync.`,
	Args: cobra.NoArgs,
	Run:  runSync,
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sign-in, backend and local database status",
	Args:    cobra.NoArgs,
	Run:     runStatus,
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "work",
	Short:   "Show task and focus statistics",
	Args:    cobra.NoArgs,
	Run:     runStats,
}

func init() {
	statsCmd.Flags().Int("days", 7, "Days of focus history")
	rootCmd.AddCommand(syncCmd, statusCmd, statsCmd)
}

func runSync(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	if err := a.store.Load(ctx); err != nil {
		a.Close()
		fatalf("%v", err)
	}

	start := time.Now()
	report, err := a.store.SyncAll(ctx)
	if err != nil {
		a.Close()
		if errors.Is(err, syncer.ErrAuthenticationRequired) {
			fatalf("not signed in; sign in first or set FOCUS_AUTH_TOKEN")
		}
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(syncSummary(report))
		if !report.Success() {
			a.Close()
			os.Exit(1)
		}
		return
	}

	fmt.Printf("%s Sync finished in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	printPair("Tasks", report.Tasks)
	printPair("Goals", report.Goals)
	printPair("Sessions", report.Sessions)
	if m := report.Merge; m != nil {
		fmt.Printf("   Merged sessions: %d (local %d, backend %d, duplicates removed %d)\n",
			m.MergedCount, m.LocalCount, m.BackendCount, m.DuplicatesRemoved)
		if len(m.Dangling) > 0 {
			fmt.Printf("   %s %d local sessions point at backend records that no longer exist\n",
				ui.RenderWarn("!"), len(m.Dangling))
		}
	}

	if errs := report.Errors(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "%s %d errors:\n", ui.RenderWarn("!"), len(errs))
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "   %v\n", err)
		}
		a.Close()
		os.Exit(1)
	}
}

func printPair(name string, p store.SyncPair) {
	pushed, fetched, inserted := 0, 0, 0
	if p.Push != nil {
		pushed = p.Push.SyncedCount
	}
	if p.Pull != nil {
		fetched = p.Pull.Fetched
		inserted = p.Pull.Inserted + p.Pull.Linked + p.Pull.Updated
	}
	fmt.Printf("   %-9s pushed %d, fetched %d, stored %d\n", name+":", pushed, fetched, inserted)
}

type pairSummary struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

func summarize(p store.SyncPair) pairSummary {
	var s pairSummary
	if p.Push != nil {
		s.Pushed = p.Push.SyncedCount
		s.Skipped = p.Push.Skipped
	}
	if p.Pull != nil {
		s.Fetched = p.Pull.Fetched
		s.Stored = p.Pull.Inserted + p.Pull.Linked + p.Pull.Updated
	}
	return s
}

func syncSummary(r *store.SyncReport) map[string]any {
	errs := make([]string, 0)
	for _, err := range r.Errors() {
		errs = append(errs, err.Error())
	}
	out := map[string]any{
		"tasks":    summarize(r.Tasks),
		"goals":    summarize(r.Goals),
		"sessions": summarize(r.Sessions),
		"finished": r.Finished,
		"errors":   errs,
	}
	if r.Merge != nil {
		out["merged_sessions"] = r.Merge.MergedCount
		out["dangling_sessions"] = len(r.Merge.Dangling)
	}
	return out
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	counts, err := a.db.GetCounts(ctx)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	signedIn := a.signedIn()
	backend := "not checked (signed out)"
	version := ""
	if signedIn {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		info, err := a.client.CheckBackend(checkCtx)
		cancel()
		switch {
		case info != nil && err != nil:
			backend = ui.RenderWarn(err.Error())
			version = info.Version
		case err != nil:
			backend = ui.RenderFail("unreachable: " + err.Error())
		default:
			backend = ui.RenderPass(info.Status)
			version = info.Version
		}
	}

	if jsonOutput {
		printJSON(map[string]any{
			"signed_in":       signedIn,
			"backend_url":     a.client.BaseURL(),
			"backend_version": version,
			"database":        a.db.Path(),
			"counts":          counts,
		})
		return
	}

	auth := ui.RenderWarn("signed out")
	if signedIn {
		auth = ui.RenderPass("signed in")
	}
	r := ui.Default()
	pairs := [][2]string{
		{"Account", auth},
		{"Backend", a.client.BaseURL()},
		{"Health", backend},
	}
	if version != "" {
		pairs = append(pairs, [2]string{"Version", version})
	}
	pairs = append(pairs,
		[2]string{"Database", a.db.Path()},
		[2]string{"Tasks", fmt.Sprintf("%d (%d not on backend)", counts.Tasks, counts.UnsyncedTasks)},
		[2]string{"Goals", fmt.Sprintf("%d (%d not on backend)", counts.Goals, counts.UnsyncedGoals)},
		[2]string{"Sessions", fmt.Sprintf("%d (%d not on backend)", counts.Sessions, counts.UnsyncedTimers)},
		[2]string{"Queued", strconv.Itoa(counts.PendingOutbox)},
	)
	if counts.DeadOutbox > 0 {
		pairs = append(pairs, [2]string{"Failed", r.Fail(strconv.Itoa(counts.DeadOutbox))})
	}
	fmt.Println(r.KeyValues(pairs))
}

func runStats(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		fatalf("--days must be positive")
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	tasks, err := a.store.TaskStats(ctx)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}
	focus, err := a.store.FocusStats(ctx, days)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(map[string]any{"tasks": tasks, "focus": focus})
		return
	}

	r := ui.Default()
	fmt.Println(r.Header("Tasks"))
	fmt.Println(r.KeyValues([][2]string{
		{"Total", strconv.Itoa(tasks.Total)},
		{"Pending", strconv.Itoa(tasks.Pending)},
		{"Completed", r.Pass(strconv.Itoa(tasks.Completed))},
		{"Overdue", r.Fail(strconv.Itoa(tasks.Overdue))},
		{"Archived", strconv.Itoa(tasks.Archived)},
	}))
	fmt.Println()
	fmt.Printf("%s %s\n", r.Header(fmt.Sprintf("Focus, last %d days", days)), r.Muted("("+focus.Source+")"))
	fmt.Println(r.KeyValues([][2]string{
		{"Sessions", strconv.Itoa(focus.TotalSessions)},
		{"Time", ui.FormatDuration(time.Duration(focus.TotalMinutes) * time.Minute)},
		{"Average", fmt.Sprintf("%.1f min", focus.AverageSessionLength)},
	}))
	peak := 0
	for _, d := range focus.SessionsByDay {
		if d.Minutes > peak {
			peak = d.Minutes
		}
	}
	for _, d := range focus.SessionsByDay {
		pct := 0
		if peak > 0 {
			pct = d.Minutes * 100 / peak
		}
		fmt.Printf("   %s %s %s\n", d.Date, ui.ProgressBar(pct, 20), r.Muted(fmt.Sprintf("%dm", d.Minutes)))
	}
}
