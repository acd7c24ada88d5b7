// Command focus is the offline-first client for Focus AFK: tasks, goals and
// focus timers kept in a local database and mirrored to the backend when
// signed in.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var (
	cfgFile    string
	jsonOutput bool
	offline    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "focus",
	Short: "Offline-first tasks, goals and focus timers",
	Long: `focus keeps your tasks, goals and timer sessions in a local SQLite
database. Every change is saved locally first. When you are signed in, the
change is also queued for the backend and delivered in the background.

Configuration is read from ~/.focus/config.yaml and FOCUS_* environment
variables (for example FOCUS_BACKEND_BASE_URL or FOCUS_AUTH_TOKEN).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetDefault(ui.NewPlain(os.Stdout))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.focus/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Do not contact the backend")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Tasks, goals and timers:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encoding JSON: %v", err)
	}
}
