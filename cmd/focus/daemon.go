package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/dashboard"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

// doneRetention is how long delivered outbox entries are kept.
const doneRetention = 7 * 24 * time.Hour

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Deliver queued changes in the background and serve the live dashboard",
	Long: `Run in the foreground until interrupted:

- deliver queued changes to the backend, retrying with backoff
- watch the token file and sync as soon as you sign in
- optionally refresh from the backend on an interval
- serve a WebSocket dashboard on 127.0.0.1

WebSocket messages include:
- task_update, goal_update, session_update: a record was created, changed or deleted
- sync_complete: a full sync finished
- stats: task, goal, focus and timer counters

Example usage:
  focus daemon                      # dashboard on the configured port
  focus daemon --port 9000 --refresh 10m
  focus daemon --no-dashboard`,
	Args: cobra.NoArgs,
	Run:  runDaemon,
}

func init() {
	daemonCmd.Flags().IntP("port", "p", -1, "Dashboard port (default from config, 0 picks a free port)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the dashboard")
	daemonCmd.Flags().Duration("refresh", 0, "Sync with the backend on this interval (0 disables)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
	refresh, _ := cmd.Flags().GetDuration("refresh")

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, true)
	defer a.Close()

	logger := a.logs.For("daemon")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.outbox.Run(ctx)
	}()

	if a.fileGate != nil {
		if err := a.fileGate.Watch(); err != nil {
			logger.Printf("Warning: not watching %s: %v", a.fileGate.Path(), err)
		} else {
			unsubscribe := a.fileGate.OnChange(func(authenticated bool) {
				a.store.OnAuthChange(ctx, authenticated)
			})
			defer unsubscribe()
			fmt.Printf("Watching sign-in state at %s\n", a.fileGate.Path())
		}
	}

	if !noDashboard {
		if port < 0 {
			port = a.cfg.Dashboard.Port
		}
		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: a.logs.For("dashboard"),
		})
		handler := dashboard.NewHandler(server, a.store, a.logs.For("dashboard"))
		if err := server.Start(); err != nil {
			a.Close()
			fatalf("failed to start dashboard: %v", err)
		}
		handler.Attach()
		defer func() {
			handler.Detach()
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			}
		}()
		fmt.Printf("Dashboard: http://%s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		maintain(ctx, a, refresh)
	}()

	state := ui.RenderWarn("signed out, changes stay local")
	if a.signedIn() {
		state = ui.RenderPass("signed in")
	}
	fmt.Printf("%s Daemon running (%s)\n", ui.RenderAccent("●"), state)
	fmt.Println("\nPress Ctrl+C to stop...")

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	wg.Wait()
	fmt.Println("Daemon stopped")
}

// maintain prunes delivered outbox entries hourly and, with a positive
// refresh interval, syncs with the backend.
func maintain(ctx context.Context, a *app, refresh time.Duration) {
	logger := a.logs.For("daemon")
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	var syncTick <-chan time.Time
	if refresh > 0 {
		t := time.NewTicker(refresh)
		defer t.Stop()
		syncTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-prune.C:
			if n, err := a.outbox.Prune(ctx, doneRetention); err != nil {
				logger.Printf("Failed to prune outbox: %v", err)
			} else if n > 0 {
				logger.Printf("Pruned %d delivered outbox entries", n)
			}
		case <-syncTick:
			if err := a.store.Refresh(ctx); err != nil {
				logger.Printf("Periodic sync failed: %v", err)
			}
		}
	}
}
