package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
	"github.com/MSghais/focus-afk-sub001/internal/config"
	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/logging"
	"github.com/MSghais/focus-afk-sub001/internal/outbox"
	"github.com/MSghais/focus-afk-sub001/internal/remote"
	"github.com/MSghais/focus-afk-sub001/internal/store"
)

// flushTimeout bounds the outbox delivery a short-lived command does before
// exiting.
const flushTimeout = 10 * time.Second

// app is the wired client for one command invocation.
type app struct {
	cfg      *config.Config
	logs     *logging.Logger
	db       *localdb.DB
	gate     auth.Gate
	fileGate *auth.FileGate
	client   *remote.Client
	outbox   *outbox.Dispatcher
	store    *store.Store
}

// openApp wires every component. With load set, the store is loaded (and
// synced when signed in) before returning.
func openApp(ctx context.Context, load bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logs := logging.New(cfg.Log)
	a := &app{cfg: cfg, logs: logs}

	if err := os.MkdirAll(filepath.Dir(cfg.Local.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	a.db, err = localdb.Open(cfg.Local.DBPath, localdb.WithLogger(logs.For("localdb")))
	if err != nil {
		return nil, err
	}

	switch {
	case offline:
		a.gate = auth.NewStatic("")
	case cfg.Auth.Token != "":
		a.gate = auth.NewStatic(cfg.Auth.Token)
	default:
		a.fileGate, err = auth.NewFileGate(cfg.Auth.TokenFile, logs.For("auth"))
		if err != nil {
			a.db.Close()
			return nil, err
		}
		a.gate = a.fileGate
	}

	a.client = remote.New(&http.Client{Timeout: cfg.Backend.Timeout}, cfg.Backend.BaseURL, a.gate, logs.For("remote"))

	obCfg := outbox.DefaultConfig()
	obCfg.Interval = cfg.Outbox.Interval
	obCfg.MaxAttempts = cfg.Outbox.MaxAttempts
	obCfg.Batch = cfg.Outbox.Batch
	obCfg.Logger = logs.For("outbox")
	a.outbox = outbox.New(a.db, a.client, a.gate, obCfg)

	a.store = store.New(store.Deps{
		DB:     a.db,
		Client: a.client,
		Gate:   a.gate,
		Outbox: a.outbox,
		Logger: logs.For("store"),
	})

	if load {
		if err := a.store.Load(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load local data: %w", err)
		}
	}
	return a, nil
}

// mustOpenApp is openApp for commands that cannot continue without it.
func mustOpenApp(ctx context.Context, load bool) *app {
	a, err := openApp(ctx, load)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// signedIn reports whether remote calls can be made.
func (a *app) signedIn() bool {
	_, ok := auth.Ready(a.gate)
	return ok
}

// Close delivers what the command queued, then releases resources.
func (a *app) Close() {
	if a.store != nil && a.signedIn() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if res, err := a.store.Flush(ctx); err != nil {
			a.logs.For("focus").Printf("Failed to deliver queued changes: %v", err)
		} else if res.Retried > 0 || res.Waiting > 0 {
			a.logs.For("focus").Printf("%d changes will be retried later", res.Retried+res.Waiting)
		}
		cancel()
	}
	if a.fileGate != nil {
		_ = a.fileGate.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logs.Close()
}
