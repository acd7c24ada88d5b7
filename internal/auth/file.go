package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"
)

// FileGate reads an oauth2 token JSON file written by the login flow.
//
// Watch observes the file's directory so that a login or logout in another
// process is picked up without a restart. Subscribers registered with
// OnChange are told whenever the authenticated state flips.
type FileGate struct {
	path   string
	logger *log.Logger

	mu     sync.RWMutex
	token  *oauth2.Token
	authed bool
	subs   map[int]func(bool)
	nextID int

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileGate loads path once. A missing file means signed out, not an error.
func NewFileGate(path string, logger *log.Logger) (*FileGate, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	g := &FileGate{
		path:   path,
		logger: logger,
		subs:   make(map[int]func(bool)),
	}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Path returns the watched token file.
func (g *FileGate) Path() string { return g.path }

// IsAuthenticated implements Gate.
func (g *FileGate) IsAuthenticated() bool {
	_, ok := g.Token()
	return ok
}

// Token implements Gate. An expired token counts as signed out.
func (g *FileGate) Token() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token == nil || !g.token.Valid() {
		return "", false
	}
	return g.token.AccessToken, true
}

// OnChange registers fn to run after the authenticated state changes. The
// returned function unregisters it.
func (g *FileGate) OnChange(fn func(authenticated bool)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// Reload re-reads the token file and notifies subscribers if the state
// changed.
func (g *FileGate) Reload() error {
	tok, err := readTokenFile(g.path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.token = tok
	was := g.authed
	now := tok != nil && tok.Valid()
	g.authed = now
	subs := make([]func(bool), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	if was != now {
		for _, fn := range subs {
			fn(now)
		}
	}
	return nil
}

// Watch starts watching the token file. Stop must be called to release the
// watcher.
func (g *FileGate) Watch() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.watcher != nil {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// The directory is watched so atomic renames over the file are seen.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	g.watcher = watcher
	g.done = make(chan struct{})
	g.wg.Add(1)
	go g.processEvents(watcher, g.done)
	return nil
}

// Stop ends watching. It blocks until the event loop has exited.
func (g *FileGate) Stop() error {
	g.mu.Lock()
	watcher := g.watcher
	done := g.done
	g.watcher = nil
	g.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(done)
	err := watcher.Close()
	g.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (g *FileGate) processEvents(watcher *fsnotify.Watcher, done chan struct{}) {
	defer g.wg.Done()

	name := filepath.Clean(g.path)
	for {
		select {
		case <-done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := g.Reload(); err != nil {
				g.logger.Printf("Warning: failed to reload token: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			g.logger.Printf("Warning: watcher error: %v", err)
		}
	}
}

// WriteTokenFile stores tok at path with owner-only permissions. A nil token
// removes the file.
func WriteTokenFile(path string, tok *oauth2.Token) error {
	if tok == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func readTokenFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	return &tok, nil
}
