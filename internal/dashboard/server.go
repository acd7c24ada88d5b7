// Package dashboard pushes live focus data to browsers over WebSocket.
//
// A page connects to /ws. Its first frame is a stats snapshot; after that it
// receives a task, goal or session update whenever the store changes one,
// a sync_complete after every full sync, and fresh stats after each of
// those. Each connection has its own send queue; a page that stops reading
// is disconnected instead of holding up the others.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// MessageType names a dashboard frame.
type MessageType string

const (
	MessageTypeTaskUpdate    MessageType = "task_update"
	MessageTypeGoalUpdate    MessageType = "goal_update"
	MessageTypeSessionUpdate MessageType = "session_update"
	MessageTypeSyncComplete  MessageType = "sync_complete"
	MessageTypeStats         MessageType = "stats"
)

// Message is one frame sent to every page.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (m Message) encode() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}

// Config holds server settings.
type Config struct {
	// Host defaults to loopback. Pages are not authenticated.
	Host string
	// Port 0 picks a free port.
	Port int
	// QueueSize is the number of frames buffered per page.
	QueueSize int
	// PingInterval keeps idle connections open through proxies.
	PingInterval time.Duration
	Logger       *log.Logger
}

// DefaultConfig serves on 127.0.0.1:7777.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         7777,
		QueueSize:    64,
		PingInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// page is one connected browser.
type page struct {
	conn  *websocket.Conn
	queue chan []byte
	gone  chan struct{}
	once  sync.Once
}

func (p *page) drop() {
	p.once.Do(func() { close(p.gone) })
}

// Server accepts dashboard pages and fans frames out to them.
type Server struct {
	cfg     Config
	welcome func() Message

	mu    sync.Mutex
	pages map[*page]struct{}

	frames  atomic.Int64
	dropped atomic.Int64

	ln     net.Listener
	http   *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. Start begins listening.
func NewServer(config *Config) *Server {
	cfg := *DefaultConfig()
	if config != nil {
		cfg.Port = config.Port
		if config.Host != "" {
			cfg.Host = config.Host
		}
		if config.QueueSize > 0 {
			cfg.QueueSize = config.QueueSize
		}
		if config.PingInterval > 0 {
			cfg.PingInterval = config.PingInterval
		}
		if config.Logger != nil {
			cfg.Logger = config.Logger
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		welcome: func() Message { return Message{Type: MessageTypeStats} },
		pages:   make(map[*page]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetWelcome sets the frame each page gets on connect. Call before Start.
func (s *Server) SetWelcome(fn func() Message) {
	if fn != nil {
		s.welcome = fn
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveSocket)
	mux.HandleFunc("GET /health", s.serveHealth)
	mux.HandleFunc("GET /{$}", s.serveIndex)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cfg.Logger.Printf("Dashboard on http://%s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Printf("Dashboard server failed: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every page and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for p := range s.pages {
		p.drop()
	}
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", serr)
		}
	}
	s.wg.Wait()
	return err
}

// Broadcast queues msg for every connected page. A page whose queue is full
// is disconnected.
func (s *Server) Broadcast(msg Message) {
	frame, err := msg.encode()
	if err != nil {
		s.cfg.Logger.Printf("Failed to encode %s frame: %v", msg.Type, err)
		return
	}
	s.frames.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.pages {
		select {
		case p.queue <- frame:
		default:
			s.dropped.Add(1)
			s.cfg.Logger.Printf("Page not keeping up, disconnecting")
			p.drop()
		}
	}
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.cfg.Logger.Printf("WebSocket handshake failed: %v", err)
		return
	}
	if s.ctx.Err() != nil {
		_ = conn.Close(websocket.StatusGoingAway, "dashboard stopping")
		return
	}

	p := &page{
		conn:  conn,
		queue: make(chan []byte, s.cfg.QueueSize),
		gone:  make(chan struct{}),
	}
	// queued before the page is registered so it is always the first frame
	if frame, err := s.welcome().encode(); err == nil {
		p.queue <- frame
	}

	s.mu.Lock()
	s.pages[p] = struct{}{}
	n := len(s.pages)
	s.mu.Unlock()
	s.cfg.Logger.Printf("Page connected (%d open)", n)

	s.wg.Add(1)
	go s.pump(p)
}

// pump writes queued frames and pings until the page goes away.
func (s *Server) pump(p *page) {
	defer s.wg.Done()
	defer s.forget(p)

	// pages only listen; CloseRead handles their control frames and ends
	// ctx when the page hangs up. Stop reaches pump through p.gone.
	ctx := p.conn.CloseRead(context.Background())
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.gone:
			return
		case frame := <-p.queue:
			if err := s.send(ctx, p, frame); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := p.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, p *page, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.conn.Write(wctx, websocket.MessageText, frame)
}

func (s *Server) forget(p *page) {
	s.mu.Lock()
	delete(s.pages, p)
	n := len(s.pages)
	s.mu.Unlock()

	p.drop()
	status, reason := websocket.StatusNormalClosure, ""
	if s.ctx.Err() != nil {
		status, reason = websocket.StatusGoingAway, "dashboard stopping"
	}
	_ = p.conn.Close(status, reason)
	s.cfg.Logger.Printf("Page disconnected (%d open)", n)
}

type health struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Frames  int64  `json:"frames"`
	Dropped int64  `json:"dropped"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:  "ok",
		Clients: s.ClientCount(),
		Frames:  s.frames.Load(),
		Dropped: s.dropped.Load(),
	})
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Focus AFK</title></head>
<body>
<h1>Focus AFK</h1>
<p>Live updates: <code>ws://%s/ws</code></p>
<p><a href="/health">Health</a></p>
</body>
</html>`, r.Host)
}

// Addr is the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ClientCount is the number of connected pages.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
