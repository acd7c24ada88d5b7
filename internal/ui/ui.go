// Package ui renders CLI output with lipgloss.
//
// Colors follow the terminal's capabilities as reported by termenv, so output
// piped to a file or a dumb terminal degrades to plain text.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#7FD88F"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#F5C26B"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF7B7B"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#82AAFF"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A8A8A"}
)

// Renderer holds the styles for one output stream.
type Renderer struct {
	r *lipgloss.Renderer

	pass   lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	accent lipgloss.Style
	muted  lipgloss.Style
	bold   lipgloss.Style
	header lipgloss.Style
}

// New returns a renderer using the color profile detected for w.
func New(w io.Writer) *Renderer {
	return newRenderer(w, termenv.NewOutput(w).EnvColorProfile())
}

// NewPlain returns a renderer that never emits escape sequences.
func NewPlain(w io.Writer) *Renderer {
	return newRenderer(w, termenv.Ascii)
}

func newRenderer(w io.Writer, profile termenv.Profile) *Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return &Renderer{
		r:      r,
		pass:   r.NewStyle().Foreground(colorPass),
		warn:   r.NewStyle().Foreground(colorWarn),
		fail:   r.NewStyle().Foreground(colorFail).Bold(true),
		accent: r.NewStyle().Foreground(colorAccent),
		muted:  r.NewStyle().Foreground(colorMuted),
		bold:   r.NewStyle().Bold(true),
		header: r.NewStyle().Bold(true).Foreground(colorAccent),
	}
}

func (r *Renderer) Pass(s string) string   { return r.pass.Render(s) }
func (r *Renderer) Warn(s string) string   { return r.warn.Render(s) }
func (r *Renderer) Fail(s string) string   { return r.fail.Render(s) }
func (r *Renderer) Accent(s string) string { return r.accent.Render(s) }
func (r *Renderer) Muted(s string) string  { return r.muted.Render(s) }
func (r *Renderer) Bold(s string) string   { return r.bold.Render(s) }
func (r *Renderer) Header(s string) string { return r.header.Render(s) }

var (
	defaultMu sync.RWMutex
	def       *Renderer
)

func std() *Renderer {
	defaultMu.RLock()
	r := def
	defaultMu.RUnlock()
	if r != nil {
		return r
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if def == nil {
		if os.Getenv("NO_COLOR") != "" {
			def = NewPlain(os.Stdout)
		} else {
			def = New(os.Stdout)
		}
	}
	return def
}

// SetDefault replaces the renderer used by the package-level helpers.
func SetDefault(r *Renderer) {
	defaultMu.Lock()
	def = r
	defaultMu.Unlock()
}

// Default returns the renderer used by the package-level helpers.
func Default() *Renderer { return std() }

func RenderPass(s string) string   { return std().Pass(s) }
func RenderWarn(s string) string   { return std().Warn(s) }
func RenderFail(s string) string   { return std().Fail(s) }
func RenderAccent(s string) string { return std().Accent(s) }
func RenderMuted(s string) string  { return std().Muted(s) }
func RenderBold(s string) string   { return std().Bold(s) }

// FormatDuration prints d as "1h05m", "25m" or "42s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0 && s == 0:
		return fmt.Sprintf("%dm", m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// ProgressBar draws pct (0-100) as a bar of the given width.
func ProgressBar(pct, width int) string {
	if width <= 0 {
		return ""
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
