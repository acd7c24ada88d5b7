// Package dates parses the due and target dates users type.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse reads text as RFC3339, as a 2006-01-02 date in now's location, or
// as an English phrase relative to now ("tomorrow 5pm", "next friday").
// Empty text returns nil.
func Parse(text string, now time.Time) (*time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return &t, nil
	}

	r, err := parser.Parse(text, now)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", text, err)
	}
	if r == nil {
		return nil, fmt.Errorf("unrecognized date %q", text)
	}
	t := r.Time
	return &t, nil
}

// Format renders t the way Parse reads it back, or "" for nil.
func Format(t *time.Time) string {
	if t == nil {
		return ""
	}
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
