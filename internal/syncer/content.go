package syncer

import (
	"strings"
	"time"
)

// contentKey identifies a record by title and creation second. Two sides
// that created the same record before exchanging ids agree on both.
type contentKey struct {
	title   string
	created int64
}

func keyOf(title string, created time.Time) contentKey {
	return contentKey{title: strings.TrimSpace(title), created: created.Unix()}
}
