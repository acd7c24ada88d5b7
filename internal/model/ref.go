package model

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind tells which identity spaces a record is known in.
type RefKind string

const (
	RefLocal  RefKind = "local"
	RefRemote RefKind = "remote"
	RefSynced RefKind = "synced"
)

// Ref identifies a record across the local store and the backend.
type Ref struct {
	Kind     RefKind `json:"kind" yaml:"kind" toml:"kind"`
	LocalID  int64   `json:"local_id,omitempty" yaml:"local_id,omitempty" toml:"local_id,omitempty"`
	RemoteID string  `json:"remote_id,omitempty" yaml:"remote_id,omitempty" toml:"remote_id,omitempty"`
}

// LocalRef returns a Ref for a record that only exists on this device.
func LocalRef(localID int64) Ref {
	return Ref{Kind: RefLocal, LocalID: localID}
}

// RemoteRef returns a Ref for a record only known by its backend id.
func RemoteRef(remoteID string) Ref {
	return Ref{Kind: RefRemote, RemoteID: remoteID}
}

// SyncedRef returns a Ref known on both sides.
func SyncedRef(localID int64, remoteID string) Ref {
	return Ref{Kind: RefSynced, LocalID: localID, RemoteID: remoteID}
}

// NewRef derives the kind from which ids are present.
func NewRef(localID int64, remoteID string) Ref {
	switch {
	case localID > 0 && remoteID != "":
		return SyncedRef(localID, remoteID)
	case remoteID != "":
		return RemoteRef(remoteID)
	default:
		return LocalRef(localID)
	}
}

// WithRemote returns a copy of r linked to remoteID.
func (r Ref) WithRemote(remoteID string) Ref {
	return NewRef(r.LocalID, remoteID)
}

// WithLocal returns a copy of r linked to localID.
func (r Ref) WithLocal(localID int64) Ref {
	return NewRef(localID, r.RemoteID)
}

// HasLocal reports whether the record is stored on this device.
func (r Ref) HasLocal() bool { return r.LocalID > 0 }

// HasRemote reports whether the backend has assigned an id.
func (r Ref) HasRemote() bool { return r.RemoteID != "" }

// IsZero reports whether r identifies nothing.
func (r Ref) IsZero() bool { return r.LocalID == 0 && r.RemoteID == "" }

// ID returns the live id of the record.
func (r Ref) ID() string {
	if r.RemoteID != "" {
		return r.RemoteID
	}
	if r.LocalID > 0 {
		return strconv.FormatInt(r.LocalID, 10)
	}
	return ""
}

// Matches reports whether id names this record in either identity space.
func (r Ref) Matches(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if r.RemoteID != "" && r.RemoteID == id {
		return true
	}
	if r.LocalID > 0 {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n == r.LocalID {
			return true
		}
	}
	return false
}

// SameRecord reports whether two refs share any id.
func (r Ref) SameRecord(other Ref) bool {
	if r.RemoteID != "" && r.RemoteID == other.RemoteID {
		return true
	}
	return r.LocalID > 0 && r.LocalID == other.LocalID
}

func (r Ref) String() string {
	switch r.Kind {
	case RefSynced:
		return fmt.Sprintf("%d/%s", r.LocalID, r.RemoteID)
	case RefRemote:
		return "remote:" + r.RemoteID
	default:
		return "local:" + strconv.FormatInt(r.LocalID, 10)
	}
}

// ParseLooseID interprets an id string coming from the wire or a user.
// Decimal strings become local refs; anything else is a backend id.
func ParseLooseID(id string) Ref {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
		return LocalRef(n)
	}
	return RemoteRef(id)
}
