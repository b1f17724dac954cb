package notify

import (
	"context"
	"time"
)

// Kind classifies a notification so sinks can pick the ones they handle.
type Kind string

const (
	KindArrival      Kind = "arrival"
	KindDeparture    Kind = "departure"
	KindLateArrival  Kind = "late_arrival"
	KindUnknownAlert Kind = "unknown_alert"
)

// Notification is a side effect requested by the recognition pipeline. It is
// delivered asynchronously and never blocks frame processing.
type Notification struct {
	Kind     Kind      `json:"kind"`
	PersonID string    `json:"person_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
	// ClockTime is the wall-clock time recorded in the attendance row ("15:04:05").
	ClockTime    string `json:"clock_time,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// Sink delivers notifications to one channel (speaker, mail, websocket, ...).
type Sink interface {
	Name() string
	Accepts(kind Kind) bool
	Notify(ctx context.Context, n Notification) error
}

// KindSet is a convenience for sinks that accept a fixed set of kinds.
type KindSet map[Kind]bool

func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// Accepts reports whether k is in the set. An empty set accepts everything.
func (s KindSet) Accepts(k Kind) bool {
	if len(s) == 0 {
		return true
	}
	return s[k]
}
