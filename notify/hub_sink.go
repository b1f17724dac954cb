package notify

import (
	"context"

	"github.com/camden-git/attendancesys/realtime"
)

// HubSink forwards every notification to websocket clients.
type HubSink struct {
	hub *realtime.Hub
}

func NewHubSink(hub *realtime.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "realtime" }

func (s *HubSink) Accepts(Kind) bool { return true }

func (s *HubSink) Notify(_ context.Context, n Notification) error {
	ev := realtime.Event{
		Type:     realtime.EventNotify,
		Kind:     string(n.Kind),
		PersonID: n.PersonID,
		Name:     n.Name,
		Message:  n.Text,
		Path:     n.SnapshotPath,
	}
	if !n.Time.IsZero() {
		ev.Timestamp = n.Time.Unix()
	}
	s.hub.Broadcast(ev)
	return nil
}
