package attendance

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/camden-git/attendancesys/notify"
	"github.com/camden-git/attendancesys/tracking"
)

const unknownAlertKey = "unknown"

// SnapshotWriter persists a cropped region of a frame and returns where it went.
type SnapshotWriter interface {
	SaveSnapshot(frame image.Image, region image.Rectangle, at time.Time) (string, error)
}

// UnknownLogger records an unidentified face.
type UnknownLogger interface {
	LogUnknown(ctx context.Context, snapshotPath string, embedding []float32, at time.Time) error
}

// AlertGate rate-limits the audible unknown-person alert across every feed.
// The cooldown is global, not per track: a second stranger inside the window
// stays silent.
type AlertGate struct {
	cooldown *CooldownPolicy
	alerts   Enqueuer
}

func NewAlertGate(window time.Duration, alerts Enqueuer) *AlertGate {
	if window <= 0 {
		window = DefaultUnknownAlertWindow
	}
	return &AlertGate{cooldown: NewCooldownPolicy(window), alerts: alerts}
}

// Trigger enqueues an alert unless one was raised within the window.
func (a *AlertGate) Trigger(now time.Time, snapshotPath string) bool {
	if !a.cooldown.TryAcquire(unknownAlertKey, now) {
		return false
	}
	if a.alerts != nil {
		a.alerts.Enqueue(notify.Notification{
			Kind:         notify.KindUnknownAlert,
			Text:         "Unknown person detected.",
			Time:         now,
			SnapshotPath: snapshotPath,
		})
	}
	return true
}

// UnknownHandler captures one snapshot per unresolved track. It belongs to a
// single feed; the AlertGate it holds may be shared.
type UnknownHandler struct {
	snapshots SnapshotWriter
	logger    UnknownLogger
	alerts    *AlertGate
	logged    map[int]bool
}

func NewUnknownHandler(snapshots SnapshotWriter, logger UnknownLogger, alerts *AlertGate) *UnknownHandler {
	return &UnknownHandler{
		snapshots: snapshots,
		logger:    logger,
		alerts:    alerts,
		logged:    make(map[int]bool),
	}
}

// Handle processes an unresolved track. It returns the operator message and
// whether the track was logged by this call. Tracks already logged, and
// tracks whose box falls outside the frame, are skipped; the latter stay
// eligible for a later frame.
func (h *UnknownHandler) Handle(ctx context.Context, frame image.Image, trackID int, box tracking.BBox, embedding []float32, now time.Time) (string, bool) {
	if h.logged[trackID] {
		return "", false
	}

	region := box.Clamp(frame.Bounds())
	if region.Empty() {
		return "", false
	}

	path, err := h.snapshots.SaveSnapshot(frame, region, now)
	if err != nil {
		log.Printf("unknown: ERROR saving snapshot for track %d: %v", trackID, err)
		return "", false
	}

	if h.logger != nil {
		if err := h.logger.LogUnknown(ctx, path, embedding, now); err != nil {
			log.Printf("unknown: ERROR logging track %d (%s): %v", trackID, path, err)
		}
	}
	if h.alerts != nil {
		h.alerts.Trigger(now, path)
	}

	h.logged[trackID] = true
	return fmt.Sprintf("Logged Unknown Person #%d", trackID), true
}

// Logged reports whether a track has already been captured.
func (h *UnknownHandler) Logged(trackID int) bool {
	return h.logged[trackID]
}

// Evict forgets destroyed tracks.
func (h *UnknownHandler) Evict(trackIDs []int) {
	for _, id := range trackIDs {
		delete(h.logged, id)
	}
}

func (h *UnknownHandler) Reset() {
	h.logged = make(map[int]bool)
}
