package pipeline

import (
	"context"
	"image"
	"log"
	"time"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/tracking"
)

// ProcessorDeps wires a Processor. Gate is shared by every feed; the tracker,
// resolver and unknown handler are created per feed.
type ProcessorDeps struct {
	Detector Detector
	Searcher recognition.Searcher
	Gate     *attendance.Gate
	// Unknown may be nil to disable unknown-person capture.
	Unknown *attendance.UnknownHandler
	// Events may be nil.
	Events  Publisher
	Tracker tracking.Config
}

// Processor runs the per-frame pipeline for one feed. It is not safe for
// concurrent use.
type Processor struct {
	feed     string
	detector Detector
	tracker  *tracking.Tracker
	resolver *recognition.Resolver
	gate     *attendance.Gate
	unknown  *attendance.UnknownHandler
	events   Publisher
}

func NewProcessor(feed string, deps ProcessorDeps) *Processor {
	if deps.Tracker == (tracking.Config{}) {
		deps.Tracker = tracking.DefaultConfig()
	}
	return &Processor{
		feed:     feed,
		detector: deps.Detector,
		tracker:  tracking.NewTracker(deps.Tracker),
		resolver: recognition.NewResolver(deps.Searcher),
		gate:     deps.Gate,
		unknown:  deps.Unknown,
		events:   deps.Events,
	}
}

// Process runs detection, tracking, identity resolution and the attendance
// side effects for one frame.
func (p *Processor) Process(ctx context.Context, frame image.Image, now time.Time) FrameResult {
	res := FrameResult{Time: now}

	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		log.Printf("processor: [%s] ERROR detecting faces: %v", p.feed, err)
		res.Err = err
		return res
	}
	res.Detections = dets

	boxes := make([]tracking.Detection, 0, len(dets))
	faces := make([]recognition.Face, 0, len(dets))
	for _, d := range dets {
		boxes = append(boxes, tracking.Detection{BBox: d.BBox, Confidence: d.Confidence})
		faces = append(faces, recognition.Face{BBox: d.BBox, Embedding: d.Embedding})
	}

	upd := p.tracker.Update(boxes)
	if len(upd.Removed) > 0 {
		p.resolver.Evict(upd.Removed)
		if p.unknown != nil {
			p.unknown.Evict(upd.Removed)
		}
	}

	for _, r := range p.resolver.Resolve(upd.Active, faces, now) {
		view := TrackView{
			TrackID: r.TrackID,
			BBox:    r.BBox,
			Status:  r.Status,
			Label:   r.Label(),
		}

		switch {
		case r.Recognized():
			view.PersonID = r.Binding.PersonID
			view.Name = r.Binding.Name
			view.Score = r.Binding.Score
			if p.gate == nil {
				break
			}
			out := p.gate.ProcessRecognized(ctx, r.Binding.PersonID, r.Binding.Name, now)
			if msg := out.Message(); msg != "" {
				res.Messages = append(res.Messages, msg)
				p.publish(realtime.Event{
					Type:     realtime.EventAttendance,
					PersonID: out.PersonID,
					Name:     out.Name,
					Kind:     out.Result.Kind.String(),
					Message:  msg,
				}, now)
			}

		case r.Status == recognition.StatusUnknown && p.unknown != nil:
			msg, logged := p.unknown.Handle(ctx, frame, r.TrackID, r.BBox, r.Face.Embedding, now)
			if logged {
				res.Messages = append(res.Messages, msg)
				p.publish(realtime.Event{Type: realtime.EventUnknown, Message: msg}, now)
			}
		}

		res.Tracks = append(res.Tracks, view)
	}
	return res
}

func (p *Processor) publish(ev realtime.Event, now time.Time) {
	if p.events == nil {
		return
	}
	ev.Feed = p.feed
	ev.Timestamp = now.Unix()
	p.events.Broadcast(ev)
}

// ActiveTracks returns the number of confirmed tracks. Tentative and lost
// tracks are not counted.
func (p *Processor) ActiveTracks() int {
	return p.tracker.Confirmed()
}

// Reset forgets tracks, identity bindings and captured unknowns.
func (p *Processor) Reset() {
	p.tracker.Reset()
	p.resolver.Reset()
	if p.unknown != nil {
		p.unknown.Reset()
	}
}
