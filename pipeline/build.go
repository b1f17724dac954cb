package pipeline

import (
	"time"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/tracking"
)

// FeedSource describes one camera to assemble.
type FeedSource struct {
	ID     string
	Opener SourceOpener
	// Renderer may be nil.
	Renderer Renderer
}

// SharedDeps are the components every feed uses. Each feed still gets its
// own tracker, resolver and unknown handler.
type SharedDeps struct {
	Detector Detector
	Searcher recognition.Searcher
	Gate     *attendance.Gate
	// Alerts rate-limits the unknown-person alert across all feeds.
	Alerts *attendance.AlertGate
	// Snapshots may be nil to disable unknown-person capture.
	Snapshots attendance.SnapshotWriter
	Unknowns  attendance.UnknownLogger
	Events    Publisher
	Tracker   tracking.Config
	Stats     StatsFunc
	Clock     func() time.Time
}

// BuildFeeds assembles one Feed per source.
func BuildFeeds(sources []FeedSource, shared SharedDeps) []*Feed {
	feeds := make([]*Feed, 0, len(sources))
	for _, src := range sources {
		var unknown *attendance.UnknownHandler
		if shared.Snapshots != nil {
			unknown = attendance.NewUnknownHandler(shared.Snapshots, shared.Unknowns, shared.Alerts)
		}
		proc := NewProcessor(src.ID, ProcessorDeps{
			Detector: shared.Detector,
			Searcher: shared.Searcher,
			Gate:     shared.Gate,
			Unknown:  unknown,
			Events:   shared.Events,
			Tracker:  shared.Tracker,
		})
		feeds = append(feeds, NewFeed(src.ID, src.Opener, proc, FeedOptions{
			Renderer: src.Renderer,
			Stats:    shared.Stats,
			Clock:    shared.Clock,
		}))
	}
	return feeds
}
