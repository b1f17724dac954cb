package pipeline

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/notify"
)

// strangerDetector sees the same unregistered face on every frame.
type strangerDetector struct{}

func (strangerDetector) Detect(context.Context, image.Image) ([]Detection, error) {
	return []Detection{stranger()}, nil
}

type sharedSnapshots struct {
	mu    sync.Mutex
	saved int
}

func (s *sharedSnapshots) SaveSnapshot(image.Image, image.Rectangle, time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	return "unknown/snap.jpg", nil
}

func (s *sharedSnapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

type alertQueue struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (q *alertQueue) Enqueue(n notify.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kinds = append(q.kinds, n.Kind)
	return true
}

func (q *alertQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.kinds)
}

func sharedDeps(snaps attendance.SnapshotWriter, alerts attendance.Enqueuer) SharedDeps {
	return SharedDeps{
		Detector:  strangerDetector{},
		Searcher:  mapSearcher{1: {PersonID: "E001", Name: "Alice", Score: 0.9, Found: true}},
		Gate:      attendance.NewGate(newFakeStore(), attendance.GateOptions{}),
		Alerts:    attendance.NewAlertGate(15*time.Second, alerts),
		Snapshots: snaps,
		Clock:     steppingClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local), 100*time.Millisecond),
	}
}

func openerFor(src Source) SourceOpener {
	return SourceOpenerFunc(func(context.Context) (Source, error) { return src, nil })
}

func TestBuildFeedsCapturesUnknownPerFeed(t *testing.T) {
	snaps := &sharedSnapshots{}
	alerts := &alertQueue{}
	feeds := BuildFeeds([]FeedSource{
		{ID: "cam0", Opener: openerFor(&sliceSource{frames: 4})},
		{ID: "cam1", Opener: openerFor(&sliceSource{frames: 4})},
	}, sharedDeps(snaps, alerts))

	if len(feeds) != 2 || feeds[0].ID != "cam0" || feeds[1].ID != "cam1" {
		t.Fatalf("feeds = %v", feeds)
	}
	if feeds[0].proc.unknown == feeds[1].proc.unknown {
		t.Fatal("feeds share an unknown handler")
	}

	m := NewManager(feeds...)
	m.Start(context.Background())
	if errs := m.Wait(); len(errs) != 0 {
		t.Fatalf("errors = %v", errs)
	}

	// both feeds number their stranger track #1
	if got := snaps.count(); got != 2 {
		t.Errorf("snapshots = %d, want one per feed", got)
	}
	if got := alerts.count(); got != 1 {
		t.Errorf("alerts = %d, want 1 inside the cooldown window", got)
	}
}

func TestBuildFeedsWithoutSnapshots(t *testing.T) {
	feeds := BuildFeeds([]FeedSource{{ID: "cam0", Opener: openerFor(&sliceSource{})}}, sharedDeps(nil, nil))
	if feeds[0].proc.unknown != nil {
		t.Error("unknown capture should be disabled without a snapshot writer")
	}
}

func TestManagerResetLeavesOtherFeeds(t *testing.T) {
	snaps := &sharedSnapshots{}
	alerts := &alertQueue{}
	cam1Ready := make(chan struct{})
	checked := make(chan struct{})

	var m *Manager
	var feeds []*Feed
	var cam0Before, cam0After, cam1After bool

	cam0 := &sliceSource{frames: 6, onRead: func(i int) {
		switch i {
		case 3:
			<-cam1Ready
			cam0Before = feeds[0].proc.unknown.Logged(1)
			// honoured before the next read
			m.Reset("cam0")
		case 4:
			cam0After = feeds[0].proc.unknown.Logged(1)
			cam1After = feeds[1].proc.unknown.Logged(1)
			close(checked)
		}
	}}
	cam1 := &sliceSource{frames: 4, onRead: func(i int) {
		if i == 3 {
			close(cam1Ready)
			<-checked
		}
	}}

	feeds = BuildFeeds([]FeedSource{
		{ID: "cam0", Opener: openerFor(cam0)},
		{ID: "cam1", Opener: openerFor(cam1)},
	}, sharedDeps(snaps, alerts))
	m = NewManager(feeds...)
	m.Start(context.Background())
	if errs := m.Wait(); len(errs) != 0 {
		t.Fatalf("errors = %v", errs)
	}

	if !cam0Before {
		t.Error("cam0 did not capture its stranger before the reset")
	}
	if cam0After {
		t.Error("cam0 still holds track #1 after its reset")
	}
	if !cam1After {
		t.Error("resetting cam0 cleared cam1's captured tracks")
	}
	if got := alerts.count(); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}
}
