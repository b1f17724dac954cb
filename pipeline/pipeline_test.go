package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/tracking"
)

// scriptedDetector returns frames[i] on the i-th call and nothing afterwards.
type scriptedDetector struct {
	frames [][]Detection
	calls  int
	err    error
}

func (d *scriptedDetector) Detect(context.Context, image.Image) ([]Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	defer func() { d.calls++ }()
	if d.calls < len(d.frames) {
		return d.frames[d.calls], nil
	}
	return nil, nil
}

// mapSearcher matches an embedding by its first component.
type mapSearcher map[float32]recognition.Match

func (s mapSearcher) Search(q []float32) recognition.Match {
	if len(q) == 0 {
		return recognition.Match{}
	}
	return s[q[0]]
}

type fakeStore struct {
	mu     sync.Mutex
	people map[string]attendance.PersonInfo
	rows   map[string]string
	logs   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		people: map[string]attendance.PersonInfo{
			"E001": {PersonID: "E001", Name: "Alice", ShiftStart: "09:00", ShiftEnd: "18:00"},
		},
		rows: map[string]string{},
	}
}

func (s *fakeStore) Lookup(_ context.Context, id string) (attendance.PersonInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[id]
	return p, ok, nil
}

func (s *fakeStore) InsertArrival(_ context.Context, id, date, clock string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id + "/" + date
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = clock
	return true, nil
}

func (s *fakeStore) UpdateLeaving(_ context.Context, id, date, clock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id+"/"+date] = clock
	return nil
}

func (s *fakeStore) LogSighting(context.Context, string, string, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs++
	return nil
}

type fakeSnapshots struct{ saved []image.Rectangle }

func (f *fakeSnapshots) SaveSnapshot(_ image.Image, region image.Rectangle, _ time.Time) (string, error) {
	f.saved = append(f.saved, region)
	return "unknown/snap.jpg", nil
}

type eventLog struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (e *eventLog) Broadcast(ev realtime.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

var (
	aliceBox   = tracking.BBox{X1: 10, Y1: 10, X2: 60, Y2: 60}
	strangeBox = tracking.BBox{X1: 100, Y1: 10, X2: 150, Y2: 60}
	frameImg   = image.NewRGBA(image.Rect(0, 0, 200, 100))
)

func alice() Detection {
	return Detection{BBox: aliceBox, Confidence: 0.9, Embedding: []float32{1}}
}

func stranger() Detection {
	return Detection{BBox: strangeBox, Confidence: 0.9, Embedding: []float32{2}}
}

func newTestProcessor(det Detector, store attendance.Store, snaps attendance.SnapshotWriter, events Publisher) *Processor {
	searcher := mapSearcher{1: {PersonID: "E001", Name: "Alice", Score: 0.9, Found: true}}
	var unknown *attendance.UnknownHandler
	if snaps != nil {
		unknown = attendance.NewUnknownHandler(snaps, nil, nil)
	}
	return NewProcessor("cam0", ProcessorDeps{
		Detector: det,
		Searcher: searcher,
		Gate:     attendance.NewGate(store, attendance.GateOptions{}),
		Unknown:  unknown,
		Events:   events,
	})
}

func TestProcessorRecognizesAndLogsIn(t *testing.T) {
	det := &scriptedDetector{frames: [][]Detection{{alice()}, {alice()}, {alice()}}}
	store := newFakeStore()
	events := &eventLog{}
	p := newTestProcessor(det, store, nil, events)
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

	// first frame: tentative track, nothing active yet
	res := p.Process(context.Background(), frameImg, t0)
	if len(res.Tracks) != 0 || len(res.Messages) != 0 {
		t.Fatalf("frame 1 = %+v, want no active tracks", res)
	}

	res = p.Process(context.Background(), frameImg, t0.Add(time.Second))
	if len(res.Tracks) != 1 {
		t.Fatalf("frame 2 tracks = %d, want 1", len(res.Tracks))
	}
	tr := res.Tracks[0]
	if tr.Status != recognition.StatusNewlyBound || tr.Label != "Alice (E001)" || tr.PersonID != "E001" {
		t.Errorf("track = %+v", tr)
	}
	if len(res.Messages) != 1 || res.Messages[0] != "Alice: LOGIN: 09:00:01" {
		t.Errorf("messages = %v", res.Messages)
	}

	// bound track stays bound; sync cooldown suppresses a second write
	res = p.Process(context.Background(), frameImg, t0.Add(2*time.Second))
	if res.Tracks[0].Status != recognition.StatusKnown || len(res.Messages) != 0 {
		t.Errorf("frame 3 = %+v", res)
	}
	if store.rows["E001/2025-03-10"] != "09:00:01" {
		t.Errorf("attendance rows = %v", store.rows)
	}
	if len(events.events) != 1 || events.events[0].Type != realtime.EventAttendance || events.events[0].Feed != "cam0" {
		t.Errorf("events = %+v", events.events)
	}
}

func TestProcessorCapturesUnknownOnce(t *testing.T) {
	frames := make([][]Detection, 5)
	for i := range frames {
		frames[i] = []Detection{stranger()}
	}
	det := &scriptedDetector{frames: frames}
	snaps := &fakeSnapshots{}
	p := newTestProcessor(det, newFakeStore(), snaps, nil)
	t0 := time.Now()

	var messages []string
	for i := range frames {
		res := p.Process(context.Background(), frameImg, t0.Add(time.Duration(i)*time.Second))
		messages = append(messages, res.Messages...)
		if i > 0 && (len(res.Tracks) != 1 || res.Tracks[0].Label != "Unknown #1") {
			t.Fatalf("frame %d tracks = %+v", i, res.Tracks)
		}
	}
	if len(messages) != 1 || messages[0] != "Logged Unknown Person #1" {
		t.Errorf("messages = %v", messages)
	}
	if len(snaps.saved) != 1 || snaps.saved[0] != image.Rect(100, 10, 150, 60) {
		t.Errorf("snapshots = %v", snaps.saved)
	}
}

func TestProcessorNoFaceLabel(t *testing.T) {
	noEmb := Detection{BBox: aliceBox, Confidence: 0.9}
	det := &scriptedDetector{frames: [][]Detection{{noEmb}, {noEmb}}}
	p := newTestProcessor(det, newFakeStore(), nil, nil)

	p.Process(context.Background(), frameImg, time.Now())
	res := p.Process(context.Background(), frameImg, time.Now())
	if len(res.Tracks) != 1 || res.Tracks[0].Label != "Tracking #1" {
		t.Errorf("tracks = %+v", res.Tracks)
	}
}

func TestProcessorActiveTracksCountsConfirmed(t *testing.T) {
	det := &scriptedDetector{frames: [][]Detection{{alice()}, {alice()}, {}}}
	p := newTestProcessor(det, newFakeStore(), nil, nil)
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

	for i, want := range []int{0, 1, 0} {
		p.Process(context.Background(), frameImg, t0.Add(time.Duration(i)*time.Second))
		if got := p.ActiveTracks(); got != want {
			t.Errorf("frame %d: ActiveTracks = %d, want %d", i+1, got, want)
		}
	}
}

func TestProcessorDetectorError(t *testing.T) {
	det := &scriptedDetector{err: errors.New("net failed")}
	p := newTestProcessor(det, newFakeStore(), nil, nil)

	res := p.Process(context.Background(), frameImg, time.Now())
	if res.Err == nil || len(res.Tracks) != 0 {
		t.Errorf("result = %+v, want error and no tracks", res)
	}
}

type sliceSource struct {
	frames int
	read   int
	closed bool
	// onRead runs before each frame is returned.
	onRead func(i int)
}

func (s *sliceSource) Read(ctx context.Context) (image.Image, error) {
	if s.read >= s.frames {
		return nil, ErrEndOfStream
	}
	if s.onRead != nil {
		s.onRead(s.read)
	}
	s.read++
	return frameImg, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type jpegRenderer struct {
	calls    int
	overlays []Overlay
	quitAt   int
}

func (r *jpegRenderer) Render(_ image.Image, _ FrameResult, ov Overlay) ([]byte, error) {
	r.calls++
	r.overlays = append(r.overlays, ov)
	if r.quitAt > 0 && r.calls >= r.quitAt {
		return []byte{0xff, 0xd8}, ErrQuit
	}
	return []byte{0xff, 0xd8}, nil
}

func (r *jpegRenderer) Close() error { return nil }

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func TestFeedRunUntilEndOfStream(t *testing.T) {
	frames := make([][]Detection, 10)
	for i := range frames {
		frames[i] = []Detection{alice()}
	}
	det := &scriptedDetector{frames: frames}
	p := newTestProcessor(det, newFakeStore(), nil, nil)
	src := &sliceSource{frames: 10}
	rend := &jpegRenderer{}

	feed := NewFeed("cam0", SourceOpenerFunc(func(context.Context) (Source, error) { return src, nil }), p, FeedOptions{
		Renderer: rend,
		Stats:    func(context.Context) (int, int) { return 3, 1 },
		Clock:    steppingClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local), 500*time.Millisecond),
	})

	if err := feed.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	if p.ActiveTracks() != 0 {
		t.Error("tracker not reset on exit")
	}
	st := feed.Status()
	if st.Running || st.Frames != 10 {
		t.Errorf("status = %+v", st)
	}
	if st.FPS < 1.9 || st.FPS > 2.1 {
		t.Errorf("FPS = %v, want about 2", st.FPS)
	}
	if jpeg, ok := feed.LatestFrame(); !ok || len(jpeg) != 2 {
		t.Error("latest frame not kept")
	}
	last := rend.overlays[len(rend.overlays)-1]
	if last.Registered != 3 || last.Present != 1 || last.Feed != "cam0" {
		t.Errorf("overlay = %+v", last)
	}
}

func TestFeedStatsDoNotHoldStatusLock(t *testing.T) {
	p := newTestProcessor(&scriptedDetector{}, newFakeStore(), nil, nil)
	var feed *Feed
	var seen []int64
	stats := func(context.Context) (int, int) {
		// a slow statistics query must not block status readers
		seen = append(seen, feed.Status().Frames)
		return 5, 2
	}
	feed = NewFeed("cam0", SourceOpenerFunc(func(context.Context) (Source, error) { return &sliceSource{frames: 3}, nil }), p, FeedOptions{
		Stats: stats,
		Clock: steppingClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local), time.Second),
	})

	done := make(chan error, 1)
	go func() { done <- feed.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed deadlocked reading its own status from the stats callback")
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("frames seen by stats = %v, want [0 1 2]", seen)
	}
}

func TestFeedStopsOnQuit(t *testing.T) {
	p := newTestProcessor(&scriptedDetector{}, newFakeStore(), nil, nil)
	src := &sliceSource{frames: 100}
	feed := NewFeed("cam0", SourceOpenerFunc(func(context.Context) (Source, error) { return src, nil }), p, FeedOptions{
		Renderer: &jpegRenderer{quitAt: 3},
	})
	if err := feed.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.read != 3 {
		t.Errorf("read %d frames, want 3", src.read)
	}
}

func TestFeedResetRequest(t *testing.T) {
	frames := make([][]Detection, 6)
	for i := range frames {
		frames[i] = []Detection{alice()}
	}
	p := newTestProcessor(&scriptedDetector{frames: frames}, newFakeStore(), nil, nil)

	var feed *Feed
	tracksAtReset := -1
	src := &sliceSource{frames: 6, onRead: func(i int) {
		if i == 3 {
			// honoured at the top of the next iteration
			feed.RequestReset()
		}
		if i == 4 {
			tracksAtReset = p.ActiveTracks()
		}
	}}
	feed = NewFeed("cam0", SourceOpenerFunc(func(context.Context) (Source, error) { return src, nil }), p, FeedOptions{})

	if err := feed.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tracksAtReset != 0 {
		t.Errorf("tracks after reset = %d, want 0", tracksAtReset)
	}
}

func TestManagerReportsFailingFeed(t *testing.T) {
	good := NewFeed("cam0",
		SourceOpenerFunc(func(context.Context) (Source, error) { return &sliceSource{frames: 2}, nil }),
		newTestProcessor(&scriptedDetector{}, newFakeStore(), nil, nil), FeedOptions{})
	bad := NewFeed("cam1",
		SourceOpenerFunc(func(context.Context) (Source, error) { return nil, errors.New("camera busy") }),
		newTestProcessor(&scriptedDetector{}, newFakeStore(), nil, nil), FeedOptions{})

	m := NewManager(bad, good)
	m.Start(context.Background())
	errs := m.Wait()

	if len(errs) != 1 || errs["cam1"] == nil || !strings.Contains(errs["cam1"].Error(), "camera busy") {
		t.Errorf("errors = %v", errs)
	}
	st := m.Statuses()
	if len(st) != 2 || st[0].ID != "cam0" || st[0].Frames != 2 || st[1].LastError == "" {
		t.Errorf("statuses = %+v", st)
	}
	if !m.Reset("cam0") || m.Reset("nope") {
		t.Error("Reset should report whether the feed exists")
	}
}

func TestFeedCancelledContext(t *testing.T) {
	p := newTestProcessor(&scriptedDetector{}, newFakeStore(), nil, nil)
	src := &sliceSource{frames: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	src.onRead = func(i int) {
		if i == 5 {
			cancel()
		}
	}
	feed := NewFeed("cam0", SourceOpenerFunc(func(context.Context) (Source, error) { return src, nil }), p, FeedOptions{})
	if err := feed.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.closed || src.read > 7 {
		t.Errorf("closed=%v read=%d", src.closed, src.read)
	}
}
