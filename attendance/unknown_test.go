package attendance

import (
	"context"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/camden-git/attendancesys/notify"
	"github.com/camden-git/attendancesys/tracking"
)

type fakeSnapshots struct {
	regions []image.Rectangle
}

func (f *fakeSnapshots) SaveSnapshot(_ image.Image, region image.Rectangle, _ time.Time) (string, error) {
	f.regions = append(f.regions, region)
	return fmt.Sprintf("snapshots/unknown_%d.jpg", len(f.regions)), nil
}

type fakeUnknownLog struct {
	paths []string
}

func (f *fakeUnknownLog) LogUnknown(_ context.Context, path string, _ []float32, _ time.Time) error {
	f.paths = append(f.paths, path)
	return nil
}

func newFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func TestUnknownHandlerOneSnapshotPerTrack(t *testing.T) {
	snaps := &fakeSnapshots{}
	logs := &fakeUnknownLog{}
	h := NewUnknownHandler(snaps, logs, NewAlertGate(0, nil))
	frame := newFrame()
	box := tracking.BBox{X1: 10, Y1: 10, X2: 110, Y2: 110}
	now := at(12, 0, 0)

	msg, logged := h.Handle(context.Background(), frame, 4, box, []float32{1}, now)
	if !logged || msg != "Logged Unknown Person #4" {
		t.Fatalf("Handle = (%q, %v)", msg, logged)
	}
	for i := 0; i < 3; i++ {
		if _, logged := h.Handle(context.Background(), frame, 4, box, []float32{1}, now.Add(time.Duration(i)*time.Second)); logged {
			t.Fatalf("track 4 logged twice")
		}
	}
	if len(snaps.regions) != 1 || len(logs.paths) != 1 {
		t.Errorf("snapshots = %d, logs = %d, want 1 each", len(snaps.regions), len(logs.paths))
	}
}

func TestUnknownHandlerClampsAndSkipsEmpty(t *testing.T) {
	snaps := &fakeSnapshots{}
	h := NewUnknownHandler(snaps, nil, nil)
	frame := newFrame()

	_, logged := h.Handle(context.Background(), frame, 1, tracking.BBox{X1: 700, Y1: 500, X2: 800, Y2: 600}, nil, at(12, 0, 0))
	if logged || h.Logged(1) {
		t.Fatal("box outside frame was logged")
	}

	_, logged = h.Handle(context.Background(), frame, 1, tracking.BBox{X1: 600, Y1: -20, X2: 700, Y2: 40}, nil, at(12, 0, 1))
	if !logged {
		t.Fatal("track stayed unlogged after a valid box")
	}
	if want := image.Rect(600, 0, 640, 40); snaps.regions[0] != want {
		t.Errorf("region = %v, want %v", snaps.regions[0], want)
	}
}

func TestAlertGateGlobalCooldown(t *testing.T) {
	queue := &recordingQueue{}
	alerts := NewAlertGate(DefaultUnknownAlertWindow, queue)
	feedA := NewUnknownHandler(&fakeSnapshots{}, nil, alerts)
	feedB := NewUnknownHandler(&fakeSnapshots{}, nil, alerts)
	frame := newFrame()
	box := tracking.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}
	t0 := at(12, 0, 0)

	feedA.Handle(context.Background(), frame, 1, box, nil, t0)
	feedB.Handle(context.Background(), frame, 1, box, nil, t0.Add(5*time.Second))
	feedA.Handle(context.Background(), frame, 2, box, nil, t0.Add(10*time.Second))
	if n := len(queue.kinds()); n != 1 {
		t.Fatalf("alerts within 15s = %d, want 1", n)
	}

	feedA.Handle(context.Background(), frame, 3, box, nil, t0.Add(16*time.Second))
	kinds := queue.kinds()
	if len(kinds) != 2 || kinds[1] != notify.KindUnknownAlert {
		t.Errorf("alerts = %v, want two unknown alerts", kinds)
	}
}

func TestUnknownHandlerEvictAndReset(t *testing.T) {
	h := NewUnknownHandler(&fakeSnapshots{}, nil, nil)
	frame := newFrame()
	box := tracking.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}

	h.Handle(context.Background(), frame, 1, box, nil, at(12, 0, 0))
	h.Handle(context.Background(), frame, 2, box, nil, at(12, 0, 0))
	h.Evict([]int{1})
	if h.Logged(1) || !h.Logged(2) {
		t.Error("Evict removed the wrong track")
	}
	h.Reset()
	if h.Logged(2) {
		t.Error("Reset kept track 2")
	}
}
