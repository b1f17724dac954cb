package recognition

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/camden-git/attendancesys/tracking"
)

type countingSearcher struct {
	inner Searcher
	calls int
}

func (c *countingSearcher) Search(q []float32) Match {
	c.calls++
	return c.inner.Search(q)
}

func newTestSearcher(t *testing.T, entries ...Entry) *countingSearcher {
	t.Helper()
	store := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	for _, e := range entries {
		store.Add(e.PersonID, e.Name, e.Embedding)
	}
	return &countingSearcher{inner: NewLinearSearcher(store, NewMatcher(DefaultThreshold))}
}

func track(id int, box tracking.BBox) tracking.Track {
	return tracking.Track{ID: id, BBox: box, State: tracking.StateConfirmed}
}

func TestResolverBindsOnce(t *testing.T) {
	s := newTestSearcher(t, Entry{PersonID: "E001", Name: "Alice", Embedding: []float32{1, 0}})
	r := NewResolver(s)
	box := tracking.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	now := time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC)

	res := r.Resolve([]tracking.Track{track(1, box)}, []Face{{BBox: box, Embedding: []float32{1, 0}}}, now)
	if len(res) != 1 || res[0].Status != StatusNewlyBound || res[0].Binding.PersonID != "E001" {
		t.Fatalf("first resolve = %+v, want newly bound to E001", res)
	}

	// a different face later must not rebind the track
	res = r.Resolve([]tracking.Track{track(1, box)}, []Face{{BBox: box, Embedding: []float32{0, 1}}}, now.Add(time.Second))
	if res[0].Status != StatusKnown || res[0].Binding.PersonID != "E001" {
		t.Errorf("second resolve = %+v, want cached E001", res[0])
	}
	if s.calls != 1 {
		t.Errorf("searcher called %d times, want 1", s.calls)
	}
	if got := res[0].Label(); got != "Alice (E001)" {
		t.Errorf("Label = %q", got)
	}
}

func TestResolverUnknownIsRetried(t *testing.T) {
	s := newTestSearcher(t, Entry{PersonID: "E001", Name: "Alice", Embedding: []float32{1, 0}})
	r := NewResolver(s)
	box := tracking.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	now := time.Now()

	res := r.Resolve([]tracking.Track{track(7, box)}, []Face{{BBox: box, Embedding: []float32{0, 1}}}, now)
	if res[0].Status != StatusUnknown {
		t.Fatalf("status = %v, want unknown", res[0].Status)
	}
	if got := res[0].Label(); got != "Unknown #7" {
		t.Errorf("Label = %q, want Unknown #7", got)
	}
	if r.Len() != 0 {
		t.Errorf("unknown result was cached")
	}

	res = r.Resolve([]tracking.Track{track(7, box)}, []Face{{BBox: box, Embedding: []float32{1, 0}}}, now)
	if res[0].Status != StatusNewlyBound {
		t.Errorf("retry status = %v, want newly bound", res[0].Status)
	}
}

func TestResolverRequiresOverlap(t *testing.T) {
	s := newTestSearcher(t, Entry{PersonID: "E001", Name: "Alice", Embedding: []float32{1, 0}})
	r := NewResolver(s)
	trackBox := tracking.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}

	tests := []struct {
		name string
		face Face
	}{
		{"far away face", Face{BBox: tracking.BBox{X1: 300, Y1: 300, X2: 400, Y2: 400}, Embedding: []float32{1, 0}}},
		{"half overlap", Face{BBox: tracking.BBox{X1: 50, Y1: 0, X2: 150, Y2: 100}, Embedding: []float32{1, 0}}},
		{"no embedding", Face{BBox: trackBox}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve([]tracking.Track{track(3, trackBox)}, []Face{tt.face}, time.Now())
			if res[0].Status != StatusNoFace {
				t.Errorf("status = %v, want no_face", res[0].Status)
			}
			if got := res[0].Label(); got != fmt.Sprintf("Tracking #%d", 3) {
				t.Errorf("Label = %q", got)
			}
		})
	}
	if s.calls != 0 {
		t.Errorf("searcher called %d times, want 0", s.calls)
	}
}

func TestResolverEvictAndReset(t *testing.T) {
	s := newTestSearcher(t, Entry{PersonID: "E001", Name: "Alice", Embedding: []float32{1, 0}})
	r := NewResolver(s)
	box := tracking.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	face := []Face{{BBox: box, Embedding: []float32{1, 0}}}

	r.Resolve([]tracking.Track{track(1, box), track(2, box)}, face, time.Now())
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	r.Evict([]int{1})
	if _, ok := r.Binding(1); ok {
		t.Error("binding 1 survived Evict")
	}
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", r.Len())
	}
}

func TestHNSWSearcherAgreesWithLinear(t *testing.T) {
	store := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	entries := make(map[string]Entry)
	for i := 0; i < 40; i++ {
		v := make([]float32, 8)
		v[i%8] = 1
		v[(i+1)%8] = float32(i) / 40
		id := fmt.Sprintf("P%02d", i)
		entries[id] = Entry{Name: id, Embedding: v}
	}
	store.Save(entries)

	matcher := NewMatcher(DefaultThreshold)
	linear := NewLinearSearcher(store, matcher)
	approx := NewHNSWSearcher(store, matcher, 10)

	query := entries["P17"].Embedding
	want := linear.Search(query)
	got := approx.Search(query)
	if got.PersonID != want.PersonID || !got.Found {
		t.Errorf("HNSW = %+v, linear = %+v", got, want)
	}

	if m := approx.Search([]float32{1, 2}); m.Found {
		t.Errorf("dimension mismatch matched %+v", m)
	}
}
