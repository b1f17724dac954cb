package recognition

import (
	"fmt"
	"time"

	"github.com/camden-git/attendancesys/tracking"
)

// MinFaceOverlap is the IOU a face must exceed with a track box to be used for that track.
const MinFaceOverlap = 0.5

// Face is a detected face with its embedding, as produced for one frame.
type Face struct {
	BBox      tracking.BBox
	Embedding []float32
}

type Status int

const (
	// StatusKnown means the track was already bound; no search was run.
	StatusKnown Status = iota
	// StatusNewlyBound means a search matched and the track is now bound.
	StatusNewlyBound
	// StatusUnknown means an overlapping face was searched without a match.
	StatusUnknown
	// StatusNoFace means no face with an embedding overlapped the track.
	StatusNoFace
)

func (s Status) String() string {
	switch s {
	case StatusKnown:
		return "known"
	case StatusNewlyBound:
		return "newly_bound"
	case StatusUnknown:
		return "unknown"
	case StatusNoFace:
		return "no_face"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Binding ties a track to a registered person for the track's lifetime.
type Binding struct {
	PersonID string
	Name     string
	Score    float64
	BoundAt  time.Time
}

// Resolution is the identity outcome for one active track in one frame.
type Resolution struct {
	TrackID int
	BBox    tracking.BBox
	Status  Status
	Binding Binding
	// Face is the overlapping face used for the search, set for StatusNewlyBound and StatusUnknown.
	Face Face
}

// Recognized reports whether the track has an identity.
func (r Resolution) Recognized() bool {
	return r.Status == StatusKnown || r.Status == StatusNewlyBound
}

// Label is the overlay text for the track.
func (r Resolution) Label() string {
	switch r.Status {
	case StatusKnown, StatusNewlyBound:
		return fmt.Sprintf("%s (%s)", r.Binding.Name, r.Binding.PersonID)
	case StatusUnknown:
		return fmt.Sprintf("Unknown #%d", r.TrackID)
	default:
		return fmt.Sprintf("Tracking #%d", r.TrackID)
	}
}

// Resolver binds tracks to identities once and serves later frames from the
// binding cache. One Resolver belongs to one feed.
type Resolver struct {
	searcher Searcher
	bindings map[int]Binding
}

func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{
		searcher: searcher,
		bindings: make(map[int]Binding),
	}
}

// Resolve determines the identity of each track. Bound tracks are never searched
// again; unresolved tracks are retried on every frame they have an overlapping face.
func (r *Resolver) Resolve(tracks []tracking.Track, faces []Face, now time.Time) []Resolution {
	out := make([]Resolution, 0, len(tracks))
	for _, tr := range tracks {
		res := Resolution{TrackID: tr.ID, BBox: tr.BBox}

		if b, ok := r.bindings[tr.ID]; ok {
			res.Status = StatusKnown
			res.Binding = b
			out = append(out, res)
			continue
		}

		face, ok := bestOverlap(tr.BBox, faces)
		if !ok {
			res.Status = StatusNoFace
			out = append(out, res)
			continue
		}
		res.Face = face

		m := r.searcher.Search(face.Embedding)
		if !m.Found {
			res.Status = StatusUnknown
			out = append(out, res)
			continue
		}

		b := Binding{PersonID: m.PersonID, Name: m.Name, Score: m.Score, BoundAt: now}
		r.bindings[tr.ID] = b
		res.Status = StatusNewlyBound
		res.Binding = b
		out = append(out, res)
	}
	return out
}

func bestOverlap(box tracking.BBox, faces []Face) (Face, bool) {
	best := MinFaceOverlap
	var chosen Face
	found := false
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if iou := tracking.IOU(box, f.BBox); iou > best {
			best = iou
			chosen = f
			found = true
		}
	}
	return chosen, found
}

// Binding returns the cached binding for a track.
func (r *Resolver) Binding(trackID int) (Binding, bool) {
	b, ok := r.bindings[trackID]
	return b, ok
}

// Evict drops bindings for destroyed tracks.
func (r *Resolver) Evict(trackIDs []int) {
	for _, id := range trackIDs {
		delete(r.bindings, id)
	}
}

// Reset clears every binding.
func (r *Resolver) Reset() {
	r.bindings = make(map[int]Binding)
}

func (r *Resolver) Len() int {
	return len(r.bindings)
}
