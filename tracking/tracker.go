package tracking

import (
	"sort"
)

const (
	DefaultActivationThreshold = 0.5
	DefaultMatchIOU            = 0.2
	DefaultLostBuffer          = 30
	DefaultMinHits             = 2
)

// State is the lifecycle stage of a track.
type State int

const (
	StateTentative State = iota
	StateConfirmed
	StateLost
)

func (s State) String() string {
	switch s {
	case StateTentative:
		return "tentative"
	case StateConfirmed:
		return "confirmed"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Detection is a single detector box fed to the tracker.
type Detection struct {
	BBox       BBox
	Confidence float32
}

// Track is a persistent identity for a face moving across frames.
type Track struct {
	ID              int
	BBox            BBox
	Confidence      float32
	Age             int // frames since creation
	Hits            int // consecutive frames matched
	TimeSinceUpdate int // frames since last match
	State           State
}

type Config struct {
	// ActivationThreshold is the minimum confidence an unmatched detection needs to start a track.
	ActivationThreshold float32
	// MatchIOU is the minimum overlap for a detection to continue an existing track.
	MatchIOU float64
	// LostBuffer is how many frames a lost track is kept before it is destroyed.
	LostBuffer int
	// MinHits is how many consecutive matches promote a tentative track to confirmed.
	MinHits int
}

func DefaultConfig() Config {
	return Config{
		ActivationThreshold: DefaultActivationThreshold,
		MatchIOU:            DefaultMatchIOU,
		LostBuffer:          DefaultLostBuffer,
		MinHits:             DefaultMinHits,
	}
}

// Result is what one Update call produces.
type Result struct {
	// Active holds confirmed tracks matched in this frame, ordered by ID.
	Active []Track
	// Removed lists IDs of tracks destroyed in this frame.
	Removed []int
}

// Tracker associates detections across frames by greedy IOU matching. It is
// owned by a single feed loop and is not safe for concurrent use.
type Tracker struct {
	cfg    Config
	tracks map[int]*Track
	nextID int
}

func NewTracker(cfg Config) *Tracker {
	if cfg.MinHits <= 0 {
		cfg.MinHits = 1
	}
	if cfg.LostBuffer < 0 {
		cfg.LostBuffer = 0
	}
	if cfg.MatchIOU <= 0 {
		cfg.MatchIOU = DefaultMatchIOU
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int]*Track),
	}
}

type candidate struct {
	trackID int
	det     int
	iou     float64
}

// Update advances the tracker by one frame.
func (t *Tracker) Update(dets []Detection) Result {
	for _, tr := range t.tracks {
		tr.Age++
		tr.TimeSinceUpdate++
	}

	var cands []candidate
	for id, tr := range t.tracks {
		for di, det := range dets {
			iou := IOU(tr.BBox, det.BBox)
			if iou > 0 && iou >= t.cfg.MatchIOU {
				cands = append(cands, candidate{trackID: id, det: di, iou: iou})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].iou != cands[j].iou {
			return cands[i].iou > cands[j].iou
		}
		if cands[i].trackID != cands[j].trackID {
			return cands[i].trackID < cands[j].trackID
		}
		return cands[i].det < cands[j].det
	})

	trackMatched := make(map[int]bool, len(t.tracks))
	detMatched := make([]bool, len(dets))
	for _, c := range cands {
		if trackMatched[c.trackID] || detMatched[c.det] {
			continue
		}
		trackMatched[c.trackID] = true
		detMatched[c.det] = true

		tr := t.tracks[c.trackID]
		tr.BBox = dets[c.det].BBox
		tr.Confidence = dets[c.det].Confidence
		tr.Hits++
		tr.TimeSinceUpdate = 0
		switch tr.State {
		case StateLost:
			tr.State = StateConfirmed
		case StateTentative:
			if tr.Hits >= t.cfg.MinHits {
				tr.State = StateConfirmed
			}
		}
	}

	var res Result
	for id, tr := range t.tracks {
		if trackMatched[id] {
			continue
		}
		switch tr.State {
		case StateTentative:
			delete(t.tracks, id)
			res.Removed = append(res.Removed, id)
		case StateConfirmed:
			tr.State = StateLost
			tr.Hits = 0
		case StateLost:
			if tr.TimeSinceUpdate > t.cfg.LostBuffer {
				delete(t.tracks, id)
				res.Removed = append(res.Removed, id)
			}
		}
	}

	for di, det := range dets {
		if detMatched[di] || det.Confidence < t.cfg.ActivationThreshold {
			continue
		}
		t.nextID++
		state := StateTentative
		if t.cfg.MinHits <= 1 {
			state = StateConfirmed
		}
		t.tracks[t.nextID] = &Track{
			ID:         t.nextID,
			BBox:       det.BBox,
			Confidence: det.Confidence,
			Hits:       1,
			State:      state,
		}
	}

	for _, tr := range t.tracks {
		if tr.State == StateConfirmed && tr.TimeSinceUpdate == 0 {
			res.Active = append(res.Active, *tr)
		}
	}
	sort.Slice(res.Active, func(i, j int) bool { return res.Active[i].ID < res.Active[j].ID })
	sort.Ints(res.Removed)
	return res
}

// Track returns a copy of the track with the given ID.
func (t *Tracker) Track(id int) (Track, bool) {
	tr, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *tr, true
}

// Len returns the number of live tracks in any state.
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// Confirmed returns the number of tracks in the confirmed state.
func (t *Tracker) Confirmed() int {
	n := 0
	for _, tr := range t.tracks {
		if tr.State == StateConfirmed {
			n++
		}
	}
	return n
}

// Reset drops every track and restarts ID allocation.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*Track)
	t.nextID = 0
}
