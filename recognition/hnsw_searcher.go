package recognition

import (
	"log"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/facette/natsort"
)

const (
	DefaultHNSWCandidates   = 10
	defaultHNSWMaxNeighbors = 16
)

// HNSWSearcher narrows large registries with an approximate nearest-neighbour
// graph and re-scores the candidates exactly, so thresholds and tie-breaking
// behave the same as a linear scan over the candidate set. The graph is
// rebuilt lazily whenever the face store version changes.
type HNSWSearcher struct {
	store      *FaceStore
	matcher    *Matcher
	candidates int

	mu      sync.Mutex
	graph   *hnsw.Graph[string]
	dims    int
	builtAt uint64
	built   bool
}

func NewHNSWSearcher(store *FaceStore, matcher *Matcher, candidates int) *HNSWSearcher {
	if candidates <= 0 {
		candidates = DefaultHNSWCandidates
	}
	return &HNSWSearcher{store: store, matcher: matcher, candidates: candidates}
}

func (s *HNSWSearcher) Search(query []float32) Match {
	snap := s.store.Snapshot()
	if snap.Len() == 0 || len(query) == 0 {
		return Match{}
	}
	// a graph buys nothing when the candidate set would be the whole registry
	if snap.Len() <= s.candidates {
		return s.matcher.BestMatch(query, snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.built || s.builtAt != snap.Version() {
		s.rebuild(snap)
	}
	if s.graph == nil || len(query) != s.dims {
		return s.matcher.BestMatch(query, snap)
	}

	nodes := s.graph.Search(query, s.candidates)
	cands := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		if e, ok := snap.Get(n.Key); ok {
			cands = append(cands, e)
		}
	}
	sort.Slice(cands, func(i, j int) bool { return natsort.Compare(cands[i].PersonID, cands[j].PersonID) })

	return bestOf(query, cands, s.matcher.Threshold())
}

func (s *HNSWSearcher) rebuild(snap *Registry) {
	s.built = true
	s.builtAt = snap.Version()
	s.graph = nil
	s.dims = 0

	entries := snap.Entries()
	if len(entries) == 0 {
		return
	}

	g := hnsw.NewGraph[string]()
	g.M = defaultHNSWMaxNeighbors
	g.Ml = 1.0 / float64(defaultHNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	dims := len(entries[0].Embedding)
	skipped := 0
	for _, e := range entries {
		if len(e.Embedding) != dims {
			skipped++
			continue
		}
		g.Add(hnsw.MakeNode(e.PersonID, e.Embedding))
	}
	if skipped > 0 {
		log.Printf("recognition: WARNING skipped %d embedding(s) with unexpected dimensions while building index", skipped)
	}

	s.graph = g
	s.dims = dims
	log.Printf("recognition: built HNSW index over %d face(s) (version %d)", len(entries)-skipped, s.builtAt)
}

var _ Searcher = (*HNSWSearcher)(nil)
