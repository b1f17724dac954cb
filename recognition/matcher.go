package recognition

import (
	"sync"
)

const DefaultThreshold = 0.6

// Match is the outcome of a registry search. Found is false when no entry
// cleared the threshold; Score is 0 in that case.
type Match struct {
	PersonID string
	Name     string
	Score    float64
	Found    bool
}

// Matcher scores query embeddings against a registry under a similarity
// threshold that can be changed at runtime.
type Matcher struct {
	mu        sync.RWMutex
	threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold accepts values in [0, 1] and reports whether the value was applied.
func (m *Matcher) SetThreshold(t float64) bool {
	if t < 0 || t > 1 {
		return false
	}
	m.mu.Lock()
	m.threshold = t
	m.mu.Unlock()
	return true
}

// BestMatch returns the registry entry most similar to query. An entry is only
// taken when it strictly beats both the threshold and the best score so far,
// so on equal scores the entry earliest in natural person-id order wins.
func (m *Matcher) BestMatch(query []float32, reg *Registry) Match {
	return bestOf(query, reg.Entries(), m.Threshold())
}

// Verify reports whether query matches the given person. Unknown IDs return (false, 0).
func (m *Matcher) Verify(personID string, query []float32, reg *Registry) (bool, float64) {
	e, ok := reg.Get(personID)
	if !ok {
		return false, 0
	}
	sim := Similarity(query, e.Embedding)
	return sim > m.Threshold(), sim
}

func bestOf(query []float32, entries []Entry, threshold float64) Match {
	var best Match
	for _, e := range entries {
		sim := Similarity(query, e.Embedding)
		if sim > threshold && sim > best.Score {
			best = Match{PersonID: e.PersonID, Name: e.Name, Score: sim, Found: true}
		}
	}
	return best
}

// Searcher finds the best registered match for a query embedding.
type Searcher interface {
	Search(query []float32) Match
}

// LinearSearcher scans the full registry for every query.
type LinearSearcher struct {
	Store   *FaceStore
	Matcher *Matcher
}

func NewLinearSearcher(store *FaceStore, matcher *Matcher) *LinearSearcher {
	return &LinearSearcher{Store: store, Matcher: matcher}
}

func (s *LinearSearcher) Search(query []float32) Match {
	return s.Matcher.BestMatch(query, s.Store.Snapshot())
}

var _ Searcher = (*LinearSearcher)(nil)
