package pipeline

import (
	"context"
	"log"
	"sort"
	"sync"
)

// Manager runs several feeds concurrently. A failing feed is reported and
// does not stop the others.
type Manager struct {
	feeds map[string]*Feed
	wg    sync.WaitGroup
	mu    sync.Mutex
	errs  map[string]error
}

func NewManager(feeds ...*Feed) *Manager {
	m := &Manager{
		feeds: make(map[string]*Feed, len(feeds)),
		errs:  make(map[string]error),
	}
	for _, f := range feeds {
		m.feeds[f.ID] = f
	}
	return m
}

// Start launches every feed on its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	for _, f := range m.Feeds() {
		m.wg.Add(1)
		go func(f *Feed) {
			defer m.wg.Done()
			if err := f.Run(ctx); err != nil {
				log.Printf("pipeline: ERROR feed %s stopped: %v", f.ID, err)
				m.mu.Lock()
				m.errs[f.ID] = err
				m.mu.Unlock()
			}
		}(f)
	}
}

// Wait blocks until every feed has returned and reports the ones that failed.
func (m *Manager) Wait() map[string]error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.errs))
	for id, err := range m.errs {
		out[id] = err
	}
	return out
}

func (m *Manager) Feed(id string) (*Feed, bool) {
	f, ok := m.feeds[id]
	return f, ok
}

// Feeds returns the feeds ordered by id.
func (m *Manager) Feeds() []*Feed {
	out := make([]*Feed, 0, len(m.feeds))
	for _, f := range m.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Statuses() []FeedStatus {
	feeds := m.Feeds()
	out := make([]FeedStatus, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, f.Status())
	}
	return out
}

// Reset asks one feed to clear its caches; false if the feed does not exist.
func (m *Manager) Reset(id string) bool {
	f, ok := m.feeds[id]
	if !ok {
		return false
	}
	f.RequestReset()
	return true
}

func (m *Manager) ResetAll() {
	for _, f := range m.feeds {
		f.RequestReset()
	}
}

// LatestFrame returns the newest preview JPEG of a feed.
func (m *Manager) LatestFrame(id string) ([]byte, bool) {
	f, ok := m.feeds[id]
	if !ok {
		return nil, false
	}
	return f.LatestFrame()
}
