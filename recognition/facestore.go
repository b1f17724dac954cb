package recognition

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/facette/natsort"
)

// Entry is one registered person's reference embedding.
type Entry struct {
	PersonID  string
	Name      string
	Embedding []float32
}

// Registry is an immutable view of the face store. Entries are ordered by
// natural person-id order ("emp2" before "emp10").
type Registry struct {
	entries []Entry
	byID    map[string]int
	version uint64
}

func newRegistry(m map[string]Entry, version uint64) *Registry {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return natsort.Compare(ids[i], ids[j]) })

	r := &Registry{
		entries: make([]Entry, 0, len(ids)),
		byID:    make(map[string]int, len(ids)),
		version: version,
	}
	for i, id := range ids {
		r.entries = append(r.entries, m[id])
		r.byID[id] = i
	}
	return r
}

// NewRegistry builds a standalone registry, mostly useful for matching outside a FaceStore.
func NewRegistry(entries ...Entry) *Registry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.PersonID] = e
	}
	return newRegistry(m, 0)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns the ordered entries. Callers must not modify the slice.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	return r.entries
}

func (r *Registry) Get(personID string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	i, ok := r.byID[personID]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) Version() uint64 {
	if r == nil {
		return 0
	}
	return r.version
}

// storedFace is the on-disk record; the file holds map[person_id]storedFace.
type storedFace struct {
	Name      string
	Embedding []float32
}

// FaceStore keeps the registered embeddings in memory and mirrors every
// mutation to a single gob file. Reads go through immutable snapshots so match
// queries never block on writers for longer than a pointer load.
type FaceStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
	snap    *Registry
	version uint64
}

// NewFaceStore opens the store at path, loading whatever is persisted there.
func NewFaceStore(path string) *FaceStore {
	s := &FaceStore{path: path}
	s.entries = s.Load()
	s.snap = newRegistry(s.entries, s.version)
	log.Printf("facestore: loaded %d registered face(s) from %s", len(s.entries), path)
	return s
}

// Path returns the backing file path.
func (s *FaceStore) Path() string {
	return s.path
}

// Load reads the persisted mapping. A missing file yields an empty mapping; an
// unreadable or corrupt file yields an empty mapping and a warning.
func (s *FaceStore) Load() map[string]Entry {
	out := make(map[string]Entry)

	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("facestore: WARNING could not open %s: %v. Starting with an empty registry.", s.path, err)
		}
		return out
	}
	defer f.Close()

	var stored map[string]storedFace
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		log.Printf("facestore: WARNING could not decode %s: %v. Starting with an empty registry.", s.path, err)
		return out
	}

	for id, sf := range stored {
		out[id] = Entry{PersonID: id, Name: sf.Name, Embedding: sf.Embedding}
	}
	return out
}

// Save persists the mapping and makes it the current in-memory state.
func (s *FaceStore) Save(entries map[string]Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]Entry, len(entries))
	for id, e := range entries {
		e.PersonID = id
		cp[id] = e
	}
	if err := s.persist(cp); err != nil {
		log.Printf("facestore: ERROR saving %s: %v", s.path, err)
		return false
	}
	s.swap(cp)
	return true
}

// Add inserts or overwrites a person's embedding and persists immediately.
func (s *FaceStore) Add(personID, name string, embedding []float32) bool {
	if personID == "" || len(embedding) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	emb := make([]float32, len(embedding))
	copy(emb, embedding)
	next[personID] = Entry{PersonID: personID, Name: name, Embedding: emb}

	if err := s.persist(next); err != nil {
		log.Printf("facestore: ERROR adding %s: %v", personID, err)
		return false
	}
	s.swap(next)
	return true
}

// Remove deletes a person's entry. It returns true only when the entry
// existed and the new state was persisted.
func (s *FaceStore) Remove(personID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[personID]; !ok {
		return false
	}
	next := s.cloneLocked()
	delete(next, personID)

	if err := s.persist(next); err != nil {
		log.Printf("facestore: ERROR removing %s: %v", personID, err)
		return false
	}
	s.swap(next)
	return true
}

// Reload replaces the in-memory state with what is on disk and returns the entry count.
func (s *FaceStore) Reload() int {
	loaded := s.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(loaded)
	log.Printf("facestore: reloaded %d registered face(s)", len(loaded))
	return len(loaded)
}

// Snapshot returns the current immutable registry.
func (s *FaceStore) Snapshot() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *FaceStore) Count() int {
	return s.Snapshot().Len()
}

// IDs returns registered person IDs in natural order.
func (s *FaceStore) IDs() []string {
	snap := s.Snapshot()
	ids := make([]string, 0, snap.Len())
	for _, e := range snap.Entries() {
		ids = append(ids, e.PersonID)
	}
	return ids
}

// Version increases on every successful mutation or reload.
func (s *FaceStore) Version() uint64 {
	return s.Snapshot().Version()
}

func (s *FaceStore) cloneLocked() map[string]Entry {
	next := make(map[string]Entry, len(s.entries)+1)
	for id, e := range s.entries {
		next[id] = e
	}
	return next
}

func (s *FaceStore) swap(next map[string]Entry) {
	s.entries = next
	s.version++
	s.snap = newRegistry(next, s.version)
}

// persist writes to a temp file in the target directory and renames it over
// the store file so readers never observe a partial write.
func (s *FaceStore) persist(entries map[string]Entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create face store directory '%s': %w", dir, err)
	}

	stored := make(map[string]storedFace, len(entries))
	for id, e := range entries {
		stored[id] = storedFace{Name: e.Name, Embedding: e.Embedding}
	}

	tmp, err := os.CreateTemp(dir, ".faces-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in '%s': %w", dir, err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(stored); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode face store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync face store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp face store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace face store '%s': %w", s.path, err)
	}
	return nil
}
