package recognition

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFaceStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestFaceStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.gob")
	if err := os.WriteFile(path, []byte("not a gob stream"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewFaceStore(path)
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0 for corrupt file", s.Count())
	}
}

func TestFaceStoreAddPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.gob")
	s := NewFaceStore(path)

	if !s.Add("E001", "Alice", []float32{1, 0}) {
		t.Fatal("Add returned false")
	}
	if !s.Add("E001", "Alice B", []float32{0, 1}) {
		t.Fatal("overwrite Add returned false")
	}

	reopened := NewFaceStore(path)
	e, ok := reopened.Snapshot().Get("E001")
	if !ok {
		t.Fatal("E001 missing after reopen")
	}
	if e.Name != "Alice B" || !reflect.DeepEqual(e.Embedding, []float32{0, 1}) {
		t.Errorf("entry = %+v, want overwritten values", e)
	}
}

func TestFaceStoreRemove(t *testing.T) {
	s := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	s.Add("E001", "Alice", []float32{1, 0})

	if s.Remove("E404") {
		t.Error("Remove(E404) = true, want false")
	}
	if !s.Remove("E001") {
		t.Error("Remove(E001) = false, want true")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestFaceStoreReloadDiscardsUnsaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.gob")
	s := NewFaceStore(path)
	s.Add("E001", "Alice", []float32{1, 0})

	other := NewFaceStore(path)
	other.Add("E002", "Bob", []float32{0, 1})

	if n := s.Reload(); n != 2 {
		t.Errorf("Reload = %d, want 2", n)
	}
	if !reflect.DeepEqual(s.IDs(), []string{"E001", "E002"}) {
		t.Errorf("IDs = %v", s.IDs())
	}
}

func TestFaceStoreSnapshotIsImmutable(t *testing.T) {
	s := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	s.Add("E001", "Alice", []float32{1, 0})
	before := s.Snapshot()
	v := s.Version()

	s.Add("E002", "Bob", []float32{0, 1})
	if before.Len() != 1 {
		t.Errorf("old snapshot Len = %d, want 1", before.Len())
	}
	if s.Version() <= v {
		t.Errorf("Version did not advance: %d -> %d", v, s.Version())
	}
}

func TestFaceStoreNaturalOrder(t *testing.T) {
	s := NewFaceStore(filepath.Join(t.TempDir(), "faces.gob"))
	s.Save(map[string]Entry{
		"emp10": {Name: "Ten", Embedding: []float32{1}},
		"emp2":  {Name: "Two", Embedding: []float32{1}},
		"emp1":  {Name: "One", Embedding: []float32{1}},
	})
	if got, want := s.IDs(), []string{"emp1", "emp2", "emp10"}; !reflect.DeepEqual(got, want) {
		t.Errorf("IDs = %v, want %v", got, want)
	}
}

func TestFaceStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFaceStore(filepath.Join(dir, "faces.gob"))
	s.Add("E001", "Alice", []float32{1, 0})

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != "faces.gob" {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("dir contents = %v, want only faces.gob", names)
	}
}
