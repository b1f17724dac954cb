package media

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	ls, err := NewLocalStorage(t.TempDir(), map[AssetType]string{
		AssetTypeSnapshot: "unknown_faces",
		AssetTypeExport:   "exports",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return ls
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ls := newTestStore(t)

	rel, err := ls.Save(AssetTypeExport, "report.csv", strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rel != "exports/report.csv" {
		t.Errorf("relative path = %q, want exports/report.csv", rel)
	}

	rc, _, err := ls.Get(rel)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "a,b\n" {
		t.Errorf("content = %q", data)
	}

	list, err := ls.List(AssetTypeExport)
	if err != nil || len(list) != 1 || list[0] != rel {
		t.Errorf("List = %v, %v", list, err)
	}

	if err := ls.Delete(rel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ls.Delete(rel); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	ls := newTestStore(t)

	if _, err := ls.Save(AssetTypeExport, "../escape.csv", strings.NewReader("x")); err == nil {
		t.Error("Save accepted a filename with a path separator")
	}
	full, err := ls.GetFullPath("../../etc/passwd")
	if err == nil && !strings.HasPrefix(full, ls.BasePath()) {
		t.Errorf("GetFullPath escaped base: %s", full)
	}
	if _, err := NewLocalStorage(t.TempDir(), map[AssetType]string{AssetTypeExport: "../outside"}); err == nil {
		t.Error("NewLocalStorage accepted a subdirectory outside the base")
	}
}

func TestSaveSnapshot(t *testing.T) {
	ls := newTestStore(t)
	p := NewProcessor(ls)

	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		for y := 0; y < 100; y++ {
			frame.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	at := time.Date(2024, 5, 1, 17, 0, 0, 123456000, time.UTC)

	rel, err := p.SaveSnapshot(frame, image.Rect(10, 20, 60, 90), at)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if !strings.HasPrefix(rel, "unknown_faces/unknown_20240501_170000_123456_") || !strings.HasSuffix(rel, ".jpg") {
		t.Errorf("snapshot path = %q", rel)
	}

	rc, _, err := ls.Get(rel)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	img, err := jpeg.Decode(rc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 70 {
		t.Errorf("snapshot size = %dx%d, want 50x70", b.Dx(), b.Dy())
	}

	if _, err := p.SaveSnapshot(frame, image.Rectangle{}, at); err == nil {
		t.Error("SaveSnapshot accepted an empty region")
	}
}
