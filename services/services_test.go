package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/media"
	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/tracking"
)

// countingDetector returns n faces with a fixed embedding.
type countingDetector struct {
	n   int
	emb []float32
}

func (d countingDetector) Detect(context.Context, image.Image) ([]pipeline.Detection, error) {
	out := make([]pipeline.Detection, d.n)
	for i := range out {
		out[i] = pipeline.Detection{
			BBox:       tracking.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50},
			Confidence: 0.9,
			Embedding:  d.emb,
		}
	}
	return out, nil
}

type fixture struct {
	svc   *RegistrationService
	repo  *repository.PersonRepository
	faces *recognition.FaceStore
	store *media.LocalStorage
}

func newFixture(t *testing.T, det pipeline.Detector) fixture {
	t.Helper()
	dir := t.TempDir()
	gdb, err := database.InitGormDB(database.Options{Driver: database.DriverSQLite, DSN: filepath.Join(dir, "att.db"), LogLevel: "silent"})
	if err != nil {
		t.Fatalf("InitGormDB: %v", err)
	}
	if err := database.AutoMigrateModels(gdb); err != nil {
		t.Fatalf("AutoMigrateModels: %v", err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { sqlDB.Close() })

	store, err := media.NewLocalStorage(filepath.Join(dir, "media"), map[media.AssetType]string{
		media.AssetTypeFace:   "faces",
		media.AssetTypeExport: "exports",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	repo := repository.NewPersonRepository(gdb)
	faces := recognition.NewFaceStore(filepath.Join(dir, "faces.gob"))
	return fixture{
		svc:   NewRegistrationService(repo, faces, det, store),
		repo:  repo,
		faces: faces,
		store: store,
	}
}

func photo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"id ok", ValidatePersonID("E001"), nil},
		{"id underscore", ValidatePersonID("emp_42"), nil},
		{"id short", ValidatePersonID("E1"), ErrInvalidPersonID},
		{"id long", ValidatePersonID(strings.Repeat("a", 21)), ErrInvalidPersonID},
		{"id symbol", ValidatePersonID("E-001"), ErrInvalidPersonID},
		{"email empty", ValidateEmail(""), nil},
		{"email ok", ValidateEmail("a.b@example.com"), nil},
		{"email no at", ValidateEmail("example.com"), ErrInvalidEmail},
		{"email no dot", ValidateEmail("a@example"), ErrInvalidEmail},
		{"shift ok", ValidateShift("08:30"), nil},
		{"shift bad", ValidateShift("8:30pm"), ErrInvalidShift},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("got %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		arrival, leaving, want string
	}{
		{"09:00:00", "17:30:00", "8h 30m"},
		{"09:00:00", "09:00:00", "0h 0m"},
		{"22:00:00", "06:15:00", "8h 15m"},
		{"09:00:00", "", "N/A"},
		{"nine", "17:00:00", "Error"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.arrival, tt.leaving); got != tt.want {
			t.Errorf("FormatDuration(%q, %q) = %q, want %q", tt.arrival, tt.leaving, got, tt.want)
		}
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, countingDetector{n: 1, emb: []float32{1, 0, 0}})

	p, err := f.svc.Register(context.Background(), RegisterRequest{PersonID: "E001", Name: " Alice ", Email: "alice@example.com"}, photo(t))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Name != "Alice" || p.ShiftStart != models.DefaultShiftStart {
		t.Errorf("person = %+v", p)
	}
	if p.FacePath == "" {
		t.Error("reference face path not recorded")
	} else if _, err := f.store.GetFullPath(p.FacePath); err != nil {
		t.Errorf("reference face not stored: %v", err)
	}

	entry, ok := f.faces.Snapshot().Get("E001")
	if !ok || entry.Name != "Alice" {
		t.Errorf("face store entry = %+v, %v", entry, ok)
	}

	stored, err := f.repo.GetByID("E001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got := stored.GetEmbedding(); len(got) != 3 || got[0] != 1 {
		t.Errorf("stored embedding = %v", got)
	}

	_, err = f.svc.Register(context.Background(), RegisterRequest{PersonID: "E001", Name: "Again"}, photo(t))
	if !errors.Is(err, repository.ErrPersonExists) {
		t.Errorf("duplicate Register error = %v, want ErrPersonExists", err)
	}
}

func TestRegisterRejects(t *testing.T) {
	tests := []struct {
		name string
		det  pipeline.Detector
		req  RegisterRequest
		data func(*testing.T) []byte
		want error
	}{
		{"no face", countingDetector{n: 0}, RegisterRequest{PersonID: "E001", Name: "A"}, photo, ErrNoFace},
		{"two faces", countingDetector{n: 2, emb: []float32{1}}, RegisterRequest{PersonID: "E001", Name: "A"}, photo, ErrMultipleFaces},
		{"no embedding", countingDetector{n: 1}, RegisterRequest{PersonID: "E001", Name: "A"}, photo, ErrNoEmbedding},
		{"bad id", countingDetector{n: 1, emb: []float32{1}}, RegisterRequest{PersonID: "E!", Name: "A"}, photo, ErrInvalidPersonID},
		{"empty name", countingDetector{n: 1, emb: []float32{1}}, RegisterRequest{PersonID: "E001", Name: "  "}, photo, ErrEmptyName},
		{"bad shift", countingDetector{n: 1, emb: []float32{1}}, RegisterRequest{PersonID: "E001", Name: "A", ShiftEnd: "25:00"}, photo, ErrInvalidShift},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.det)
			_, err := f.svc.Register(context.Background(), tt.req, tt.data(t))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Register error = %v, want %v", err, tt.want)
			}
			if n, _ := f.repo.Count(); n != 0 {
				t.Errorf("rejected registration left %d person rows", n)
			}
			if f.faces.Count() != 0 {
				t.Error("rejected registration touched the face store")
			}
		})
	}
}

func TestRegisterDir(t *testing.T) {
	f := newFixture(t, countingDetector{n: 1, emb: []float32{0, 1}})
	dir := t.TempDir()
	for _, name := range []string{"E010_Bob_Jones.png", "E002_Alice.png", "notes.txt", "x_bad.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), photo(t), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	res, err := f.svc.RegisterDir(context.Background(), dir, func(file string, _ error) {
		seen = append(seen, filepath.Base(file))
	})
	if err != nil {
		t.Fatalf("RegisterDir: %v", err)
	}
	if strings.Join(res.Registered, ",") != "E002,E010" {
		t.Errorf("Registered = %v", res.Registered)
	}
	if !errors.Is(res.Failed["x_bad.png"], ErrInvalidPersonID) {
		t.Errorf("Failed = %v", res.Failed)
	}
	if len(seen) != 3 {
		t.Errorf("progress called for %v, want 3 images", seen)
	}
	bob, err := f.repo.GetByID("E010")
	if err != nil || bob.Name != "Bob Jones" {
		t.Errorf("E010 = %+v, %v", bob, err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, countingDetector{n: 1, emb: []float32{1, 1}})
	p, err := f.svc.Register(context.Background(), RegisterRequest{PersonID: "E001", Name: "Alice"}, photo(t))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bad := "nope"
	if _, err := f.svc.Update("E001", repository.PersonUpdate{Email: &bad}); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Update bad email = %v", err)
	}

	name, shift := "Alice Smith", "08:00"
	updated, err := f.svc.Update("E001", repository.PersonUpdate{Name: &name, ShiftStart: &shift})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != name || updated.ShiftStart != "08:00" {
		t.Errorf("updated = %+v", updated)
	}
	if entry, _ := f.faces.Snapshot().Get("E001"); entry.Name != name {
		t.Errorf("face store name = %q, want %q", entry.Name, name)
	}

	if err := f.svc.Delete("E001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.repo.GetByID("E001"); !errors.Is(err, repository.ErrPersonNotFound) {
		t.Errorf("GetByID after delete = %v", err)
	}
	if f.faces.Count() != 0 {
		t.Error("face store still holds E001")
	}
	if full, err := f.store.GetFullPath(p.FacePath); err == nil {
		if _, serr := os.Stat(full); !os.IsNotExist(serr) {
			t.Errorf("reference face still on disk: %v", serr)
		}
	}
	if err := f.svc.Delete("E001"); !errors.Is(err, repository.ErrPersonNotFound) {
		t.Errorf("second Delete = %v, want ErrPersonNotFound", err)
	}
}

func TestExportService(t *testing.T) {
	dir := t.TempDir()
	gdb, err := database.InitGormDB(database.Options{DSN: filepath.Join(dir, "att.db"), LogLevel: "silent"})
	if err != nil {
		t.Fatal(err)
	}
	if err := database.AutoMigrateModels(gdb); err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { sqlDB.Close() })

	gdb.Create(&models.Person{PersonID: "E001", Name: "Alice, Jr.", ShiftStart: "09:00", ShiftEnd: "18:00", RegisteredDate: 1, UpdatedAt: 1})
	gdb.Create(&models.Attendance{PersonID: "E001", Date: "2025-03-10", ArrivalTime: "09:00:00", LeavingTime: "17:30:00", Status: models.StatusPresent})

	store, err := media.NewLocalStorage(filepath.Join(dir, "media"), map[media.AssetType]string{media.AssetTypeExport: "exports"})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewExportService(sqlDB, store)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 20, 0, 0, 0, time.Local) }

	read := func(rel string) string {
		full, err := store.GetFullPath(rel)
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	rel, err := svc.ExportToday(context.Background())
	if err != nil {
		t.Fatalf("ExportToday: %v", err)
	}
	want := "ID,Name,Login Time,Last Seen (Logout),Status\nE001,\"Alice, Jr.\",09:00:00,17:30:00,Present\n"
	if got := read(rel); got != want {
		t.Errorf("today CSV =\n%s\nwant\n%s", got, want)
	}
	if !strings.HasPrefix(filepath.Base(rel), "attendance_export_20250310_200000_") {
		t.Errorf("export name = %s", rel)
	}

	rel, err = svc.ExportRange(context.Background(), database.ReportFilter{Start: "2025-03-01", End: "2025-03-31"})
	if err != nil {
		t.Fatalf("ExportRange: %v", err)
	}
	if got := read(rel); !strings.Contains(got, "2025-03-10,E001,\"Alice, Jr.\",09:00:00,17:30:00,8h 30m,Present") {
		t.Errorf("report CSV = %s", got)
	}
}
