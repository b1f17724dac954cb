package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/facette/natsort"

	"github.com/camden-git/attendancesys/media"
	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/utils"
)

var (
	ErrNoFace        = errors.New("no face detected in image")
	ErrMultipleFaces = errors.New("multiple faces detected; use an image with exactly one face")
	ErrNoEmbedding   = errors.New("could not compute a face embedding")
)

// RegisterRequest carries the details of a new person. Empty shifts fall back
// to the defaults.
type RegisterRequest struct {
	PersonID   string `json:"person_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	ShiftStart string `json:"shift_start"`
	ShiftEnd   string `json:"shift_end"`
}

func (r RegisterRequest) validate() error {
	if err := ValidatePersonID(r.PersonID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	for _, s := range []string{r.ShiftStart, r.ShiftEnd} {
		if s == "" {
			continue
		}
		if err := ValidateShift(s); err != nil {
			return err
		}
	}
	return nil
}

// RegistrationService keeps the person table, the face store and the stored
// reference crops consistent with each other.
type RegistrationService struct {
	persons  repository.PersonRepositoryInterface
	faces    *recognition.FaceStore
	detector pipeline.Detector
	crops    *media.Processor
	store    media.Store
}

func NewRegistrationService(persons repository.PersonRepositoryInterface, faces *recognition.FaceStore, detector pipeline.Detector, store media.Store) *RegistrationService {
	return &RegistrationService{
		persons:  persons,
		faces:    faces,
		detector: detector,
		crops:    media.NewProcessor(store),
		store:    store,
	}
}

// Register enrolls a person from a photo that must show exactly one face.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest, imageData []byte) (*models.Person, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := req.validate(); err != nil {
		return nil, err
	}
	if s.detector == nil {
		return nil, errors.New("face detector is not configured")
	}

	img, err := utils.DecodeOriented(imageData)
	if err != nil {
		return nil, err
	}

	dets, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}
	switch {
	case len(dets) == 0:
		return nil, ErrNoFace
	case len(dets) > 1:
		return nil, fmt.Errorf("%w (found %d)", ErrMultipleFaces, len(dets))
	}
	face := dets[0]
	if len(face.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	person := &models.Person{
		PersonID:   req.PersonID,
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		ShiftStart: req.ShiftStart,
		ShiftEnd:   req.ShiftEnd,
	}
	person.SetEmbedding(face.Embedding)
	if err := s.persons.Create(person); err != nil {
		return nil, err
	}

	if !s.faces.Add(person.PersonID, person.Name, face.Embedding) {
		if derr := s.persons.Delete(person.PersonID); derr != nil {
			log.Printf("registration: ERROR rolling back %s: %v", person.PersonID, derr)
		}
		return nil, fmt.Errorf("failed to save face encoding for %s", person.PersonID)
	}

	facePath, err := s.crops.SaveFaceCrop(img, face.BBox.Rect(), person.PersonID)
	if err != nil {
		log.Printf("registration: WARNING could not save reference face for %s: %v", person.PersonID, err)
	} else if err := s.persons.UpdateFace(person.PersonID, face.Embedding, facePath); err != nil {
		log.Printf("registration: WARNING could not record face path for %s: %v", person.PersonID, err)
	} else {
		person.FacePath = facePath
	}

	log.Printf("registration: registered %s (%s)", person.PersonID, person.Name)
	return person, nil
}

// RegisterFile enrolls from a photo named "<id>_<name>.jpg".
func (s *RegistrationService) RegisterFile(ctx context.Context, path string) (*models.Person, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	id, name := media.PersonIDFromFilename(path)
	return s.Register(ctx, RegisterRequest{PersonID: id, Name: name}, data)
}

// DirResult reports a bulk registration.
type DirResult struct {
	Registered []string
	Failed     map[string]error // file name -> reason
}

// RegistrationImages lists the photos in dir in natural order.
func RegistrationImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory '%s': %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && media.IsRegistrationImage(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool { return natsort.Compare(files[i], files[j]) })
	return files, nil
}

// RegisterDir enrolls every photo in dir. progress, if set, is called after
// each file. It stops early only when ctx is cancelled.
func (s *RegistrationService) RegisterDir(ctx context.Context, dir string, progress func(file string, err error)) (DirResult, error) {
	files, err := RegistrationImages(dir)
	if err != nil {
		return DirResult{}, err
	}

	res := DirResult{Failed: map[string]error{}}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p, rerr := s.RegisterFile(ctx, f)
		if rerr != nil {
			res.Failed[filepath.Base(f)] = rerr
		} else {
			res.Registered = append(res.Registered, p.PersonID)
		}
		if progress != nil {
			progress(f, rerr)
		}
	}
	return res, nil
}

// Update changes a person's details. A new name is also written to the face
// store so live labels follow.
func (s *RegistrationService) Update(personID string, upd repository.PersonUpdate) (*models.Person, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, ErrEmptyName
		}
		upd.Name = &trimmed
	}
	if upd.Email != nil {
		if err := ValidateEmail(*upd.Email); err != nil {
			return nil, err
		}
	}
	for _, sh := range []*string{upd.ShiftStart, upd.ShiftEnd} {
		if sh != nil {
			if err := ValidateShift(*sh); err != nil {
				return nil, err
			}
		}
	}

	person, err := s.persons.Update(personID, upd)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if entry, ok := s.faces.Snapshot().Get(personID); ok && entry.Name != person.Name {
			if !s.faces.Add(personID, person.Name, entry.Embedding) {
				log.Printf("registration: WARNING face store name for %s not updated", personID)
			}
		}
	}
	return person, nil
}

// Delete removes the person, their attendance history, their face encoding
// and their reference crop.
func (s *RegistrationService) Delete(personID string) error {
	person, err := s.persons.GetByID(personID)
	if err != nil {
		return err
	}
	if err := s.persons.Delete(personID); err != nil {
		return err
	}
	if !s.faces.Remove(personID) {
		log.Printf("registration: WARNING %s was not in the face store", personID)
	}
	if person.FacePath != "" {
		if err := s.store.Delete(person.FacePath); err != nil {
			log.Printf("registration: WARNING could not delete reference face %s: %v", person.FacePath, err)
		}
	}
	log.Printf("registration: deleted %s", personID)
	return nil
}

// RegisteredAt formats a person's registration time.
func RegisteredAt(p models.Person) string {
	return time.Unix(p.RegisteredDate, 0).Format("2006-01-02 15:04")
}
