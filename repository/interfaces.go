package repository

import (
	"context"
	"time"

	"github.com/camden-git/attendancesys/models"
)

// PersonRepositoryInterface defines the methods for person data operations
type PersonRepositoryInterface interface {
	Create(person *models.Person) error
	GetByID(personID string) (*models.Person, error)
	ListAll() ([]models.Person, error)
	Search(query string) ([]models.Person, error)
	Update(personID string, upd PersonUpdate) (*models.Person, error)
	UpdateFace(personID string, embedding []float32, facePath string) error
	Delete(personID string) error
	Count() (int64, error)
}

// UnknownFaceRepositoryInterface defines the methods for unknown sighting data operations
type UnknownFaceRepositoryInterface interface {
	LogUnknown(ctx context.Context, snapshotPath string, embedding []float32, at time.Time) error
	ListRecent(ctx context.Context, limit int) ([]models.UnknownFace, error)
}

var (
	_ PersonRepositoryInterface      = (*PersonRepository)(nil)
	_ UnknownFaceRepositoryInterface = (*UnknownFaceRepository)(nil)
)
