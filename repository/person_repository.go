package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/utils"
)

// PersonRepository handles database operations for registered persons.
type PersonRepository struct {
	DB *gorm.DB
}

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// PersonUpdate carries the editable fields; nil leaves a field unchanged.
type PersonUpdate struct {
	Name       *string
	Email      *string
	Department *string
	ShiftStart *string
	ShiftEnd   *string
}

// Create inserts a new person, filling shift defaults. A taken ID returns ErrPersonExists.
func (r *PersonRepository) Create(person *models.Person) error {
	now := time.Now().Unix()
	if person.RegisteredDate == 0 {
		person.RegisteredDate = now
	}
	if person.UpdatedAt == 0 {
		person.UpdatedAt = now
	}
	if person.ShiftStart == "" {
		person.ShiftStart = models.DefaultShiftStart
	}
	if person.ShiftEnd == "" {
		person.ShiftEnd = models.DefaultShiftEnd
	}

	err := r.DB.Create(person).Error
	if err != nil {
		if isDuplicateKey(err) {
			return ErrPersonExists
		}
		return fmt.Errorf("failed to create person %s: %w", person.PersonID, err)
	}
	return nil
}

// GetByID retrieves a person by their person ID
func (r *PersonRepository) GetByID(personID string) (*models.Person, error) {
	var person models.Person
	err := r.DB.Where("person_id = ?", personID).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, fmt.Errorf("failed to get person by ID %s: %w", personID, err)
	}
	return &person, nil
}

// ListAll retrieves all people in natural person-ID order (E2 before E10).
func (r *PersonRepository) ListAll() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	sort.Slice(people, func(i, j int) bool {
		return natsort.Compare(people[i].PersonID, people[j].PersonID)
	})
	return people, nil
}

// Search returns people whose name or ID contains query, ignoring case and accents.
func (r *PersonRepository) Search(query string) ([]models.Person, error) {
	people, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	out := people[:0]
	for _, p := range people {
		if utils.NameMatches(p.Name, query) || utils.NameMatches(p.PersonID, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Update applies the non-nil fields of upd.
func (r *PersonRepository) Update(personID string, upd PersonUpdate) (*models.Person, error) {
	fields := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	if upd.Department != nil {
		fields["department"] = *upd.Department
	}
	if upd.ShiftStart != nil {
		fields["shift_start"] = *upd.ShiftStart
	}
	if upd.ShiftEnd != nil {
		fields["shift_end"] = *upd.ShiftEnd
	}

	result := r.DB.Model(&models.Person{}).Where("person_id = ?", personID).Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update person ID %s: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPersonNotFound
	}
	return r.GetByID(personID)
}

// UpdateFace stores a new reference embedding and crop path.
func (r *PersonRepository) UpdateFace(personID string, embedding []float32, facePath string) error {
	result := r.DB.Model(&models.Person{}).Where("person_id = ?", personID).Updates(map[string]interface{}{
		"face_encoding": models.EncodeEmbedding(embedding),
		"face_path":     facePath,
		"updated_at":    time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update face for person ID %s: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// Delete removes a person together with their attendance and sighting rows.
func (r *PersonRepository) Delete(personID string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("person_id = ?", personID).Delete(&models.Attendance{}).Error; err != nil {
			return fmt.Errorf("failed to delete attendance for person ID %s: %w", personID, err)
		}
		if err := tx.Where("person_id = ?", personID).Delete(&models.FaceLog{}).Error; err != nil {
			return fmt.Errorf("failed to delete face logs for person ID %s: %w", personID, err)
		}
		result := tx.Where("person_id = ?", personID).Delete(&models.Person{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete person ID %s: %w", personID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrPersonNotFound
		}
		return nil
	})
}

// Count returns the number of registered persons.
func (r *PersonRepository) Count() (int64, error) {
	var n int64
	if err := r.DB.Model(&models.Person{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count people: %w", err)
	}
	return n, nil
}
