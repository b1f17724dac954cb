package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/models"
)

// AttendanceRepository persists daily attendance and raw sightings.
type AttendanceRepository struct {
	DB *gorm.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

var _ attendance.Store = (*AttendanceRepository)(nil)

func (r *AttendanceRepository) Lookup(ctx context.Context, personID string) (attendance.PersonInfo, bool, error) {
	var p models.Person
	err := r.DB.WithContext(ctx).
		Select("person_id", "name", "email", "shift_start", "shift_end").
		Where("person_id = ?", personID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attendance.PersonInfo{}, false, nil
		}
		return attendance.PersonInfo{}, false, fmt.Errorf("failed to look up person %s: %w", personID, err)
	}
	return attendance.PersonInfo{
		PersonID:   p.PersonID,
		Name:       p.Name,
		Email:      p.Email,
		ShiftStart: p.ShiftStart,
		ShiftEnd:   p.ShiftEnd,
	}, true, nil
}

// InsertArrival creates today's row unless one exists. The unique
// (person_id, date) index arbitrates between concurrent feeds.
func (r *AttendanceRepository) InsertArrival(ctx context.Context, personID, date, clock string) (bool, error) {
	row := models.Attendance{
		PersonID:    personID,
		Date:        date,
		ArrivalTime: clock,
		LeavingTime: clock,
		Status:      models.StatusPresent,
	}
	result := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "person_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert arrival for %s on %s: %w", personID, date, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *AttendanceRepository) UpdateLeaving(ctx context.Context, personID, date, clock string) error {
	result := r.DB.WithContext(ctx).
		Model(&models.Attendance{}).
		Where("person_id = ? AND date = ?", personID, date).
		Update("leaving_time", clock)
	if result.Error != nil {
		return fmt.Errorf("failed to update leaving time for %s on %s: %w", personID, date, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no attendance row for %s on %s", personID, date)
	}
	return nil
}

func (r *AttendanceRepository) LogSighting(ctx context.Context, personID, name string, at time.Time) error {
	entry := models.FaceLog{
		PersonID:  personID,
		Name:      name,
		Date:      at.Format(attendance.DateLayout),
		Time:      at.Format(attendance.TimeLayout),
		Timestamp: at.Unix(),
	}
	if err := r.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to log sighting of %s: %w", personID, err)
	}
	return nil
}

// Get returns the attendance row for (person, date), or nil when absent.
func (r *AttendanceRepository) Get(ctx context.Context, personID, date string) (*models.Attendance, error) {
	var row models.Attendance
	err := r.DB.WithContext(ctx).Where("person_id = ? AND date = ?", personID, date).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance for %s on %s: %w", personID, date, err)
	}
	return &row, nil
}
