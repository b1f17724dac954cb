package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/models"
)

// UnknownFaceRepository records snapshots of unidentified persons.
type UnknownFaceRepository struct {
	DB *gorm.DB
}

func NewUnknownFaceRepository(db *gorm.DB) *UnknownFaceRepository {
	return &UnknownFaceRepository{DB: db}
}

var _ attendance.UnknownLogger = (*UnknownFaceRepository)(nil)

func (r *UnknownFaceRepository) LogUnknown(ctx context.Context, snapshotPath string, embedding []float32, at time.Time) error {
	row := models.UnknownFace{
		SnapshotPath: snapshotPath,
		EncodingData: models.EncodeEmbedding(embedding),
		DetectedAt:   at.Unix(),
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to log unknown face %s: %w", snapshotPath, err)
	}
	return nil
}

// ListRecent returns the newest unknown sightings first.
func (r *UnknownFaceRepository) ListRecent(ctx context.Context, limit int) ([]models.UnknownFace, error) {
	var rows []models.UnknownFace
	err := r.DB.WithContext(ctx).Order("detected_at DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unknown faces: %w", err)
	}
	return rows, nil
}
