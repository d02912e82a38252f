package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// EnrollmentRepository exposes roster lookups owned by the class service.
type EnrollmentRepository interface {
	ActiveStudentIDs(ctx context.Context, classID uint) ([]uint, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) ActiveStudentIDs(ctx context.Context, classID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ? AND status = ?", classID, models.EnrollmentStatusActive).
		Order("student_id ASC").
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}
