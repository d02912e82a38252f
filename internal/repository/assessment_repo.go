package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AssessmentRepository defines persistence operations for assessments.
type AssessmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	ScanPossiblyEnded(ctx context.Context, now time.Time, batchSize int, fn func(models.Assessment) error) error
	MarkMaterialized(ctx context.Context, id uint, at time.Time) error
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Assessment, error)
	MarkReminderSent(ctx context.Context, id uint, at time.Time) (bool, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates a GORM-backed repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}

	return assessment, nil
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

// ScanPossiblyEnded walks published assessments whose horizon may have passed and
// whose roster changed since the last materialization. The supervised end depends
// on the duration, so callers still confirm with the timing policy.
func (r *assessmentRepository) ScanPossiblyEnded(ctx context.Context, now time.Time, batchSize int, fn func(models.Assessment) error) error {
	if batchSize <= 0 {
		batchSize = defaultScanBatchSize
	}

	rosterChanged := r.db.Model(&models.Enrollment{}).
		Select("1").
		Where("enrollments.class_id = assessments.class_id AND enrollments.updated_at > assessments.materialized_at")

	var batch []models.Assessment
	result := r.db.WithContext(ctx).
		Where("is_published = ?", true).
		Where(
			r.db.Where("delivery_mode = ? AND due_date IS NOT NULL AND due_date < ?", models.DeliveryModeHomework, now).
				Or("delivery_mode = ? AND scheduled_at IS NOT NULL AND scheduled_at < ?", models.DeliveryModeSupervised, now),
		).
		Where(r.db.Where("materialized_at IS NULL").Or("EXISTS (?)", rosterChanged)).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, assessment := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(assessment); err != nil {
					return err
				}
			}
			return nil
		})

	return result.Error
}

// MarkMaterialized records that every enrolled student had a session as of at.
func (r *assessmentRepository) MarkMaterialized(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ?", id).
		Update("materialized_at", at).Error
}

func (r *assessmentRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Assessment, error) {
	var assessments []models.Assessment
	err := r.db.WithContext(ctx).
		Where("is_published = ?", true).
		Where("delivery_mode = ?", models.DeliveryModeSupervised).
		Where("reminder_sent_at IS NULL").
		Where("scheduled_at > ? AND scheduled_at <= ?", from, to).
		Order("scheduled_at ASC").
		Find(&assessments).Error
	if err != nil {
		return nil, err
	}

	return assessments, nil
}

// MarkReminderSent stamps reminder_sent_at once; later calls report false.
func (r *assessmentRepository) MarkReminderSent(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ? AND reminder_sent_at IS NULL", id).
		Update("reminder_sent_at", at)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
