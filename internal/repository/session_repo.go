package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

const defaultScanBatchSize = 200

// SubmissionFields describes the columns written when a session is closed.
type SubmissionFields struct {
	SubmittedAt       time.Time
	GradedAt          *time.Time
	Score             *float64
	ForcedSubmission  bool
	SecurityViolation *string
}

// GradeFields describes a teacher-finalised grade.
type GradeFields struct {
	Score        float64
	TeacherNotes *string
	GradedBy     uint
	GradedAt     time.Time
}

// AnswerGrade carries the per-question outcome of manual grading.
type AnswerGrade struct {
	QuestionID uint
	Score      float64
	Feedback   string
}

// ResetGuard adds extra preconditions to a reset.
type ResetGuard struct {
	RequireNotStarted bool
}

// SessionRepository defines persistence operations for assessment sessions.
// Every mutating call is a conditional write that reports whether it applied.
type SessionRepository interface {
	GetByID(ctx context.Context, id uint) (models.AssessmentSession, error)
	GetByAssessmentAndStudent(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error)
	FindOrCreate(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error)
	MarkStarted(ctx context.Context, id uint, at time.Time) (bool, error)
	MarkSubmitted(ctx context.Context, id uint, fields SubmissionFields) (bool, error)
	SaveGrade(ctx context.Context, id uint, grade GradeFields, answers []AnswerGrade) error
	Reset(ctx context.Context, id uint, guard ResetGuard) (bool, error)
	ScanExpiryCandidates(ctx context.Context, batchSize int, fn func(models.AssessmentSession) error) error
	StudentIDsByAssessment(ctx context.Context, assessmentID uint) ([]uint, error)
	CreateMissing(ctx context.Context, assessmentID uint, studentIDs []uint) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository instantiates the repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.AssessmentSession{}, err
	}

	return session, nil
}

func (r *sessionRepository) GetByAssessmentAndStudent(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		First(&session).Error; err != nil {
		return models.AssessmentSession{}, err
	}

	return session, nil
}

// FindOrCreate lazily creates the session row. A concurrent creator loses to the
// unique index and re-reads the winner's row.
func (r *sessionRepository) FindOrCreate(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error) {
	session, err := r.GetByAssessmentAndStudent(ctx, assessmentID, studentID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.AssessmentSession{}, err
	}

	created := models.AssessmentSession{AssessmentID: assessmentID, StudentID: studentID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; err != nil {
		return models.AssessmentSession{}, err
	}

	return r.GetByAssessmentAndStudent(ctx, assessmentID, studentID)
}

func (r *sessionRepository) MarkStarted(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AssessmentSession{}).
		Where("id = ? AND started_at IS NULL AND submitted_at IS NULL", id).
		Update("started_at", at)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *sessionRepository) MarkSubmitted(ctx context.Context, id uint, fields SubmissionFields) (bool, error) {
	updates := map[string]interface{}{
		"submitted_at":       fields.SubmittedAt,
		"graded_at":          fields.GradedAt,
		"score":              fields.Score,
		"forced_submission":  fields.ForcedSubmission,
		"security_violation": fields.SecurityViolation,
	}

	result := r.db.WithContext(ctx).
		Model(&models.AssessmentSession{}).
		Where("id = ? AND submitted_at IS NULL", id).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *sessionRepository) SaveGrade(ctx context.Context, id uint, grade GradeFields, answers []AnswerGrade) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.AssessmentSession{}).
			Where("id = ? AND submitted_at IS NOT NULL", id).
			Updates(map[string]interface{}{
				"score":         grade.Score,
				"teacher_notes": grade.TeacherNotes,
				"graded_by":     grade.GradedBy,
				"graded_at":     grade.GradedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		for _, answer := range answers {
			score := answer.Score
			if err := tx.Model(&models.Answer{}).
				Where("session_id = ? AND question_id = ?", id, answer.QuestionID).
				Updates(map[string]interface{}{
					"score":    score,
					"feedback": answer.Feedback,
				}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// Reset returns the session to its pristine state when it has no answers and the
// guard holds.
func (r *sessionRepository) Reset(ctx context.Context, id uint, guard ResetGuard) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.AssessmentSession{}).
		Where("id = ?", id).
		Where("NOT EXISTS (?)", r.db.Model(&models.Answer{}).Select("1").Where("session_id = ?", id))
	if guard.RequireNotStarted {
		query = query.Where("started_at IS NULL")
	}

	result := query.Updates(map[string]interface{}{
		"started_at":         nil,
		"submitted_at":       nil,
		"graded_at":          nil,
		"score":              nil,
		"forced_submission":  false,
		"security_violation": nil,
		"teacher_notes":      nil,
		"graded_by":          nil,
	})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ScanExpiryCandidates walks open, started sessions of published supervised
// assessments in primary-key batches so the full candidate set is never held in memory.
func (r *sessionRepository) ScanExpiryCandidates(ctx context.Context, batchSize int, fn func(models.AssessmentSession) error) error {
	if batchSize <= 0 {
		batchSize = defaultScanBatchSize
	}

	supervised := r.db.Model(&models.Assessment{}).
		Select("id").
		Where("is_published = ? AND delivery_mode = ?", true, models.DeliveryModeSupervised)

	var batch []models.AssessmentSession
	result := r.db.WithContext(ctx).
		Where("submitted_at IS NULL AND started_at IS NOT NULL").
		Where("assessment_id IN (?)", supervised).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, session := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(session); err != nil {
					return err
				}
			}
			return nil
		})

	return result.Error
}

func (r *sessionRepository) StudentIDsByAssessment(ctx context.Context, assessmentID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.AssessmentSession{}).
		Where("assessment_id = ?", assessmentID).
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

// CreateMissing inserts unstarted sessions, skipping rows that already exist.
func (r *sessionRepository) CreateMissing(ctx context.Context, assessmentID uint, studentIDs []uint) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}

	rows := make([]models.AssessmentSession, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		rows = append(rows, models.AssessmentSession{AssessmentID: assessmentID, StudentID: studentID})
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
