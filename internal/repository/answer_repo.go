package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AnswerRepository persists per-question responses.
type AnswerRepository interface {
	Upsert(ctx context.Context, sessionID, questionID uint, payload datatypes.JSON, at time.Time) (models.Answer, error)
	CountBySession(ctx context.Context, sessionID uint) (int64, error)
	ListBySession(ctx context.Context, sessionID uint) ([]models.Answer, error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository constructs the repository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

// Upsert writes the latest payload for (session, question); repeated calls converge.
func (r *answerRepository) Upsert(ctx context.Context, sessionID, questionID uint, payload datatypes.JSON, at time.Time) (models.Answer, error) {
	answer := models.Answer{
		SessionID:  sessionID,
		QuestionID: questionID,
		Payload:    payload,
		CreatedAt:  at,
		UpdatedAt:  at,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&answer).Error
	if err != nil {
		return models.Answer{}, err
	}

	var stored models.Answer
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&stored).Error; err != nil {
		return models.Answer{}, err
	}

	return stored, nil
}

func (r *answerRepository) CountBySession(ctx context.Context, sessionID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Answer{}).Where("session_id = ?", sessionID).Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}

func (r *answerRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}
