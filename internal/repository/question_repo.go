package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// QuestionRepository reads assessment questions. Authoring happens elsewhere.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByAssessment(ctx context.Context, assessmentID uint) ([]models.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("position ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}
