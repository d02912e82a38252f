// Package scoring computes the automatically gradable part of a session.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AnswerResult is the outcome of scoring a single answer.
type AnswerResult struct {
	Points      float64
	MaxPoints   float64
	NeedsManual bool
	Feedback    string
}

// Result aggregates the automatic score of a whole session.
type Result struct {
	AutoPoints           float64
	MaxPoints            float64
	RequiresManualReview bool
	Answers              map[uint]AnswerResult
}

// Scorer returns the auto-gradable point total for a session's answers.
type Scorer interface {
	Score(ctx context.Context, questions []models.Question, answers []models.Answer) (Result, error)
}

// Strategy scores one question type.
type Strategy interface {
	Score(q models.Question, key []string, response interface{}) AnswerResult
}

// Option customises the default scorer.
type Option func(*options)

type options struct {
	partialMulti bool
}

// WithPartialMulti enables partial credit on multi choice questions without wrong picks.
func WithPartialMulti(enabled bool) Option {
	return func(o *options) { o.partialMulti = enabled }
}

type defaultScorer struct {
	strategies map[string]Strategy
}

// NewDefaultScorer installs the built-in strategies. Unknown question types are
// routed to manual review.
func NewDefaultScorer(opts ...Option) Scorer {
	cfg := &options{partialMulti: true}
	for _, opt := range opts {
		opt(cfg)
	}

	return &defaultScorer{
		strategies: map[string]Strategy{
			models.QuestionTypeSingleChoice: singleChoiceStrategy{},
			models.QuestionTypeMultiChoice:  multiChoiceStrategy{allowPartial: cfg.partialMulti},
			models.QuestionTypeExactText:    exactTextStrategy{},
			models.QuestionTypeNumeric:      numericStrategy{},
			models.QuestionTypeEssay:        manualStrategy{},
		},
	}
}

func (s *defaultScorer) Score(ctx context.Context, questions []models.Question, answers []models.Answer) (Result, error) {
	result := Result{Answers: make(map[uint]AnswerResult, len(answers))}

	byQuestion := make(map[uint]models.Answer, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}

	for _, question := range questions {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		result.MaxPoints += question.Points

		answer, ok := byQuestion[question.ID]
		if !ok || len(answer.Payload) == 0 {
			continue
		}

		scored := s.scoreAnswer(question, answer)
		result.Answers[question.ID] = scored
		result.AutoPoints += scored.Points
		if scored.NeedsManual {
			result.RequiresManualReview = true
		}
	}

	result.AutoPoints = math.Round(result.AutoPoints*100) / 100
	return result, nil
}

func (s *defaultScorer) scoreAnswer(question models.Question, answer models.Answer) AnswerResult {
	strategy, ok := s.strategies[question.Type]
	if !ok {
		strategy = manualStrategy{}
	}

	var response interface{}
	if err := json.Unmarshal(answer.Payload, &response); err != nil {
		return AnswerResult{MaxPoints: question.Points, Feedback: "unreadable response"}
	}

	key, err := decodeKey(question)
	if err != nil {
		return AnswerResult{MaxPoints: question.Points, NeedsManual: true, Feedback: "answer key unavailable"}
	}

	return strategy.Score(question, key, response)
}

func decodeKey(question models.Question) ([]string, error) {
	if len(question.AnswerKey) == 0 {
		return nil, nil
	}

	var raw []interface{}
	if err := json.Unmarshal(question.AnswerKey, &raw); err != nil {
		var single interface{}
		if err := json.Unmarshal(question.AnswerKey, &single); err != nil {
			return nil, fmt.Errorf("decode answer key for question %d: %w", question.ID, err)
		}
		raw = []interface{}{single}
	}

	key := make([]string, 0, len(raw))
	for _, item := range raw {
		key = append(key, stringify(item))
	}
	return key, nil
}

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Score(q models.Question, key []string, response interface{}) AnswerResult {
	res := AnswerResult{MaxPoints: q.Points}
	choice, ok := response.(string)
	if !ok {
		res.Feedback = "response must be a single choice"
		return res
	}
	for _, k := range key {
		if strings.TrimSpace(choice) == strings.TrimSpace(k) {
			res.Points = q.Points
			return res
		}
	}
	return res
}

type multiChoiceStrategy struct {
	allowPartial bool
}

func (s multiChoiceStrategy) Score(q models.Question, key []string, response interface{}) AnswerResult {
	res := AnswerResult{MaxPoints: q.Points}
	items, ok := response.([]interface{})
	if !ok {
		res.Feedback = "response must be a list of choices"
		return res
	}

	correct := toSet(key)
	picked := make(map[string]struct{}, len(items))
	for _, item := range items {
		picked[strings.TrimSpace(stringify(item))] = struct{}{}
	}

	hits := 0
	for choice := range picked {
		if _, ok := correct[choice]; !ok {
			return res
		}
		hits++
	}

	switch {
	case hits == len(correct) && hits > 0:
		res.Points = q.Points
	case s.allowPartial && len(correct) > 0:
		res.Points = q.Points * float64(hits) / float64(len(correct))
	}
	return res
}

type exactTextStrategy struct{}

func (exactTextStrategy) Score(q models.Question, key []string, response interface{}) AnswerResult {
	res := AnswerResult{MaxPoints: q.Points}
	text, ok := response.(string)
	if !ok {
		res.Feedback = "response must be text"
		return res
	}
	normalized := normalize(text)
	for _, k := range key {
		if normalize(k) == normalized {
			res.Points = q.Points
			return res
		}
	}
	return res
}

type numericStrategy struct{}

func (numericStrategy) Score(q models.Question, key []string, response interface{}) AnswerResult {
	res := AnswerResult{MaxPoints: q.Points}
	value, err := strconv.ParseFloat(strings.TrimSpace(stringify(response)), 64)
	if err != nil {
		res.Feedback = "response must be numeric"
		return res
	}
	for _, k := range key {
		expected, err := strconv.ParseFloat(strings.TrimSpace(k), 64)
		if err != nil {
			continue
		}
		if math.Abs(expected-value) <= q.Tolerance+1e-9 {
			res.Points = q.Points
			return res
		}
	}
	return res
}

type manualStrategy struct{}

func (manualStrategy) Score(q models.Question, _ []string, _ interface{}) AnswerResult {
	return AnswerResult{MaxPoints: q.Points, NeedsManual: true, Feedback: "manual grading required"}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}
