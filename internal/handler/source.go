package handler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/abdullah-az/ai-exam/internal/model"
	"github.com/abdullah-az/ai-exam/internal/store"
)

// maxExamplesPerPrompt bounds how many existing questions are embedded in a
// generation prompt as style references.
const maxExamplesPerPrompt = 10

// questionSource adapts the store and the LLM client to the lifecycle
// engine's question supply interface.
type questionSource struct {
	store *store.Store
	gen   Generator
}

func (s *questionSource) ListEligible(ctx context.Context, specializationID string, excludeAIGenerated bool) ([]model.Question, error) {
	return s.store.ListEligibleQuestions(ctx, specializationID, excludeAIGenerated)
}

func (s *questionSource) Generate(ctx context.Context, specializationID string, count int) ([]model.Question, error) {
	if s.gen == nil {
		return nil, errors.New("question generation is not configured")
	}

	name := specializationID
	if sp, err := s.store.GetSpecialization(specializationID); err == nil {
		name = sp.Name
	}

	examples, err := s.store.ListEligibleQuestions(ctx, specializationID, true)
	if err != nil {
		return nil, err
	}
	if len(examples) > maxExamplesPerPrompt {
		examples = examples[:maxExamplesPerPrompt]
	}

	payloads, err := s.gen.GenerateFromExamples(ctx, name, examples, count)
	if err != nil {
		return nil, err
	}
	return materializeGenerated(payloads, specializationID), nil
}

// materializeGenerated turns generation payloads into stored-question shapes,
// assigning fresh ids and flagging them as AI-generated.
func materializeGenerated(payloads []model.GeneratedQuestionPayload, specializationID string) []model.Question {
	questions := make([]model.Question, 0, len(payloads))
	for _, p := range payloads {
		q := model.Question{
			ID:               uuid.NewString(),
			Text:             p.Text,
			SpecializationID: specializationID,
			CourseYear:       p.CourseYear,
			Mark:             p.Mark,
			IsAIGenerated:    true,
		}
		for _, c := range p.Choices {
			q.Choices = append(q.Choices, model.Choice{
				ID:        uuid.NewString(),
				Text:      c.Text,
				IsCorrect: c.IsCorrect,
			})
		}
		questions = append(questions, q)
	}
	return questions
}
