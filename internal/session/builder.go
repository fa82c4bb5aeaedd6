package session

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// placeholderChoiceText is the text of choices synthesized by the repair step.
const placeholderChoiceText = "اختيار إضافي"

// Policy selects how session questions are sourced.
type Policy string

const (
	// PolicyFixedPool draws a random, non-repeating subset of
	// author-curated (non-AI) questions matching the topic filter.
	PolicyFixedPool Policy = "fixed_pool"
	// PolicyGenerated requests freshly AI-generated questions.
	PolicyGenerated Policy = "generated"
)

// PolicyForExamType maps the client-facing exam type to a selection policy.
func PolicyForExamType(t model.ExamType) Policy {
	if t == model.ExamSmart {
		return PolicyGenerated
	}
	return PolicyFixedPool
}

// BuildParams are the inputs to one session build.
type BuildParams struct {
	StudentID        string
	SpecializationID string
	QuestionCount    int
	Policy           Policy
	ExamName         string
	// Definition, when non-nil, links the session to an admin-defined exam.
	// Its question count overrides QuestionCount when set.
	Definition *model.ExamDefinition
}

// Builder assembles ordered, immutable question sets into fresh sessions.
type Builder struct {
	source QuestionSource
	newID  func() string
}

// NewBuilder creates a Builder on top of the given question source.
func NewBuilder(source QuestionSource) *Builder {
	return &Builder{source: source, newID: uuid.NewString}
}

// Build produces a new in-progress session: questions selected per the policy,
// every question repaired to be gradable, one unanswered Answer per question,
// score 0 and no completion timestamp. Persistence is the caller's concern.
func (b *Builder) Build(ctx context.Context, p BuildParams) (*model.ExamSession, error) {
	count := p.QuestionCount
	if p.Definition != nil && p.Definition.NumQuestions > 0 {
		count = p.Definition.NumQuestions
	}
	if count < 1 {
		return nil, fmt.Errorf("question count must be at least 1, got %d", count)
	}

	var questions []model.Question
	switch p.Policy {
	case PolicyGenerated:
		generated, err := b.source.Generate(ctx, p.SpecializationID, count)
		if err != nil {
			return nil, fmt.Errorf("%w: generate questions: %v", ErrUpstreamUnavailable, err)
		}
		questions = generated
	default:
		pool, err := b.source.ListEligible(ctx, p.SpecializationID, true)
		if err != nil {
			return nil, fmt.Errorf("%w: list eligible questions: %v", ErrUpstreamUnavailable, err)
		}
		if len(pool) == 0 && p.SpecializationID != "" {
			// Fall back to the cross-topic pool before giving up.
			pool, err = b.source.ListEligible(ctx, "", true)
			if err != nil {
				return nil, fmt.Errorf("%w: list fallback questions: %v", ErrUpstreamUnavailable, err)
			}
		}
		if len(pool) == 0 {
			return nil, ErrNoEligibleQuestions
		}
		rand.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
		questions = pool[:min(count, len(pool))]
	}

	if len(questions) == 0 {
		return nil, ErrNoEligibleQuestions
	}

	embedded := make([]model.Question, len(questions))
	answers := make([]model.StudentAnswer, len(questions))
	for i, q := range questions {
		embedded[i] = RepairQuestion(q.Clone())
		answers[i] = model.StudentAnswer{QuestionID: embedded[i].ID}
	}

	sess := &model.ExamSession{
		ID:               b.newID(),
		StudentID:        p.StudentID,
		SpecializationID: p.SpecializationID,
		ExamName:         p.ExamName,
		Score:            0,
		Answers:          answers,
		Questions:        embedded,
	}
	if p.Definition != nil {
		sess.ExamDefinitionID = p.Definition.ID
		if sess.ExamName == "" {
			sess.ExamName = p.Definition.Name
		}
	}
	return sess, nil
}

// RepairQuestion deterministically fixes malformed question data before it is
// embedded in a session, so every downstream component can rely on the
// invariants: at least two choices, exactly one flagged correct.
//
// Fewer than two choices: placeholder choices (not correct) are appended up
// to two. No correct choice: the first is promoted. More than one correct
// choice: only the first keeps the flag.
func RepairQuestion(q model.Question) model.Question {
	for i := len(q.Choices); i < 2; i++ {
		q.Choices = append(q.Choices, model.Choice{
			ID:   fmt.Sprintf("%s-pad-%d", q.ID, i),
			Text: placeholderChoiceText,
		})
	}
	seen := false
	for i := range q.Choices {
		if q.Choices[i].IsCorrect {
			if seen {
				q.Choices[i].IsCorrect = false
			}
			seen = true
		}
	}
	if !seen {
		q.Choices[0].IsCorrect = true
	}
	return q
}
