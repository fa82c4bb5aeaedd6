package session

import "github.com/abdullah-az/ai-exam/internal/model"

// Score grades answers against the authoritative embedded questions, pairing
// them by position. An answer is correct iff its selected choice id equals
// the question's unique correct choice id; an unanswered question is always
// incorrect. It returns the total score (sum of marks over correct answers)
// and the input answers with IsCorrectAnswer populated, order preserved.
//
// Score is pure and deterministic; repeated calls on the same input yield
// identical output, which is what makes submission idempotent.
func Score(questions []model.Question, answers []model.StudentAnswer) (int, []model.StudentAnswer) {
	total := 0
	graded := make([]model.StudentAnswer, len(answers))
	for i, ans := range answers {
		graded[i] = ans
		if i >= len(questions) {
			continue
		}
		q := questions[i]
		correctID, hasCorrect := q.CorrectChoiceID()
		correct := hasCorrect && ans.SelectedChoiceID != nil && *ans.SelectedChoiceID == correctID
		graded[i].IsCorrectAnswer = &correct
		if correct {
			total += q.Mark
		}
	}
	return total, graded
}
