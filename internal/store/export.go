package store

import (
	"fmt"
	"time"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// ExportAllSessions builds an export-ready report from all stored sessions.
func (s *Store) ExportAllSessions() (model.ResultsExport, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list sessions: %w", err)
	}

	export := model.ResultsExport{
		ExportedAt:  time.Now().UTC(),
		NumSessions: len(sessions),
	}
	for _, sess := range sessions {
		user, err := s.GetUserByID(sess.StudentID)
		if err != nil {
			return model.ResultsExport{}, fmt.Errorf("get user %s: %w", sess.StudentID, err)
		}
		var studentName string
		if user != nil {
			studentName = user.DisplayName
		}

		result := model.SessionResult{
			SessionID:        sess.ID,
			StudentID:        sess.StudentID,
			StudentName:      studentName,
			ExamName:         sess.ExamName,
			SpecializationID: sess.SpecializationID,
			Score:            sess.Score,
			MaxScore:         sess.TotalMarks(),
		}
		if sess.CompletedAt != nil {
			result.CompletedAt = *sess.CompletedAt
		}

		for i, q := range sess.Questions {
			ar := model.AnswerResult{
				QuestionText: q.Text,
				Mark:         q.Mark,
			}
			if correctID, ok := q.CorrectChoiceID(); ok {
				if c := q.ChoiceByID(correctID); c != nil {
					ar.CorrectChoice = c.Text
				}
			}
			if i < len(sess.Answers) {
				ans := sess.Answers[i]
				if ans.SelectedChoiceID != nil {
					if c := q.ChoiceByID(*ans.SelectedChoiceID); c != nil {
						ar.SelectedChoice = c.Text
					}
				}
				if ans.IsCorrectAnswer != nil {
					ar.Correct = *ans.IsCorrectAnswer
				}
			}
			result.Answers = append(result.Answers, ar)
		}
		export.Sessions = append(export.Sessions, result)
	}
	return export, nil
}
