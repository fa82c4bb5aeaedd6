package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Specialization is a subject-matter category used to select eligible questions.
type Specialization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Choice is one selectable option of a multiple-choice question.
type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// AttachmentType classifies supplementary question material.
type AttachmentType string

const (
	AttachmentImage   AttachmentType = "image"
	AttachmentCode    AttachmentType = "code"
	AttachmentDiagram AttachmentType = "diagram"
	AttachmentText    AttachmentType = "text"
)

// Attachment is supplementary material tied to a question. It is stored and
// served as data; rendering is the client's concern.
type Attachment struct {
	ID       string         `json:"id"`
	Type     AttachmentType `json:"attachment_type"`
	FileName string         `json:"file_name,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// Question represents a multiple-choice exam question.
type Question struct {
	ID               string       `json:"id"`
	Text             string       `json:"text"`
	SpecializationID string       `json:"specialization_id"`
	CourseYear       int          `json:"course_year"`
	Mark             int          `json:"mark"`
	IsAIGenerated    bool         `json:"is_ai_generated"`
	Choices          []Choice     `json:"choices"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// ChoiceByID returns the choice with the given id, or nil.
func (q Question) ChoiceByID(id string) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i]
		}
	}
	return nil
}

// CorrectChoiceID returns the id of the first choice flagged correct.
func (q Question) CorrectChoiceID() (string, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c.ID, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the question.
func (q Question) Clone() Question {
	out := q
	out.Choices = append([]Choice(nil), q.Choices...)
	if q.Attachments != nil {
		out.Attachments = append([]Attachment(nil), q.Attachments...)
	}
	return out
}

// StudentAnswer records the selection for one question of a session.
// SelectedChoiceID is nil while unanswered; IsCorrectAnswer is nil until graded.
type StudentAnswer struct {
	QuestionID       string  `json:"question_id"`
	SelectedChoiceID *string `json:"selected_choice_id"`
	IsCorrectAnswer  *bool   `json:"is_correct_answer,omitempty"`
}

// ExamSession is one student's timed attempt at a set of questions. Questions
// are embedded as full copies so later edits to the authoring copies never
// alter a graded attempt. Answers run parallel to Questions, index by index.
type ExamSession struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"student_id"`
	SpecializationID string          `json:"specialization_id"`
	ExamDefinitionID string          `json:"admin_exam_definition_id,omitempty"`
	ExamName         string          `json:"exam_name,omitempty"`
	Score            int             `json:"score"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Answers          []StudentAnswer `json:"answers"`
	Questions        []Question      `json:"questions"`
}

// Completed reports whether the session has been submitted and graded.
func (s ExamSession) Completed() bool {
	return s.CompletedAt != nil
}

// TotalMarks is the maximum attainable score.
func (s ExamSession) TotalMarks() int {
	total := 0
	for _, q := range s.Questions {
		total += q.Mark
	}
	return total
}

// Clone returns a deep copy of the session.
func (s ExamSession) Clone() ExamSession {
	out := s
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	out.Answers = make([]StudentAnswer, len(s.Answers))
	for i, a := range s.Answers {
		out.Answers[i] = a
		if a.SelectedChoiceID != nil {
			id := *a.SelectedChoiceID
			out.Answers[i].SelectedChoiceID = &id
		}
		if a.IsCorrectAnswer != nil {
			ok := *a.IsCorrectAnswer
			out.Answers[i].IsCorrectAnswer = &ok
		}
	}
	out.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q.Clone()
	}
	return out
}

// ExamSettings are the behavioral switches of an admin-defined exam.
type ExamSettings struct {
	ShowResultImmediately bool `json:"showResultImmediately"`
	AllowRetries          bool `json:"allowRetries"`
	AllowNavigateBack     bool `json:"allowNavigateBack"`
	AllowAutoGrading      bool `json:"allowAutoGrading"`
}

// DefaultExamSettings returns the settings applied when a session is not
// linked to an admin-defined exam.
func DefaultExamSettings() ExamSettings {
	return ExamSettings{
		ShowResultImmediately: true,
		AllowNavigateBack:     true,
		AllowAutoGrading:      true,
	}
}

// ExamDefinition is an admin-authored exam template: topic filter, question
// count, time budget, passing threshold and behavioral settings.
type ExamDefinition struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Description         string       `json:"description"`
	NumQuestions        int          `json:"num_questions"`
	DurationMinutes     int          `json:"durationMinutes"`
	PassingGradePercent int          `json:"passingGradePercent"`
	Settings            ExamSettings `json:"settings"`
	SpecializationID    string       `json:"specialization_id"`
	CreatedAt           time.Time    `json:"createdAt"`
}

// ExamType selects how session questions are sourced.
type ExamType string

const (
	// ExamStandard draws a random subset of author-curated questions.
	ExamStandard ExamType = "standard"
	// ExamSmart requests freshly AI-generated questions.
	ExamSmart ExamType = "smart"
)

// ExamConfig holds runtime exam parameters set via CLI flags.
type ExamConfig struct {
	NumQuestions    int // default question count for ad-hoc exams
	DurationSeconds int // default time budget for ad-hoc exams
	BasePath        string
	SecureCookies   bool
}

// GeneratedChoice is the choice shape produced by the AI question supplier.
type GeneratedChoice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// GeneratedQuestionPayload is the wire shape of one AI-generated question.
type GeneratedQuestionPayload struct {
	Text       string            `json:"text"`
	Choices    []GeneratedChoice `json:"choices"`
	CourseYear int               `json:"course_year"`
	Mark       int               `json:"mark"`
}

// QuestionImport is used for loading questions from JSON files.
type QuestionImport struct {
	Text             string            `json:"text"`
	SpecializationID string            `json:"specialization_id"`
	CourseYear       int               `json:"course_year"`
	Mark             int               `json:"mark"`
	Choices          []GeneratedChoice `json:"choices"`
}
