package model

import "time"

// ResultsExport is the top-level JSON structure for exam result export.
type ResultsExport struct {
	ExportedAt  time.Time       `json:"exported_at"`
	NumSessions int             `json:"num_sessions"`
	Sessions    []SessionResult `json:"sessions"`
}

// SessionResult holds one completed session's data for export.
type SessionResult struct {
	SessionID        string         `json:"session_id"`
	StudentID        string         `json:"student_id"`
	StudentName      string         `json:"student_name,omitempty"`
	ExamName         string         `json:"exam_name,omitempty"`
	SpecializationID string         `json:"specialization_id"`
	Score            int            `json:"score"`
	MaxScore         int            `json:"max_score"`
	CompletedAt      time.Time      `json:"completed_at"`
	Answers          []AnswerResult `json:"answers"`
}

// AnswerResult holds per-question grading data for export.
type AnswerResult struct {
	QuestionText   string `json:"question_text"`
	Mark           int    `json:"mark"`
	SelectedChoice string `json:"selected_choice,omitempty"`
	CorrectChoice  string `json:"correct_choice"`
	Correct        bool   `json:"correct"`
}
