package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/abdullah-az/ai-exam/internal/i18n"
	"github.com/abdullah-az/ai-exam/internal/model"
	"github.com/abdullah-az/ai-exam/internal/session"
)

func (h *Handler) handleListSpecializations(w http.ResponseWriter, r *http.Request) {
	specs, err := h.store.ListSpecializations()
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"specializations": specs})
}

func (h *Handler) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.ListExamDefinitions()
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"exam_definitions": defs})
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	if exam := h.activeFor(user.ID); exam != nil && exam.tracker.State() == session.StateActive {
		respondError(w, r, http.StatusConflict, "ErrActiveExamExists")
		return
	}

	var req struct {
		SpecializationID string         `json:"specialization_id"`
		ExamType         model.ExamType `json:"exam_type"`
		NumQuestions     int            `json:"num_questions"`
		ExamDefinitionID string         `json:"admin_exam_definition_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	params := session.BuildParams{
		StudentID:        user.ID,
		SpecializationID: req.SpecializationID,
		QuestionCount:    req.NumQuestions,
		Policy:           session.PolicyForExamType(req.ExamType),
	}
	if params.QuestionCount < 1 {
		params.QuestionCount = h.config.NumQuestions
	}

	settings := model.DefaultExamSettings()
	duration := time.Duration(h.config.DurationSeconds) * time.Second
	if req.ExamDefinitionID != "" {
		def, err := h.store.GetExamDefinition(req.ExamDefinitionID)
		if err != nil {
			respondError(w, r, http.StatusNotFound, "ErrDefinitionNotFound")
			return
		}
		params.Definition = &def
		params.SpecializationID = def.SpecializationID
		settings = def.Settings
		duration = time.Duration(def.DurationMinutes) * time.Minute
	}

	sess, err := h.builder.Build(r.Context(), params)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	cfg := session.TrackerConfig{
		Duration:          duration,
		AllowNavigateBack: settings.AllowNavigateBack,
	}
	if duration > 0 {
		cfg.Clock = session.NewTickerClock()
	}
	if h.snapshot != nil {
		cfg.Snapshot = h.snapshot
	}
	exam := &activeExam{
		tracker:  session.NewTracker(*sess, h.store, cfg),
		settings: settings,
	}
	h.setActive(user.ID, exam)

	slog.Info("exam started",
		"student_id", user.ID,
		"session_id", sess.ID,
		"specialization_id", params.SpecializationID,
		"questions", len(sess.Questions),
		"duration", duration)

	respondJSON(w, http.StatusCreated, h.currentExamResponse(exam))
}

func (h *Handler) handleCurrentExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam := h.activeFor(user.ID)
	if exam == nil || exam.tracker.State() != session.StateActive {
		respondError(w, r, http.StatusNotFound, "ErrNoActiveExam")
		return
	}
	respondJSON(w, http.StatusOK, h.currentExamResponse(exam))
}

func (h *Handler) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam := h.activeFor(user.ID)
	if exam == nil || exam.tracker.State() != session.StateActive {
		respondError(w, r, http.StatusNotFound, "ErrNoActiveExam")
		return
	}

	var req struct {
		QuestionIndex int    `json:"question_index"`
		ChoiceID      string `json:"choice_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if err := exam.tracker.RecordAnswer(req.QuestionIndex, req.ChoiceID); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleMoveTo(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam := h.activeFor(user.ID)
	if exam == nil || exam.tracker.State() != session.StateActive {
		respondError(w, r, http.StatusNotFound, "ErrNoActiveExam")
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if err := exam.tracker.MoveTo(req.Index); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"position": exam.tracker.Position()})
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam := h.activeFor(user.ID)
	if exam == nil {
		respondError(w, r, http.StatusNotFound, "ErrNoActiveExam")
		return
	}

	sess, err := exam.tracker.Submit()
	if err != nil {
		slog.Error("submit failed to persist", "session_id", sess.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	// The timer may have auto-submitted with a store failure in between; the
	// append is idempotent, so retrying here is safe and covers that window.
	if err := h.store.AppendSession(sess); err != nil {
		respondEngineError(w, r, err)
		return
	}

	h.clearActive(user.ID)
	if h.snapshot != nil {
		h.snapshot.Discard(sess.ID)
	}

	slog.Info("exam submitted",
		"student_id", user.ID,
		"session_id", sess.ID,
		"score", sess.Score,
		"max_score", sess.TotalMarks())

	resp := map[string]any{
		"message":    appI18n.T(r.Context(), "ExamSubmitted"),
		"session_id": sess.ID,
	}
	if exam.settings.ShowResultImmediately {
		resp["session"] = sess
		resp["score"] = sess.Score
		resp["max_score"] = sess.TotalMarks()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAbandonExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam := h.activeFor(user.ID)
	if exam == nil {
		respondError(w, r, http.StatusNotFound, "ErrNoActiveExam")
		return
	}

	exam.tracker.Abandon()
	h.clearActive(user.ID)
	if h.snapshot != nil {
		h.snapshot.Discard(exam.tracker.Session().ID)
	}

	slog.Info("exam abandoned", "student_id", user.ID)
	respondJSON(w, http.StatusOK, map[string]string{"message": appI18n.T(r.Context(), "ExamAbandoned")})
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var (
		sessions []model.ExamSession
		err      error
	)
	if user.Role == model.UserRoleAdmin {
		sessions, err = h.store.ListSessions()
	} else {
		sessions, err = h.store.ListSessionsForStudent(user.ID)
	}
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	summaries := make([]resultSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, summarize(s))
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": summaries})
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sess, err := h.store.GetSessionByID(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if sess.StudentID != user.ID && user.Role != model.UserRoleAdmin {
		respondError(w, r, http.StatusForbidden, "ErrForbidden")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": sess})
}

type resultSummary struct {
	ID               string     `json:"id"`
	ExamName         string     `json:"exam_name,omitempty"`
	SpecializationID string     `json:"specialization_id"`
	Score            int        `json:"score"`
	MaxScore         int        `json:"max_score"`
	CompletedAt      *time.Time `json:"completed_at"`
}

func summarize(s model.ExamSession) resultSummary {
	return resultSummary{
		ID:               s.ID,
		ExamName:         s.ExamName,
		SpecializationID: s.SpecializationID,
		Score:            s.Score,
		MaxScore:         s.TotalMarks(),
		CompletedAt:      s.CompletedAt,
	}
}

// choiceView hides correctness flags while an exam is running.
type choiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID          string             `json:"id"`
	Text        string             `json:"text"`
	CourseYear  int                `json:"course_year"`
	Mark        int                `json:"mark"`
	Choices     []choiceView       `json:"choices"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

type answerView struct {
	QuestionID       string  `json:"question_id"`
	SelectedChoiceID *string `json:"selected_choice_id"`
}

func (h *Handler) currentExamResponse(exam *activeExam) map[string]any {
	sess := exam.tracker.Session()

	questions := make([]questionView, len(sess.Questions))
	for i, q := range sess.Questions {
		qv := questionView{
			ID:          q.ID,
			Text:        q.Text,
			CourseYear:  q.CourseYear,
			Mark:        q.Mark,
			Attachments: q.Attachments,
		}
		for _, c := range q.Choices {
			qv.Choices = append(qv.Choices, choiceView{ID: c.ID, Text: c.Text})
		}
		questions[i] = qv
	}
	answers := make([]answerView, len(sess.Answers))
	for i, a := range sess.Answers {
		answers[i] = answerView{QuestionID: a.QuestionID, SelectedChoiceID: a.SelectedChoiceID}
	}

	return map[string]any{
		"session_id":        sess.ID,
		"exam_name":         sess.ExamName,
		"specialization_id": sess.SpecializationID,
		"state":             exam.tracker.State().String(),
		"position":          exam.tracker.Position(),
		"remaining_seconds": int(exam.tracker.Remaining().Seconds()),
		"settings":          exam.settings,
		"questions":         questions,
		"answers":           answers,
	}
}
