// Package handler exposes the exam platform as a JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/abdullah-az/ai-exam/internal/i18n"
	"github.com/abdullah-az/ai-exam/internal/model"
	"github.com/abdullah-az/ai-exam/internal/session"
	"github.com/abdullah-az/ai-exam/internal/store"
)

// SnapshotStore persists in-progress session snapshots and discards them once
// the attempt ends.
type SnapshotStore interface {
	session.SnapshotSink
	Discard(sessionID string)
}

// Generator is the question-generation surface the handlers need from the LLM
// client. Nil disables AI features.
type Generator interface {
	GenerateFromExamples(ctx context.Context, specialization string, examples []model.Question, count int) ([]model.GeneratedQuestionPayload, error)
	GenerateFromText(ctx context.Context, specialization, sourceText string, count int) ([]model.GeneratedQuestionPayload, error)
}

// activeExam pairs a tracker with the settings the session was started under.
type activeExam struct {
	tracker  *session.Tracker
	settings model.ExamSettings
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	gen      Generator
	snapshot SnapshotStore
	config   model.ExamConfig
	builder  *session.Builder

	mu     sync.Mutex
	active map[string]*activeExam // keyed by student id
}

// New creates a new Handler. gen and snapshot may be nil.
func New(s *store.Store, gen Generator, snapshot SnapshotStore, cfg model.ExamConfig) *Handler {
	return &Handler{
		store:    s,
		gen:      gen,
		snapshot: snapshot,
		config:   cfg,
		builder:  session.NewBuilder(&questionSource{store: s, gen: gen}),
		active:   make(map[string]*activeExam),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/specializations", h.handleListSpecializations)
		r.Get("/api/exam-definitions", h.handleListDefinitions)

		r.Route("/api/exams", func(r chi.Router) {
			r.Post("/", h.handleStartExam)
			r.Route("/current", func(r chi.Router) {
				r.Get("/", h.handleCurrentExam)
				r.Delete("/", h.handleAbandonExam)
				r.Post("/answers", h.handleRecordAnswer)
				r.Post("/position", h.handleMoveTo)
				r.Post("/submit", h.handleSubmitExam)
			})
		})
		r.Get("/api/results", h.handleListResults)
		r.Get("/api/results/{sessionID}", h.handleGetResult)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))

			r.Get("/questions", h.handleAdminListQuestions)
			r.Post("/questions", h.handleCreateQuestion)
			r.Put("/questions/{questionID}", h.handleUpdateQuestion)
			r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
			r.Post("/questions/import", h.handleImportQuestions)
			r.Post("/specializations", h.handleCreateSpecialization)
			r.Post("/exam-definitions", h.handleCreateDefinition)
			r.Post("/ai/questions", h.handleGenerateQuestions)
			r.Post("/ai/questions/from-text", h.handleGenerateFromText)
			r.Get("/users", h.handleAdminListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			r.Get("/export", h.handleExportResults)
		})
	})
}

// activeFor returns the student's current exam, if any.
func (h *Handler) activeFor(studentID string) *activeExam {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active[studentID]
}

func (h *Handler) setActive(studentID string, exam *activeExam) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[studentID] = exam
}

func (h *Handler) clearActive(studentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, studentID)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError emits a localized error body.
func respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

// respondEngineError maps lifecycle-engine sentinel errors to HTTP responses.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNoEligibleQuestions):
		respondError(w, r, http.StatusUnprocessableEntity, "ErrNoEligibleQuestions")
	case errors.Is(err, session.ErrInvalidIndex):
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
	case errors.Is(err, session.ErrInvalidChoice):
		respondError(w, r, http.StatusBadRequest, "ErrInvalidChoice")
	case errors.Is(err, session.ErrNavigationNotAllowed):
		respondError(w, r, http.StatusForbidden, "ErrNavigationNotAllowed")
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, r, http.StatusNotFound, "ErrSessionNotFound")
	case errors.Is(err, session.ErrUpstreamUnavailable):
		respondError(w, r, http.StatusBadGateway, "ErrGenerationUnavailable")
	default:
		slog.Error("request failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
	}
}

// decodeJSON parses a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
