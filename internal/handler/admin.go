package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appI18n "github.com/abdullah-az/ai-exam/internal/i18n"
	"github.com/abdullah-az/ai-exam/internal/model"
)

func (h *Handler) handleAdminListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.store.ListQuestions(r.Context(), r.URL.Query().Get("specialization_id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// validQuestion checks an authored question before it enters the pool. Unlike
// imported or generated material, hand-authored questions are rejected rather
// than repaired.
func validQuestion(q model.Question) bool {
	if q.Text == "" || q.SpecializationID == "" || len(q.Choices) < 2 {
		return false
	}
	correct := 0
	for _, c := range q.Choices {
		if c.Text == "" {
			return false
		}
		if c.IsCorrect {
			correct++
		}
	}
	return correct == 1
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if err := decodeJSON(r, &q); err != nil || !validQuestion(q) {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if q.Mark <= 0 {
		q.Mark = 5
	}

	id, err := h.store.InsertQuestion(q)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	created, err := h.store.GetQuestion(id)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"question": created})
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if err := decodeJSON(r, &q); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	if !validQuestion(q) {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	for i := range q.Choices {
		if q.Choices[i].ID == "" {
			q.Choices[i].ID = uuid.NewString()
		}
	}

	if err := h.store.UpdateQuestion(q); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteQuestion(chi.URLParam(r, "questionID")); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if storedHash == hash {
		respondJSON(w, http.StatusOK, map[string]any{
			"message":   appI18n.Tp(r.Context(), "QuestionsImported", 0),
			"imported":  0,
			"duplicate": true,
		})
		return
	}

	var imports []model.QuestionImport
	if err := json.Unmarshal(data, &imports); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	count := 0
	for _, qi := range imports {
		q := model.Question{
			Text:             qi.Text,
			SpecializationID: qi.SpecializationID,
			CourseYear:       qi.CourseYear,
			Mark:             qi.Mark,
		}
		if q.Mark <= 0 {
			q.Mark = 5
		}
		for _, c := range qi.Choices {
			q.Choices = append(q.Choices, model.Choice{Text: c.Text, IsCorrect: c.IsCorrect})
		}
		if q.Text == "" || len(q.Choices) == 0 {
			continue
		}
		if _, err := h.store.InsertQuestion(q); err != nil {
			slog.Error("failed to insert imported question", "error", err)
			respondError(w, r, http.StatusInternalServerError, "ErrInternal")
			return
		}
		count++
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("imported questions", "filename", header.Filename, "count", count)
	respondJSON(w, http.StatusOK, map[string]any{
		"message":   appI18n.Tp(r.Context(), "QuestionsImported", count),
		"imported":  count,
		"duplicate": false,
	})
}

func (h *Handler) handleCreateSpecialization(w http.ResponseWriter, r *http.Request) {
	var sp model.Specialization
	if err := decodeJSON(r, &sp); err != nil || sp.Name == "" {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	id, err := h.store.UpsertSpecialization(sp)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	sp.ID = id
	respondJSON(w, http.StatusCreated, map[string]any{"specialization": sp})
}

func (h *Handler) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var def model.ExamDefinition
	if err := decodeJSON(r, &def); err != nil || def.Name == "" || def.SpecializationID == "" {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	id, err := h.store.CreateExamDefinition(def)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	def.ID = id
	respondJSON(w, http.StatusCreated, map[string]any{"exam_definition": def})
}

func (h *Handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	if h.gen == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ErrGenerationUnavailable")
		return
	}
	var req struct {
		SpecializationID string `json:"specialization_id"`
		Count            int    `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SpecializationID == "" || req.Count < 1 {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	source := &questionSource{store: h.store, gen: h.gen}
	questions, err := source.Generate(r.Context(), req.SpecializationID, req.Count)
	if err != nil {
		slog.Error("question generation failed", "specialization_id", req.SpecializationID, "error", err)
		respondError(w, r, http.StatusBadGateway, "ErrGenerationUnavailable")
		return
	}
	h.persistGenerated(w, r, questions)
}

func (h *Handler) handleGenerateFromText(w http.ResponseWriter, r *http.Request) {
	if h.gen == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ErrGenerationUnavailable")
		return
	}
	var req struct {
		SpecializationID string `json:"specialization_id"`
		Count            int    `json:"count"`
		Text             string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SpecializationID == "" || req.Count < 1 || req.Text == "" {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	name := req.SpecializationID
	if sp, err := h.store.GetSpecialization(req.SpecializationID); err == nil {
		name = sp.Name
	}
	payloads, err := h.gen.GenerateFromText(r.Context(), name, req.Text, req.Count)
	if err != nil {
		slog.Error("question generation from text failed", "specialization_id", req.SpecializationID, "error", err)
		respondError(w, r, http.StatusBadGateway, "ErrGenerationUnavailable")
		return
	}
	h.persistGenerated(w, r, materializeGenerated(payloads, req.SpecializationID))
}

func (h *Handler) persistGenerated(w http.ResponseWriter, r *http.Request, questions []model.Question) {
	for _, q := range questions {
		if _, err := h.store.InsertQuestion(q); err != nil {
			respondEngineError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":   appI18n.Tp(r.Context(), "QuestionsGenerated", len(questions)),
		"questions": questions,
	})
}

func (h *Handler) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOfUser(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		respondError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	role := model.UserRole(req.Role)
	if role != model.UserRoleAdmin {
		role = model.UserRoleStudent
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil || user == nil {
		respondError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"user": viewOfUser(*user)})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ToggleUserActive(chi.URLParam(r, "userID")); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleExportResults(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAllSessions()
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, export)
}
