package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/abdullah-az/ai-exam/internal/i18n"
	"github.com/abdullah-az/ai-exam/internal/model"
	"github.com/abdullah-az/ai-exam/internal/store"
)

// fakeGen is an in-memory generator.
type fakeGen struct {
	payloads []model.GeneratedQuestionPayload
	err      error
}

func (f *fakeGen) GenerateFromExamples(_ context.Context, _ string, _ []model.Question, count int) ([]model.GeneratedQuestionPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	if count > len(f.payloads) {
		count = len(f.payloads)
	}
	return f.payloads[:count], nil
}

func (f *fakeGen) GenerateFromText(_ context.Context, _ string, _ string, count int) ([]model.GeneratedQuestionPayload, error) {
	return f.GenerateFromExamples(context.Background(), "", nil, count)
}

type testEnv struct {
	store  *store.Store
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, gen Generator) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}

	s, err := store.New(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, gen, nil, model.ExamConfig{NumQuestions: 10})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testEnv{store: s, server: server, client: &http.Client{Jar: jar}}
}

func (e *testEnv) seedUser(t *testing.T, username, password string, role model.UserRole) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	id, err := e.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func (e *testEnv) seedQuestions(t *testing.T, specializationID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.store.InsertQuestion(model.Question{
			Text:             fmt.Sprintf("question %d", i),
			SpecializationID: specializationID,
			Mark:             5,
			Choices: []model.Choice{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
			},
		})
		if err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) login(t *testing.T, username, password string) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/login", map[string]string{
		"username": username, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)

	resp, body := env.do(t, http.MethodPost, "/api/login", map[string]string{
		"username": "amal", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
	if body["error"] != "Invalid username or password." {
		t.Errorf("unexpected error message: %v", body["error"])
	}

	env.login(t, "amal", "secret")

	resp, _ = env.do(t, http.MethodGet, "/api/specializations", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated request status = %d, want 200", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/logout", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout status = %d, want 204", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/specializations", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("post-logout status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/exams/current", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminForbiddenForStudent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.login(t, "amal", "secret")

	resp, _ := env.do(t, http.MethodGet, "/api/admin/questions", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestExamLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.seedQuestions(t, "spec-se", 3)
	env.login(t, "amal", "secret")

	resp, body := env.do(t, http.MethodPost, "/api/exams", map[string]any{
		"specialization_id": "spec-se",
		"exam_type":         "standard",
		"num_questions":     3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start exam status = %d: %v", resp.StatusCode, body)
	}
	questions, ok := body["questions"].([]any)
	if !ok || len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %v", body["questions"])
	}
	// Correctness flags must not leak to an active exam.
	q0 := questions[0].(map[string]any)
	choices := q0["choices"].([]any)
	if _, leaked := choices[0].(map[string]any)["is_correct"]; leaked {
		t.Error("choice correctness leaked into active exam payload")
	}

	// Current exam is retrievable.
	resp, body = env.do(t, http.MethodGet, "/api/exams/current", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current exam status = %d", resp.StatusCode)
	}

	// Answer every question with its first choice.
	for i, raw := range body["questions"].([]any) {
		q := raw.(map[string]any)
		choiceID := q["choices"].([]any)[0].(map[string]any)["id"].(string)
		resp, errBody := env.do(t, http.MethodPost, "/api/exams/current/answers", map[string]any{
			"question_index": i,
			"choice_id":      choiceID,
		})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("answer %d status = %d: %v", i, resp.StatusCode, errBody)
		}
	}

	resp, body = env.do(t, http.MethodPost, "/api/exams/current/submit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d: %v", resp.StatusCode, body)
	}
	if body["max_score"] != float64(15) {
		t.Errorf("max_score = %v, want 15", body["max_score"])
	}
	sessionID := body["session_id"].(string)

	// Submitting again finds no active exam.
	resp, _ = env.do(t, http.MethodPost, "/api/exams/current/submit", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double submit status = %d, want 404", resp.StatusCode)
	}

	// Exactly one result was recorded.
	resp, body = env.do(t, http.MethodGet, "/api/results", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results status = %d", resp.StatusCode)
	}
	results := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	resp, body = env.do(t, http.MethodGet, "/api/results/"+sessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result detail status = %d", resp.StatusCode)
	}
	if body["session"].(map[string]any)["id"] != sessionID {
		t.Error("result detail returned the wrong session")
	}
}

func TestStartExamConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.seedQuestions(t, "spec-se", 2)
	env.login(t, "amal", "secret")

	start := map[string]any{"specialization_id": "spec-se", "exam_type": "standard", "num_questions": 2}
	resp, _ := env.do(t, http.MethodPost, "/api/exams", start)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/exams", start)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	// Abandoning frees the slot.
	resp, _ = env.do(t, http.MethodDelete, "/api/exams/current", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("abandon status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/exams", start)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("restart after abandon status = %d, want 201", resp.StatusCode)
	}
}

func TestStartExamNoQuestions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.login(t, "amal", "secret")

	resp, body := env.do(t, http.MethodPost, "/api/exams", map[string]any{
		"specialization_id": "spec-se",
		"exam_type":         "standard",
		"num_questions":     5,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %v", resp.StatusCode, body)
	}
}

func TestSmartExamUsesGenerator(t *testing.T) {
	gen := &fakeGen{payloads: []model.GeneratedQuestionPayload{
		{Text: "generated q", Mark: 5, Choices: []model.GeneratedChoice{
			{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}, {Text: "d"},
		}},
	}}
	env := newTestEnv(t, gen)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.login(t, "amal", "secret")

	resp, body := env.do(t, http.MethodPost, "/api/exams", map[string]any{
		"specialization_id": "spec-se",
		"exam_type":         "smart",
		"num_questions":     1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("smart start status = %d: %v", resp.StatusCode, body)
	}
	questions := body["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("expected 1 generated question, got %d", len(questions))
	}
	if questions[0].(map[string]any)["text"] != "generated q" {
		t.Errorf("unexpected question: %v", questions[0])
	}
}

func TestSmartExamGenerationFailure(t *testing.T) {
	env := newTestEnv(t, &fakeGen{err: errors.New("quota exceeded")})
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.login(t, "amal", "secret")

	resp, _ := env.do(t, http.MethodPost, "/api/exams", map[string]any{
		"specialization_id": "spec-se",
		"exam_type":         "smart",
		"num_questions":     1,
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestAdminGenerateQuestions(t *testing.T) {
	gen := &fakeGen{payloads: []model.GeneratedQuestionPayload{
		{Text: "gen 1", Mark: 5, Choices: []model.GeneratedChoice{{Text: "a", IsCorrect: true}, {Text: "b"}}},
		{Text: "gen 2", Mark: 5, Choices: []model.GeneratedChoice{{Text: "a", IsCorrect: true}, {Text: "b"}}},
	}}
	env := newTestEnv(t, gen)
	env.seedUser(t, "boss", "secret", model.UserRoleAdmin)
	env.login(t, "boss", "secret")

	resp, body := env.do(t, http.MethodPost, "/api/admin/ai/questions", map[string]any{
		"specialization_id": "spec-se",
		"count":             2,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status = %d: %v", resp.StatusCode, body)
	}

	// Generated questions land in the authoring pool, flagged AI.
	stored, err := env.store.ListQuestions(context.Background(), "spec-se")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored questions, got %d", len(stored))
	}
	for _, q := range stored {
		if !q.IsAIGenerated {
			t.Errorf("question %q not flagged as AI generated", q.Text)
		}
	}
}

func TestCreateQuestionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "boss", "secret", model.UserRoleAdmin)
	env.login(t, "boss", "secret")

	tests := []struct {
		name string
		q    map[string]any
	}{
		{"no text", map[string]any{"specialization_id": "s", "choices": []map[string]any{
			{"text": "a", "is_correct": true}, {"text": "b"},
		}}},
		{"one choice", map[string]any{"text": "q", "specialization_id": "s", "choices": []map[string]any{
			{"text": "a", "is_correct": true},
		}}},
		{"two corrects", map[string]any{"text": "q", "specialization_id": "s", "choices": []map[string]any{
			{"text": "a", "is_correct": true}, {"text": "b", "is_correct": true},
		}}},
		{"no correct", map[string]any{"text": "q", "specialization_id": "s", "choices": []map[string]any{
			{"text": "a"}, {"text": "b"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPost, "/api/admin/questions", tt.q)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	resp, body := env.do(t, http.MethodPost, "/api/admin/questions", map[string]any{
		"text":              "valid question",
		"specialization_id": "spec-se",
		"choices": []map[string]any{
			{"text": "a", "is_correct": true}, {"text": "b"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("valid question status = %d: %v", resp.StatusCode, body)
	}
}

func TestImportQuestions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "boss", "secret", model.UserRoleAdmin)
	env.login(t, "boss", "secret")

	payload := `[{"text": "imported q", "specialization_id": "spec-se", "mark": 5,
		"choices": [{"text": "a", "is_correct": true}, {"text": "b"}]}]`

	upload := func() (*http.Response, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("questions_file", "questions.json")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(payload)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
		mw.Close()

		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/admin/questions/import", &buf)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := env.client.Do(req)
		if err != nil {
			t.Fatalf("import request: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp, body
	}

	resp, body := upload()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d: %v", resp.StatusCode, body)
	}
	if body["imported"] != float64(1) || body["duplicate"] != false {
		t.Errorf("first import body: %v", body)
	}

	// Re-uploading the identical file is skipped.
	resp, body = upload()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate import status = %d", resp.StatusCode)
	}
	if body["duplicate"] != true {
		t.Errorf("duplicate import body: %v", body)
	}

	count, err := env.store.QuestionCount()
	if err != nil {
		t.Fatalf("question count: %v", err)
	}
	if count != 1 {
		t.Errorf("question count = %d, want 1", count)
	}
}

func TestResultOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "amal", "secret", model.UserRoleStudent)
	env.seedUser(t, "badr", "secret", model.UserRoleStudent)
	env.seedQuestions(t, "spec-se", 1)

	env.login(t, "amal", "secret")
	resp, _ := env.do(t, http.MethodPost, "/api/exams", map[string]any{
		"specialization_id": "spec-se", "exam_type": "standard", "num_questions": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodPost, "/api/exams/current/submit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	sessionID := body["session_id"].(string)

	// Another student cannot read the result.
	env.login(t, "badr", "secret")
	resp, _ = env.do(t, http.MethodGet, "/api/results/"+sessionID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign result status = %d, want 403", resp.StatusCode)
	}
}
