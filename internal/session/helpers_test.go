package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// testQuestion builds a gradable question whose first choice is correct.
func testQuestion(id string, mark int, numChoices int) model.Question {
	q := model.Question{
		ID:               id,
		Text:             "question " + id,
		SpecializationID: "spec-1",
		Mark:             mark,
	}
	for i := 0; i < numChoices; i++ {
		q.Choices = append(q.Choices, model.Choice{
			ID:        fmt.Sprintf("%s-c%d", id, i),
			Text:      fmt.Sprintf("choice %d", i),
			IsCorrect: i == 0,
		})
	}
	return q
}

// fakeSource is an in-memory QuestionSource.
type fakeSource struct {
	pool      []model.Question
	all       []model.Question // cross-topic fallback pool
	generated []model.Question
	listErr   error
	genErr    error
}

func (f *fakeSource) ListEligible(_ context.Context, specializationID string, _ bool) ([]model.Question, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if specializationID == "" {
		return append([]model.Question(nil), f.all...), nil
	}
	return append([]model.Question(nil), f.pool...), nil
}

func (f *fakeSource) Generate(_ context.Context, _ string, count int) ([]model.Question, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	if count > len(f.generated) {
		count = len(f.generated)
	}
	return append([]model.Question(nil), f.generated[:count]...), nil
}

// memStore records appended sessions and counts writes.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]model.ExamSession
	appends  int
	failNext error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]model.ExamSession)}
}

func (m *memStore) AppendSession(sess model.ExamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if !sess.Completed() {
		return ErrNotSubmitted
	}
	if _, ok := m.sessions[sess.ID]; ok {
		return nil
	}
	m.sessions[sess.ID] = sess.Clone()
	m.appends++
	return nil
}

func (m *memStore) GetSessionByID(id string) (model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ExamSession{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (m *memStore) ListSessions() ([]model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ExamSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}

func (m *memStore) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

// fakeClock captures the callbacks so tests can fire expiry by hand.
type fakeClock struct {
	started   bool
	cancelled bool
	duration  time.Duration
	onTick    func(time.Duration)
	onExpire  func()
}

func (c *fakeClock) Start(d time.Duration, onTick func(time.Duration), onExpire func()) {
	c.started = true
	c.duration = d
	c.onTick = onTick
	c.onExpire = onExpire
}

func (c *fakeClock) Cancel() { c.cancelled = true }

// recordingSink collects snapshot notifications.
type recordingSink struct {
	snapshots []model.ExamSession
}

func (r *recordingSink) SaveSnapshot(sess model.ExamSession) {
	r.snapshots = append(r.snapshots, sess)
}

var errBoom = errors.New("boom")
