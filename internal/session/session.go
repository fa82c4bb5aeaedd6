// Package session implements the exam session lifecycle engine: assembling a
// question set into a timed session, tracking in-progress answers, enforcing
// submission rules including forced auto-submission on timeout, computing the
// score, and handing the completed session to a durable store.
//
// The engine owns exactly one in-progress session per Tracker instance; the
// collaborators it depends on (question source, clock, store) are injected
// through the interfaces below.
package session

import (
	"context"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// QuestionSource supplies eligible questions for a specialization. An empty
// specializationID means no topic filtering.
type QuestionSource interface {
	// ListEligible returns structurally valid authored questions for the
	// specialization, optionally excluding AI-generated ones.
	ListEligible(ctx context.Context, specializationID string, excludeAIGenerated bool) ([]model.Question, error)

	// Generate requests count freshly AI-generated questions scoped to the
	// specialization.
	Generate(ctx context.Context, specializationID string, count int) ([]model.Question, error)
}

// Store is the durable, append-only record of completed sessions.
type Store interface {
	// AppendSession persists a submitted session. It returns ErrNotSubmitted
	// for an in-progress session. Re-appending an already stored id is a
	// no-op, so a failed write can be retried with the same session value
	// without double-counting.
	AppendSession(sess model.ExamSession) error

	// GetSessionByID returns the stored session or ErrSessionNotFound.
	GetSessionByID(id string) (model.ExamSession, error)

	// ListSessions returns stored sessions ordered by completion time,
	// newest first.
	ListSessions() ([]model.ExamSession, error)
}

// SnapshotSink observes in-progress session state after each recorded answer,
// e.g. for crash recovery. The engine treats it as a pass-through
// notification; implementations must not block for long.
type SnapshotSink interface {
	SaveSnapshot(sess model.ExamSession)
}
