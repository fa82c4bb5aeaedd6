package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// State is the lifecycle state of a tracked session.
type State int

const (
	// StateActive accepts answer recording, navigation and submission.
	StateActive State = iota
	// StateSubmitting is the transient grading state; only the caller that
	// won the Active -> Submitting edge proceeds.
	StateSubmitting
	// StateSubmitted is terminal: the session is graded and read-only.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// TrackerConfig carries the per-attempt settings of a Tracker.
type TrackerConfig struct {
	// Duration is the time budget; zero means untimed.
	Duration time.Duration
	// AllowNavigateBack permits moving to an earlier question.
	AllowNavigateBack bool
	// Clock drives the countdown. Ignored when Duration is zero.
	Clock Clock
	// Snapshot, when non-nil, observes the session after every recorded
	// answer for crash recovery.
	Snapshot SnapshotSink

	now func() time.Time
}

// DefaultTrackerConfig returns the settings used for ad-hoc sessions with no
// linked exam definition.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{AllowNavigateBack: true}
}

// Tracker owns the mutable state of one in-progress exam session. All entry
// points are safe against the single asynchronous caller the model admits:
// the clock's expiry event racing a manual submit.
type Tracker struct {
	mu        sync.Mutex
	sess      model.ExamSession
	state     State
	pos       int
	remaining time.Duration

	store     Store
	clock     Clock
	snapshot  SnapshotSink
	allowBack bool
	now       func() time.Time
}

// NewTracker takes ownership of an in-progress session and starts the
// countdown when the config carries a clock and a positive duration.
func NewTracker(sess model.ExamSession, store Store, cfg TrackerConfig) *Tracker {
	t := &Tracker{
		sess:      sess.Clone(),
		state:     StateActive,
		store:     store,
		snapshot:  cfg.Snapshot,
		allowBack: cfg.AllowNavigateBack,
		remaining: cfg.Duration,
		now:       cfg.now,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if cfg.Clock != nil && cfg.Duration > 0 {
		t.clock = cfg.Clock
		t.clock.Start(cfg.Duration, t.onTick, t.OnTimerExpired)
	}
	return t
}

// Session returns a copy of the tracked session.
func (t *Tracker) Session() model.ExamSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess.Clone()
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position returns the current question index.
func (t *Tracker) Position() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Remaining returns the last observed countdown value.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// RecordAnswer overwrites the answer at index with the given choice.
// Re-answering is always allowed; the current position is unchanged. After
// the session is submitted this is a no-op.
func (t *Tracker) RecordAnswer(index int, choiceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return nil
	}
	if index < 0 || index >= len(t.sess.Questions) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if t.sess.Questions[index].ChoiceByID(choiceID) == nil {
		return fmt.Errorf("%w: %q at index %d", ErrInvalidChoice, choiceID, index)
	}
	selected := choiceID
	t.sess.Answers[index].SelectedChoiceID = &selected
	t.sess.Answers[index].IsCorrectAnswer = nil
	if t.snapshot != nil {
		t.snapshot.SaveSnapshot(t.sess.Clone())
	}
	return nil
}

// MoveTo moves the current question pointer. Backward moves require
// AllowNavigateBack; a forward move past the last index is a no-op (submit
// ends the session instead). Whether the current question must be answered
// before advancing is a caller-level policy, not enforced here.
func (t *Tracker) MoveTo(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return nil
	}
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if index >= len(t.sess.Questions) {
		return nil
	}
	if index < t.pos && !t.allowBack {
		return ErrNavigationNotAllowed
	}
	t.pos = index
	return nil
}

// Submit transitions Active -> Submitting -> Submitted exactly once: the
// score is computed from the embedded questions, the completion timestamp is
// set, and the now-immutable session is appended to the store. Every later
// call returns the already-graded session without a second store write.
//
// A store failure is reported after grading completed; the returned session
// is final and the caller may retry AppendSession with it.
func (t *Tracker) Submit() (model.ExamSession, error) {
	t.mu.Lock()
	if t.state != StateActive {
		sess := t.sess.Clone()
		t.mu.Unlock()
		return sess, nil
	}
	t.state = StateSubmitting

	total, graded := Score(t.sess.Questions, t.sess.Answers)
	t.sess.Score = total
	t.sess.Answers = graded
	completedAt := t.now().UTC()
	t.sess.CompletedAt = &completedAt
	t.state = StateSubmitted

	if t.clock != nil {
		t.clock.Cancel()
	}
	sess := t.sess.Clone()
	store := t.store
	t.mu.Unlock()

	if store != nil {
		if err := store.AppendSession(sess); err != nil {
			return sess, fmt.Errorf("%w: append session: %v", ErrUpstreamUnavailable, err)
		}
	}
	return sess, nil
}

// OnTimerExpired is the clock's expiry event. It behaves exactly like an
// external Submit and is safe to deliver after a manual submit already ran.
func (t *Tracker) OnTimerExpired() {
	sessID := t.sess.ID
	if _, err := t.Submit(); err != nil {
		slog.Error("auto-submit on timer expiry failed", "session_id", sessID, "error", err)
	}
}

// Abandon discards the in-progress attempt without grading or persisting it.
// A no-op once the session is submitted.
func (t *Tracker) Abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return
	}
	if t.clock != nil {
		t.clock.Cancel()
	}
}

func (t *Tracker) onTick(remaining time.Duration) {
	t.mu.Lock()
	t.remaining = remaining
	t.mu.Unlock()
}
