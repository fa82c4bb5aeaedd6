package session

import "errors"

var (
	// ErrNoEligibleQuestions means the fixed pool for the requested
	// specialization (and the cross-topic fallback pool) is empty.
	ErrNoEligibleQuestions = errors.New("no eligible questions")

	// ErrInvalidIndex means a question index outside [0, len(questions)).
	ErrInvalidIndex = errors.New("question index out of range")

	// ErrInvalidChoice means the choice id does not belong to the question
	// at the given index.
	ErrInvalidChoice = errors.New("choice does not belong to question")

	// ErrNavigationNotAllowed means a backward move was attempted while the
	// exam definition forbids backward navigation.
	ErrNavigationNotAllowed = errors.New("backward navigation not allowed")

	// ErrNotSubmitted means an in-progress session was offered to the store.
	ErrNotSubmitted = errors.New("session not submitted")

	// ErrSessionNotFound means no stored session has the requested id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUpstreamUnavailable wraps failures of external collaborators:
	// question repository, AI generation, store writes. The engine does not
	// retry; retry policy belongs to the caller.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
