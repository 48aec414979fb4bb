package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session does not exist or has expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("quiz session already exists")
	// ErrSessionComplete is returned when an answer or back step arrives after the last task.
	ErrSessionComplete = errors.New("quiz session already complete")
	// ErrSessionIncomplete is returned when finalizing before every item was answered.
	ErrSessionIncomplete = errors.New("quiz session not complete")
	// ErrSessionFinalized is returned for any mutation after the result was produced.
	ErrSessionFinalized = errors.New("quiz session already finalized")
	// ErrAtPhaseStart is returned when stepping back from the first item of a phase.
	ErrAtPhaseStart = errors.New("already at the first item of this phase")
	// ErrInvalidState indicates a persisted state that does not fit its catalog.
	ErrInvalidState = errors.New("invalid session state")
	// ErrCatalogNotFound indicates the quiz content could not be loaded.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrInvalidCatalog indicates quiz content that breaks an item invariant.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrScoringFailed indicates the external scoring service could not produce a result.
	ErrScoringFailed = errors.New("scoring service failed")
	// ErrMalformedScore indicates the scoring service answered with an unusable body.
	ErrMalformedScore = errors.New("malformed scoring response")
)
