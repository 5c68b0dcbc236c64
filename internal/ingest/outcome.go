package ingest

import "errors"

// Outcome is the terminal state of one ingestion invocation
type Outcome string

const (
	OutcomeProcessed     Outcome = "processed"
	OutcomeInitialized   Outcome = "initialized"
	OutcomeStale         Outcome = "stale"
	OutcomeCursorExpired Outcome = "cursor_expired"
	OutcomeIgnored       Outcome = "ignored"
)

var (
	// ErrInvalidPayload marks push bodies that are not a push envelope at all
	ErrInvalidPayload = errors.New("invalid push payload")
	// ErrPersistence is returned when at least one reply could not be stored;
	// the watermark is left in place so redelivery retries the batch
	ErrPersistence = errors.New("failed to persist vendor reply")
)

// Stats summarizes one batch
type Stats struct {
	Listed     int
	Persisted  int
	Skipped    int
	Duplicates int
	Failed     int
}
