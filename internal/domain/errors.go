package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrInternal        = errors.New("internal error")
	ErrCircuitOpen     = errors.New("circuit open")

	// ErrNoCandidates means every relaxed retrieval tier came back empty.
	ErrNoCandidates = errors.New("no recommendation available")
	// ErrRepositoryWrite marks a failed best-effort persistence; recovered locally.
	ErrRepositoryWrite = errors.New("repository write failure")
	// ErrEnrichment marks any failure of the enrichment collaborator; recovered locally.
	ErrEnrichment = errors.New("enrichment failure")
	// ErrInvalidContext marks malformed upstream profile data; defaults are substituted.
	ErrInvalidContext = errors.New("invalid context data")
)

// NoCandidatesReason is the reason reported with ErrNoCandidates.
const NoCandidatesReason = "catalog_empty"
