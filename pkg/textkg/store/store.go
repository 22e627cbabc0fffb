// Package store provides persistent storage for per-document
// extraction results, so interrupted runs can resume without
// re-extracting completed documents.
package store

import (
	"errors"
	"time"
)

// Store persists per-document extraction results.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a result for a document within a run.
	// Overwrites if a result for (runID, document) already exists.
	Save(runID, document string, res Result) error

	// Load retrieves a result.
	// Returns ErrNotFound if the result doesn't exist.
	Load(runID, document string) (Result, error)

	// List returns metadata for all results in a run, ordered by save
	// time. Returns an empty slice (not an error) if the run is empty.
	List(runID string) ([]Info, error)

	// Has reports whether a result exists for (runID, document).
	Has(runID, document string) (bool, error)

	// Delete removes a specific result.
	// Returns nil if the result doesn't exist.
	Delete(runID, document string) error

	// DeleteRun removes all results for a run.
	// Returns nil if the run has no results.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Result is one document's stored extraction output. Graph and Report
// are serialized JSON so the store stays decoupled from the graph
// package's types.
type Result struct {
	Document  string
	Graph     []byte
	Report    []byte
	CreatedAt time.Time
}

// Info provides result metadata without loading the full payload.
type Info struct {
	RunID     string
	Document  string
	CreatedAt time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a result doesn't exist.
	ErrNotFound = errors.New("result not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("result store closed")
)
