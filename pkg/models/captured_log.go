package models

import (
	"time"

	"github.com/google/uuid"
)

// CapturedLog is a read-only row from the log collector: one observed
// query execution. The pipeline advances it through two checkpoints:
// the Fingerprinter fills NormalizedSQL/NormalizedSQLHash (or, on a
// ParseFailure, neither, going straight to IsProcessedForAnalysis),
// then the Pattern Aggregator reads them and flips
// IsProcessedForAnalysis. It never writes any other field.
type CapturedLog struct {
	ID uuid.UUID

	LogTime            time.Time
	SourceDatabaseName string
	Username           string
	RawSQLText         string
	DurationMs         float64

	NormalizedSQL     *string
	NormalizedSQLHash *string
	IsProcessedForAnalysis bool
}

// NormalizationError records a ParseFailure: SQL that could not be
// parsed, or that parsed to a non-data-flow statement. Rejections never
// create a SqlPattern row; they are retained here for operator review.
type NormalizationError struct {
	ID uuid.UUID

	CapturedLogID uuid.UUID
	RawSQLText    string
	Reason        string // classified reason, e.g. "non_data_flow:SET", "parse_error"

	OccurredAt time.Time
}
