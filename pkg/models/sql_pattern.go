// Package models defines the relational and document row types that
// back the control-plane tables described in the data model: SqlPattern,
// ObjectMetadata, ColumnMetadata, FunctionMetadata, DataSource, and the
// raw captured log row consumed from the log collector.
package models

import (
	"time"

	"github.com/google/uuid"
)

// LLMStatus is the terminal-state classification of a SqlPattern's LLM
// extraction attempt. Transitions form a DAG: PENDING -> IN_PROGRESS ->
// {COMPLETED_SUCCESS, COMPLETED_NO_LINEAGE, FAILED_PARSE, FAILED_LLM};
// a FAILED_* state may be reset to PENDING only by operator action.
type LLMStatus string

const (
	LLMStatusPending            LLMStatus = "PENDING"
	LLMStatusInProgress         LLMStatus = "IN_PROGRESS"
	LLMStatusCompletedSuccess   LLMStatus = "COMPLETED_SUCCESS"
	LLMStatusCompletedNoLineage LLMStatus = "COMPLETED_NO_LINEAGE"
	LLMStatusFailedParse        LLMStatus = "FAILED_PARSE"
	LLMStatusFailedLLM          LLMStatus = "FAILED_LLM"
)

// IsTerminal reports whether the status has no further automatic
// transition (an operator reset from FAILED_* back to PENDING is not
// automatic and is not counted here).
func (s LLMStatus) IsTerminal() bool {
	switch s {
	case LLMStatusCompletedSuccess, LLMStatusCompletedNoLineage, LLMStatusFailedParse, LLMStatusFailedLLM:
		return true
	default:
		return false
	}
}

// IsFailed reports whether the status is one of the two FAILED_* states
// eligible for an operator-issued reset to PENDING.
func (s LLMStatus) IsFailed() bool {
	return s == LLMStatusFailedParse || s == LLMStatusFailedLLM
}

// CanTransitionTo reports whether moving from s to next is a legal edge
// in the SqlPattern state machine.
func (s LLMStatus) CanTransitionTo(next LLMStatus) bool {
	switch s {
	case LLMStatusPending:
		return next == LLMStatusInProgress
	case LLMStatusInProgress:
		switch next {
		case LLMStatusCompletedSuccess, LLMStatusCompletedNoLineage, LLMStatusFailedParse, LLMStatusFailedLLM:
			return true
		}
		return false
	case LLMStatusFailedParse, LLMStatusFailedLLM:
		return next == LLMStatusPending
	default:
		return false
	}
}

// SqlPattern is the equivalence class of SQL statements sharing a
// fingerprint hash.
type SqlPattern struct {
	ID uuid.UUID

	SqlHash       string // hex SHA-256 of the normalised SQL, content-addressed, never mutated
	SampleSQL     string // one representative raw SQL observation
	NormalizedSQL string

	SourceDatabaseName string

	FirstSeenAt time.Time
	LastSeenAt  time.Time

	ExecutionCount int64 // monotone non-decreasing

	TotalDurationMs float64
	AvgDurationMs   float64
	MinDurationMs   float64
	MaxDurationMs   float64

	LLMStatus         LLMStatus
	LLMExtractedJSON  []byte // the structured LineageDocument, stored as raw JSON
	LastLLMAnalysisAt *time.Time

	LoadedToGraph  bool
	GraphLoadError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordObservation folds a new (raw_sql, duration_ms) observation into
// the aggregate columns per the Pattern Aggregator's upsert contract.
func (p *SqlPattern) RecordObservation(rawSQL string, observedAt time.Time, durationMs float64) {
	if p.ExecutionCount == 0 {
		p.SampleSQL = rawSQL
		p.FirstSeenAt = observedAt
		p.MinDurationMs = durationMs
		p.MaxDurationMs = durationMs
	} else {
		if durationMs < p.MinDurationMs {
			p.MinDurationMs = durationMs
		}
		if durationMs > p.MaxDurationMs {
			p.MaxDurationMs = durationMs
		}
	}

	p.ExecutionCount++
	p.TotalDurationMs += durationMs
	p.AvgDurationMs = p.TotalDurationMs / float64(p.ExecutionCount)

	if observedAt.After(p.LastSeenAt) {
		p.LastSeenAt = observedAt
	}
}
