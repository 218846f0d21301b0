// Package fingerprint normalises raw SQL text into a stable canonical
// form and content-addressed hash, so that statements differing only in
// literal values, whitespace, comments, or keyword casing collapse onto
// the same SqlPattern.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Result is the pure output of normalising one SQL statement.
type Result struct {
	NormalizedSQL  string
	SQLHash        string // hex SHA-256 of NormalizedSQL
	DialectParseOK bool
}

// Fingerprint parses sql with the PostgreSQL dialect, replaces every
// literal with a typed placeholder, collapses constant IN-lists,
// strips comments, lowercases keywords, and re-emits a stable
// pretty-printed form. It is a pure function: the same input always
// produces the same output.
//
// Non-data-flow statements (SET, SHOW, VACUUM/ANALYZE, transaction
// control, empty input) and statements pg_query_go cannot parse are
// rejected with a *ParseFailure; callers must not create a SqlPattern
// row for a rejected statement.
func Fingerprint(sql string) (*Result, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, &ParseFailure{Reason: ReasonEmpty, SQL: sql}
	}

	if strings.HasPrefix(trimmed, "\\") {
		return nil, &ParseFailure{Reason: ReasonMetaCommand, SQL: sql}
	}

	parsed, err := pg_query.Parse(sql)
	if err != nil {
		return nil, &ParseFailure{Reason: ReasonParseError, SQL: sql, Cause: err}
	}

	if len(parsed.Stmts) == 0 {
		return nil, &ParseFailure{Reason: ReasonEmpty, SQL: sql}
	}

	if reason, ok := classifyNonDataFlow(parsed); ok {
		return nil, &ParseFailure{Reason: reason, SQL: sql}
	}

	for _, raw := range parsed.Stmts {
		maskNode(raw.Stmt)
	}

	normalized, err := pg_query.Deparse(parsed)
	if err != nil {
		return nil, &ParseFailure{Reason: ReasonDeparseError, SQL: sql, Cause: err}
	}

	normalized = applyPlaceholderMarkers(normalized)

	sum := sha256.Sum256([]byte(normalized))
	return &Result{
		NormalizedSQL:  normalized,
		SQLHash:        hex.EncodeToString(sum[:]),
		DialectParseOK: true,
	}, nil
}

// applyPlaceholderMarkers replaces the quoted sentinel markers left by
// maskNode with the spec's typed placeholder tokens. Markers are
// alphanumeric-only so Deparse never needs to escape them, which keeps
// this a plain string substitution instead of a second parse pass.
func applyPlaceholderMarkers(sql string) string {
	replacer := strings.NewReplacer(
		quotedMarker(markerString), ":str",
		quotedMarker(markerNumber), ":num",
		quotedMarker(markerBool), ":bool",
		quotedMarker(markerNull), ":null",
	)
	return replacer.Replace(sql)
}

func quotedMarker(marker string) string {
	return fmt.Sprintf("'%s'", marker)
}
