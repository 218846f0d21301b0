package fingerprint

import "fmt"

// Reason classifies why a statement was rejected by Fingerprint.
type Reason string

const (
	ReasonEmpty          Reason = "empty"
	ReasonMetaCommand    Reason = "meta_command"
	ReasonParseError     Reason = "parse_error"
	ReasonDeparseError   Reason = "deparse_error"
	ReasonMultiStatement Reason = "multi_statement"
	ReasonNonDataFlow    Reason = "non_data_flow"
)

// ParseFailure is returned when raw SQL cannot be turned into a
// SqlPattern: it is unparseable, empty, a psql meta-command, or a
// statement that carries no table/column lineage (SET, SHOW,
// VACUUM/ANALYZE, transaction control). Reason is persisted verbatim
// onto NormalizationError.Reason. ParseFailure is never retryable: the
// same raw SQL will fail the same way every time.
type ParseFailure struct {
	Reason Reason
	SQL    string
	Cause  error
}

func (e *ParseFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fingerprint: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("fingerprint: %s", e.Reason)
}

func (e *ParseFailure) Unwrap() error { return e.Cause }

// IsRetryable satisfies the pkg/retry duck-typed retryable interface.
// A ParseFailure is a property of the SQL text itself, so retrying
// never helps.
func (e *ParseFailure) IsRetryable() bool { return false }
