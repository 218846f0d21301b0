package contextassembler

// ColumnInfo is one resolved column handed to the LLM prompt.
type ColumnInfo struct {
	Name       string
	DataType   string
	Nullable   bool
	IsPrimary  bool
	Description *string
}

// CandidateObject is one resolved table, view, or function the
// assembled context offers the LLM Extractor as grounding for a
// pattern's SQL.
type CandidateObject struct {
	FQN    string
	Schema string
	Name   string

	// Kind is "TABLE", "VIEW", "MATERIALIZED_VIEW", or "FUNCTION".
	Kind string

	Columns       []ColumnInfo
	DefinitionSQL *string

	score relevance
}

// Context is the prompt-ready bundle produced for one SqlPattern: its
// sample SQL plus the resolved, budget-trimmed candidate objects.
type Context struct {
	SampleSQL           string
	SourceDatabaseName  string
	Objects             []CandidateObject
	UnresolvedReferences []string

	// Truncated is true when one or more resolved candidates were
	// dropped to fit the token budget.
	Truncated bool
}

// EstimateTokens is the same rough heuristic used everywhere in this
// package to budget prompt size: four characters per token, which is
// conservative enough for SQL and JSON-shaped metadata text.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
