package metadatagraph

// Node kinds this builder upserts. Table, View, and MaterializedView
// share the Object node kind; the specific object type is carried as
// the node's own "kind" property rather than a separate graph label,
// matching how pkg/contextassembler.CandidateObject already reports it.
const (
	NodeDatabase = "Database"
	NodeSchema   = "Schema"
	NodeObject   = "Object"
	NodeColumn   = "Column"
	NodeFunction = "Function"
)

// Containment and referential edge kinds.
const (
	EdgeHasSchema        = "HAS_SCHEMA"
	EdgeHasObject        = "HAS_OBJECT"
	EdgeHasColumn        = "HAS_COLUMN"
	EdgeHasFunction      = "HAS_FUNCTION"
	EdgeReferencesColumn = "REFERENCES_COLUMN"
)
