package lineagegraph

import "github.com/darkcatc/pglumilineage/pkg/metadatagraph"

// Object and Column are the same structural node kinds the metadata
// builder writes; the lineage builder matches onto them by FQN rather
// than owning a separate kind, per the producer-coordination rule.
const (
	NodeObject = metadatagraph.NodeObject
	NodeColumn = metadatagraph.NodeColumn
)

// TempTable and TempColumn are lineage-only placeholders for an
// endpoint that never appears in catalog metadata — a temp table, a
// CTE, or a statement the aggregator fingerprinted before the catalog
// snapshot caught up. The metadata builder never creates or deletes
// these; encountering one again later with the same FQN does not
// upgrade it to Object/Column, since that would require relabeling a
// node the graph dialect has no primitive for.
const (
	NodeTempTable  = "TempTable"
	NodeTempColumn = "TempColumn"
)

// NodeSqlPattern is keyed by sql_hash rather than an FQN.
const NodeSqlPattern = "SqlPattern"

// Edge kinds this builder upserts.
const (
	EdgeDataFlow      = "DATA_FLOW"
	EdgeGeneratesFlow = "GENERATES_FLOW"
	EdgeReadsFrom     = "READS_FROM"
	EdgeWritesTo      = "WRITES_TO"
)
