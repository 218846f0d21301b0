package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ObjectType enumerates the catalog object kinds the metadata collector
// reports and the graph stores under the `kind` property.
type ObjectType string

const (
	ObjectTypeTable            ObjectType = "TABLE"
	ObjectTypeView             ObjectType = "VIEW"
	ObjectTypeMaterializedView ObjectType = "MATERIALIZED_VIEW"
)

// ObjectProperties is a free-form JSONB bag for engine-specific metadata
// that doesn't warrant its own column (storage parameters, partitioning
// scheme, and similar).
type ObjectProperties map[string]any

// Scan implements sql.Scanner for reading JSONB from the database.
func (p *ObjectProperties) Scan(value interface{}) error {
	if value == nil {
		*p = ObjectProperties{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*p = ObjectProperties{}
		return nil
	}

	if len(bytes) == 0 {
		*p = ObjectProperties{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (p ObjectProperties) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(ObjectProperties{})
	}
	return json.Marshal(p)
}

// ObjectMetadata is a catalog-collected row describing a table, view, or
// materialized view. Keyed by (source_id, database, schema, name, object_type).
type ObjectMetadata struct {
	ID uuid.UUID

	SourceID   uuid.UUID
	Database   string
	Schema     string
	Name       string
	ObjectType ObjectType

	Owner           *string
	Description     *string
	DefinitionSQL   *string // view / materialized view definition
	RowCountEstimate *int64
	Properties      ObjectProperties

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FQN returns the fully-qualified name used as the graph node key:
// {source_name}.{db_name}.{schema_name}.{object_name}.
func (o *ObjectMetadata) FQN(sourceName string) string {
	return sourceName + "." + o.Database + "." + o.Schema + "." + o.Name
}
