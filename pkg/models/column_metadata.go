package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnMetadata is a catalog-collected row describing one column of an
// ObjectMetadata row. Keyed by (object_id, column_name).
type ColumnMetadata struct {
	ID uuid.UUID

	ObjectID   uuid.UUID
	ColumnName string

	Ordinal     int
	DataType    string
	Nullable    bool
	DefaultExpr *string

	IsPrimaryKey bool
	IsUnique     bool

	// FK target triple, all nil when this column is not a foreign key.
	FKTargetSchema *string
	FKTargetTable  *string
	FKTargetColumn *string

	Description *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsForeignKey reports whether the column carries a foreign key target.
func (c *ColumnMetadata) IsForeignKey() bool {
	return c.FKTargetSchema != nil && c.FKTargetTable != nil && c.FKTargetColumn != nil
}

// FQN returns the fully-qualified name used as the graph node key:
// {object_fqn}.{column_name}.
func (c *ColumnMetadata) FQN(objectFQN string) string {
	return objectFQN + "." + c.ColumnName
}
