package models

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalMethod names how the external catalog/log collector reaches
// a monitored instance. Only the name is consumed by this module's FQN
// formula; the transport itself is an external collaborator.
type RetrievalMethod string

const (
	RetrievalMethodDirect RetrievalMethod = "DIRECT"
	RetrievalMethodSSHTunnel RetrievalMethod = "SSH_TUNNEL"
)

// DataSource describes an external PostgreSQL instance being monitored.
// Its Name is the leading component of every FQN this source's objects
// produce ({source_name}.{db_name}...).
type DataSource struct {
	ID uuid.UUID

	Name            string
	Host            string
	Port            int
	RetrievalMethod RetrievalMethod

	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
