package contextassembler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/apperrors"
	"github.com/darkcatc/pglumilineage/pkg/models"
)

// ErrContextTooLarge is returned when even the bare sample SQL, with
// every candidate object trimmed away, still exceeds the configured
// token budget. The caller classifies this the same way as any other
// extraction failure that should not be retried without operator
// intervention.
var ErrContextTooLarge = errors.New("assembled context exceeds token budget")

// ObjectResolver looks up catalog objects by (source, database,
// schema, name). Satisfied by *repositories.ObjectMetadataRepository.
type ObjectResolver interface {
	FindBySourceAndName(ctx context.Context, sourceID uuid.UUID, database, schema, name string) (*models.ObjectMetadata, error)
}

// ColumnLister returns the columns of a resolved object in ordinal
// order. Satisfied by *repositories.ColumnMetadataRepository.
type ColumnLister interface {
	ListByObject(ctx context.Context, objectID uuid.UUID) ([]*models.ColumnMetadata, error)
}

// FunctionResolver looks up candidate function/procedure references.
// Satisfied by *repositories.FunctionMetadataRepository.
type FunctionResolver interface {
	ListBySourceAndName(ctx context.Context, sourceID uuid.UUID, database, schema, name string) ([]*models.FunctionMetadata, error)
}

// DataSourceResolver maps a captured source_database_name to the
// DataSource row that owns its catalog. Satisfied by
// *repositories.DataSourceRepository.
type DataSourceResolver interface {
	FindByName(ctx context.Context, name string) (*models.DataSource, error)
}

// Assembler builds prompt-ready Context values for a SqlPattern by
// resolving its candidate object references against the catalog and
// trimming to a token budget.
type Assembler struct {
	objects   ObjectResolver
	columns   ColumnLister
	functions FunctionResolver
	sources   DataSourceResolver

	// SearchPath is the ordered list of schemas tried for an
	// unqualified reference; the first schema containing a matching
	// object wins. Defaults to ["public"] when empty.
	SearchPath []string

	// TokenBudget caps EstimateTokens(serialized context). Zero means
	// unbounded.
	TokenBudget int
}

func New(objects ObjectResolver, columns ColumnLister, functions FunctionResolver, sources DataSourceResolver) *Assembler {
	return &Assembler{
		objects:    objects,
		columns:    columns,
		functions:  functions,
		sources:    sources,
		SearchPath: []string{"public"},
	}
}

// Assemble resolves every candidate reference in pattern.SampleSQL
// against pattern.SourceDatabaseName's catalog and returns the trimmed,
// prompt-ready Context.
func (a *Assembler) Assemble(ctx context.Context, pattern *models.SqlPattern) (*Context, error) {
	searchPath := a.SearchPath
	if len(searchPath) == 0 {
		searchPath = []string{"public"}
	}

	source, err := a.sources.FindByName(ctx, pattern.SourceDatabaseName)
	if err != nil {
		return nil, fmt.Errorf("resolve data source %q: %w", pattern.SourceDatabaseName, err)
	}

	refs, err := collectReferences(pattern.SampleSQL)
	if err != nil {
		return nil, fmt.Errorf("walk sql for references: %w", err)
	}

	out := &Context{
		SampleSQL:          pattern.SampleSQL,
		SourceDatabaseName: pattern.SourceDatabaseName,
	}

	for _, t := range refs.tables {
		obj, schema, err := a.resolveTable(ctx, source.ID, source.Name, t, searchPath)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			out.UnresolvedReferences = append(out.UnresolvedReferences, qualifiedName(t.schema, t.name))
			continue
		}
		candidate, err := a.toCandidate(ctx, obj, source.Name, t.relevance)
		if err != nil {
			return nil, err
		}
		_ = schema
		out.Objects = append(out.Objects, *candidate)
	}

	for _, f := range refs.funcs {
		fn, err := a.resolveFunction(ctx, source.ID, source.Name, f, searchPath)
		if err != nil {
			return nil, err
		}
		if fn == nil {
			out.UnresolvedReferences = append(out.UnresolvedReferences, qualifiedName(f.schema, f.name))
			continue
		}
		out.Objects = append(out.Objects, CandidateObject{
			FQN:           fn.Name,
			Schema:        fn.Schema,
			Name:          fn.Name,
			Kind:          "FUNCTION",
			DefinitionSQL: fn.Body,
			score:         relevanceSelectProjection,
		})
	}

	sortByRelevanceDesc(out.Objects)

	if err := a.trim(out); err != nil {
		return nil, err
	}

	return out, nil
}

func (a *Assembler) resolveTable(ctx context.Context, sourceID uuid.UUID, sourceName string, t *tableRef, searchPath []string) (*models.ObjectMetadata, string, error) {
	schemas := searchPath
	if t.schema != "" {
		schemas = []string{t.schema}
	}
	for _, schema := range schemas {
		obj, err := a.objects.FindBySourceAndName(ctx, sourceID, sourceDatabase(sourceName), schema, t.name)
		if err == nil {
			return obj, schema, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", fmt.Errorf("resolve table %s.%s: %w", schema, t.name, err)
		}
	}
	return nil, "", nil
}

func (a *Assembler) resolveFunction(ctx context.Context, sourceID uuid.UUID, sourceName string, f *funcRef, searchPath []string) (*models.FunctionMetadata, error) {
	schemas := searchPath
	if f.schema != "" {
		schemas = []string{f.schema}
	}
	for _, schema := range schemas {
		matches, err := a.functions.ListBySourceAndName(ctx, sourceID, sourceDatabase(sourceName), schema, f.name)
		if err != nil {
			return nil, fmt.Errorf("resolve function %s.%s: %w", schema, f.name, err)
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return nil, nil
}

// sourceDatabase is a placeholder seam: in this module the DataSource
// name and the logical database it exposes through the catalog are the
// same string, since one DataSource maps to one Postgres database.
func sourceDatabase(sourceName string) string {
	return sourceName
}

func (a *Assembler) toCandidate(ctx context.Context, obj *models.ObjectMetadata, sourceName string, rel relevance) (*CandidateObject, error) {
	cols, err := a.columns.ListByObject(ctx, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s.%s: %w", obj.Schema, obj.Name, err)
	}
	info := make([]ColumnInfo, 0, len(cols))
	for _, c := range cols {
		info = append(info, ColumnInfo{
			Name:        c.ColumnName,
			DataType:    c.DataType,
			Nullable:    c.Nullable,
			IsPrimary:   c.IsPrimaryKey,
			Description: c.Description,
		})
	}
	return &CandidateObject{
		FQN:           obj.FQN(sourceName),
		Schema:        obj.Schema,
		Name:          obj.Name,
		Kind:          string(obj.ObjectType),
		Columns:       info,
		DefinitionSQL: obj.DefinitionSQL,
		score:         rel,
	}, nil
}

func qualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func sortByRelevanceDesc(objects []CandidateObject) {
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].score > objects[j].score
	})
}

// trim drops the least relevant candidates until the serialized
// context fits a.TokenBudget. A budget of zero means no trimming.
func (a *Assembler) trim(c *Context) error {
	if a.TokenBudget <= 0 {
		return nil
	}
	for {
		if estimateContextTokens(c) <= a.TokenBudget {
			return nil
		}
		if len(c.Objects) == 0 {
			return fmt.Errorf("%w: sample sql alone is %d tokens, budget is %d", ErrContextTooLarge, EstimateTokens(c.SampleSQL), a.TokenBudget)
		}
		// Objects are sorted most-relevant-first; drop the last one.
		dropped := c.Objects[len(c.Objects)-1]
		c.Objects = c.Objects[:len(c.Objects)-1]
		c.UnresolvedReferences = append(c.UnresolvedReferences, dropped.FQN)
		c.Truncated = true
	}
}

func estimateContextTokens(c *Context) int {
	total := EstimateTokens(c.SampleSQL)
	for _, obj := range c.Objects {
		total += EstimateTokens(obj.FQN)
		for _, col := range obj.Columns {
			total += EstimateTokens(col.Name) + EstimateTokens(col.DataType)
		}
		if obj.DefinitionSQL != nil {
			total += EstimateTokens(*obj.DefinitionSQL)
		}
	}
	return total
}
