// Package prompts builds the system and user messages sent to the LLM
// Extractor, embedding the LineageDocument JSON schema as a worked
// example the way a hand-written prompt would rather than generating it
// from reflection.
package prompts

import (
	"fmt"
	"strings"

	"github.com/darkcatc/pglumilineage/pkg/contextassembler"
	"github.com/darkcatc/pglumilineage/pkg/models"
)

// BuildLineageExtractionSystemMessage returns the system message
// establishing the model's role and the non-negotiable output
// constraints.
func BuildLineageExtractionSystemMessage() string {
	return `You are a PostgreSQL data lineage analyst. Given one SQL statement and the catalog metadata for the objects it touches, you extract exactly which target columns are derived from which source columns, and how.

Respond with a single JSON object matching the schema you are given. Do not include any explanation, markdown fencing, or text outside the JSON object.`
}

// BuildLineageExtractionPrompt creates the prompt for one LLM Extractor
// call: the SQL pattern's sample SQL, the catalog context the Context
// Assembler resolved for it, the LineageDocument schema, and a worked
// example.
func BuildLineageExtractionPrompt(pattern *models.SqlPattern, ctx *contextassembler.Context) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Statement\n\n")
	prompt.WriteString("Source database: ")
	prompt.WriteString(ctx.SourceDatabaseName)
	prompt.WriteString("\n\n```sql\n")
	prompt.WriteString(ctx.SampleSQL)
	prompt.WriteString("\n```\n\n")

	if len(ctx.Objects) > 0 {
		prompt.WriteString("## Catalog Context\n\n")
		for _, obj := range ctx.Objects {
			prompt.WriteString(fmt.Sprintf("### %s (%s)\n", obj.FQN, obj.Kind))
			if obj.DefinitionSQL != nil {
				prompt.WriteString("Definition:\n```sql\n")
				prompt.WriteString(*obj.DefinitionSQL)
				prompt.WriteString("\n```\n")
			}
			if len(obj.Columns) > 0 {
				prompt.WriteString("Columns:\n")
				for _, col := range obj.Columns {
					flags := ""
					if col.IsPrimary {
						flags += " [PK]"
					}
					nullInfo := ""
					if col.Nullable {
						nullInfo = " (nullable)"
					}
					desc := ""
					if col.Description != nil && *col.Description != "" {
						desc = fmt.Sprintf(" — %s", *col.Description)
					}
					prompt.WriteString(fmt.Sprintf("- %s (%s)%s%s%s\n", col.Name, col.DataType, flags, nullInfo, desc))
				}
			}
			prompt.WriteString("\n")
		}
	}

	if len(ctx.UnresolvedReferences) > 0 {
		prompt.WriteString("## Unresolved References\n\n")
		prompt.WriteString("These identifiers appear in the SQL but could not be matched against catalog metadata; they may be temporary tables, CTEs, or typos:\n")
		for _, ref := range ctx.UnresolvedReferences {
			prompt.WriteString("- " + ref + "\n")
		}
		prompt.WriteString("\n")
	}

	if ctx.Truncated {
		prompt.WriteString("Note: some lower-relevance catalog context was omitted to fit the token budget. Work from the SQL statement itself when an object referenced there is missing above.\n\n")
	}

	prompt.WriteString("## Output Schema\n\n")
	prompt.WriteString("Respond with a JSON object:\n")
	prompt.WriteString("- `sql_pattern_hash`: must equal \"" + pattern.SqlHash + "\"\n")
	prompt.WriteString("- `source_database_name`: string\n")
	prompt.WriteString("- `target_object`: `{schema, name, type}` where `type` is one of TABLE, VIEW, TEMP_TABLE; omit (null) for a pure SELECT with no write target\n")
	prompt.WriteString("- `column_level_lineage`: array of `{target_column, target_object_name, target_object_schema, sources, derivation_type}`\n")
	prompt.WriteString("  - `sources`: array of `{source_object: {schema, name, type}, source_column, transformation_logic}`; `source_column` is null for a literal or expression with no column input\n")
	prompt.WriteString("  - `derivation_type` is one of DIRECT_MAPPING, FUNCTION_CALL, AGGREGATION, UNION_MERGE, CONDITIONAL_LOGIC, LITERAL_ASSIGNMENT, EXPRESSION\n")
	prompt.WriteString("- `referenced_objects`: array of `{schema, name, type, access_mode}`; `access_mode` is READ or WRITE, covering every object the statement touches including the write target\n")
	prompt.WriteString("- `parsing_confidence`: float in [0,1], your own confidence in this extraction\n\n")

	prompt.WriteString("Example:\n```json\n")
	prompt.WriteString(`{
  "sql_pattern_hash": "` + pattern.SqlHash + `",
  "source_database_name": "` + ctx.SourceDatabaseName + `",
  "target_object": {"schema": "public", "name": "daily_revenue", "type": "TABLE"},
  "column_level_lineage": [
    {
      "target_column": "revenue",
      "target_object_name": "daily_revenue",
      "target_object_schema": "public",
      "sources": [
        {
          "source_object": {"schema": "public", "name": "orders", "type": "TABLE"},
          "source_column": "amount",
          "transformation_logic": "SUM(amount)"
        }
      ],
      "derivation_type": "AGGREGATION"
    }
  ],
  "referenced_objects": [
    {"schema": "public", "name": "orders", "type": "TABLE", "access_mode": "READ"},
    {"schema": "public", "name": "daily_revenue", "type": "TABLE", "access_mode": "WRITE"}
  ],
  "parsing_confidence": 0.92
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON object, no additional text.\n")

	return prompt.String()
}

// BuildRetryPrompt wraps the original prompt with the validator error
// from the previous attempt, per the re-prompt-with-validator-error
// retry policy.
func BuildRetryPrompt(original string, validationErr error) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n## Previous Attempt Rejected\n\n")
	b.WriteString("Your previous response failed validation: ")
	b.WriteString(validationErr.Error())
	b.WriteString("\n\nCorrect this and respond again with ONLY the JSON object.\n")
	return b.String()
}
