package lineagedoc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/contextassembler"
	"github.com/darkcatc/pglumilineage/pkg/llm"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/prompts"
)

// Outcome classifies one Extract call for the stage driver to record
// against the SqlPattern's llm_status.
type Outcome string

const (
	// OutcomeSuccess means a validated LineageDocument with lineage
	// worth loading was produced.
	OutcomeSuccess Outcome = "COMPLETED_SUCCESS"
	// OutcomeNoLineage means the document validated but carried no
	// usable lineage (low confidence, or no columns on a write).
	OutcomeNoLineage Outcome = "COMPLETED_NO_LINEAGE"
	// OutcomeFailedParse means the model's response never became a
	// schema-valid document within the retry budget.
	OutcomeFailedParse Outcome = "FAILED_PARSE"
	// OutcomeFailedLLM means the transport exhausted retries.
	OutcomeFailedLLM Outcome = "FAILED_LLM"
)

// ExtractResult is what an Extract call returns: the classification,
// the document (nil unless Outcome is Success or NoLineage), and the
// raw JSON actually persisted for audit regardless of outcome.
type ExtractResult struct {
	Outcome  Outcome
	Document *LineageDocument
	RawJSON  []byte
	Err      error
}

// Extractor drives the LLM call, JSON extraction, and
// re-prompt-with-validator-error retry loop for one SqlPattern.
type Extractor struct {
	client           llm.LLMClient
	maxSchemaRetries int
	temperature      float64
	logger           *zap.Logger
}

func NewExtractor(client llm.LLMClient, maxSchemaRetries int, temperature float64, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:           client,
		maxSchemaRetries: maxSchemaRetries,
		temperature:      temperature,
		logger:           logger.Named("lineage-extractor"),
	}
}

// Extract calls the LLM for pattern, validating and re-prompting on
// schema violations up to maxSchemaRetries times before giving up.
func (e *Extractor) Extract(ctx context.Context, pattern *models.SqlPattern, promptCtx *contextassembler.Context) ExtractResult {
	systemMessage := prompts.BuildLineageExtractionSystemMessage()
	userPrompt := prompts.BuildLineageExtractionPrompt(pattern, promptCtx)

	var lastRawJSON []byte
	var lastValidationErr error

	for attempt := 0; attempt <= e.maxSchemaRetries; attempt++ {
		callPrompt := userPrompt
		if attempt > 0 && lastValidationErr != nil {
			callPrompt = prompts.BuildRetryPrompt(userPrompt, lastValidationErr)
		}

		result, err := e.client.GenerateResponse(ctx, callPrompt, systemMessage, e.temperature)
		if err != nil {
			llmErr := llm.ClassifyError(err)
			if llmErr.Retryable && attempt < e.maxSchemaRetries {
				e.logger.Warn("llm call failed, retrying",
					zap.String("sql_hash", pattern.SqlHash), zap.Int("attempt", attempt), zap.Error(llmErr))
				continue
			}
			return ExtractResult{Outcome: OutcomeFailedLLM, Err: llmErr}
		}

		doc, rawJSON, err := parseAndValidate(result.Content, pattern.SqlHash)
		if err != nil {
			lastRawJSON = rawJSON
			lastValidationErr = err
			e.logger.Warn("lineage document failed validation",
				zap.String("sql_hash", pattern.SqlHash), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if doc.HasNoLineage() {
			return ExtractResult{Outcome: OutcomeNoLineage, Document: doc, RawJSON: rawJSON}
		}
		return ExtractResult{Outcome: OutcomeSuccess, Document: doc, RawJSON: rawJSON}
	}

	return ExtractResult{Outcome: OutcomeFailedParse, RawJSON: lastRawJSON, Err: lastValidationErr}
}

// parseAndValidate extracts the first JSON object from response
// (stripping any fenced code wrapper or think tags), unmarshals it,
// and validates it against the schema.
func parseAndValidate(response, expectedHash string) (*LineageDocument, []byte, error) {
	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		return nil, nil, &SchemaViolationError{Field: "(response)", Message: err.Error()}
	}
	rawJSON := []byte(jsonStr)

	var doc LineageDocument
	if err := json.Unmarshal(rawJSON, &doc); err != nil {
		return nil, rawJSON, &SchemaViolationError{Field: "(response)", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := doc.Validate(expectedHash); err != nil {
		return nil, rawJSON, err
	}
	return &doc, rawJSON, nil
}
