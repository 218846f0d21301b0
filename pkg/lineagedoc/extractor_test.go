package lineagedoc

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/contextassembler"
	"github.com/darkcatc/pglumilineage/pkg/llm"
	"github.com/darkcatc/pglumilineage/pkg/models"
)

type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return &llm.GenerateResponseResult{Content: c.responses[i]}, nil
}

func (c *scriptedClient) GetModel() string    { return "test-model" }
func (c *scriptedClient) GetEndpoint() string { return "test-endpoint" }

const validResponseJSON = `{
  "sql_pattern_hash": "abc123",
  "source_database_name": "analytics",
  "target_object": {"schema": "public", "name": "daily_revenue", "type": "TABLE"},
  "column_level_lineage": [
    {
      "target_column": "revenue",
      "target_object_name": "daily_revenue",
      "target_object_schema": "public",
      "sources": [
        {"source_object": {"schema": "public", "name": "orders", "type": "TABLE"}, "source_column": "amount", "transformation_logic": "SUM(amount)"}
      ],
      "derivation_type": "AGGREGATION"
    }
  ],
  "referenced_objects": [
    {"schema": "public", "name": "orders", "type": "TABLE", "access_mode": "READ"},
    {"schema": "public", "name": "daily_revenue", "type": "TABLE", "access_mode": "WRITE"}
  ],
  "parsing_confidence": 0.92
}`

func testPattern() *models.SqlPattern {
	return &models.SqlPattern{SqlHash: "abc123", SampleSQL: "INSERT INTO daily_revenue SELECT SUM(amount) FROM orders"}
}

func testPromptContext() *contextassembler.Context {
	return &contextassembler.Context{SampleSQL: "INSERT INTO daily_revenue SELECT SUM(amount) FROM orders", SourceDatabaseName: "analytics"}
}

func TestExtractor_Extract_SucceedsOnFirstValidResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{validResponseJSON}}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (err=%v)", result.Outcome, result.Err)
	}
	if result.Document == nil {
		t.Fatal("expected a document")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", client.calls)
	}
}

func TestExtractor_Extract_RetriesOnSchemaViolationThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"sql_pattern_hash": "wrong_hash", "source_database_name": "analytics", "parsing_confidence": 0.5, "referenced_objects": []}`,
		validResponseJSON,
	}}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success after retry, got %s (err=%v)", result.Outcome, result.Err)
	}
	if client.calls != 2 {
		t.Fatalf("expected two LLM calls, got %d", client.calls)
	}
}

func TestExtractor_Extract_FailedParseAfterExhaustingRetries(t *testing.T) {
	badResponse := `{"sql_pattern_hash": "wrong_hash", "source_database_name": "analytics", "parsing_confidence": 0.5, "referenced_objects": []}`
	client := &scriptedClient{responses: []string{badResponse, badResponse, badResponse}}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeFailedParse {
		t.Fatalf("expected FAILED_PARSE, got %s", result.Outcome)
	}
	if client.calls != 3 {
		t.Fatalf("expected 1 initial call + 2 retries = 3 calls, got %d", client.calls)
	}
}

func TestExtractor_Extract_NoLineageClassificationOnLowConfidence(t *testing.T) {
	lowConfidence := `{
  "sql_pattern_hash": "abc123",
  "source_database_name": "analytics",
  "target_object": null,
  "column_level_lineage": [],
  "referenced_objects": [{"schema": "public", "name": "orders", "type": "TABLE", "access_mode": "READ"}],
  "parsing_confidence": 0.05
}`
	client := &scriptedClient{responses: []string{lowConfidence}}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeNoLineage {
		t.Fatalf("expected COMPLETED_NO_LINEAGE, got %s", result.Outcome)
	}
}

func TestExtractor_Extract_FailedLLMOnNonRetryableTransportError(t *testing.T) {
	client := &scriptedClient{errs: []error{llm.NewError(llm.ErrorTypeAuth, "bad key", false, nil)}, responses: []string{""}}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeFailedLLM {
		t.Fatalf("expected FAILED_LLM, got %s", result.Outcome)
	}
	if client.calls != 1 {
		t.Fatalf("expected no retry on a non-retryable transport error, got %d calls", client.calls)
	}
}

func TestExtractor_Extract_RetriesRetryableTransportErrorThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{llm.NewError(llm.ErrorTypeRateLimited, "slow down", true, nil), nil},
		responses: []string{"", validResponseJSON},
	}
	e := NewExtractor(client, 2, 0.0, zap.NewNop())

	result := e.Extract(context.Background(), testPattern(), testPromptContext())

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success after retrying a retryable transport error, got %s (err=%v)", result.Outcome, result.Err)
	}
	if client.calls != 2 {
		t.Fatalf("expected two LLM calls, got %d", client.calls)
	}
}
