package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/application/cost"
	"github.com/turbobackend/worker/internal/application/ports"
)

// Column is one designed table column.
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Constraints []string `json:"constraints"`
}

// Table is one designed table, including the literal DDL the provisioner
// will execute verbatim.
type Table struct {
	TableName   string   `json:"tableName"`
	Columns     []Column `json:"columns"`
	CreateQuery string   `json:"createQuery"`
}

// Schema is the schema designer's output.
type Schema struct {
	Tables []Table `json:"tables"`
}

const schemaDesignerSystemPrompt = `You design a relational database schema for a backend project. Respond with JSON
only, matching exactly this shape:
{"tables": [{"tableName": string, "columns": [{"name": string, "type": string, "constraints": [string]}], "createQuery": string}]}

Conventions:
- identifier columns use a variable-width text type (TEXT)
- timestamp columns are stored as 64-bit integer seconds (BIGINT), not native timestamp types
- PRIMARY KEY, UNIQUE, NOT NULL, and FOREIGN KEY constraints must be encoded inline in createQuery
No prose, no markdown fences, just the JSON object.`

// SchemaDesigner turns a natural-language request into a concrete table
// design via one LLM call.
type SchemaDesigner struct {
	llm ports.LLM
}

func NewSchemaDesigner(llm ports.LLM) *SchemaDesigner {
	return &SchemaDesigner{llm: llm}
}

func (s *SchemaDesigner) Design(ctx context.Context, userPrompt string, tx pgx.Tx, schema, projectID, jobID, userID string) (Schema, float64, error) {
	startedAt := time.Now()
	generation, err := s.llm.Generate(ctx, userPrompt, schemaDesignerSystemPrompt)
	if err != nil {
		return Schema{}, 0, fmt.Errorf("schema designer LLM call failed: %w", err)
	}

	callCost := cost.CostFor(generation.InputTokens, generation.OutputTokens, s.llm.Model())
	if tx != nil {
		_ = cost.RecordMessage(ctx, tx, schema, cost.Entry{
			ProjectID:     projectID,
			JobID:         jobID,
			UserID:        userID,
			PromptContent: userPrompt,
			MessageType:   "schema-design",
			Model:         s.llm.Model(),
			InputTokens:   generation.InputTokens,
			OutputTokens:  generation.OutputTokens,
			StartedAt:     startedAt,
		})
	}

	var designed Schema
	if err := json.Unmarshal([]byte(generation.Text), &designed); err != nil {
		return Schema{}, 0, fmt.Errorf("schema designer returned invalid JSON: %w", err)
	}
	return designed, callCost, nil
}
