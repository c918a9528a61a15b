package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/application/cost"
	"github.com/turbobackend/worker/internal/application/ports"
)

// Need is the uniform result of every intent detector.
type Need struct {
	Needed    bool   `json:"needed"`
	Reasoning string `json:"reasoning"`
	Cost      float64
}

var safeDefault = Need{Needed: false, Reasoning: "detection failed"}

const detectorSystemPrompt = `You are a classifier. Respond with JSON only, matching exactly this shape:
{"needed": boolean, "reasoning": string}
No prose, no markdown fences, just the JSON object.`

// Detector wraps an LLM provider plus the call bookkeeping shared by the
// three intent classifiers.
type Detector struct {
	llm ports.LLM
}

func NewDetector(llm ports.LLM) *Detector {
	return &Detector{llm: llm}
}

func (d *Detector) detect(ctx context.Context, question, userPrompt string, tx pgx.Tx, schema, projectID, jobID, userID string) Need {
	prompt := fmt.Sprintf("%s\n\nUser request:\n%s", question, userPrompt)

	startedAt := time.Now()
	generation, err := d.llm.Generate(ctx, prompt, detectorSystemPrompt)
	if err != nil {
		slog.Error("intent detector LLM call failed", "err", err)
		return safeDefault
	}

	callCost := cost.CostFor(generation.InputTokens, generation.OutputTokens, d.llm.Model())
	if tx != nil {
		_ = cost.RecordMessage(ctx, tx, schema, cost.Entry{
			ProjectID:     projectID,
			JobID:         jobID,
			UserID:        userID,
			PromptContent: prompt,
			MessageType:   "intent-detection",
			Model:         d.llm.Model(),
			InputTokens:   generation.InputTokens,
			OutputTokens:  generation.OutputTokens,
			StartedAt:     startedAt,
		})
	}

	var need Need
	if err := json.Unmarshal([]byte(generation.Text), &need); err != nil {
		slog.Error("intent detector JSON parse failed", "err", err)
		return safeDefault
	}
	need.Cost = callCost
	return need
}

func (d *Detector) DetectDatabaseNeed(ctx context.Context, userPrompt string, tx pgx.Tx, schema, projectID, jobID, userID string) Need {
	return d.detect(ctx, "Does this backend request require a relational database?", userPrompt, tx, schema, projectID, jobID, userID)
}

func (d *Detector) DetectAuthNeed(ctx context.Context, userPrompt string, tx pgx.Tx, schema, projectID, jobID, userID string) Need {
	return d.detect(ctx, "Does this backend request require user authentication?", userPrompt, tx, schema, projectID, jobID, userID)
}

func (d *Detector) DetectPaymentNeed(ctx context.Context, userPrompt string, tx pgx.Tx, schema, projectID, jobID, userID string) Need {
	return d.detect(ctx, "Does this backend request require payment processing?", userPrompt, tx, schema, projectID, jobID, userID)
}
