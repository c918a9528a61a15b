package cost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/pkg/nanoid"
)

// Price is a per-million-token rate pair for one model.
type Price struct {
	InputPer1M  float64
	OutputPer1M float64
}

// prices is a static table of known model rates plus a "default" fallback
// used for any model string not explicitly listed, so a provider-side model
// rename never breaks cost accounting outright.
var prices = map[string]Price{
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":     {InputPer1M: 2.00, OutputPer1M: 8.00},
	"o1":          {InputPer1M: 15.00, OutputPer1M: 60.00},
	"o1-mini":     {InputPer1M: 1.10, OutputPer1M: 4.40},
	"default":     {InputPer1M: 2.50, OutputPer1M: 10.00},
}

// CostFor computes the USD cost of one LLM call from its token usage.
func CostFor(inputTokens, outputTokens int, model string) float64 {
	price, ok := prices[model]
	if !ok {
		slog.Warn("no price entry for model, falling back to default pricing", "model", model)
		price = prices["default"]
	}
	return float64(inputTokens)/1_000_000*price.InputPer1M + float64(outputTokens)/1_000_000*price.OutputPer1M
}

// Entry is the input to RecordMessage, independent of the storage row
// shape.
type Entry struct {
	ProjectID     string
	JobID         string
	UserID        string
	PromptContent string
	MessageType   string
	Model         string
	InputTokens   int
	OutputTokens  int
	StartedAt     time.Time
}

// RecordMessage writes one append-only cost row inside the caller's
// transaction, inside a savepoint so a failed insert leaves that transaction
// usable. A failure is logged here and returned; call sites treat it as
// non-fatal, mirroring the ledger's "append-only, best-effort" treatment.
func RecordMessage(ctx context.Context, tx pgx.Tx, schema string, entry Entry) error {
	now := time.Now()
	row := db.MessageCostEntry{
		CostID:          nanoid.New(),
		ProjectID:       entry.ProjectID,
		JobID:           entry.JobID,
		UserID:          entry.UserID,
		PromptContent:   entry.PromptContent,
		MessageType:     entry.MessageType,
		Model:           entry.Model,
		InputTokens:     entry.InputTokens,
		OutputTokens:    entry.OutputTokens,
		CostUSD:         CostFor(entry.InputTokens, entry.OutputTokens, entry.Model),
		TimeToCompleted: now.Sub(entry.StartedAt),
		StartedAt:       entry.StartedAt,
		CreatedAt:       now,
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		slog.Error("failed to record message cost", "message_type", entry.MessageType, "err", err)
		return fmt.Errorf("recording message cost: %w", err)
	}
	costRepo := repo.NewCostRepo(sp, schema)
	if err := costRepo.Insert(ctx, row); err != nil {
		_ = sp.Rollback(ctx)
		slog.Error("failed to record message cost", "message_type", entry.MessageType, "err", err)
		return fmt.Errorf("recording message cost: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		slog.Error("failed to record message cost", "message_type", entry.MessageType, "err", err)
		return fmt.Errorf("recording message cost: %w", err)
	}
	return nil
}
