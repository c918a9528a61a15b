package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/pkg/nanoid"
)

// Record appends one activity entry inside the caller's transaction.
// Failures are logged and swallowed here — the pipeline phase that called
// Record has already decided its own outcome by the time the ledger write
// happens, and a missing audit row is never a reason to fail a job that
// otherwise succeeded. The insert runs inside a savepoint, so a failed write
// leaves the caller's transaction usable.
func Record(ctx context.Context, tx pgx.Tx, schema string, entry Entry) {
	row := db.ActivityEntry{
		ActionID:      nanoid.New(),
		ProjectID:     entry.ProjectID,
		UserID:        entry.UserID,
		RequestID:     entry.RequestID,
		ActionType:    entry.ActionType,
		ActionDetails: entry.ActionDetails,
		Status:        entry.Status,
		Environment:   entry.Environment,
		ReferenceIDs:  db.MapToRawMessage(entry.ReferenceIDs),
		CreatedAt:     time.Now(),
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		slog.Error("failed to record activity entry", "action_type", entry.ActionType, "err", err)
		return
	}
	activityRepo := repo.NewActivityRepo(sp, schema)
	if err := activityRepo.Insert(ctx, row); err != nil {
		_ = sp.Rollback(ctx)
		slog.Error("failed to record activity entry", "action_type", entry.ActionType, "err", err)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		slog.Error("failed to record activity entry", "action_type", entry.ActionType, "err", err)
	}
}

// Entry is the input to Record, independent of the storage row shape.
type Entry struct {
	ProjectID     string
	UserID        string
	RequestID     *string
	ActionType    consts.ActionType
	ActionDetails string
	Status        string
	Environment   string
	ReferenceIDs  map[string]string
}
