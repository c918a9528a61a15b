package repo_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/internal/testinfra"
	dbs "github.com/turbobackend/worker/pkg/db"
)

var uowFactory *dbs.UOWFactory

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool := dbs.Pool{Pool: testinfra.Pool}
	uowFactory = dbs.NewUoWFactory(pool)
	code := m.Run()

	cleanup(ctx)

	os.Exit(code)
}

func TestInsertActivityEntrySucceeds(t *testing.T) {
	uow := uowFactory.GetUoW()
	tx, err := uow.Begin()
	require.NoError(t, err)
	defer uow.Rollback()

	entry := db.ActivityEntry{
		ActionID:      "act_1",
		ProjectID:     "proj_1",
		UserID:        "user_1",
		ActionType:    consts.ActionProjectCreated,
		ActionDetails: "project created",
		Status:        "success",
		Environment:   "production",
		CreatedAt:     time.Now().Truncate(0),
	}

	activityRepo := repo.NewActivityRepo(tx, testinfra.Schema)
	err = activityRepo.Insert(context.Background(), entry)
	require.NoError(t, err)

	var count int
	err = tx.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM turbobackend.activity_entries WHERE action_id = $1", entry.ActionID,
	).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestProjectDatabaseGetActiveReturnsInsertedRow(t *testing.T) {
	uow := uowFactory.GetUoW()
	tx, err := uow.Begin()
	require.NoError(t, err)
	defer uow.Rollback()

	row := db.ProjectDatabase{
		DatabaseID:  "db_1",
		ProjectID:   "proj_2",
		UserID:      "user_1",
		DBName:      "turbobackend_proj_2",
		SchemaName:  "public",
		Environment: "production",
		IsActive:    true,
		CreatedAt:   time.Now().Truncate(0),
		UpdatedAt:   time.Now().Truncate(0),
	}

	dbRepo := repo.NewProjectDatabaseRepo(tx, testinfra.Schema)
	require.NoError(t, dbRepo.Insert(context.Background(), row))

	active, err := dbRepo.GetActive(context.Background(), "proj_2")
	require.NoError(t, err)
	require.Equal(t, row.DBName, active.DBName)
	require.True(t, active.IsActive)
}

func cleanup(ctx context.Context) {
	statements := []string{
		"DELETE FROM turbobackend.activity_entries",
		"DELETE FROM turbobackend.project_databases",
	}
	for _, stmt := range statements {
		if _, err := testinfra.Pool.Exec(ctx, stmt); err != nil {
			log.Panicf("err cleaning up repo test %v", err)
		}
	}
}
