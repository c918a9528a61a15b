package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turbobackend/worker/internal/application/activity"
	"github.com/turbobackend/worker/internal/application/ai"
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/domain/entity"
	"github.com/turbobackend/worker/internal/infra/config"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/pkg/nanoid"
)

// DatabaseInfo is the result handed back to the caller of Provision: the
// cluster connection parameters for the new database plus the schema that
// was applied to it.
type DatabaseInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   ai.Schema
}

// DatabaseProvisioner creates one dedicated Postgres database per project
// on the shared cluster and applies the designer's schema to it.
type DatabaseProvisioner struct {
	clusterCfg config.ClusterDBConfig
}

func NewDatabaseProvisioner(clusterCfg config.ClusterDBConfig) *DatabaseProvisioner {
	return &DatabaseProvisioner{clusterCfg: clusterCfg}
}

// Provision runs the five steps of database provisioning: create the
// physical database on the cluster, record it in the caller's outer
// transaction, apply the designed schema inside its own transaction, audit
// each attempted statement back on the outer transaction, and finally emit
// one activity entry.
func (p *DatabaseProvisioner) Provision(ctx context.Context, outerTx pgx.Tx, schema string, projectID, userID, environment string, designed ai.Schema) (DatabaseInfo, error) {
	dbName := entity.DBName(projectID)

	adminConn, err := pgx.Connect(ctx, p.adminDSN("postgres"))
	if err != nil {
		return DatabaseInfo{}, fmt.Errorf("connecting to cluster admin database: %w", err)
	}
	defer adminConn.Close(ctx)

	if _, err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		return DatabaseInfo{}, fmt.Errorf("creating database %s: %w", dbName, err)
	}

	now := time.Now()
	databaseID := nanoid.New()
	dbRow := db.ProjectDatabase{
		DatabaseID:  databaseID,
		ProjectID:   projectID,
		UserID:      userID,
		DBName:      dbName,
		SchemaName:  consts.DefaultSchemaName,
		Environment: environment,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	projectDBRepo := repo.NewProjectDatabaseRepo(outerTx, schema)
	if err := projectDBRepo.Insert(ctx, dbRow); err != nil {
		return DatabaseInfo{}, fmt.Errorf("recording project database: %w", err)
	}

	if err := p.applySchema(ctx, dbName, schema, outerTx, projectID, environment, designed); err != nil {
		return DatabaseInfo{}, err
	}

	activity.Record(ctx, outerTx, schema, activity.Entry{
		ProjectID:     projectID,
		UserID:        userID,
		ActionType:    consts.ActionDatabaseCreated,
		ActionDetails: fmt.Sprintf("provisioned database %s", dbName),
		Status:        "success",
		Environment:   environment,
		ReferenceIDs:  map[string]string{"database_id": databaseID, "database_name": dbName},
	})

	return DatabaseInfo{
		Host:     p.clusterCfg.Host,
		Port:     p.clusterCfg.Port,
		User:     p.clusterCfg.User,
		Password: p.clusterCfg.Password,
		DBName:   dbName,
		Schema:   designed,
	}, nil
}

func (p *DatabaseProvisioner) applySchema(ctx context.Context, dbName, controlSchema string, outerTx pgx.Tx, projectID, environment string, designed ai.Schema) error {
	pool, err := pgxpool.New(ctx, p.adminDSN(dbName))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", dbName, err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning DDL transaction on %s: %w", dbName, err)
	}

	queryRepo := repo.NewGeneratedQueryRepo(outerTx, controlSchema)
	var ddlErr error
	for _, table := range designed.Tables {
		_, execErr := tx.Exec(ctx, table.CreateQuery)

		status := consts.QueryExecuted
		var errMsg *string
		if execErr != nil {
			status = consts.QueryFailed
			msg := execErr.Error()
			errMsg = &msg
			ddlErr = fmt.Errorf("executing create query for %s: %w", table.TableName, execErr)
		}

		_ = queryRepo.Insert(ctx, db.GeneratedQuery{
			QueryID:         nanoid.New(),
			ProjectID:       projectID,
			QueryText:       table.CreateQuery,
			QueryType:       "CREATE TABLE",
			SchemaName:      table.TableName,
			ExecutionStatus: status,
			ErrorMessage:    errMsg,
			Environment:     environment,
			CreatedAt:       time.Now(),
		})

		if ddlErr != nil {
			break
		}
	}

	if ddlErr != nil {
		_ = tx.Rollback(ctx)
		return ddlErr
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing DDL transaction on %s: %w", dbName, err)
	}
	return nil
}

func (p *DatabaseProvisioner) adminDSN(dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.clusterCfg.User, p.clusterCfg.Password, p.clusterCfg.Host, p.clusterCfg.Port, dbName, p.clusterCfg.SSLMode)
}

// ApplyQuery runs one statement against an already-provisioned project
// database and audits the attempt on the caller's outer transaction. Used
// by the modification pipeline to apply db_query commands the agent
// deferred during its run, outside of the initial schema-creation path.
func (p *DatabaseProvisioner) ApplyQuery(ctx context.Context, outerTx pgx.Tx, controlSchema, dbName, projectID, environment, query, queryType, targetTable string) error {
	conn, err := pgx.Connect(ctx, p.adminDSN(dbName))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", dbName, err)
	}
	defer conn.Close(ctx)

	_, execErr := conn.Exec(ctx, query)

	status := consts.QueryExecuted
	var errMsg *string
	if execErr != nil {
		status = consts.QueryFailed
		msg := execErr.Error()
		errMsg = &msg
	}

	queryRepo := repo.NewGeneratedQueryRepo(outerTx, controlSchema)
	if insertErr := queryRepo.Insert(ctx, db.GeneratedQuery{
		QueryID:         nanoid.New(),
		ProjectID:       projectID,
		QueryText:       query,
		QueryType:       queryType,
		SchemaName:      targetTable,
		ExecutionStatus: status,
		ErrorMessage:    errMsg,
		Environment:     environment,
		CreatedAt:       time.Now(),
	}); insertErr != nil {
		return fmt.Errorf("recording generated query: %w", insertErr)
	}

	return execErr
}
