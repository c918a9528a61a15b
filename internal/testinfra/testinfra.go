package testinfra

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var Pool *pgxpool.Pool

const Schema = "turbobackend"

func init() {
	Pool = SetupDB()
}

func SetupDB() *pgxpool.Pool {
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:17.2-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections"),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	if err != nil {
		log.Panicf("start postgres: %v", err)
	}

	pgHostPort, err := pgC.Endpoint(ctx, "")
	if err != nil {
		log.Panicf("postgres endpoint: %v", err)
	}
	pgDSN := fmt.Sprintf("postgres://postgres:password@%s/testdb?sslmode=disable", pgHostPort)

	pool, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		log.Panicf("pgxpool connect: %v", err)
	}

	ok := false
	for i := 0; i < 20; i++ {
		slog.Info("ping db", "try", i)
		ctxPing, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		err = pool.Ping(ctxPing)
		cancel()
		if err == nil {
			ok = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ok {
		log.Panic("db did not respond after 20 attempts")
	}

	_, err = pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS turbobackend;
		CREATE TABLE IF NOT EXISTS turbobackend.request_logs (
			request_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			param_snapshot JSONB,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.project_databases (
			database_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			db_name TEXT NOT NULL,
			schema_name TEXT NOT NULL,
			environment TEXT NOT NULL,
			is_active BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.generated_queries (
			query_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			query_text TEXT NOT NULL,
			query_type TEXT NOT NULL,
			schema_name TEXT NOT NULL,
			execution_status TEXT NOT NULL,
			error_message TEXT,
			environment TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.source_repos (
			repo_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			repo_url TEXT NOT NULL,
			repo_name TEXT NOT NULL,
			branch TEXT NOT NULL,
			is_active BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.push_history (
			push_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			commit_sha TEXT NOT NULL,
			commit_message TEXT NOT NULL,
			files_changed TEXT[] NOT NULL,
			repo_url TEXT NOT NULL,
			environment TEXT NOT NULL,
			pushed_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.container_sessions (
			session_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			container_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			environment TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS turbobackend.deployments (
			deployment_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			app_name TEXT NOT NULL,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			deployed_at TIMESTAMPTZ,
			last_updated TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.activity_entries (
			action_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			request_id TEXT,
			action_type TEXT NOT NULL,
			action_details TEXT NOT NULL,
			status TEXT NOT NULL,
			environment TEXT NOT NULL,
			reference_ids JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.message_costs (
			cost_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			prompt_content TEXT NOT NULL,
			message_type TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INT NOT NULL,
			output_tokens INT NOT NULL,
			cost_usd DOUBLE PRECISION NOT NULL,
			time_to_completed BIGINT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.api_blueprints (
			blueprint_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			blueprint_content JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turbobackend.credential_placeholders (
			credential_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			variable_name TEXT NOT NULL,
			value TEXT,
			is_active BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		log.Panicf("create tables: %v", err)
	}

	return pool
}
