package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/infra/db"
)

// RequestLogRepo persists one row per ingested job request.
type RequestLogRepo struct {
	tx     pgx.Tx
	schema string
}

func NewRequestLogRepo(tx pgx.Tx, schema string) *RequestLogRepo {
	return &RequestLogRepo{tx: tx, schema: schema}
}

func (r *RequestLogRepo) Insert(ctx context.Context, row db.RequestLog) error {
	query := fmt.Sprintf(`INSERT INTO %s.request_logs
		(request_id, project_id, user_id, intent, param_snapshot, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.RequestID, row.ProjectID, row.UserID, row.Intent,
		row.ParamSnapshot, row.Status, row.CreatedAt)
	return err
}

func (r *RequestLogRepo) UpdateStatus(ctx context.Context, requestID string, status consts.RequestStatus) error {
	query := fmt.Sprintf(`UPDATE %s.request_logs SET status = $1 WHERE request_id = $2`, r.schema)
	_, err := r.tx.Exec(ctx, query, status, requestID)
	return err
}

// ProjectDatabaseRepo persists provisioned database records, enforcing that
// at most one row per project carries is_active = true.
type ProjectDatabaseRepo struct {
	tx     pgx.Tx
	schema string
}

func NewProjectDatabaseRepo(tx pgx.Tx, schema string) *ProjectDatabaseRepo {
	return &ProjectDatabaseRepo{tx: tx, schema: schema}
}

func (r *ProjectDatabaseRepo) Insert(ctx context.Context, row db.ProjectDatabase) error {
	if row.IsActive {
		deactivate := fmt.Sprintf(`UPDATE %s.project_databases SET is_active = false, updated_at = $2
			WHERE project_id = $1 AND is_active = true`, r.schema)
		if _, err := r.tx.Exec(ctx, deactivate, row.ProjectID, row.UpdatedAt); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`INSERT INTO %s.project_databases
		(database_id, project_id, user_id, db_name, schema_name, environment, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.DatabaseID, row.ProjectID, row.UserID, row.DBName,
		row.SchemaName, row.Environment, row.IsActive, row.CreatedAt, row.UpdatedAt)
	return err
}

func (r *ProjectDatabaseRepo) GetActive(ctx context.Context, projectID string) (*db.ProjectDatabase, error) {
	var row db.ProjectDatabase
	query := fmt.Sprintf(`SELECT database_id, project_id, user_id, db_name, schema_name, environment,
		is_active, created_at, updated_at FROM %s.project_databases WHERE project_id = $1 AND is_active = true`, r.schema)
	err := r.tx.QueryRow(ctx, query, projectID).Scan(&row.DatabaseID, &row.ProjectID, &row.UserID,
		&row.DBName, &row.SchemaName, &row.Environment, &row.IsActive, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GeneratedQueryRepo is the audit trail of DDL statements applied to a
// project database.
type GeneratedQueryRepo struct {
	tx     pgx.Tx
	schema string
}

func NewGeneratedQueryRepo(tx pgx.Tx, schema string) *GeneratedQueryRepo {
	return &GeneratedQueryRepo{tx: tx, schema: schema}
}

func (r *GeneratedQueryRepo) Insert(ctx context.Context, row db.GeneratedQuery) error {
	query := fmt.Sprintf(`INSERT INTO %s.generated_queries
		(query_id, project_id, query_text, query_type, schema_name, execution_status, error_message, environment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.QueryID, row.ProjectID, row.QueryText, row.QueryType,
		row.SchemaName, row.ExecutionStatus, row.ErrorMessage, row.Environment, row.CreatedAt)
	return err
}

// SourceRepoRepo tracks the source-host repository record for a project.
type SourceRepoRepo struct {
	tx     pgx.Tx
	schema string
}

func NewSourceRepoRepo(tx pgx.Tx, schema string) *SourceRepoRepo {
	return &SourceRepoRepo{tx: tx, schema: schema}
}

func (r *SourceRepoRepo) Insert(ctx context.Context, row db.SourceRepo) error {
	query := fmt.Sprintf(`INSERT INTO %s.source_repos
		(repo_id, project_id, user_id, repo_url, repo_name, branch, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.RepoID, row.ProjectID, row.UserID, row.RepoURL,
		row.RepoName, row.Branch, row.IsActive, row.CreatedAt, row.UpdatedAt)
	return err
}

func (r *SourceRepoRepo) GetActive(ctx context.Context, projectID string) (*db.SourceRepo, error) {
	var row db.SourceRepo
	query := fmt.Sprintf(`SELECT repo_id, project_id, user_id, repo_url, repo_name, branch,
		is_active, created_at, updated_at FROM %s.source_repos WHERE project_id = $1 AND is_active = true`, r.schema)
	err := r.tx.QueryRow(ctx, query, projectID).Scan(&row.RepoID, &row.ProjectID, &row.UserID,
		&row.RepoURL, &row.RepoName, &row.Branch, &row.IsActive, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PushHistoryRepo records one row per push made to the source host.
type PushHistoryRepo struct {
	tx     pgx.Tx
	schema string
}

func NewPushHistoryRepo(tx pgx.Tx, schema string) *PushHistoryRepo {
	return &PushHistoryRepo{tx: tx, schema: schema}
}

func (r *PushHistoryRepo) Insert(ctx context.Context, row db.PushHistory) error {
	query := fmt.Sprintf(`INSERT INTO %s.push_history
		(push_id, project_id, commit_sha, commit_message, files_changed, repo_url, environment, pushed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.PushID, row.ProjectID, row.CommitSHA, row.CommitMessage,
		row.FilesChanged, row.RepoURL, row.Environment, row.PushedAt)
	return err
}

// ContainerSessionRepo records sandbox lifecycle transitions.
type ContainerSessionRepo struct {
	tx     pgx.Tx
	schema string
}

func NewContainerSessionRepo(tx pgx.Tx, schema string) *ContainerSessionRepo {
	return &ContainerSessionRepo{tx: tx, schema: schema}
}

func (r *ContainerSessionRepo) Insert(ctx context.Context, row db.ContainerSession) error {
	query := fmt.Sprintf(`INSERT INTO %s.container_sessions
		(session_id, project_id, container_id, provider, status, environment, started_at, stopped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.SessionID, row.ProjectID, row.ContainerID, row.Provider,
		row.Status, row.Environment, row.StartedAt, row.StoppedAt)
	return err
}

func (r *ContainerSessionRepo) MarkStopped(ctx context.Context, sessionID string, status consts.SessionStatus, stoppedAt interface{}) error {
	query := fmt.Sprintf(`UPDATE %s.container_sessions SET status = $1, stopped_at = $2 WHERE session_id = $3`, r.schema)
	_, err := r.tx.Exec(ctx, query, status, stoppedAt, sessionID)
	return err
}

// DeploymentRepo tracks deployment records; only one per project is the
// canonical current record.
type DeploymentRepo struct {
	tx     pgx.Tx
	schema string
}

func NewDeploymentRepo(tx pgx.Tx, schema string) *DeploymentRepo {
	return &DeploymentRepo{tx: tx, schema: schema}
}

func (r *DeploymentRepo) Insert(ctx context.Context, row db.Deployment) error {
	query := fmt.Sprintf(`INSERT INTO %s.deployments
		(deployment_id, project_id, platform, app_name, url, status, deployed_at, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.DeploymentID, row.ProjectID, row.Platform, row.AppName,
		row.URL, row.Status, row.DeployedAt, row.LastUpdated)
	return err
}

func (r *DeploymentRepo) GetLatest(ctx context.Context, projectID string) (*db.Deployment, error) {
	var row db.Deployment
	query := fmt.Sprintf(`SELECT deployment_id, project_id, platform, app_name, url, status,
		deployed_at, last_updated FROM %s.deployments WHERE project_id = $1 ORDER BY last_updated DESC LIMIT 1`, r.schema)
	err := r.tx.QueryRow(ctx, query, projectID).Scan(&row.DeploymentID, &row.ProjectID, &row.Platform,
		&row.AppName, &row.URL, &row.Status, &row.DeployedAt, &row.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ActivityRepo is the append-only audit ledger. Insert failures are always
// logged and swallowed by the caller, never returned as a pipeline failure.
type ActivityRepo struct {
	tx     pgx.Tx
	schema string
}

func NewActivityRepo(tx pgx.Tx, schema string) *ActivityRepo {
	return &ActivityRepo{tx: tx, schema: schema}
}

func (r *ActivityRepo) Insert(ctx context.Context, row db.ActivityEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s.activity_entries
		(action_id, project_id, user_id, request_id, action_type, action_details, status, environment, reference_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.ActionID, row.ProjectID, row.UserID, row.RequestID,
		row.ActionType, row.ActionDetails, row.Status, row.Environment, row.ReferenceIDs, row.CreatedAt)
	return err
}

// CostRepo is the append-only per-LLM-call cost ledger.
type CostRepo struct {
	tx     pgx.Tx
	schema string
}

func NewCostRepo(tx pgx.Tx, schema string) *CostRepo {
	return &CostRepo{tx: tx, schema: schema}
}

func (r *CostRepo) Insert(ctx context.Context, row db.MessageCostEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s.message_costs
		(cost_id, project_id, job_id, user_id, prompt_content, message_type, model, input_tokens,
		 output_tokens, cost_usd, time_to_completed, started_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.CostID, row.ProjectID, row.JobID, row.UserID, row.PromptContent,
		row.MessageType, row.Model, row.InputTokens, row.OutputTokens, row.CostUSD,
		int64(row.TimeToCompleted), row.StartedAt, row.CreatedAt)
	return err
}

// APIBlueprintRepo tracks the latest authoritative endpoint document.
type APIBlueprintRepo struct {
	tx     pgx.Tx
	schema string
}

func NewAPIBlueprintRepo(tx pgx.Tx, schema string) *APIBlueprintRepo {
	return &APIBlueprintRepo{tx: tx, schema: schema}
}

// Insert writes a blueprint row; when blueprint_id already exists it replaces
// that row's request id, content and last_updated instead.
func (r *APIBlueprintRepo) Insert(ctx context.Context, row db.APIBlueprint) error {
	query := fmt.Sprintf(`INSERT INTO %s.api_blueprints
		(blueprint_id, project_id, request_id, blueprint_content, last_updated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (blueprint_id) DO UPDATE SET request_id = EXCLUDED.request_id,
			blueprint_content = EXCLUDED.blueprint_content, last_updated = EXCLUDED.last_updated`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.BlueprintID, row.ProjectID, row.RequestID,
		row.BlueprintContent, row.LastUpdated, row.CreatedAt)
	return err
}

func (r *APIBlueprintRepo) GetLatest(ctx context.Context, projectID string) (*db.APIBlueprint, error) {
	var row db.APIBlueprint
	query := fmt.Sprintf(`SELECT blueprint_id, project_id, request_id, blueprint_content, last_updated,
		created_at FROM %s.api_blueprints WHERE project_id = $1 ORDER BY last_updated DESC LIMIT 1`, r.schema)
	err := r.tx.QueryRow(ctx, query, projectID).Scan(&row.BlueprintID, &row.ProjectID, &row.RequestID,
		&row.BlueprintContent, &row.LastUpdated, &row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CredentialRepo tracks integration-credential placeholders surfaced to the
// project owner when generated code references a secret that was never
// supplied.
type CredentialRepo struct {
	tx     pgx.Tx
	schema string
}

func NewCredentialRepo(tx pgx.Tx, schema string) *CredentialRepo {
	return &CredentialRepo{tx: tx, schema: schema}
}

func (r *CredentialRepo) Upsert(ctx context.Context, row db.CredentialPlaceholder) error {
	query := fmt.Sprintf(`INSERT INTO %s.credential_placeholders
		(credential_id, project_id, provider, variable_name, value, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (credential_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, r.schema)
	_, err := r.tx.Exec(ctx, query, row.CredentialID, row.ProjectID, row.Provider, row.VariableName,
		row.Value, row.IsActive, row.CreatedAt, row.UpdatedAt)
	return err
}

func (r *CredentialRepo) ListActive(ctx context.Context, projectID string) ([]db.CredentialPlaceholder, error) {
	query := fmt.Sprintf(`SELECT credential_id, project_id, provider, variable_name, value, is_active,
		created_at, updated_at FROM %s.credential_placeholders WHERE project_id = $1 AND is_active = true`, r.schema)
	rows, err := r.tx.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []db.CredentialPlaceholder
	for rows.Next() {
		var row db.CredentialPlaceholder
		if err := rows.Scan(&row.CredentialID, &row.ProjectID, &row.Provider, &row.VariableName,
			&row.Value, &row.IsActive, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
