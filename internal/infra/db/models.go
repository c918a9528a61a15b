package db

import (
	"encoding/json"
	"time"

	"github.com/turbobackend/worker/internal/domain/consts"
)

// Row types mirror internal/domain/entity 1:1 with db tags, the way the
// teacher keeps a wire/storage model distinct from the domain entity.

type RequestLog struct {
	RequestID     string                `db:"request_id"`
	ProjectID     string                `db:"project_id"`
	UserID        string                `db:"user_id"`
	Intent        consts.JobName        `db:"intent"`
	ParamSnapshot json.RawMessage       `db:"param_snapshot"`
	Status        consts.RequestStatus  `db:"status"`
	CreatedAt     time.Time             `db:"created_at"`
}

type ProjectDatabase struct {
	DatabaseID  string    `db:"database_id"`
	ProjectID   string    `db:"project_id"`
	UserID      string    `db:"user_id"`
	DBName      string    `db:"db_name"`
	SchemaName  string    `db:"schema_name"`
	Environment string    `db:"environment"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type GeneratedQuery struct {
	QueryID         string                       `db:"query_id"`
	ProjectID       string                       `db:"project_id"`
	QueryText       string                       `db:"query_text"`
	QueryType       string                       `db:"query_type"`
	SchemaName      string                       `db:"schema_name"`
	ExecutionStatus consts.QueryExecutionStatus  `db:"execution_status"`
	ErrorMessage    *string                      `db:"error_message"`
	Environment     string                       `db:"environment"`
	CreatedAt       time.Time                    `db:"created_at"`
}

type SourceRepo struct {
	RepoID    string    `db:"repo_id"`
	ProjectID string    `db:"project_id"`
	UserID    string    `db:"user_id"`
	RepoURL   string    `db:"repo_url"`
	RepoName  string    `db:"repo_name"`
	Branch    string    `db:"branch"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type PushHistory struct {
	PushID        string    `db:"push_id"`
	ProjectID     string    `db:"project_id"`
	CommitSHA     string    `db:"commit_sha"`
	CommitMessage string    `db:"commit_message"`
	FilesChanged  []string  `db:"files_changed"`
	RepoURL       string    `db:"repo_url"`
	Environment   string    `db:"environment"`
	PushedAt      time.Time `db:"pushed_at"`
}

type ContainerSession struct {
	SessionID   string              `db:"session_id"`
	ProjectID   string              `db:"project_id"`
	ContainerID string              `db:"container_id"`
	Provider    string              `db:"provider"`
	Status      consts.SessionStatus `db:"status"`
	Environment string              `db:"environment"`
	StartedAt   time.Time           `db:"started_at"`
	StoppedAt   *time.Time          `db:"stopped_at"`
}

type Deployment struct {
	DeploymentID string                 `db:"deployment_id"`
	ProjectID    string                 `db:"project_id"`
	Platform     string                 `db:"platform"`
	AppName      string                 `db:"app_name"`
	URL          string                 `db:"url"`
	Status       consts.DeploymentStatus `db:"status"`
	DeployedAt   *time.Time             `db:"deployed_at"`
	LastUpdated  time.Time              `db:"last_updated"`
}

type ActivityEntry struct {
	ActionID      string            `db:"action_id"`
	ProjectID     string            `db:"project_id"`
	UserID        string            `db:"user_id"`
	RequestID     *string           `db:"request_id"`
	ActionType    consts.ActionType `db:"action_type"`
	ActionDetails string            `db:"action_details"`
	Status        string            `db:"status"`
	Environment   string            `db:"environment"`
	ReferenceIDs  json.RawMessage   `db:"reference_ids"`
	CreatedAt     time.Time         `db:"created_at"`
}

type MessageCostEntry struct {
	CostID          string        `db:"cost_id"`
	ProjectID       string        `db:"project_id"`
	JobID           string        `db:"job_id"`
	UserID          string        `db:"user_id"`
	PromptContent   string        `db:"prompt_content"`
	MessageType     string        `db:"message_type"`
	Model           string        `db:"model"`
	InputTokens     int           `db:"input_tokens"`
	OutputTokens    int           `db:"output_tokens"`
	CostUSD         float64       `db:"cost_usd"`
	TimeToCompleted time.Duration `db:"time_to_completed"`
	StartedAt       time.Time     `db:"started_at"`
	CreatedAt       time.Time     `db:"created_at"`
}

type APIBlueprint struct {
	BlueprintID      string          `db:"blueprint_id"`
	ProjectID        string          `db:"project_id"`
	RequestID        string          `db:"request_id"`
	BlueprintContent json.RawMessage `db:"blueprint_content"`
	LastUpdated      time.Time       `db:"last_updated"`
	CreatedAt        time.Time       `db:"created_at"`
}

type CredentialPlaceholder struct {
	CredentialID string    `db:"credential_id"`
	ProjectID    string    `db:"project_id"`
	Provider     string    `db:"provider"`
	VariableName string    `db:"variable_name"`
	Value        *string   `db:"value"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
