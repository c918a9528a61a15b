package entity

import (
	"encoding/json"
	"time"

	"github.com/turbobackend/worker/internal/domain/consts"
)

// RequestLog is one record per ingested request, keyed by RequestID.
// Immutable once written.
type RequestLog struct {
	RequestID     string
	ProjectID     string
	UserID        string
	Intent        consts.JobName
	ParamSnapshot json.RawMessage
	Status        consts.RequestStatus
	CreatedAt     time.Time
}

// ProjectDatabase is a per-project database record; at most one row per
// project has IsActive=true.
type ProjectDatabase struct {
	DatabaseID  string
	ProjectID   string
	UserID      string
	DBName      string
	SchemaName  string
	Environment string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GeneratedQuery is an audit row per DDL statement applied to a project
// database.
type GeneratedQuery struct {
	QueryID         string
	ProjectID       string
	QueryText       string
	QueryType       string
	SchemaName      string
	ExecutionStatus consts.QueryExecutionStatus
	ErrorMessage    *string
	Environment     string
	CreatedAt       time.Time
}

// SourceRepo is the source-control repository record for a project; at most
// one row per project has IsActive=true.
type SourceRepo struct {
	RepoID    string
	ProjectID string
	UserID    string
	RepoURL   string
	RepoName  string
	Branch    string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PushHistory is one record per push to the source host.
type PushHistory struct {
	PushID        string
	ProjectID     string
	CommitSHA     string
	CommitMessage string
	FilesChanged  []string
	RepoURL       string
	Environment   string
	PushedAt      time.Time
}

// ContainerSession is one sandbox lifecycle record.
type ContainerSession struct {
	SessionID   string
	ProjectID   string
	ContainerID string
	Provider    string
	Status      consts.SessionStatus
	Environment string
	StartedAt   time.Time
	StoppedAt   *time.Time
}

// Deployment is the canonical deployment record for a project; other rows
// for the same project are historical.
type Deployment struct {
	DeploymentID string
	ProjectID    string
	Platform     string
	AppName      string
	URL          string
	Status       consts.DeploymentStatus
	DeployedAt   *time.Time
	LastUpdated  time.Time
}

// ActivityEntry is an append-only audit row.
type ActivityEntry struct {
	ActionID      string
	ProjectID     string
	UserID        string
	RequestID     *string
	ActionType    consts.ActionType
	ActionDetails string
	Status        string
	Environment   string
	ReferenceIDs  map[string]string
	CreatedAt     time.Time
}

// MessageCostEntry is an append-only per-call cost row.
type MessageCostEntry struct {
	CostID          string
	ProjectID       string
	JobID           string
	UserID          string
	PromptContent   string
	MessageType     string
	Model           string
	InputTokens     int
	OutputTokens    int
	CostUSD         float64
	TimeToCompleted time.Duration
	StartedAt       time.Time
	CreatedAt       time.Time
}

// APIBlueprint is the latest authoritative endpoint document for a project.
type APIBlueprint struct {
	BlueprintID      string
	ProjectID        string
	RequestID        string
	BlueprintContent json.RawMessage
	LastUpdated      time.Time
	CreatedAt        time.Time
}

// CredentialPlaceholder is an unfilled integration-credential slot.
type CredentialPlaceholder struct {
	CredentialID string
	ProjectID    string
	Provider     string
	VariableName string
	Value        *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
