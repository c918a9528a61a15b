package consts

// JobName enumerates the recognized queue job names.
type JobName string

const (
	JobInitialProjectCreation JobName = "initialProjectCreationJob"
	JobProjectModification    JobName = "projectModificationJob"
	JobSyncFlyioSecrets       JobName = "sync-flyio-secrets"
)

// RequestStatus is the lifecycle status of a Request Log row.
type RequestStatus string

const (
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// QueryExecutionStatus is the outcome of a single DDL statement attempt.
type QueryExecutionStatus string

const (
	QueryExecuted QueryExecutionStatus = "executed"
	QueryFailed   QueryExecutionStatus = "failed"
)

// DeploymentStatus is the lifecycle status of a Deployment Record.
type DeploymentStatus string

const (
	DeploymentPending  DeploymentStatus = "pending"
	DeploymentDeployed DeploymentStatus = "deployed"
	DeploymentFailed   DeploymentStatus = "failed"
)

// SessionStatus is the lifecycle status of a Container Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ActionType is the enumerated vocabulary of activity entry actions.
type ActionType string

const (
	ActionProjectCreated      ActionType = "project_created"
	ActionDatabaseCreated     ActionType = "database_created"
	ActionQueriesExecuted     ActionType = "queries_executed"
	ActionEndpointsAdded      ActionType = "endpoints_added"
	ActionEndpointsModified   ActionType = "endpoints_modified"
	ActionBusinessLogicMod    ActionType = "business_logic_modified"
	ActionTablesAdded         ActionType = "tables_added"
	ActionGithubPush          ActionType = "github_push"
	ActionDeployment          ActionType = "deployment"
	ActionEnvVarsRequired     ActionType = "env_vars_required"
	ActionFlyioSecretSync     ActionType = "flyio-secret-sync"
	ActionAPIBlueprintUpdated ActionType = "api_blueprint_updated"
)

// WriteKind is the static classification of a file written by the agent,
// derived from the path alone.
type WriteKind string

const (
	WriteRoute      WriteKind = "route"
	WriteMiddleware WriteKind = "middleware"
	WriteModel      WriteKind = "model"
	WriteUtility    WriteKind = "utility"
	WriteConfig     WriteKind = "config"
	WriteOther      WriteKind = "other"
)

// ModificationType is the result of classifying a modification job's
// changed files.
type ModificationType string

const (
	ModificationEndpointsAdded    ModificationType = "endpoints_added"
	ModificationEndpointsModified ModificationType = "endpoints_modified"
	ModificationBusinessLogic     ModificationType = "business_logic_modified"
)

// DefaultBranch is the branch created for a project's initial commit.
const DefaultBranch = "main"

// DefaultSchemaName is the Postgres schema created inside a project database.
const DefaultSchemaName = "public"
