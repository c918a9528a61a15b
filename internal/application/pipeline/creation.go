package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/turbobackend/worker/internal/application/activity"
	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/errs"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/application/provision"
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/domain/entity"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/pkg/nanoid"
)

// Creation drives the initial-project-creation pipeline through phases
// P0..P8, holding one outer transaction on the control database for the
// whole run.
type Creation struct {
	deps *Deps
}

func NewCreation(deps *Deps) *Creation {
	return &Creation{deps: deps}
}

var disallowedBlueprintFields = []string{"projectId", "projectName", "version", "database"}

// Process decodes one queue delivery body and runs the creation pipeline
// against it.
func (c *Creation) Process(ctx context.Context, payload []byte) error {
	job, err := decodeJob(payload, consts.JobInitialProjectCreation)
	if err != nil {
		return errs.QueueError{Reason: "invalid creation job envelope", Err: err}
	}
	return c.run(ctx, job)
}

func (c *Creation) run(ctx context.Context, job entity.Job) (err error) {
	var params entity.CreationParams
	if err := json.Unmarshal(job.Payload.RequestParams, &params); err != nil {
		return errs.QueueError{Reason: "invalid creation job payload", Err: err}
	}

	projectID, userID, streamID := job.Payload.ProjectID, job.Payload.UserID, job.Payload.StreamID
	schema := c.deps.Schema
	publisher := c.deps.Publisher

	uow := c.deps.UOWFactory.GetUoW()
	tx, err := uow.Begin()
	if err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}
	defer func() {
		uow.Finalize(&err)
		if err != nil {
			publisher.PublishError(streamID, err.Error())
		}
	}()

	_ = repo.NewRequestLogRepo(tx, schema).Insert(ctx, db.RequestLog{
		RequestID:     job.Payload.RequestID,
		ProjectID:     projectID,
		UserID:        userID,
		Intent:        consts.JobInitialProjectCreation,
		ParamSnapshot: job.Payload.RequestParams,
		Status:        consts.RequestProcessing,
		CreatedAt:     time.Now(),
	})

	// P0: classify intent.
	publisher.PublishProgress(streamID, "analyzing request", 5)
	dbNeed := c.deps.Detector.DetectDatabaseNeed(ctx, params.UserPrompt, tx, schema, projectID, job.JobID, userID)
	publisher.PublishProgress(streamID, "database need detected", 5)
	authNeed := c.deps.Detector.DetectAuthNeed(ctx, params.UserPrompt, tx, schema, projectID, job.JobID, userID)
	publisher.PublishProgress(streamID, "auth need detected", 5)
	paymentNeed := c.deps.Detector.DetectPaymentNeed(ctx, params.UserPrompt, tx, schema, projectID, job.JobID, userID)
	publisher.PublishProgress(streamID, "payment need detected", 5)

	// P1: schema design + provisioning.
	var dbInfo *provision.DatabaseInfo
	var designerCost float64
	if dbNeed.Needed {
		publisher.PublishProgress(streamID, "designing database schema", 10)
		designed, cost, designErr := c.deps.SchemaDesigner.Design(ctx, params.UserPrompt, tx, schema, projectID, job.JobID, userID)
		designerCost = cost
		if designErr != nil {
			return errs.ExternalIOError{System: "llm", Err: designErr}
		}
		publisher.PublishProgress(streamID, "provisioning database", 13)
		provisioned, provErr := c.deps.Provisioner.Provision(ctx, tx, schema, projectID, userID, "production", designed)
		if provErr != nil {
			return errs.ExternalIOError{System: "cluster-db", Err: provErr}
		}
		dbInfo = &provisioned
		publisher.PublishProgress(streamID, fmt.Sprintf("Database: %s (%d tables)", provisioned.DBName, len(provisioned.Schema.Tables)), 15)
	}

	// P2: sandbox provisioning.
	publisher.PublishProgress(streamID, "provisioning sandbox", 20)
	sandboxID, err := c.deps.Sandbox.Provision(ctx, projectID)
	if err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}

	opts := ports.InitOptions{
		InstallDatabaseDriver: dbNeed.Needed,
		InstallAuthSDK:        authNeed.Needed,
		InstallPaymentSDK:     paymentNeed.Needed,
		EnvVars:               map[string]string{},
		PlaceholderEnvVars:    map[string]string{},
	}
	if dbInfo != nil {
		opts.EnvVars["DB_HOST"] = dbInfo.Host
		opts.EnvVars["DB_PORT"] = dbInfo.Port
		opts.EnvVars["DB_NAME"] = dbInfo.DBName
		opts.EnvVars["DB_USER"] = dbInfo.User
		opts.EnvVars["DB_PASSWORD"] = dbInfo.Password
	}
	if authNeed.Needed {
		opts.PlaceholderEnvVars["CLERK_SECRET_KEY"] = ""
		opts.PlaceholderEnvVars["CLERK_PUBLISHABLE_KEY"] = ""
		opts.PlaceholderEnvVars["CLERK_WEBHOOK_SECRET"] = ""
	}
	if paymentNeed.Needed {
		opts.PlaceholderEnvVars["STRIPE_SECRET_KEY"] = ""
		opts.PlaceholderEnvVars["STRIPE_WEBHOOK_SECRET"] = ""
	}

	if err := c.deps.Sandbox.InitializeNewProject(ctx, sandboxID, opts); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	if err := c.deps.Sandbox.Write(ctx, sandboxID, healthEndpointFile, []byte(healthEndpointContent)); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}

	sessionID := nanoid.New()
	if err := repo.NewContainerSessionRepo(tx, schema).Insert(ctx, db.ContainerSession{
		SessionID:   sessionID,
		ProjectID:   projectID,
		ContainerID: sandboxID,
		Provider:    "docker",
		Status:      consts.SessionActive,
		Environment: "production",
		StartedAt:   time.Now(),
	}); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}
	activity.Record(ctx, tx, schema, activity.Entry{
		ProjectID:     projectID,
		UserID:        userID,
		RequestID:     &job.Payload.RequestID,
		ActionType:    consts.ActionProjectCreated,
		ActionDetails: "project sandbox provisioned",
		Status:        "success",
		Environment:   "production",
		ReferenceIDs:  map[string]string{"session_id": sessionID},
	})
	publisher.PublishProgress(streamID, "sandbox initialized", 25)

	// P3/P4: build the prompt (docs+examples are embedded sections) and run
	// the agentic loop.
	promptCtx := agent.PromptContext{AuthRequired: authNeed.Needed, PaymentRequired: paymentNeed.Needed}
	if dbInfo != nil {
		promptCtx.Schema = &dbInfo.Schema
	}
	systemPrompt := agent.BuildSystemPrompt(promptCtx)

	publisher.PublishProgress(streamID, "running agent", 30)
	loop := c.deps.newLoop()
	result, err := loop.Run(ctx, agent.Spec{
		SandboxID:          sandboxID,
		JobID:               job.JobID,
		StreamID:            streamID,
		SystemPrompt:        systemPrompt,
		InitialUserMessage:  params.UserPrompt,
	}, tx, schema, projectID, userID)
	if err != nil {
		return errs.ExternalIOError{System: "llm", Err: err}
	}
	publisher.PublishProgress(streamID, "agent finished", 70)
	if !result.Success {
		return errs.AgentProtocolError{Err: fmt.Errorf("agent did not reach taskComplete within the iteration cap")}
	}

	// P5: deterministic injections + deploy prep.
	if err := c.deps.Sandbox.Write(ctx, sandboxID, corsMiddlewareFile, []byte(corsMiddlewareContent)); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	appName := entity.AppName(projectID)
	if err := c.deps.Sandbox.Write(ctx, sandboxID, ciWorkflowFile, []byte(ciWorkflowContent(appName))); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	if err := c.deps.Sandbox.Write(ctx, sandboxID, deployConfigFile, []byte(deployConfigContent(appName, "iad"))); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	if err := c.deps.Sandbox.Write(ctx, sandboxID, containerRecipeFile, []byte(containerRecipeContent)); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}

	alreadyExisted, err := c.deps.Deploy.EnsureApp(ctx, appName, c.deps.DeployCfg.Org)
	if err != nil {
		return errs.ExternalIOError{System: "deploy-platform", Err: err}
	}
	_ = alreadyExisted
	if dbInfo != nil {
		if err := c.deps.Deploy.SetSecrets(ctx, appName, map[string]string{
			"DB_HOST":     dbInfo.Host,
			"DB_PORT":     dbInfo.Port,
			"DB_NAME":     dbInfo.DBName,
			"DB_USER":     dbInfo.User,
			"DB_PASSWORD": dbInfo.Password,
		}); err != nil {
			return errs.ExternalIOError{System: "deploy-platform", Err: err}
		}
	}

	deploymentID := nanoid.New()
	deploymentURL := fmt.Sprintf("https://%s.fly.dev", appName)
	if err := repo.NewDeploymentRepo(tx, schema).Insert(ctx, db.Deployment{
		DeploymentID: deploymentID,
		ProjectID:    projectID,
		Platform:     "fly.io",
		AppName:      appName,
		URL:          deploymentURL,
		Status:       consts.DeploymentPending,
		LastUpdated:  time.Now(),
	}); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	if routes := result.FilesModified[consts.WriteRoute]; len(routes) > 0 {
		activity.Record(ctx, tx, schema, activity.Entry{
			ProjectID:     projectID,
			UserID:        userID,
			RequestID:     &job.Payload.RequestID,
			ActionType:    consts.ActionEndpointsAdded,
			ActionDetails: fmt.Sprintf("%d routes added", len(routes)),
			Status:        "success",
			Environment:   "production",
			ReferenceIDs:  map[string]string{},
		})
	}
	publisher.PublishProgress(streamID, "preparing deployment", 80)

	// P6: push, secret install, object-store mirror.
	runner := newGitRunner(c.deps.Sandbox, sandboxID)
	repoName := entity.RepoName(projectID)
	repoURL, repoAlreadyExisted, err := c.deps.SourceHost.EnsureRepo(ctx, c.deps.SourceHostCfg.Org, repoName)
	if err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	var sha string
	if !repoAlreadyExisted {
		sha, err = runner.initialPush(ctx, repoURL, c.deps.SourceHostCfg.Token, "initial commit")
	} else {
		sha, err = runner.subsequentPush(ctx, repoURL, c.deps.SourceHostCfg.Token)
	}
	if err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	if err := repo.NewSourceRepoRepo(tx, schema).Insert(ctx, db.SourceRepo{
		RepoID:      nanoid.New(),
		ProjectID:   projectID,
		UserID:      userID,
		RepoURL:     repoURL,
		RepoName:    repoName,
		Branch:      consts.DefaultBranch,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	owner := c.deps.SourceHostCfg.Org
	if err := c.deps.SourceHost.InstallActionsSecret(ctx, owner, repoName, "DEPLOY_API_TOKEN", c.deps.DeployCfg.APIToken); err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	pushID := nanoid.New()
	if err := repo.NewPushHistoryRepo(tx, schema).Insert(ctx, db.PushHistory{
		PushID:        pushID,
		ProjectID:     projectID,
		CommitSHA:     sha,
		CommitMessage: "initial commit",
		FilesChanged:  allModifiedFiles(result.FilesModified),
		RepoURL:       repoURL,
		Environment:   "production",
		PushedAt:      time.Now(),
	}); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}
	activity.Record(ctx, tx, schema, activity.Entry{
		ProjectID:     projectID,
		UserID:        userID,
		RequestID:     &job.Payload.RequestID,
		ActionType:    consts.ActionGithubPush,
		ActionDetails: "pushed to source host",
		Status:        "success",
		Environment:   "production",
		ReferenceIDs:  map[string]string{"github_push_id": pushID, "commit_sha": sha},
	})

	if err := mirrorSandboxToObjectStore(ctx, c.deps.Sandbox, c.deps.ObjectStore, sandboxID, projectID, userID); err != nil {
		return errs.ExternalIOError{System: "object-store", Err: err}
	}

	// P7: blueprint.
	if result.APIBlueprint != nil {
		stripped := stripDisallowedFields(result.APIBlueprint, disallowedBlueprintFields)
		blueprintBytes, marshalErr := json.Marshal(stripped)
		if marshalErr != nil {
			return errs.ExternalIOError{System: "blueprint", Err: marshalErr}
		}
		if err := c.deps.Sandbox.Write(ctx, sandboxID, "api-blueprint.json", blueprintBytes); err != nil {
			return errs.ExternalIOError{System: "sandbox", Err: err}
		}
		if err := repo.NewAPIBlueprintRepo(tx, schema).Insert(ctx, db.APIBlueprint{
			BlueprintID:      nanoid.New(),
			ProjectID:        projectID,
			RequestID:        job.Payload.RequestID,
			BlueprintContent: blueprintBytes,
			LastUpdated:      time.Now(),
			CreatedAt:        time.Now(),
		}); err != nil {
			return errs.ExternalIOError{System: "control-db", Err: err}
		}
		publisher.PublishTyped(streamID, "apiBlueprint", map[string]any{"content": stripped})
	}

	// P8: credential placeholders.
	if authNeed.Needed || paymentNeed.Needed {
		credRepo := repo.NewCredentialRepo(tx, schema)
		placeholders := credentialPlaceholdersFor(authNeed.Needed, paymentNeed.Needed)
		for _, ph := range placeholders {
			if err := credRepo.Upsert(ctx, db.CredentialPlaceholder{
				CredentialID: nanoid.New(),
				ProjectID:    projectID,
				Provider:     ph.provider,
				VariableName: ph.variable,
				IsActive:     true,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}); err != nil {
				return errs.ExternalIOError{System: "control-db", Err: err}
			}
		}
		activity.Record(ctx, tx, schema, activity.Entry{
			ProjectID:     projectID,
			UserID:        userID,
			RequestID:     &job.Payload.RequestID,
			ActionType:    consts.ActionEnvVarsRequired,
			ActionDetails: "integration credentials required",
			Status:        "success",
			Environment:   "production",
			ReferenceIDs:  map[string]string{},
		})
	}

	if err := uow.Commit(); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	publisher.PublishTyped(streamID, "deployment_triggered", map[string]any{
		"url":     deploymentURL,
		"status":  "pending",
		"message": "deployment queued via CI",
	})

	totalCost := dbNeed.Cost + authNeed.Cost + paymentNeed.Cost + designerCost + result.TotalCost
	publisher.PublishSuccess(streamID, creationTerminalMessage(terminalSummary{
		filesModified:    allModifiedFiles(result.FilesModified),
		totalCost:        totalCost,
		deploymentURL:    deploymentURL,
		dbInfo:           dbInfo,
		authPlaceholders: authNeed.Needed,
	}))
	return nil
}

type terminalSummary struct {
	filesModified    []string
	totalCost        float64
	deploymentURL    string
	dbInfo           *provision.DatabaseInfo
	authPlaceholders bool
}

// creationTerminalMessage builds the final status text shown to the user at
// the end of a creation run. Every line the pipeline composes here is
// something downstream UIs and tests key off of, so the wording is fixed.
func creationTerminalMessage(s terminalSummary) string {
	var b strings.Builder
	b.WriteString("Project created successfully.\n")
	fmt.Fprintf(&b, "Files modified: %d\n", len(s.filesModified))
	if s.dbInfo != nil {
		fmt.Fprintf(&b, "Database: %s (%d tables)\n", s.dbInfo.DBName, len(s.dbInfo.Schema.Tables))
	}
	if s.authPlaceholders {
		b.WriteString("⚠️  CLERK credentials are placeholders — set CLERK_SECRET_KEY, CLERK_PUBLISHABLE_KEY, and CLERK_WEBHOOK_SECRET before going live.\n")
	}
	fmt.Fprintf(&b, "Cost: $%.4f\n", s.totalCost)
	fmt.Fprintf(&b, "Deploying to: %s", s.deploymentURL)
	return b.String()
}
