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
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/domain/entity"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
	"github.com/turbobackend/worker/pkg/nanoid"
)

// Modification drives the project-modification pipeline through phases
// M0..M12.
type Modification struct {
	deps *Deps
}

func NewModification(deps *Deps) *Modification {
	return &Modification{deps: deps}
}

// Process decodes one queue delivery body and runs the modification
// pipeline against it.
func (m *Modification) Process(ctx context.Context, payload []byte) error {
	job, err := decodeJob(payload, consts.JobProjectModification)
	if err != nil {
		return errs.QueueError{Reason: "invalid modification job envelope", Err: err}
	}
	return m.run(ctx, job)
}

func (m *Modification) run(ctx context.Context, job entity.Job) (err error) {
	var params entity.ModificationParams
	if err := json.Unmarshal(job.Payload.RequestParams, &params); err != nil {
		return errs.QueueError{Reason: "invalid modification job payload", Err: err}
	}

	projectID, userID, streamID := job.Payload.ProjectID, job.Payload.UserID, job.Payload.StreamID
	schema := m.deps.Schema
	publisher := m.deps.Publisher

	// M0: open outer transaction.
	uow := m.deps.UOWFactory.GetUoW()
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
		Intent:        consts.JobProjectModification,
		ParamSnapshot: job.Payload.RequestParams,
		Status:        consts.RequestProcessing,
		CreatedAt:     time.Now(),
	})

	// M1: provision a fresh sandbox.
	publisher.PublishProgress(streamID, "provisioning sandbox", 10)
	sandboxID, err := m.deps.Sandbox.Provision(ctx, projectID)
	if err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	if err := m.deps.Sandbox.InitializeExistingProject(ctx, sandboxID); err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}

	// M2: look up active source repo.
	sourceRepoRepo := repo.NewSourceRepoRepo(tx, schema)
	activeRepo, err := sourceRepoRepo.GetActive(ctx, projectID)
	if err != nil {
		return errs.InvariantViolation{Reason: fmt.Sprintf("no active source repository for project %s", projectID)}
	}

	// M3: fetch + checkout target branch, configure git identity.
	publisher.PublishProgress(streamID, "loading repository", 20)
	runner := newGitRunner(m.deps.Sandbox, sandboxID)
	if err := runner.checkoutForModification(ctx, activeRepo.RepoURL, m.deps.SourceHostCfg.Token, activeRepo.Branch); err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	// M4: create a feature branch.
	branch := featureBranchName()
	if err := runner.createFeatureBranch(ctx, branch); err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	// M5: load project context.
	publisher.PublishProgress(streamID, "loading project context", 30)
	projectCtx, err := LoadProjectContext(ctx, m.deps.Sandbox, sandboxID, tx, schema, projectID)
	if err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}

	// M6: run the agentic loop with existing endpoints populated. The
	// database section only applies to newly-provisioned schemas; a
	// modification prompt relies on the existing-endpoints section plus the
	// agent's own read commands to inspect an existing database.
	promptCtx := agent.PromptContext{ExistingEndpoints: projectCtx.Endpoints}
	systemPrompt := agent.BuildSystemPrompt(promptCtx)

	publisher.PublishProgress(streamID, "running agent", 30)
	loop := m.deps.newLoop()
	result, err := loop.Run(ctx, agent.Spec{
		SandboxID:          sandboxID,
		JobID:              job.JobID,
		StreamID:           streamID,
		SystemPrompt:       systemPrompt,
		InitialUserMessage: params.ModificationRequest,
	}, tx, schema, projectID, userID)
	if err != nil {
		return errs.ExternalIOError{System: "llm", Err: err}
	}
	publisher.PublishProgress(streamID, "agent finished", 70)
	if !result.Success {
		return errs.AgentProtocolError{Err: fmt.Errorf("agent did not reach taskComplete within the iteration cap")}
	}

	// M7: apply CREATE TABLE db_query commands to the existing database.
	if projectCtx.DatabaseInfo != nil {
		var createTables []agent.DBQuery
		for _, q := range result.DBQueries {
			if strings.EqualFold(strings.TrimSpace(q.QueryType), "CREATE TABLE") {
				createTables = append(createTables, q)
			}
		}
		if err := applyDeferredQueries(ctx, tx, schema, projectID, projectCtx.DatabaseInfo.DBName, m.deps.Provisioner, createTables); err != nil {
			return errs.ExternalIOError{System: "cluster-db", Err: err}
		}
	}

	// M8: commit, push feature branch, merge into main, push main.
	publisher.PublishProgress(streamID, "pushing changes", 80)
	commitMessage := fmt.Sprintf("modification: %s", truncate(params.ModificationRequest, 72))
	sha, err := runner.mergeFeatureBranch(ctx, branch, commitMessage)
	if err != nil {
		return errs.ExternalIOError{System: "source-host", Err: err}
	}

	pushID := nanoid.New()
	if err := repo.NewPushHistoryRepo(tx, schema).Insert(ctx, db.PushHistory{
		PushID:        pushID,
		ProjectID:     projectID,
		CommitSHA:     sha,
		CommitMessage: commitMessage,
		FilesChanged:  allModifiedFiles(result.FilesModified),
		RepoURL:       activeRepo.RepoURL,
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
		ActionDetails: "pushed modification to source host",
		Status:        "success",
		Environment:   "production",
		ReferenceIDs:  map[string]string{"github_push_id": pushID, "commit_sha": sha},
	})

	// M9: refresh blueprint if the agent modified it.
	blueprintModified := false
	for _, f := range allModifiedFiles(result.FilesModified) {
		if strings.TrimPrefix(f, "./") == "api-blueprint.json" {
			blueprintModified = true
		}
	}
	if blueprintContent, readErr := m.deps.Sandbox.Read(ctx, sandboxID, "api-blueprint.json"); blueprintModified && readErr == nil && len(blueprintContent) > 0 {
		blueprintRepo := repo.NewAPIBlueprintRepo(tx, schema)
		if existing, getErr := blueprintRepo.GetLatest(ctx, projectID); getErr == nil {
			if err := blueprintRepo.Insert(ctx, db.APIBlueprint{
				BlueprintID:      existing.BlueprintID,
				ProjectID:        projectID,
				RequestID:        job.Payload.RequestID,
				BlueprintContent: blueprintContent,
				LastUpdated:      time.Now(),
				CreatedAt:        existing.CreatedAt,
			}); err != nil {
				return errs.ExternalIOError{System: "control-db", Err: err}
			}
			publisher.PublishTyped(streamID, "apiBlueprint", map[string]any{"content": json.RawMessage(blueprintContent)})
		}
	}

	// M10: classify modification type and emit the matching activity.
	modType := classifyModification(result.FilesModified, projectCtx.Endpoints)
	activity.Record(ctx, tx, schema, activity.Entry{
		ProjectID:     projectID,
		UserID:        userID,
		RequestID:     &job.Payload.RequestID,
		ActionType:    modificationActionType(modType),
		ActionDetails: fmt.Sprintf("modification classified as %s", modType),
		Status:        "success",
		Environment:   "production",
		ReferenceIDs:  map[string]string{},
	})

	// M11: report the deployment. The push to main in M8 is what triggers the
	// CI deploy; this phase only resolves the URL to report and has no switch
	// to skip or force a redeploy.
	publisher.PublishProgress(streamID, "triggering deployment", 90)
	appName := entity.AppName(projectID)
	deploymentRepo := repo.NewDeploymentRepo(tx, schema)
	deploymentURL := fmt.Sprintf("https://%s.fly.dev", appName)
	if existing, getErr := deploymentRepo.GetLatest(ctx, projectID); getErr == nil {
		deploymentURL = existing.URL
	}

	// M12: record container session, commit, publish terminal success.
	sessionID := nanoid.New()
	if err := repo.NewContainerSessionRepo(tx, schema).Insert(ctx, db.ContainerSession{
		SessionID:   sessionID,
		ProjectID:   projectID,
		ContainerID: sandboxID,
		Provider:    "docker",
		Status:      consts.SessionCompleted,
		Environment: "production",
		StartedAt:   time.Now(),
	}); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	if err := uow.Commit(); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	publisher.PublishTyped(streamID, "deployment_triggered", map[string]any{
		"url":     deploymentURL,
		"status":  "pending",
		"message": "deployment queued via CI",
	})
	publisher.PublishSuccess(streamID, modificationTerminalMessage(allModifiedFiles(result.FilesModified), result.TotalCost, deploymentURL))
	return nil
}

// modificationTerminalMessage builds the final status text for a
// modification run, mirroring the shape of the creation pipeline's terminal
// message but without the database/credential lines that only apply when a
// project is first provisioned.
func modificationTerminalMessage(filesModified []string, totalCost float64, deploymentURL string) string {
	var b strings.Builder
	b.WriteString("Project modified successfully.\n")
	fmt.Fprintf(&b, "Files modified: %d\n", len(filesModified))
	fmt.Fprintf(&b, "Cost: $%.4f\n", totalCost)
	fmt.Fprintf(&b, "Deploying to: %s", deploymentURL)
	return b.String()
}

// classifyModification applies the static rule over modified route files:
// any newly-written route not present in the pre-existing endpoint list
// makes this endpoints_added; otherwise any route rewrite makes it
// endpoints_modified; otherwise it's a business-logic change.
func classifyModification(filesModified map[consts.WriteKind][]string, existing []agent.ExistingEndpoint) consts.ModificationType {
	existingFiles := make(map[string]bool, len(existing))
	for _, e := range existing {
		existingFiles[e.File] = true
	}

	routes := filesModified[consts.WriteRoute]
	var newRoutes, changedRoutes []string
	for _, r := range routes {
		if existingFiles[r] {
			changedRoutes = append(changedRoutes, r)
		} else {
			newRoutes = append(newRoutes, r)
		}
	}

	switch {
	case len(newRoutes) > 0:
		return consts.ModificationEndpointsAdded
	case len(changedRoutes) > 0:
		return consts.ModificationEndpointsModified
	default:
		return consts.ModificationBusinessLogic
	}
}

func modificationActionType(modType consts.ModificationType) consts.ActionType {
	switch modType {
	case consts.ModificationEndpointsAdded:
		return consts.ActionEndpointsAdded
	case consts.ModificationEndpointsModified:
		return consts.ActionEndpointsModified
	default:
		return consts.ActionBusinessLogicMod
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
