package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turbobackend/worker/internal/application/activity"
	"github.com/turbobackend/worker/internal/application/errs"
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/domain/entity"
	"github.com/turbobackend/worker/internal/infra/db/repo"
)

const secretSyncExecTimeout = 60 * time.Second

// SecretSync drives the secret-sync job: it provisions a sandbox for the
// sole purpose of pushing one credential value to the deployment platform,
// then tears the sandbox down regardless of outcome.
type SecretSync struct {
	deps *Deps
}

func NewSecretSync(deps *Deps) *SecretSync {
	return &SecretSync{deps: deps}
}

// Process decodes one queue delivery body and runs the secret-sync job
// against it.
func (s *SecretSync) Process(ctx context.Context, payload []byte) error {
	job, err := decodeJob(payload, consts.JobSyncFlyioSecrets)
	if err != nil {
		return errs.QueueError{Reason: "invalid secret-sync job envelope", Err: err}
	}
	return s.run(ctx, job)
}

func (s *SecretSync) run(ctx context.Context, job entity.Job) (err error) {
	var params entity.SecretSyncParams
	if err := json.Unmarshal(job.Payload.RequestParams, &params); err != nil {
		return errs.QueueError{Reason: "invalid secret-sync job payload", Err: err}
	}

	projectID, userID, streamID := job.Payload.ProjectID, job.Payload.UserID, job.Payload.StreamID
	schema := s.deps.Schema
	publisher := s.deps.Publisher

	uow := s.deps.UOWFactory.GetUoW()
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

	deploymentRepo := repo.NewDeploymentRepo(tx, schema)
	deployment, getErr := deploymentRepo.GetLatest(ctx, projectID)
	if getErr != nil || deployment.Status != consts.DeploymentDeployed {
		return errs.InvariantViolation{Reason: fmt.Sprintf("project %s has no deployed record to sync secrets against", projectID)}
	}

	publisher.PublishProgress(streamID, "provisioning sandbox", 20)
	sandboxID, err := s.deps.Sandbox.Provision(ctx, projectID)
	if err != nil {
		return errs.ExternalIOError{System: "sandbox", Err: err}
	}
	defer func() {
		_ = s.deps.Sandbox.Teardown(context.Background(), sandboxID)
	}()

	appName := entity.AppName(projectID)
	syncErr := s.syncSecret(ctx, sandboxID, appName, params)

	status := "success"
	details := fmt.Sprintf("synced secret %s for app %s", params.SecretName, appName)
	if syncErr != nil {
		status = "failed"
		details = fmt.Sprintf("failed to sync secret %s for app %s: %s", params.SecretName, appName, syncErr.Error())
	}
	activity.Record(ctx, tx, schema, activity.Entry{
		ProjectID:     projectID,
		UserID:        userID,
		RequestID:     &job.Payload.RequestID,
		ActionType:    consts.ActionFlyioSecretSync,
		ActionDetails: details,
		Status:        status,
		Environment:   "production",
		ReferenceIDs:  map[string]string{"app_name": appName},
	})

	if syncErr != nil {
		if err := uow.Commit(); err != nil {
			return errs.ExternalIOError{System: "control-db", Err: err}
		}
		return errs.ExternalIOError{System: "deploy", Err: syncErr}
	}

	if err := uow.Commit(); err != nil {
		return errs.ExternalIOError{System: "control-db", Err: err}
	}

	publisher.PublishSuccess(streamID, fmt.Sprintf("secret %s synced", params.SecretName))
	return nil
}

// syncSecret installs the deployment platform's CLI inside the sandbox and
// uses it to set exactly one secret, mirroring the platform's documented
// CLI-driven secret management rather than the REST client, since secrets
// set this way take effect on the next release without a code deploy.
func (s *SecretSync) syncSecret(ctx context.Context, sandboxID, appName string, params entity.SecretSyncParams) error {
	install, err := s.deps.Sandbox.Exec(ctx, sandboxID, "curl -L https://fly.io/install.sh | sh", secretSyncExecTimeout)
	if err != nil || install.ExitCode != 0 {
		return fmt.Errorf("installing deploy CLI: %w (stderr: %s)", err, install.Stderr)
	}

	setCmd := fmt.Sprintf(
		"FLY_API_TOKEN=%q $HOME/.fly/bin/flyctl secrets set %s=%q --app %q --stage",
		s.deps.DeployCfg.APIToken, params.SecretName, params.SecretValue, appName,
	)
	res, err := s.deps.Sandbox.Exec(ctx, sandboxID, setCmd, secretSyncExecTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("secrets set failed: %s", res.Stderr)
	}
	return nil
}
