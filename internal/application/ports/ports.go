// Package ports declares the capability sets of every external collaborator.
// Adapters are specified as interfaces so the pipeline and agent packages
// never import a concrete infra type directly.
package ports

import (
	"context"
	"io"
	"time"
)

// LLM is the uniform contract every model provider adapter implements.
type LLM interface {
	Generate(ctx context.Context, prompt, systemInstructions string) (Generation, error)
	GenerateStream(ctx context.Context, prompt, systemInstructions string, onChunk func(chunk string)) (Generation, error)
	Model() string
}

// Generation is the result of one non-streaming or streaming LLM call.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ExecResult is the outcome of one sandbox command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is the capability set of an ephemeral compute environment with a
// filesystem and a shell. All paths are relative to the project root.
type Sandbox interface {
	Provision(ctx context.Context, projectID string) (sandboxID string, err error)
	InitializeNewProject(ctx context.Context, sandboxID string, opts InitOptions) error
	InitializeExistingProject(ctx context.Context, sandboxID string) error
	Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (ExecResult, error)
	Read(ctx context.Context, sandboxID, path string) ([]byte, error)
	Write(ctx context.Context, sandboxID, path string, content []byte) error
	Delete(ctx context.Context, sandboxID, path string) error
	Download(ctx context.Context, sandboxID, path string) (io.ReadCloser, error)
	ListGlob(ctx context.Context, sandboxID, dir string, patterns []string) ([]string, error)
	Teardown(ctx context.Context, sandboxID string) error
}

// InitOptions parameterizes sandbox project initialization.
type InitOptions struct {
	InstallDatabaseDriver bool
	InstallAuthSDK        bool
	InstallPaymentSDK     bool
	EnvVars               map[string]string
	PlaceholderEnvVars    map[string]string
}

// ObjectStore is the flat blob namespace used to mirror sandbox trees.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, contentType string, body io.Reader) (url string, err error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// SourceHost is the capability set of the version-control host.
type SourceHost interface {
	EnsureRepo(ctx context.Context, owner, repoName string) (repoURL string, alreadyExisted bool, err error)
	InstallActionsSecret(ctx context.Context, owner, repoName, secretName, secretValue string) error
}

// DeploymentPlatform is the capability set of the deployment platform.
type DeploymentPlatform interface {
	EnsureApp(ctx context.Context, appName, org string) (alreadyExisted bool, err error)
	SetSecrets(ctx context.Context, appName string, secrets map[string]string) error
	Deploy(ctx context.Context, appName, apiToken string) (output string, err error)
	HealthCheck(ctx context.Context, url string, timeout time.Duration) error
}

// Queue is the durable job queue consumed by the worker runtime.
type Queue interface {
	Consume(ctx context.Context, handler func(ctx context.Context, delivery Delivery) error) error
	Close() error
	// Purge discards every pending, undelivered message on the work
	// queue. Only ever invoked outside production, on shutdown.
	Purge() error
}

// Delivery is one queue delivery with manual ack/nack control.
type Delivery struct {
	JobName string
	Body    []byte
	Attempt int
	Ack     func()
	Nack    func(requeue bool)
}

// Publisher is the progress/artifact bus the pipeline and agentic loop push
// to. Every method is fire-and-forget: implementations log and swallow
// publish failures rather than returning them.
type Publisher interface {
	PublishProgress(streamID, message string, progress int)
	PublishSuccess(streamID, content string)
	PublishError(streamID, content string)
	PublishTyped(streamID, eventType string, payload any)
	PublishLLMChunk(jobID, chunk string)
	PublishLLMDone(jobID string)
}
