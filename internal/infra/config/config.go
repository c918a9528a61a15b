package config

import (
	"strconv"
	"time"

	"github.com/turbobackend/worker/pkg/env"
)

// ControlDBConfig configures the process-wide control database pool.
type ControlDBConfig struct {
	DSN    string
	Schema string
}

func NewControlDBConfig() ControlDBConfig {
	return ControlDBConfig{
		DSN:    env.MustGetEnv("CONTROL_DB_DSN"),
		Schema: env.GetEnv("CONTROL_DB_SCHEMA", "turbobackend"),
	}
}

// ClusterDBConfig configures the admin connection used to create per-project
// databases and run their DDL.
type ClusterDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	SSLMode  string
}

func NewClusterDBConfig() ClusterDBConfig {
	return ClusterDBConfig{
		Host:     env.MustGetEnv("DB_CLUSTER_HOST"),
		Port:     env.GetEnv("DB_CLUSTER_PORT", "5432"),
		User:     env.MustGetEnv("DB_CLUSTER_USER"),
		Password: env.MustGetEnv("DB_CLUSTER_PASSWORD"),
		SSLMode:  env.GetEnv("DB_CLUSTER_SSLMODE", "disable"),
	}
}

// QueueConfig configures the RabbitMQ connection and topology.
type QueueConfig struct {
	URL           string
	Exchange      string
	Queue         string
	RoutingKey    string
	DeadLetterTTL time.Duration
	Concurrency   int
	DrainTimeout  time.Duration
}

func NewQueueConfig() QueueConfig {
	concurrency, err := strconv.Atoi(env.GetEnv("WORKER_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		concurrency = 4
	}
	ttlSeconds, err := strconv.Atoi(env.GetEnv("QUEUE_LEASE_TTL_SECONDS", "300"))
	if err != nil || ttlSeconds < 1 {
		ttlSeconds = 300
	}
	drainSeconds, err := strconv.Atoi(env.GetEnv("SHUTDOWN_DRAIN_TIMEOUT_SECONDS", "30"))
	if err != nil || drainSeconds < 1 {
		drainSeconds = 30
	}
	return QueueConfig{
		URL:           env.MustGetEnv("RABBITMQ_URL"),
		Exchange:      env.GetEnv("QUEUE_EXCHANGE", "turbobackend.jobs"),
		Queue:         env.GetEnv("QUEUE_NAME", "turbobackend.jobs.worker"),
		RoutingKey:    env.GetEnv("QUEUE_ROUTING_KEY", "job.#"),
		DeadLetterTTL: time.Duration(ttlSeconds) * time.Second,
		Concurrency:   concurrency,
		DrainTimeout:  time.Duration(drainSeconds) * time.Second,
	}
}

// AppConfig configures process-wide runtime behavior that isn't owned by
// any single adapter, such as the environment gate on destructive
// shutdown behavior.
type AppConfig struct {
	Env string
}

func NewAppConfig() AppConfig {
	return AppConfig{
		Env: env.GetEnv("APP_ENV", "production"),
	}
}

// IsProduction reports whether the process is running in production. Most
// environments read this the same way the teacher reads NODE_ENV: anything
// other than the literal string "production" counts as non-production.
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// PubSubConfig configures the Redis-backed progress publisher.
type PubSubConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewPubSubConfig() PubSubConfig {
	db, err := strconv.Atoi(env.GetEnv("REDIS_DB", "0"))
	if err != nil {
		db = 0
	}
	return PubSubConfig{
		Addr:     env.GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: env.GetEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

// SandboxConfig configures the Docker-backed sandbox provisioner.
type SandboxConfig struct {
	Image          string
	ExecTimeout    time.Duration
	InstallTimeout time.Duration
}

func NewSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Image:          env.GetEnv("SANDBOX_IMAGE", "turbobackend/sandbox:latest"),
		ExecTimeout:    120 * time.Second,
		InstallTimeout: 300 * time.Second,
	}
}

// ObjectStoreConfig configures the S3-compatible object store mirror.
type ObjectStoreConfig struct {
	Bucket string
	Region string
}

func NewObjectStoreConfig() ObjectStoreConfig {
	return ObjectStoreConfig{
		Bucket: env.GetEnv("OBJECTSTORE_BUCKET", "turbobackend-projects"),
		Region: env.GetEnv("AWS_DEFAULT_REGION", "eu-north-1"),
	}
}

// SourceHostConfig configures the GitHub integration.
type SourceHostConfig struct {
	Token string
	Org   string
}

func NewSourceHostConfig() SourceHostConfig {
	return SourceHostConfig{
		Token: env.MustGetEnv("GITHUB_TOKEN"),
		Org:   env.GetEnv("GITHUB_ORG", ""),
	}
}

// DeployConfig configures the deployment platform REST client.
type DeployConfig struct {
	BaseURL       string
	APIToken      string
	Org           string
	Synchronous   bool
	HealthTimeout time.Duration
}

func NewDeployConfig() DeployConfig {
	sync, err := strconv.ParseBool(env.GetEnv("DEPLOY_SYNCHRONOUS", "false"))
	if err != nil {
		sync = false
	}
	return DeployConfig{
		BaseURL:       env.GetEnv("DEPLOY_BASE_URL", "https://api.fly.io"),
		APIToken:      env.MustGetEnv("DEPLOY_API_TOKEN"),
		Org:           env.GetEnv("DEPLOY_ORG", "personal"),
		Synchronous:   sync,
		HealthTimeout: 10 * time.Second,
	}
}

// OpenAIConfig configures the LLM provider client.
type OpenAIConfig struct {
	APIKey          string
	Model           string
	MaxTokens       int64
	ReasoningEffort string
}

func NewOpenAIConfig() OpenAIConfig {
	maxTokens, err := strconv.Atoi(env.GetEnv("OPENAI_TOKENS", "4096"))
	if err != nil {
		maxTokens = 4096
	}
	return OpenAIConfig{
		APIKey:          env.MustGetEnv("OPENAI_KEY"),
		Model:           env.GetEnv("OPENAI_MODEL", "gpt-4o"),
		MaxTokens:       int64(maxTokens),
		ReasoningEffort: env.GetEnv("OPENAI_REASONING_EFFORT", "medium"),
	}
}
