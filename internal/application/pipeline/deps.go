package pipeline

import (
	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/ai"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/application/provision"
	"github.com/turbobackend/worker/internal/infra/config"
	dbs "github.com/turbobackend/worker/pkg/db"
)

// Deps is the set of process-wide singletons every pipeline composes. One
// Deps is built at startup and shared by every job; nothing here is
// per-job state.
type Deps struct {
	UOWFactory     *dbs.UOWFactory
	Schema         string
	LLM            ports.LLM
	Sandbox        ports.Sandbox
	Publisher      ports.Publisher
	SourceHost     ports.SourceHost
	Deploy         ports.DeploymentPlatform
	ObjectStore    ports.ObjectStore
	Detector       *ai.Detector
	SchemaDesigner *ai.SchemaDesigner
	Provisioner    *provision.DatabaseProvisioner

	SourceHostCfg config.SourceHostConfig
	DeployCfg     config.DeployConfig
	OpenAICfg     config.OpenAIConfig
	ObjectCfg     config.ObjectStoreConfig
	ClusterCfg    config.ClusterDBConfig

	MaxIterations int
}

func (d *Deps) newCommandExecutor() *agent.CommandExecutor {
	return agent.NewCommandExecutor(d.Sandbox)
}

func (d *Deps) newLoop() *agent.Loop {
	return agent.NewLoop(d.LLM, d.newCommandExecutor(), d.Publisher, d.MaxIterations)
}
