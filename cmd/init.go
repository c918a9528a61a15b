package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/ai"
	"github.com/turbobackend/worker/internal/application/pipeline"
	"github.com/turbobackend/worker/internal/application/provision"
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/infra/client/openai"
	"github.com/turbobackend/worker/internal/infra/config"
	"github.com/turbobackend/worker/internal/infra/deploy"
	"github.com/turbobackend/worker/internal/infra/objectstore"
	"github.com/turbobackend/worker/internal/infra/pubsub"
	"github.com/turbobackend/worker/internal/infra/queue"
	"github.com/turbobackend/worker/internal/infra/sandbox"
	"github.com/turbobackend/worker/internal/infra/sourcehost"
	"github.com/turbobackend/worker/internal/presentation/worker"
	"github.com/turbobackend/worker/pkg/db"
)

func Init() {
	ctx := context.Background()

	appCfg := config.NewAppConfig()
	controlDBCfg := config.NewControlDBConfig()
	pool := db.New(ctx, controlDBCfg.DSN)
	if err := pool.Ping(ctx); err != nil {
		log.Panicf("failed to connect to control db: %v", err)
	}
	uowFactory := db.NewUoWFactory(pool)

	clusterCfg := config.NewClusterDBConfig()
	queueCfg := config.NewQueueConfig()
	pubsubCfg := config.NewPubSubConfig()
	sandboxCfg := config.NewSandboxConfig()
	objectStoreCfg := config.NewObjectStoreConfig()
	sourceHostCfg := config.NewSourceHostConfig()
	deployCfg := config.NewDeployConfig()
	openAICfg := config.NewOpenAIConfig()

	llm := openai.NewClient(openAICfg)

	dockerSandbox, err := sandbox.NewDockerSandbox(sandboxCfg)
	if err != nil {
		log.Panicf("failed to initialize sandbox provisioner: %v", err)
	}

	objectStore, err := objectstore.NewS3Store(ctx, objectStoreCfg)
	if err != nil {
		log.Panicf("failed to initialize object store: %v", err)
	}

	publisher := pubsub.NewPublisher(pubsubCfg)
	if err := publisher.Ready(ctx); err != nil {
		log.Panicf("pubsub never became ready: %v", err)
	}

	sourceHost := sourcehost.NewGitHubClient(sourceHostCfg)
	deployClient := deploy.NewClient(deployCfg)

	consumer, err := queue.NewConsumer(queueCfg)
	if err != nil {
		log.Panicf("failed to initialize queue consumer: %v", err)
	}

	deps := &pipeline.Deps{
		UOWFactory:     uowFactory,
		Schema:         controlDBCfg.Schema,
		LLM:            llm,
		Sandbox:        dockerSandbox,
		Publisher:      publisher,
		SourceHost:     sourceHost,
		Deploy:         deployClient,
		ObjectStore:    objectStore,
		Detector:       ai.NewDetector(llm),
		SchemaDesigner: ai.NewSchemaDesigner(llm),
		Provisioner:    provision.NewDatabaseProvisioner(clusterCfg),
		SourceHostCfg:  sourceHostCfg,
		DeployCfg:      deployCfg,
		OpenAICfg:      openAICfg,
		ObjectCfg:      objectStoreCfg,
		ClusterCfg:     clusterCfg,
		MaxIterations:  agent.DefaultMaxIterations,
	}

	runtime := worker.NewRuntime(consumer, publisher, queueCfg.Concurrency, queueCfg.DrainTimeout, !appCfg.IsProduction())
	runtime.Register(consts.JobInitialProjectCreation, pipeline.NewCreation(deps))
	runtime.Register(consts.JobProjectModification, pipeline.NewModification(deps))
	runtime.Register(consts.JobSyncFlyioSecrets, pipeline.NewSecretSync(deps))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runtime.Run(runCtx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		fmt.Println("Gracefully shutting down...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}

	fmt.Println("Running cleanup tasks...")
	runtime.Shutdown()
	pool.Close()
	fmt.Println("Worker was successfully shut down.")
}
