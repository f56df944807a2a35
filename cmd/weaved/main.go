package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentWeave/internal/agent"
	"AgentWeave/internal/config"
	"AgentWeave/internal/history"
	"AgentWeave/internal/llm"
	"AgentWeave/internal/llm/openai"
	"AgentWeave/internal/observability/alerting"
	"AgentWeave/internal/observability/metrics"
	"AgentWeave/internal/workflow"
	"AgentWeave/pkg/logger"
)

// main 是 weaved 守护进程的入口：加载工作流定义，绑定智能体并执行。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("weaved 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("WEAVED_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "weaved.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	archive, err := createArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	runner := agent.New(llmClient,
		agent.WithMemory(archive),
		agent.WithCallTimeout(time.Duration(cfg.LLM.OpenAI.TimeoutSeconds)*time.Second),
	)

	def, err := workflow.LoadDefinition(cfg.Workflow.DefinitionPath)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	opts := []workflow.Option{
		workflow.WithMaxLoops(def.MaxLoops),
		workflow.WithFailFast(cfg.Workflow.FailFast),
		workflow.WithHistoryArchive(archive),
		workflow.WithAlertDispatcher(alerting.NewFanout(&alerting.LogNotifier{})),
		workflow.WithMetrics(collector),
	}

	flow, err := createWorkflow(cfg, opts)
	if err != nil {
		return err
	}
	if err := flow.AddAll(def.Materialize()); err != nil {
		return err
	}
	flow.BindAgents(runner)

	logger.L().Info("工作流已就绪",
		slog.String("definition", cfg.Workflow.DefinitionPath),
		slog.String("mode", cfg.Workflow.Mode),
		slog.Int("tasks", flow.Pool().Len()),
		slog.Int("max_loops", flow.MaxLoops()),
	)

	runErr := flow.Workflow().Run(ctx)

	if err := flow.SaveState(cfg.Workflow.StatePath); err != nil {
		logger.L().Error("保存工作流状态失败", slog.Any("error", err))
	}
	if runErr != nil {
		return runErr
	}

	for description, result := range flow.Results() {
		fmt.Printf("%s: %v\n", description, result)
	}
	logger.L().Info("工作流执行完成", slog.String("status", string(flow.Status())))
	return nil
}

// runtimeWorkflow 将两种循环策略统一为启动流程可用的形态。
type runtimeWorkflow struct {
	*workflow.BaseWorkflow
	runner workflow.Workflow
}

func (r *runtimeWorkflow) Workflow() workflow.Workflow { return r.runner }

func createWorkflow(cfg *config.Config, opts []workflow.Option) (*runtimeWorkflow, error) {
	switch cfg.Workflow.Mode {
	case "sequential", "":
		flow := workflow.NewSequential(opts...)
		return &runtimeWorkflow{BaseWorkflow: flow.BaseWorkflow, runner: flow}, nil
	case "concurrent":
		queue, err := createQueue(cfg)
		if err != nil {
			return nil, err
		}
		flow, err := workflow.NewConcurrent(queue, opts,
			workflow.WithWorkerCount(cfg.Workflow.Workers))
		if err != nil {
			return nil, err
		}
		return &runtimeWorkflow{BaseWorkflow: flow.BaseWorkflow, runner: flow}, nil
	default:
		return nil, fmt.Errorf("不支持的工作流模式: %s", cfg.Workflow.Mode)
	}
}

func createQueue(cfg *config.Config) (workflow.Queue, error) {
	switch cfg.Queue.Driver {
	case "memory", "":
		return workflow.NewMemoryQueue(256), nil
	case "redis":
		return workflow.NewRedisQueue(workflow.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return workflow.NewRabbitMQQueue(workflow.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("不支持的队列驱动: %s", cfg.Queue.Driver)
	}
}

func createArchive(cfg *config.Config) (history.Repository, error) {
	switch cfg.History.Driver {
	case "memory", "":
		return history.NewMemoryRepository(), nil
	case "mysql":
		return history.NewMySQLRepository(cfg.History.DSN)
	default:
		return nil, fmt.Errorf("不支持的归档驱动: %s", cfg.History.Driver)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "openai", "":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: time.Duration(cfg.LLM.OpenAI.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("不支持的大模型提供方: %s", cfg.LLM.Provider)
	}
}
