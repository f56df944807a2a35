package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 weaved 在启动阶段需要加载的核心配置。
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Workflow WorkflowConfig `json:"workflow"`
	History  HistoryConfig  `json:"history"`
	LLM      LLMConfig      `json:"llm"`
	Queue    QueueConfig    `json:"queue"`
}

// LoggingConfig 控制日志输出方式。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// WorkflowConfig 控制工作流的加载与执行策略。
type WorkflowConfig struct {
	DefinitionPath string `json:"definition_path"`
	StatePath      string `json:"state_path"`
	Mode           string `json:"mode"`
	Workers        int    `json:"workers"`
	FailFast       bool   `json:"fail_fast"`
}

// HistoryConfig 统一描述执行记录归档后端的连接信息。
type HistoryConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口所需的信息。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// QueueConfig 描述并发模式下任务派发队列的后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Workflow.DefinitionPath == "" {
		c.Workflow.DefinitionPath = filepath.Join(baseDir, "workflow.yaml")
	} else if !filepath.IsAbs(c.Workflow.DefinitionPath) {
		c.Workflow.DefinitionPath = filepath.Join(baseDir, c.Workflow.DefinitionPath)
	}
	if c.Workflow.StatePath == "" {
		c.Workflow.StatePath = filepath.Join(baseDir, "data", "workflow_state.json")
	} else if !filepath.IsAbs(c.Workflow.StatePath) {
		c.Workflow.StatePath = filepath.Join(baseDir, c.Workflow.StatePath)
	}
	if c.Workflow.Mode == "" {
		c.Workflow.Mode = "sequential"
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = 4
	}

	if c.History.Driver == "" {
		c.History.Driver = "memory"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
}
