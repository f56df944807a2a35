package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "AgentWeave/internal/errors"
	"AgentWeave/internal/history"
	"AgentWeave/internal/llm"
	"AgentWeave/internal/tool"
	"AgentWeave/pkg/logger"
)

// defaultMemoryDepth 是大模型调用时可参考的历史记录数量的默认值。
const defaultMemoryDepth = 5

// Agent 以大模型为核心执行任务，可选地携带历史记忆与工具能力。
// 它实现工作流引擎消费的 Agent 契约。
type Agent struct {
	llmClient   llm.Client
	memory      history.Repository
	memoryDepth int
	tools       []tool.Tool
	callTimeout time.Duration
	log         *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithMemoryDepth 设置大模型调用时可参考的历史记录数量。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithMemory 配置历史记忆仓库，用于在推理前补充上下文。
func WithMemory(repo history.Repository) Option {
	return func(a *Agent) {
		a.memory = repo
	}
}

// WithTools 配置智能体可调用的工具集合。
// 大模型回复中的 ```json 工具命令会在回复后自动执行。
func WithTools(tools ...tool.Tool) Option {
	return func(a *Agent) {
		a.tools = tools
	}
}

// WithCallTimeout 设置单次大模型调用的超时时间。
func WithCallTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.callTimeout = 0
			return
		}
		a.callTimeout = timeout
	}
}

// WithAgentLogger 指定日志输出。
func WithAgentLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// New 创建一个 Agent。
func New(llmClient llm.Client, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:   llmClient,
		memoryDepth: defaultMemoryDepth,
		log:         logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth <= 0 {
		ag.memoryDepth = defaultMemoryDepth
	}
	return ag
}

// Run 根据任务描述调用大模型，并执行回复中携带的工具命令。
// 返回的回复文本由引擎原样写入任务结果。
func (a *Agent) Run(ctx context.Context, input string, args []any, kwargs map[string]any) (any, error) {
	if a.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if strings.TrimSpace(input) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务描述不能为空")
	}

	exchanges := a.loadMemory(ctx)

	llmCtx := ctx
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	resp, err := a.llmClient.Generate(llmCtx, llm.Request{
		Goal:    input,
		Args:    args,
		Kwargs:  kwargs,
		History: exchanges,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "大模型推理失败")
	}

	reply := resp.Reply
	if len(a.tools) > 0 {
		executions := tool.ParseAndExecute(ctx, reply, a.tools)
		for _, exec := range executions {
			if exec.Err != nil {
				reply = appendObservation(reply, fmt.Sprintf("工具 %s 执行失败: %v", exec.Tool, exec.Err))
				continue
			}
			reply = appendObservation(reply, fmt.Sprintf("工具 %s 返回: %v", exec.Tool, exec.Output))
		}
	}

	return reply, nil
}

// loadMemory 加载历史执行记录以供大模型参考。加载失败只降级为无记忆。
func (a *Agent) loadMemory(ctx context.Context) []llm.Exchange {
	if a.memory == nil || a.memoryDepth <= 0 {
		return nil
	}
	records, err := a.memory.ListLatest(ctx, a.memoryDepth)
	if err != nil {
		a.log.Warn("加载历史记录失败", slog.Any("error", err))
		return nil
	}
	exchanges := make([]llm.Exchange, 0, len(records))
	for _, record := range records {
		if record.Output == "" {
			continue
		}
		exchanges = append(exchanges, llm.Exchange{
			Goal:      record.Description,
			Reply:     record.Output,
			CreatedAt: record.CreatedAt,
		})
	}
	return exchanges
}

// appendObservation 将新的观察结果追加到现有回复之后。
func appendObservation(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return next
	}
	return existing + "\n" + next
}
