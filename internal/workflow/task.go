package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	xerrors "AgentWeave/internal/errors"
)

// Agent 定义了任务执行所需的外部智能体能力。
// 引擎只依赖该契约，不关心实现内部（大模型调用、工具执行等）。
// input 为任务描述文本，args/kwargs 为任务携带的输入；输出原样写入任务结果。
type Agent interface {
	Run(ctx context.Context, input string, args []any, kwargs map[string]any) (any, error)
}

// HistoryEntry 记录任务的一次执行交互，只追加不重排。
type HistoryEntry struct {
	Loop      int    `json:"loop"`
	Input     string `json:"input"`
	Output    any    `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ExecutionError 是写入任务结果的失败标记，便于调用方区分正常输出与失败。
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口。
func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Task 描述了工作流中的一个执行单元。
// ID 在创建时生成，是变更操作的主键；Description 仅作为展示与查找用的标签。
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Args        []any          `json:"args"`
	Kwargs      map[string]any `json:"kwargs"`
	Result      any            `json:"result"`
	History     []HistoryEntry `json:"history"`

	// agent 由调用方持有，引擎不负责其生命周期，也不参与序列化。
	agent Agent
}

// TaskOption 定义创建任务时的可选配置。
type TaskOption func(*Task)

// WithArgs 设置任务的位置参数。
func WithArgs(args ...any) TaskOption {
	return func(t *Task) {
		t.Args = args
	}
}

// WithKwargs 设置任务的命名参数。
func WithKwargs(kwargs map[string]any) TaskOption {
	return func(t *Task) {
		t.Kwargs = cloneKwargs(kwargs)
	}
}

// NewTask 创建一个任务并分配唯一标识。
func NewTask(description string, agent Agent, opts ...TaskOption) *Task {
	t := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Args:        []any{},
		Kwargs:      map[string]any{},
		agent:       agent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.Args == nil {
		t.Args = []any{}
	}
	if t.Kwargs == nil {
		t.Kwargs = map[string]any{}
	}
	return t
}

// Agent 返回任务绑定的智能体，恢复状态后可能为 nil。
func (t *Task) Agent() Agent {
	return t.agent
}

// Bind 重新绑定智能体。从持久化状态恢复的任务必须在运行前完成绑定。
func (t *Task) Bind(agent Agent) {
	t.agent = agent
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskAmbiguous 表示描述匹配到多个任务，按描述变更时无法消歧。
	ErrTaskAmbiguous = xerrors.New(CodeTaskAmbiguous, "task description is ambiguous", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskInvalid 表示调用方提供的任务参数不合法。
	ErrTaskInvalid = xerrors.New(CodeTaskValidation, "invalid task argument")
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskAmbiguous  xerrors.Code = "TASK_AMBIGUOUS"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskExecution  xerrors.Code = "TASK_EXECUTION_FAILED"
	CodeTaskUnbound    xerrors.Code = "TASK_AGENT_UNBOUND"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:   "task not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskAmbiguous, xerrors.Attributes{
		Message:   "task description is ambiguous",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:   "invalid task argument",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskExecution, xerrors.Attributes{
		Message:   "task execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskUnbound, xerrors.Attributes{
		Message:   "task agent not bound",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

func cloneKwargs(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		return map[string]any{}
	}
	cloned := make(map[string]any, len(kwargs))
	for key, value := range kwargs {
		cloned[key] = value
	}
	return cloned
}

func cloneArgs(args []any) []any {
	cloned := make([]any, len(args))
	copy(cloned, args)
	return cloned
}

func cloneHistory(history []HistoryEntry) []HistoryEntry {
	if len(history) == 0 {
		return nil
	}
	cloned := make([]HistoryEntry, len(history))
	copy(cloned, history)
	return cloned
}
