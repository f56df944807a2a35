package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "AgentWeave/internal/errors"
	"AgentWeave/internal/history"
	"AgentWeave/internal/observability/alerting"
	"AgentWeave/internal/observability/metrics"
	"AgentWeave/pkg/logger"
)

// Status 表示工作流在生命周期中的状态。
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Workflow 定义了循环策略的执行入口。顺序、并发等具体策略
// 在共享的 BaseWorkflow 记账之上实现各自的 Run。
type Workflow interface {
	Run(ctx context.Context) error
}

// BaseWorkflow 承载任务池、循环次数与状态机等共享记账逻辑。
type BaseWorkflow struct {
	id       string
	pool     *TaskPool
	maxLoops int
	failFast bool

	mu     sync.Mutex
	status Status
	loop   int

	logger  *slog.Logger
	alerter alerting.Dispatcher
	archive history.Repository
	metrics *metrics.Collector
}

// Option 定义工作流的可选配置。
type Option func(*BaseWorkflow)

// WithMaxLoops 设置每次 Run 对任务池的完整遍历次数，最小为 1。
func WithMaxLoops(loops int) Option {
	return func(w *BaseWorkflow) {
		if loops >= 1 {
			w.maxLoops = loops
		}
	}
}

// WithLogger 注入日志能力，测试中可替换或关闭。
func WithLogger(log *slog.Logger) Option {
	return func(w *BaseWorkflow) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithFailFast 指定任务执行失败时立即终止整个 Run。
// 默认行为是记录失败并继续执行后续任务。
func WithFailFast(failFast bool) Option {
	return func(w *BaseWorkflow) {
		w.failFast = failFast
	}
}

// WithAlertDispatcher 配置任务失败时的告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(w *BaseWorkflow) {
		w.alerter = dispatcher
	}
}

// WithHistoryArchive 配置执行记录的落库仓库，按尽力而为写入。
func WithHistoryArchive(repo history.Repository) Option {
	return func(w *BaseWorkflow) {
		w.archive = repo
	}
}

// WithMetrics 配置任务执行指标采集器。
func WithMetrics(collector *metrics.Collector) Option {
	return func(w *BaseWorkflow) {
		w.metrics = collector
	}
}

func newBase(opts []Option) *BaseWorkflow {
	w := &BaseWorkflow{
		id:       uuid.NewString(),
		pool:     NewTaskPool(),
		maxLoops: 1,
		status:   StatusIdle,
		logger:   logger.Named("workflow"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ID 返回工作流实例的唯一标识。
func (w *BaseWorkflow) ID() string { return w.id }

// Pool 返回工作流独占的任务池。
func (w *BaseWorkflow) Pool() *TaskPool { return w.pool }

// MaxLoops 返回每次 Run 的遍历次数。
func (w *BaseWorkflow) MaxLoops() int { return w.maxLoops }

// Status 返回当前状态。
func (w *BaseWorkflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *BaseWorkflow) setStatus(status Status) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

// beginRun 将状态切换为运行中。已在运行中的工作流拒绝再次进入。
func (w *BaseWorkflow) beginRun() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning {
		return xerrors.New(xerrors.CodeConflict, "工作流已在运行中")
	}
	w.status = StatusRunning
	return nil
}

// Add 向任务池追加任务。
func (w *BaseWorkflow) Add(task *Task) error {
	if err := w.pool.Add(task); err != nil {
		w.logger.Warn("添加任务失败", slog.Any("error", err))
		return err
	}
	return nil
}

// AddAll 向任务池批量追加任务。
func (w *BaseWorkflow) AddAll(tasks []*Task) error {
	if err := w.pool.AddAll(tasks); err != nil {
		w.logger.Warn("批量添加任务失败", slog.Any("error", err))
		return err
	}
	return nil
}

// AddObjective 以描述和智能体直接构造任务并入池，返回新任务。
func (w *BaseWorkflow) AddObjective(description string, agent Agent, opts ...TaskOption) (*Task, error) {
	if description == "" {
		err := xerrors.Wrap(CodeTaskValidation, ErrTaskInvalid, "任务描述不能为空")
		w.logger.Warn("添加目标失败", slog.Any("error", err))
		return nil, err
	}
	task := NewTask(description, agent, opts...)
	if err := w.pool.Add(task); err != nil {
		return nil, err
	}
	w.logger.Info("已添加任务目标",
		slog.String("task_id", task.ID),
		slog.String("description", task.Description),
	)
	return task, nil
}

// UpdateTask 按描述合并补丁。失败只记录并返回错误，池保持不变。
func (w *BaseWorkflow) UpdateTask(description string, patch TaskPatch) error {
	if err := w.pool.UpdateByDescription(description, patch); err != nil {
		w.logger.Warn("更新任务失败",
			slog.String("description", description),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// DeleteTask 按描述移除任务。失败只记录并返回错误，池保持不变。
func (w *BaseWorkflow) DeleteTask(description string) error {
	if err := w.pool.RemoveByDescription(description); err != nil {
		w.logger.Warn("删除任务失败",
			slog.String("description", description),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// Reset 清空所有任务结果并回到空闲状态，历史记录保持不变。
func (w *BaseWorkflow) Reset() {
	w.pool.Reset()
	w.setStatus(StatusIdle)
}

// Results 返回 描述 -> 结果 的快照。
func (w *BaseWorkflow) Results() map[string]any {
	return w.pool.Results()
}

// BindAgent 为描述匹配的任务重新绑定智能体，是状态恢复后的必要步骤。
func (w *BaseWorkflow) BindAgent(description string, agent Agent) error {
	task, err := w.pool.FindByDescription(description)
	if err != nil {
		w.logger.Warn("绑定智能体失败",
			slog.String("description", description),
			slog.Any("error", err),
		)
		return err
	}
	task.Bind(agent)
	return nil
}

// BindAgents 将同一个智能体绑定到池中的全部任务。
func (w *BaseWorkflow) BindAgents(agent Agent) {
	for _, task := range w.pool.Tasks() {
		task.Bind(agent)
	}
}

// executeTask 执行单个任务：调用绑定的智能体，写入结果并追加历史。
// 智能体失败不会中断整个 Run（除非 FailFast），失败以 ExecutionError
// 形式落在任务结果上，同时产生告警与审计记录。
func (w *BaseWorkflow) executeTask(ctx context.Context, loop int, task *Task) error {
	started := time.Now()

	var output any
	var execErr error
	if task.Agent() == nil {
		execErr = xerrors.New(CodeTaskUnbound, "任务未绑定智能体，恢复状态后需要重新绑定")
	} else {
		output, execErr = task.Agent().Run(ctx, task.Description, cloneArgs(task.Args), cloneKwargs(task.Kwargs))
	}

	entry := HistoryEntry{
		Loop:      loop,
		Input:     task.Description,
		CreatedAt: time.Now().Unix(),
	}

	if execErr != nil {
		code := xerrors.CodeOf(execErr)
		if code == xerrors.CodeUnknown {
			code = CodeTaskExecution
		}
		task.Result = &ExecutionError{Code: string(code), Message: execErr.Error()}
		entry.Error = execErr.Error()
		task.History = append(task.History, entry)

		w.metrics.ObserveExecution(metrics.OutcomeFailed, time.Since(started))
		w.archiveExecution(ctx, task, loop, execErr)
		w.emitAlert(ctx, task, loop, code, execErr)
		logger.Audit().Warn("任务执行失败",
			slog.String("workflow_id", w.id),
			slog.String("task_id", task.ID),
			slog.String("description", task.Description),
			slog.Int("loop", loop),
			slog.String("error", execErr.Error()),
		)
		if w.failFast {
			return xerrors.Wrap(CodeTaskExecution, execErr, "任务 "+task.Description+" 执行失败")
		}
		return nil
	}

	task.Result = output
	entry.Output = output
	task.History = append(task.History, entry)

	w.metrics.ObserveExecution(metrics.OutcomeSucceeded, time.Since(started))
	w.archiveExecution(ctx, task, loop, nil)
	logger.Audit().Info("任务执行成功",
		slog.String("workflow_id", w.id),
		slog.String("task_id", task.ID),
		slog.String("description", task.Description),
		slog.Int("loop", loop),
	)
	return nil
}

func (w *BaseWorkflow) archiveExecution(ctx context.Context, task *Task, loop int, execErr error) {
	if w.archive == nil {
		return
	}
	record := history.Record{
		WorkflowID:  w.id,
		TaskID:      task.ID,
		Description: task.Description,
		Loop:        loop,
		CreatedAt:   time.Now().Unix(),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	} else {
		record.Output = history.EncodeOutput(task.Result)
	}
	if err := w.archive.Save(ctx, record); err != nil {
		w.logger.Error("写入执行记录失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
		)
	}
}

func (w *BaseWorkflow) emitAlert(ctx context.Context, task *Task, loop int, code xerrors.Code, cause error) {
	if w.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:        code,
		Message:     message,
		Severity:    attrs.Severity,
		WorkflowID:  w.id,
		TaskID:      task.ID,
		Description: task.Description,
		Loop:        loop,
		OccurredAt:  time.Now(),
	}
	if err := w.alerter.Notify(ctx, event); err != nil {
		w.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
		)
	}
}

// SequentialWorkflow 按池内顺序逐个执行任务，是默认的循环策略。
type SequentialWorkflow struct {
	*BaseWorkflow
}

// NewSequential 创建顺序工作流。
func NewSequential(opts ...Option) *SequentialWorkflow {
	return &SequentialWorkflow{BaseWorkflow: newBase(opts)}
}

// Run 对任务池执行 maxLoops 次完整遍历。
// 单个任务的失败默认不终止遍历；持久化之外的记账错误也不会让 Run 崩溃。
func (s *SequentialWorkflow) Run(ctx context.Context) error {
	if err := s.beginRun(); err != nil {
		return err
	}

	for loop := 1; loop <= s.maxLoops; loop++ {
		tasks := s.pool.Tasks()
		s.logger.Info("开始执行循环",
			slog.String("workflow_id", s.id),
			slog.Int("loop", loop),
			slog.Int("tasks", len(tasks)),
		)
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				s.setStatus(StatusFailed)
				return xerrors.Wrap(xerrors.CodeExecutionFailure, err, "工作流被取消")
			}
			if err := s.executeTask(ctx, loop, task); err != nil {
				s.setStatus(StatusFailed)
				return err
			}
		}
	}

	s.setStatus(StatusCompleted)
	return nil
}
