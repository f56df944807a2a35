package workflow

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"sync"

	xerrors "AgentWeave/internal/errors"
)

// dispatchMessage 是并发策略投递到队列的消息体。
// 消息携带工作流和轮次标签：队列可能被复用，上一次被取消或失败的运行
// 会在 Redis/RabbitMQ 这类持久化队列里留下未消费的消息，消费端必须
// 能识别并丢弃它们，否则会错误地推进当前轮次的屏障。
type dispatchMessage struct {
	WorkflowID string `json:"workflow_id"`
	Pass       int    `json:"pass"`
	TaskID     string `json:"task_id"`
}

// ConcurrentWorkflow 在每个循环内将任务通过队列派发给多个工作协程并行执行。
// 每个循环结束处设有屏障：只有当本轮所有任务完成后才进入下一轮，
// 因此单个任务的历史追加顺序仍然等于智能体调用顺序，结果集与顺序执行一致。
type ConcurrentWorkflow struct {
	*BaseWorkflow
	queue   Queue
	workers int
}

// ConcurrentOption 定义并发策略特有的配置。
type ConcurrentOption func(*ConcurrentWorkflow)

// WithWorkerCount 设置消费任务的工作协程数量。
func WithWorkerCount(workers int) ConcurrentOption {
	return func(w *ConcurrentWorkflow) {
		if workers > 0 {
			w.workers = workers
		}
	}
}

// NewConcurrent 创建并发工作流。queue 为任务派发通道，
// 单进程场景使用 MemoryQueue，跨进程场景使用 Redis 或 RabbitMQ 实现。
func NewConcurrent(queue Queue, opts []Option, copts ...ConcurrentOption) (*ConcurrentWorkflow, error) {
	if queue == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供任务派发队列")
	}
	w := &ConcurrentWorkflow{
		BaseWorkflow: newBase(opts),
		queue:        queue,
		workers:      4,
	}
	for _, opt := range copts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run 对任务池执行 maxLoops 轮并行遍历。
func (c *ConcurrentWorkflow) Run(ctx context.Context) error {
	if err := c.beginRun(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pending sync.WaitGroup
	var failMu sync.Mutex
	var firstFailure error

	// passSeen 记录当前轮次已受理的任务标识。只有归属当前工作流且标签
	// 匹配当前轮次的首次投递才会推进屏障，过期消息和重复投递被直接丢弃。
	var passMu sync.Mutex
	passSeen := make(map[string]struct{})

	handler := func(hctx context.Context, payload string) error {
		var msg dispatchMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			c.logger.Warn("丢弃无法解析的队列消息", slog.Any("error", err))
			return nil
		}
		if msg.WorkflowID != c.id || msg.Pass != c.currentLoop() {
			c.logger.Warn("丢弃过期的队列消息",
				slog.String("message_workflow_id", msg.WorkflowID),
				slog.Int("message_pass", msg.Pass),
			)
			return nil
		}
		passMu.Lock()
		if _, dup := passSeen[msg.TaskID]; dup {
			passMu.Unlock()
			c.logger.Warn("丢弃重复投递的任务", slog.String("task_id", msg.TaskID))
			return nil
		}
		passSeen[msg.TaskID] = struct{}{}
		passMu.Unlock()
		defer pending.Done()

		task, err := c.pool.FindByID(msg.TaskID)
		if err != nil {
			c.logger.Warn("队列派发的任务不在池中", slog.String("task_id", msg.TaskID))
			return err
		}
		if err := c.executeTask(hctx, msg.Pass, task); err != nil {
			failMu.Lock()
			if firstFailure == nil {
				firstFailure = err
			}
			failMu.Unlock()
		}
		return nil
	}

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- c.queue.Consume(runCtx, c.workers, handler)
	}()

	// drain 确保 Run 返回前本次运行的消费协程已全部退出，
	// 否则残余的消费者会与队列的下一位使用者争抢消息。
	drain := func() error {
		cancel()
		return <-consumeDone
	}

	for loop := 1; loop <= c.maxLoops; loop++ {
		c.setLoop(loop)
		passMu.Lock()
		passSeen = make(map[string]struct{})
		passMu.Unlock()

		tasks := c.pool.Tasks()
		c.logger.Info("开始并行循环",
			slog.String("workflow_id", c.id),
			slog.Int("loop", loop),
			slog.Int("tasks", len(tasks)),
			slog.Int("workers", c.workers),
		)

		pending.Add(len(tasks))
		for _, task := range tasks {
			payload, err := json.Marshal(dispatchMessage{
				WorkflowID: c.id,
				Pass:       loop,
				TaskID:     task.ID,
			})
			if err != nil {
				pending.Done()
				c.setStatus(StatusFailed)
				_ = drain()
				return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化派发消息失败")
			}
			if err := c.queue.Publish(runCtx, string(payload)); err != nil {
				pending.Done()
				c.setStatus(StatusFailed)
				_ = drain()
				return xerrors.Wrap(xerrors.CodeQueueFailure, err, "派发任务失败")
			}
		}

		if err := waitBarrier(runCtx, &pending); err != nil {
			c.setStatus(StatusFailed)
			_ = drain()
			return xerrors.Wrap(xerrors.CodeExecutionFailure, err, "工作流被取消")
		}

		failMu.Lock()
		failure := firstFailure
		failMu.Unlock()
		if failure != nil && c.failFast {
			c.setStatus(StatusFailed)
			_ = drain()
			return failure
		}
	}

	if err := drain(); err != nil && !stdErrors.Is(err, context.Canceled) {
		c.setStatus(StatusFailed)
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "任务消费异常退出")
	}

	c.setStatus(StatusCompleted)
	return nil
}

// currentLoop / setLoop 在派发协程与消费协程之间共享当前轮次。
// 屏障保证了读写不会跨轮交错。
func (c *ConcurrentWorkflow) currentLoop() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

func (c *ConcurrentWorkflow) setLoop(loop int) {
	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()
}

func waitBarrier(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
