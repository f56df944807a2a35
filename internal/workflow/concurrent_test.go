package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestConcurrentRunMatchesSequentialResults(t *testing.T) {
	agent := &stubAgent{}
	queue := NewMemoryQueue(16)
	defer queue.Close()

	flow, err := NewConcurrent(queue,
		[]Option{WithMaxLoops(2), WithLogger(quietLogger())},
		WithWorkerCount(3),
	)
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}

	tasks := []*Task{
		NewTask("并行任务一", agent),
		NewTask("并行任务二", agent),
		NewTask("并行任务三", agent),
	}
	if err := flow.AddAll(tasks); err != nil {
		t.Fatalf("add all: %v", err)
	}

	if err := flow.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Status() != StatusCompleted {
		t.Fatalf("expected completed status, got %s", flow.Status())
	}
	if agent.callCount() != 6 {
		t.Fatalf("expected 6 agent calls (3 tasks x 2 loops), got %d", agent.callCount())
	}

	for _, task := range tasks {
		if task.Result != "done:"+task.Description {
			t.Fatalf("unexpected result for %s: %v", task.Description, task.Result)
		}
		if len(task.History) != 2 {
			t.Fatalf("task %s expected 2 history entries, got %d", task.Description, len(task.History))
		}
		// 循环间的屏障保证历史顺序与顺序执行一致。
		if task.History[0].Loop != 1 || task.History[1].Loop != 2 {
			t.Fatalf("history must follow loop order, got %+v", task.History)
		}
	}
}

func TestConcurrentRunRecordsFailureAndContinues(t *testing.T) {
	failing := &stubAgent{fn: func(string) (any, error) {
		return nil, errors.New("boom")
	}}
	healthy := &stubAgent{}

	queue := NewMemoryQueue(16)
	defer queue.Close()
	flow, err := NewConcurrent(queue, []Option{WithLogger(quietLogger())})
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}

	broken := NewTask("并行失败任务", failing)
	working := NewTask("并行正常任务", healthy)
	if err := flow.AddAll([]*Task{broken, working}); err != nil {
		t.Fatalf("add all: %v", err)
	}

	if err := flow.Run(context.Background()); err != nil {
		t.Fatalf("run must continue past task failure: %v", err)
	}
	if _, ok := broken.Result.(*ExecutionError); !ok {
		t.Fatalf("failed task must carry *ExecutionError, got %T", broken.Result)
	}
	if working.Result != "done:并行正常任务" {
		t.Fatalf("unexpected result: %v", working.Result)
	}
}

func TestConcurrentRunFailFast(t *testing.T) {
	failing := &stubAgent{fn: func(string) (any, error) {
		return nil, errors.New("boom")
	}}

	queue := NewMemoryQueue(16)
	defer queue.Close()
	flow, err := NewConcurrent(queue,
		[]Option{WithMaxLoops(3), WithFailFast(true), WithLogger(quietLogger())},
	)
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}
	if err := flow.Add(NewTask("必然失败", failing)); err != nil {
		t.Fatalf("add: %v", err)
	}

	runErr := flow.Run(context.Background())
	if runErr == nil {
		t.Fatalf("expected fail-fast error")
	}
	if flow.Status() != StatusFailed {
		t.Fatalf("expected failed status, got %s", flow.Status())
	}
	if failing.callCount() != 1 {
		t.Fatalf("fail-fast must stop after the first loop, got %d calls", failing.callCount())
	}
}

func TestConcurrentRunCanceledContext(t *testing.T) {
	slow := &stubAgent{fn: func(input string) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "done:" + input, nil
	}}

	queue := NewMemoryQueue(16)
	defer queue.Close()
	flow, err := NewConcurrent(queue, []Option{WithLogger(quietLogger())})
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}
	if err := flow.Add(NewTask("慢任务", slow)); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := flow.Run(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if flow.Status() != StatusFailed {
		t.Fatalf("expected failed status, got %s", flow.Status())
	}
}

func TestConcurrentRunDiscardsStaleQueueMessages(t *testing.T) {
	queue := NewMemoryQueue(16)
	defer queue.Close()

	// 队列里预先残留一条其他运行的消息和一条无法解析的消息，
	// 它们都不属于本次运行，必须被丢弃而不推进屏障。
	stale, err := json.Marshal(dispatchMessage{
		WorkflowID: "11111111-dead-dead-dead-111111111111",
		Pass:       1,
		TaskID:     "ghost-task",
	})
	if err != nil {
		t.Fatalf("marshal stale message: %v", err)
	}
	if err := queue.Publish(context.Background(), string(stale)); err != nil {
		t.Fatalf("publish stale message: %v", err)
	}
	if err := queue.Publish(context.Background(), "not-json"); err != nil {
		t.Fatalf("publish junk message: %v", err)
	}

	agent := &stubAgent{}
	flow, err := NewConcurrent(queue, []Option{WithMaxLoops(2), WithLogger(quietLogger())})
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}
	tasks := []*Task{
		NewTask("复用队列任务一", agent),
		NewTask("复用队列任务二", agent),
	}
	if err := flow.AddAll(tasks); err != nil {
		t.Fatalf("add all: %v", err)
	}

	if err := flow.Run(context.Background()); err != nil {
		t.Fatalf("run with stale messages in queue: %v", err)
	}
	if flow.Status() != StatusCompleted {
		t.Fatalf("expected completed status, got %s", flow.Status())
	}
	if agent.callCount() != 4 {
		t.Fatalf("expected 4 agent calls (2 tasks x 2 loops), got %d", agent.callCount())
	}
	for _, task := range tasks {
		if task.Result != "done:"+task.Description {
			t.Fatalf("unexpected result for %s: %v", task.Description, task.Result)
		}
		if len(task.History) != 2 {
			t.Fatalf("task %s expected 2 history entries, got %d", task.Description, len(task.History))
		}
	}
}

func TestConcurrentRunAfterCanceledRunOnSameQueue(t *testing.T) {
	queue := NewMemoryQueue(16)
	defer queue.Close()

	slow := &stubAgent{fn: func(input string) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "done:" + input, nil
	}}
	first, err := NewConcurrent(queue, []Option{WithLogger(quietLogger())})
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}
	if err := first.AddAll([]*Task{
		NewTask("被取消的任务一", slow),
		NewTask("被取消的任务二", slow),
	}); err != nil {
		t.Fatalf("add all: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := first.Run(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}

	// 被取消的运行可能在队列里留下未消费的消息，
	// 第二个工作流复用同一条队列时必须不受影响。
	agent := &stubAgent{}
	second, err := NewConcurrent(queue, []Option{WithMaxLoops(2), WithLogger(quietLogger())})
	if err != nil {
		t.Fatalf("new concurrent: %v", err)
	}
	tasks := []*Task{
		NewTask("接续任务一", agent),
		NewTask("接续任务二", agent),
	}
	if err := second.AddAll(tasks); err != nil {
		t.Fatalf("add all: %v", err)
	}

	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("run on reused queue: %v", err)
	}
	if second.Status() != StatusCompleted {
		t.Fatalf("expected completed status, got %s", second.Status())
	}
	for _, task := range tasks {
		if task.Result != "done:"+task.Description {
			t.Fatalf("unexpected result for %s: %v", task.Description, task.Result)
		}
		if len(task.History) != 2 {
			t.Fatalf("task %s expected 2 history entries, got %d", task.Description, len(task.History))
		}
	}
}

func TestNewConcurrentRequiresQueue(t *testing.T) {
	if _, err := NewConcurrent(nil, nil); err == nil {
		t.Fatalf("expected error for nil queue")
	}
}
