package workflow

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用 channel 模拟消息队列，用于单进程运行与测试。
// 数据通道从不关闭，关闭状态通过 done 信号表达，
// 因此 Publish 与 Close 可以安全地并发调用。
type MemoryQueue struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

// ErrQueueClosed 表示队列已关闭，无法再投递消息。
var ErrQueueClosed = errors.New("队列已关闭")

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Publish 将消息投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, payload string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- payload:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列，直到上下文取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case payload := <-q.ch:
					_ = handler(ctx, payload)
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case <-q.done:
		wg.Wait()
		return nil
	}
}

// Close 关闭内存队列。重复关闭是安全的。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		close(q.done)
	})
	return nil
}
