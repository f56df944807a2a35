package workflow

import "context"

// Handler 处理由队列派发的消息体。消息归属的识别由 handler 负责：
// 不属于自己的消息应当返回 nil，让队列将其确认并丢弃。
type Handler func(ctx context.Context, payload string) error

// Producer 负责向队列投递消息。
type Producer interface {
	Publish(ctx context.Context, payload string) error
	Close() error
}

// Consumer 负责从队列中消费消息。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力，供并发策略派发任务使用。
type Queue interface {
	Producer
	Consumer
}
