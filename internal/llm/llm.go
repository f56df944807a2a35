package llm

import "context"

// Request 描述发送给大模型的任务上下文。
type Request struct {
	Goal    string
	Args    []any
	Kwargs  map[string]any
	History []Exchange
}

// Response 是大模型推理得到的结构化输出。
type Response struct {
	Thought string
	Reply   string
}

// Exchange 描述一段历史交互，用于为大模型提供上下文记忆。
type Exchange struct {
	Goal      string
	Reply     string
	CreatedAt int64
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
