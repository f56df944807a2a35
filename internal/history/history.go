package history

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record 表示一次任务执行的归档记录。
type Record struct {
	ID          int64  `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Loop        int    `json:"loop"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Repository 抽象执行记录的持久化接口。
type Repository interface {
	Save(ctx context.Context, record Record) error
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// EncodeOutput 将任意任务输出编码为可落库的文本。
// 非字符串输出统一走 JSON 编码；编码失败时退化为 fmt 格式化。
func EncodeOutput(output any) string {
	if output == nil {
		return ""
	}
	if s, ok := output.(string); ok {
		return s
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(encoded)
}
