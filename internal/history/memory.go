package history

import (
	"context"
	"sync"

	xerrors "AgentWeave/internal/errors"
)

// maxRetained 限制内存仓库保留的记录数量，防止长时间运行撑爆内存。
const maxRetained = 512

// MemoryRepository 以内存方式保存执行记录，用于测试与单进程运行。
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records []Record
}

// NewMemoryRepository 创建内存仓库。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Save 追加一条执行记录，最新记录排在最前。
func (m *MemoryRepository) Save(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.TaskID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少任务标识")
	}
	m.nextID++
	record.ID = m.nextID
	m.records = append([]Record{record}, m.records...)
	if len(m.records) > maxRetained {
		m.records = m.records[:maxRetained]
	}
	return nil
}

// ListLatest 返回最近的执行记录。
func (m *MemoryRepository) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]Record, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 对内存仓库无需操作。
func (m *MemoryRepository) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Repository = (*MemoryRepository)(nil)
