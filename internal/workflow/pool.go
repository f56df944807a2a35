package workflow

import (
	"sync"

	xerrors "AgentWeave/internal/errors"
)

// TaskPool 维护一组有序任务。插入顺序即顺序策略下的执行顺序。
// 池由单个工作流实例独占；Run 期间由其他调用方并发变更属于未定义行为，
// 需要调用方自行保证（内部加锁只保护快照一致性，不构成并发契约）。
type TaskPool struct {
	mu    sync.RWMutex
	tasks []*Task
}

// TaskPatch 描述对任务的一次变更。Kwargs 合并进现有命名参数，
// Args 与 Description 仅在非 nil 时整体替换。
type TaskPatch struct {
	Description *string
	Args        []any
	Kwargs      map[string]any
}

// NewTaskPool 创建一个空任务池。
func NewTaskPool() *TaskPool {
	return &TaskPool{}
}

// Add 追加单个任务。
func (p *TaskPool) Add(task *Task) error {
	if task == nil {
		return xerrors.Wrap(CodeTaskValidation, ErrTaskInvalid, "不能添加空任务")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

// AddAll 批量追加任务。空批次与 nil 成员均视为非法参数，池保持不变。
func (p *TaskPool) AddAll(tasks []*Task) error {
	if len(tasks) == 0 {
		return xerrors.Wrap(CodeTaskValidation, ErrTaskInvalid, "必须提供一个任务或任务列表")
	}
	for _, task := range tasks {
		if task == nil {
			return xerrors.Wrap(CodeTaskValidation, ErrTaskInvalid, "任务列表包含空任务")
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, tasks...)
	return nil
}

// FindByID 按任务标识查找。
func (p *TaskPool) FindByID(id string) (*Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, task := range p.tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, ErrTaskNotFound
}

// FindByDescription 返回描述匹配的第一个任务。
// 重复描述会造成歧义，按标识查找始终是更可靠的方式。
func (p *TaskPool) FindByDescription(description string) (*Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, task := range p.tasks {
		if task.Description == description {
			return task, nil
		}
	}
	return nil, ErrTaskNotFound
}

// Remove 按标识移除任务。未找到时返回 ErrTaskNotFound，池保持不变。
func (p *TaskPool) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, task := range p.tasks {
		if task.ID == id {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			return nil
		}
	}
	return ErrTaskNotFound
}

// RemoveByDescription 按描述移除任务。描述匹配到多个任务时拒绝操作。
func (p *TaskPool) RemoveByDescription(description string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.locateByDescription(description)
	if err != nil {
		return err
	}
	p.tasks = append(p.tasks[:index], p.tasks[index+1:]...)
	return nil
}

// Update 按标识将补丁合并进任务。未找到时池保持不变。
func (p *TaskPool) Update(id string, patch TaskPatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, task := range p.tasks {
		if task.ID == id {
			applyPatch(task, patch)
			return nil
		}
	}
	return ErrTaskNotFound
}

// UpdateByDescription 按描述将补丁合并进任务。
// 目标描述与迭代对象使用不同名字，匹配才有意义。
func (p *TaskPool) UpdateByDescription(description string, patch TaskPatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.locateByDescription(description)
	if err != nil {
		return err
	}
	applyPatch(p.tasks[index], patch)
	return nil
}

// locateByDescription 返回描述唯一匹配的下标。调用方必须持有写锁。
func (p *TaskPool) locateByDescription(target string) (int, error) {
	found := -1
	for i, task := range p.tasks {
		if task.Description != target {
			continue
		}
		if found >= 0 {
			return -1, ErrTaskAmbiguous
		}
		found = i
	}
	if found < 0 {
		return -1, ErrTaskNotFound
	}
	return found, nil
}

func applyPatch(task *Task, patch TaskPatch) {
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Args != nil {
		task.Args = cloneArgs(patch.Args)
	}
	if len(patch.Kwargs) > 0 {
		if task.Kwargs == nil {
			task.Kwargs = make(map[string]any, len(patch.Kwargs))
		}
		for key, value := range patch.Kwargs {
			task.Kwargs[key] = value
		}
	}
}

// Reset 清空所有任务的结果，不触碰历史记录。重复调用效果不变。
func (p *TaskPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, task := range p.tasks {
		task.Result = nil
	}
}

// Results 返回 描述 -> 结果 的快照视图。
// 描述重复时后者覆盖前者；需要无冲突视图请使用 ResultsByID。
func (p *TaskPool) Results() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	results := make(map[string]any, len(p.tasks))
	for _, task := range p.tasks {
		results[task.Description] = task.Result
	}
	return results
}

// ResultsByID 返回 任务标识 -> 结果 的快照视图，不受描述重复影响。
func (p *TaskPool) ResultsByID() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	results := make(map[string]any, len(p.tasks))
	for _, task := range p.tasks {
		results[task.ID] = task.Result
	}
	return results
}

// Len 返回池中任务数量。
func (p *TaskPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// Tasks 返回当前任务切片的副本，元素仍指向池内任务。
func (p *TaskPool) Tasks() []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snapshot := make([]*Task, len(p.tasks))
	copy(snapshot, p.tasks)
	return snapshot
}

// replace 以新任务集整体替换池内容，仅供状态恢复使用。
func (p *TaskPool) replace(tasks []*Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = tasks
}
