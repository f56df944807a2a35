package workflow

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	xerrors "AgentWeave/internal/errors"
)

// taskState 是任务在持久化记录中的形态。智能体绑定不可序列化，不参与落盘。
type taskState struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Args        []any          `json:"args"`
	Kwargs      map[string]any `json:"kwargs"`
	Result      any            `json:"result"`
	History     []HistoryEntry `json:"history"`
}

// workflowState 是工作流状态文件的结构。字段缺失视为损坏，
// 不做跨版本兼容。MaxLoops 用指针区分缺失与零值。
type workflowState struct {
	Tasks    []taskState `json:"tasks"`
	MaxLoops *int        `json:"max_loops"`
}

// SaveState 将任务池与循环配置序列化到指定路径。
// 通过临时文件加重命名落盘，目标文件要么保持旧内容要么是完整新状态；
// 已计算出的结果不会丢失。
func (w *BaseWorkflow) SaveState(path string) error {
	if path == "" {
		return xerrors.New(xerrors.CodePersistenceFailure, "状态文件路径不能为空")
	}

	tasks := w.pool.Tasks()
	state := workflowState{
		Tasks:    make([]taskState, 0, len(tasks)),
		MaxLoops: &w.maxLoops,
	}
	for _, task := range tasks {
		state.Tasks = append(state.Tasks, taskState{
			ID:          task.ID,
			Description: task.Description,
			Args:        cloneArgs(task.Args),
			Kwargs:      cloneKwargs(task.Kwargs),
			Result:      task.Result,
			History:     cloneHistory(task.History),
		})
	}

	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "序列化工作流状态失败")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "创建状态目录失败")
	}
	tmp, err := os.CreateTemp(dir, ".weave-state-*")
	if err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "创建临时状态文件失败")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "写入状态文件失败")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "关闭状态文件失败")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "替换状态文件失败")
	}

	w.logger.Info("工作流状态已保存",
		slog.String("workflow_id", w.id),
		slog.String("path", path),
		slog.Int("tasks", len(state.Tasks)),
	)
	return nil
}

// LoadState 从状态文件恢复任务池与循环配置。
// 任何解析或校验失败都会让内存中的池保持原样；成功时整体替换。
// 恢复出的任务不携带智能体绑定，运行前必须通过 BindAgent 重新绑定。
func (w *BaseWorkflow) LoadState(path string) error {
	if path == "" {
		return xerrors.New(xerrors.CodePersistenceFailure, "状态文件路径不能为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "读取状态文件失败")
	}

	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	var state workflowState
	if err := decoder.Decode(&state); err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "解析状态文件失败")
	}
	if state.MaxLoops == nil {
		return xerrors.New(xerrors.CodePersistenceFailure, "状态文件缺少 max_loops 字段")
	}
	if *state.MaxLoops < 1 {
		return xerrors.New(xerrors.CodePersistenceFailure, "max_loops 必须大于等于 1")
	}
	if state.Tasks == nil {
		return xerrors.New(xerrors.CodePersistenceFailure, "状态文件缺少 tasks 字段")
	}

	restored := make([]*Task, 0, len(state.Tasks))
	seen := make(map[string]struct{}, len(state.Tasks))
	for _, ts := range state.Tasks {
		if ts.Description == "" {
			return xerrors.New(xerrors.CodePersistenceFailure, "状态文件包含描述为空的任务")
		}
		id := ts.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return xerrors.New(xerrors.CodePersistenceFailure, "状态文件包含重复的任务标识: "+id)
		}
		seen[id] = struct{}{}
		task := &Task{
			ID:          id,
			Description: ts.Description,
			Args:        ts.Args,
			Kwargs:      ts.Kwargs,
			Result:      ts.Result,
			History:     ts.History,
		}
		if task.Args == nil {
			task.Args = []any{}
		}
		if task.Kwargs == nil {
			task.Kwargs = map[string]any{}
		}
		restored = append(restored, task)
	}

	w.pool.replace(restored)
	w.maxLoops = *state.MaxLoops
	w.setStatus(StatusIdle)

	w.logger.Info("工作流状态已恢复",
		slog.String("workflow_id", w.id),
		slog.String("path", path),
		slog.Int("tasks", len(restored)),
		slog.Int("max_loops", w.maxLoops),
	)
	return nil
}
