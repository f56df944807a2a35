package workflow

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	xerrors "AgentWeave/internal/errors"
)

// TaskDefinition 是工作流定义文件中的单个任务条目。
type TaskDefinition struct {
	Description string         `yaml:"description"`
	Args        []any          `yaml:"args"`
	Kwargs      map[string]any `yaml:"kwargs"`
}

// Definition 描述了一份声明式的工作流定义。
// 定义只包含任务与循环配置，智能体绑定始终由调用方在运行前完成。
type Definition struct {
	Name     string           `yaml:"name"`
	MaxLoops int              `yaml:"max_loops"`
	Tasks    []TaskDefinition `yaml:"tasks"`
}

// LoadDefinition 解析 YAML 工作流定义。未知字段与缺失任务视为非法定义。
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "定义文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePersistenceFailure, err, "读取工作流定义失败")
	}
	return ParseDefinition(content)
}

// ParseDefinition 从字节内容解析工作流定义。
func ParseDefinition(content []byte) (*Definition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	var def Definition
	if err := decoder.Decode(&def); err != nil {
		return nil, xerrors.Wrap(xerrors.CodePersistenceFailure, err, "解析工作流定义失败")
	}
	if len(def.Tasks) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工作流定义不包含任何任务")
	}
	for _, task := range def.Tasks {
		if task.Description == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "工作流定义包含描述为空的任务")
		}
	}
	if def.MaxLoops < 1 {
		def.MaxLoops = 1
	}
	return &def, nil
}

// Materialize 根据定义构造任务列表，智能体绑定留空。
func (d *Definition) Materialize() []*Task {
	tasks := make([]*Task, 0, len(d.Tasks))
	for _, td := range d.Tasks {
		tasks = append(tasks, NewTask(td.Description, nil,
			WithArgs(td.Args...),
			WithKwargs(td.Kwargs),
		))
	}
	return tasks
}
