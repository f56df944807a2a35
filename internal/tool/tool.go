package tool

import "context"

// Tool 定义了智能体可调用的具名外部能力。
type Tool interface {
	// Name 返回工具的唯一名称，命令按名称精确匹配。
	Name() string
	// Run 以命名参数执行工具。
	Run(ctx context.Context, params map[string]any) (any, error)
}

// FindByName 在工具列表中按名称精确查找，未命中返回 nil。
func FindByName(name string, tools []Tool) Tool {
	for _, t := range tools {
		if t != nil && t.Name() == name {
			return t
		}
	}
	return nil
}

// Func 将普通函数适配为 Tool。
type Func struct {
	ToolName string
	Fn       func(ctx context.Context, params map[string]any) (any, error)
}

// Name 实现 Tool 接口。
func (f *Func) Name() string { return f.ToolName }

// Run 实现 Tool 接口。
func (f *Func) Run(ctx context.Context, params map[string]any) (any, error) {
	return f.Fn(ctx, params)
}
