package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"AgentWeave/pkg/logger"
)

// Command 是从自由文本中提取出的一次工具调用指令。
type Command struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Execution 记录一条命令的执行结果。
type Execution struct {
	Tool   string
	Output any
	Err    error
}

// fencedJSON 匹配 ```json 围栏代码块。
var fencedJSON = regexp.MustCompile("(?s)```json(.+?)```")

// ExtractCommands 扫描文本中的全部 ```json 围栏块并逐个解析为工具命令。
// 解析失败的块只记录日志并丢弃，不会中断提取。
func ExtractCommands(text string) []Command {
	matches := fencedJSON.FindAllStringSubmatch(text, -1)
	commands := make([]Command, 0, len(matches))
	for _, match := range matches {
		raw := strings.TrimSpace(match[1])
		var cmd Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			logger.L().Warn("解析工具命令失败，已跳过",
				slog.String("block", truncate(raw, 128)),
				slog.Any("error", err),
			)
			continue
		}
		commands = append(commands, cmd)
	}
	return commands
}

// ParseAndExecute 提取文本中的工具命令并逐条执行。
// 命令的工具名未匹配到任何注册工具时该条命令为空操作；
// 工具运行失败记录在对应的 Execution 中，不影响后续命令。
func ParseAndExecute(ctx context.Context, text string, tools []Tool) []Execution {
	commands := ExtractCommands(text)
	executions := make([]Execution, 0, len(commands))
	for _, cmd := range commands {
		target := FindByName(cmd.Tool, tools)
		if target == nil {
			logger.L().Debug("未找到匹配的工具，跳过命令", slog.String("tool", cmd.Tool))
			continue
		}
		output, err := target.Run(ctx, cmd.Params)
		if err != nil {
			logger.L().Warn("工具执行失败",
				slog.String("tool", cmd.Tool),
				slog.Any("error", err),
			)
		}
		executions = append(executions, Execution{Tool: cmd.Tool, Output: output, Err: err})
	}
	return executions
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
