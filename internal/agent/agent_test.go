package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	xerrors "AgentWeave/internal/errors"
	"AgentWeave/internal/history"
	"AgentWeave/internal/llm"
	"AgentWeave/internal/tool"
)

type stubLLM struct {
	resp    *llm.Response
	err     error
	wait    time.Duration
	lastReq llm.Request
}

func (s *stubLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.lastReq = req
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestAgentRunSuccess(t *testing.T) {
	client := &stubLLM{resp: &llm.Response{Thought: "分析目标", Reply: "最终回答"}}
	ag := New(client)

	result, err := ag.Run(context.Background(), "整理会议纪要", []any{"doc-1"}, map[string]any{"tone": "formal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "最终回答" {
		t.Fatalf("unexpected result: %v", result)
	}
	if client.lastReq.Goal != "整理会议纪要" {
		t.Fatalf("unexpected goal: %s", client.lastReq.Goal)
	}
	if len(client.lastReq.Args) != 1 || client.lastReq.Args[0] != "doc-1" {
		t.Fatalf("args must reach the llm request, got %+v", client.lastReq.Args)
	}
	if client.lastReq.Kwargs["tone"] != "formal" {
		t.Fatalf("kwargs must reach the llm request, got %+v", client.lastReq.Kwargs)
	}
}

func TestAgentRunRejectsEmptyInput(t *testing.T) {
	ag := New(&stubLLM{resp: &llm.Response{Reply: "x"}})
	if _, err := ag.Run(context.Background(), "   ", nil, nil); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestAgentRunRequiresClient(t *testing.T) {
	ag := New(nil)
	if _, err := ag.Run(context.Background(), "任务", nil, nil); !xerrors.IsCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected INITIALIZATION_FAILURE, got %v", err)
	}
}

func TestAgentRunTimeout(t *testing.T) {
	client := &stubLLM{wait: 100 * time.Millisecond, resp: &llm.Response{Reply: "late"}}
	ag := New(client, WithCallTimeout(10*time.Millisecond))

	_, err := ag.Run(context.Background(), "耗时任务", nil, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !xerrors.IsCode(err, xerrors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestAgentRunExecutesToolCommands(t *testing.T) {
	reply := "需要查询。\n```json\n{\"tool\": \"weather\", \"params\": {\"city\": \"Shanghai\"}}\n```"
	client := &stubLLM{resp: &llm.Response{Reply: reply}}

	weather := &tool.Func{
		ToolName: "weather",
		Fn: func(_ context.Context, params map[string]any) (any, error) {
			return "多云", nil
		},
	}
	ag := New(client, WithTools(weather))

	result, err := ag.Run(context.Background(), "查询上海天气", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, ok := result.(string)
	if !ok {
		t.Fatalf("expected string result, got %T", result)
	}
	if !strings.Contains(text, "多云") {
		t.Fatalf("tool output must be appended to reply, got %s", text)
	}
}

func TestAgentRunLoadsMemory(t *testing.T) {
	repo := history.NewMemoryRepository()
	for i := 0; i < 3; i++ {
		if err := repo.Save(context.Background(), history.Record{
			TaskID:      "t1",
			Description: "历史目标",
			Output:      "历史回复",
			CreatedAt:   time.Now().Unix(),
		}); err != nil {
			t.Fatalf("save record: %v", err)
		}
	}

	client := &stubLLM{resp: &llm.Response{Reply: "ok"}}
	ag := New(client, WithMemory(repo), WithMemoryDepth(2))

	if _, err := ag.Run(context.Background(), "新任务", nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(client.lastReq.History) != 2 {
		t.Fatalf("expected 2 history exchanges, got %d", len(client.lastReq.History))
	}
	if client.lastReq.History[0].Goal != "历史目标" || client.lastReq.History[0].Reply != "历史回复" {
		t.Fatalf("unexpected exchange: %+v", client.lastReq.History[0])
	}
}
