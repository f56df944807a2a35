package workflow

import (
	"testing"

	xerrors "AgentWeave/internal/errors"
)

const sampleDefinition = `
name: market-research
max_loops: 2
tasks:
  - description: 收集行业新闻
    args:
      - finance
    kwargs:
      limit: 10
  - description: 输出调研摘要
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "market-research" {
		t.Fatalf("unexpected name: %s", def.Name)
	}
	if def.MaxLoops != 2 {
		t.Fatalf("unexpected max loops: %d", def.MaxLoops)
	}
	if len(def.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(def.Tasks))
	}
	if def.Tasks[0].Kwargs["limit"] != 10 {
		t.Fatalf("unexpected kwargs: %+v", def.Tasks[0].Kwargs)
	}

	tasks := def.Materialize()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 materialized tasks, got %d", len(tasks))
	}
	if tasks[0].ID == "" || tasks[1].ID == "" {
		t.Fatalf("materialized tasks must carry ids")
	}
	if tasks[0].ID == tasks[1].ID {
		t.Fatalf("task ids must be unique")
	}
	if tasks[0].Agent() != nil {
		t.Fatalf("materialized tasks must not carry agent bindings")
	}
	if len(tasks[0].Args) != 1 || tasks[0].Args[0] != "finance" {
		t.Fatalf("unexpected args: %+v", tasks[0].Args)
	}
}

func TestParseDefinitionDefaultsMaxLoops(t *testing.T) {
	def, err := ParseDefinition([]byte("tasks:\n  - description: 单任务\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.MaxLoops != 1 {
		t.Fatalf("missing max_loops must default to 1, got %d", def.MaxLoops)
	}
}

func TestParseDefinitionRejectsInvalidContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		code    xerrors.Code
	}{
		{"no tasks", "name: empty\n", xerrors.CodeInvalidArgument},
		{"empty description", "tasks:\n  - description: \"\"\n", xerrors.CodeInvalidArgument},
		{"unknown field", "tasks:\n  - description: a\n    agent: builtin\n", xerrors.CodePersistenceFailure},
		{"not yaml", "{{{{", xerrors.CodePersistenceFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tc.content))
			if err == nil {
				t.Fatalf("expected parse failure")
			}
			if !xerrors.IsCode(err, tc.code) {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}
