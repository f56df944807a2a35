package history

import (
	"context"
	"fmt"
	"testing"

	xerrors "AgentWeave/internal/errors"
)

func TestMemoryRepositoryNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := repo.Save(ctx, Record{
			TaskID:      fmt.Sprintf("t%d", i),
			Description: fmt.Sprintf("任务%d", i),
			Output:      fmt.Sprintf("结果%d", i),
		}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	records, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].TaskID != "t3" || records[1].TaskID != "t2" {
		t.Fatalf("expected newest first, got %s then %s", records[0].TaskID, records[1].TaskID)
	}
	if records[0].ID == 0 {
		t.Fatalf("save must assign record ids")
	}

	all, err := repo.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("non-positive limit must return everything, got %d", len(all))
	}
}

func TestMemoryRepositoryRejectsMissingTaskID(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Save(context.Background(), Record{Description: "缺少任务标识"})
	if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestMemoryRepositoryBoundsRetention(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < maxRetained+10; i++ {
		if err := repo.Save(ctx, Record{TaskID: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := repo.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != maxRetained {
		t.Fatalf("expected retention cap %d, got %d", maxRetained, len(all))
	}
	if all[0].TaskID != fmt.Sprintf("t%d", maxRetained+9) {
		t.Fatalf("cap must drop oldest records, newest is %s", all[0].TaskID)
	}
}

func TestEncodeOutput(t *testing.T) {
	if got := EncodeOutput(nil); got != "" {
		t.Fatalf("nil output must encode to empty string, got %q", got)
	}
	if got := EncodeOutput("plain"); got != "plain" {
		t.Fatalf("string output must pass through, got %q", got)
	}
	if got := EncodeOutput(map[string]any{"k": "v"}); got != `{"k":"v"}` {
		t.Fatalf("unexpected json encoding: %q", got)
	}
}
