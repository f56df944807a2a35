package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueuePublishCloseRace(t *testing.T) {
	queue := NewMemoryQueue(4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := queue.Publish(context.Background(), "payload"); err != nil {
					if !errors.Is(err, ErrQueueClosed) {
						t.Errorf("unexpected publish error: %v", err)
					}
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if err := queue.Publish(context.Background(), "late"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after close, got %v", err)
	}
}

func TestMemoryQueueCloseIsIdempotent(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemoryQueueConsumeStopsOnClose(t *testing.T) {
	queue := NewMemoryQueue(4)

	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(context.Background(), 2, func(context.Context, string) error {
			return nil
		})
	}()

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume after close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("consume did not stop after close")
	}
}
