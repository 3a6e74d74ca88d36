package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

func blockingClient() llm.LLMClient {
	return llm.WrapClient(
		func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			<-ctx.Done()
			return llm.CompletionResponse{}, ctx.Err()
		},
		func() string { return "slow-model" },
	)
}

func TestTimeoutExpires(t *testing.T) {
	client := Middleware(20 * time.Millisecond)(blockingClient())

	start := time.Now()
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected error to wrap DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not fire promptly")
	}
}

func TestParentCancelPassesThrough(t *testing.T) {
	client := Middleware(time.Minute)(blockingClient())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, llm.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if llmerrors.Is(err, llmerrors.ErrorTypeTransient) {
		t.Error("caller cancellation must not be reported as a timeout")
	}
}

func TestFastCallSucceeds(t *testing.T) {
	base := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func() string { return "fast-model" },
	)
	client := Middleware(time.Second)(base)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("unexpected result %+v, %v", resp, err)
	}
	if client.GetModelName() != "fast-model" {
		t.Errorf("model name not delegated")
	}
}
