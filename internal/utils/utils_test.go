package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		limit  int
		expect string
	}{
		{input: "prompt body", limit: 0, expect: ""},
		{input: "short", limit: 10, expect: "short"},
		{input: "{\"results\": []}", limit: 4, expect: "{\"re..."},
		{input: "  padded  ", limit: 6, expect: "padded"},
		{input: "Bengaluru, भारत", limit: 12, expect: "Bengaluru, भ..."},
	}

	for _, tt := range tests {
		if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
			t.Fatalf("TruncateForLog(%q, %d) = %q, expected %q", tt.input, tt.limit, got, tt.expect)
		}
	}
}

func TestWaitFor(t *testing.T) {
	if err := WaitFor(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WaitFor(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for zero delay, got %v", err)
	}
}
