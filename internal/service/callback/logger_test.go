package callback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
)

// ========== truncate 测试 ==========

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", maxLogValueLen+10)

	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{name: "nil", in: nil, want: nil},
		{name: "short string", in: "hello", want: "hello"},
		{name: "long string", in: long, want: long[:maxLogValueLen] + "..."},
		{name: "non string", in: 42, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in); got != tt.want {
				t.Errorf("truncate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ========== Logger 测试 ==========

type ctxKey struct{}

func TestLogger_ReturnsSameContext(t *testing.T) {
	l := NewLogger(nil, true)
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	info := &callbacks.RunInfo{Name: "answer", Type: "OpenAI", Component: components.ComponentOfChatModel}

	if got := l.OnStart(ctx, info, "input"); got != ctx {
		t.Error("OnStart() should return the given context")
	}
	if got := l.OnEnd(ctx, info, "output"); got != ctx {
		t.Error("OnEnd() should return the given context")
	}
	if got := l.OnError(ctx, nil, errors.New("boom")); got != ctx {
		t.Error("OnError() should return the given context")
	}
}

func TestRunInfoFields(t *testing.T) {
	info := &callbacks.RunInfo{Name: "n", Type: "t", Component: components.ComponentOfEmbedding}
	fields := runInfoFields(info, "error", "x")
	if len(fields) != 8 {
		t.Fatalf("len(fields) = %d, want 8", len(fields))
	}
	if fields[0] != "name" || fields[1] != "n" || fields[6] != "error" {
		t.Errorf("fields = %v", fields)
	}
	if got := runInfoFields(nil); len(got) != 0 {
		t.Errorf("runInfoFields(nil) = %v, want empty", got)
	}
}
