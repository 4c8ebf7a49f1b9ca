package log

import (
	"context"
	"sync"

	"github.com/pagegraph/pagegraph/internal/contexts"
)

// Hook derives additional fields from the context for every log record.
type Hook interface {
	Apply(ctx context.Context, msg string) []Field
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, msg string) []Field

func (f HookFunc) Apply(ctx context.Context, msg string) []Field {
	return f(ctx, msg)
}

var (
	hookMu     sync.RWMutex
	registered = []Hook{HookFunc(traceFields)}
)

// RegisterHook appends a hook applied to all subsequent log calls.
func RegisterHook(hook Hook) {
	hookMu.Lock()
	defer hookMu.Unlock()

	registered = append(registered, hook)
}

func hooks() []Hook {
	hookMu.RLock()
	defer hookMu.RUnlock()

	return registered
}

// traceFields attaches the trace id and operation name from the context.
func traceFields(ctx context.Context, _ string) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field

	if traceID, ok := contexts.GetTraceID(ctx); ok {
		fields = append(fields, String("trace_id", traceID))
	}

	if name, ok := contexts.GetOperationName(ctx); ok {
		fields = append(fields, String("operation_name", name))
	}

	return fields
}
