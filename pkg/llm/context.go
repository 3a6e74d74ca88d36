package llm

import "context"

type operationKey struct{}

// WithOperation tags ctx with the name of the pipeline step issuing the call.
// Middleware uses it for metric labels and log lines.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// OperationFromContext returns the operation set by WithOperation, or "unknown".
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
