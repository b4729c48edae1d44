package context

import "context"

type contextKey string

const (
	requestIDKey     contextKey = "observability_request_id"
	userAccountIDKey contextKey = "observability_user_account_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithUserAccountID(ctx context.Context, userAccountID string) context.Context {
	if ctx == nil || userAccountID == "" {
		return ctx
	}
	return context.WithValue(ctx, userAccountIDKey, userAccountID)
}

func UserAccountIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userAccountIDKey).(string)
	return value
}
