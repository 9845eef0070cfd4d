package clog

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID attaches a request id to ctx for log call sites that opt
// into reading it. A request-context carrier is never required by core
// logic, only by logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id attached by WithRequestID,
// if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// FromContext returns l annotated with ctx's request id, or l unchanged if
// none was attached.
func FromContext(ctx context.Context, l Logger) Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return l.New("request_id", id)
	}
	return l
}
