package auth

import "context"

// Caller is the authenticated identity behind a request
type Caller struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

type callerKey struct{}

// WithCaller returns a context carrying caller
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored in ctx, if any
func CallerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}

// SubjectFrom returns the caller subject or "anonymous"
func SubjectFrom(ctx context.Context) string {
	if caller, ok := CallerFrom(ctx); ok && caller.Subject != "" {
		return caller.Subject
	}
	return "anonymous"
}
