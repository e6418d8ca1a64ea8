package domain

import "context"

type callerKey struct{}

// Caller is the identity resolved by the outer surface before a request reaches the core.
type Caller struct {
	ID         string
	Privileged bool
}

// SystemCaller is used by maintenance commands run by an operator.
var SystemCaller = Caller{ID: "system", Privileged: true}

// WithCaller returns a context carrying the caller.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored in ctx, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Authorize fails unless the caller may mutate the catalogue.
func (c Caller) Authorize(operation string) error {
	if c.ID == "" {
		return NewForbiddenError(operation, "anonymous caller")
	}

	if !c.Privileged {
		return NewForbiddenError(operation, "privileged caller required")
	}

	return nil
}
