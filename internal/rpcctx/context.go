package rpcctx

import "context"

type contextKey struct {
	Name string
}

func (k *contextKey) String() string {
	return k.Name
}

var ctxServerVersion = &contextKey{"server version"}

func missingContextErr(ctxKey *contextKey) *MissingContextErr {
	return &MissingContextErr{ctxKey}
}

// WithServerVersion attaches the running server's version string, surfaced
// in startup log lines.
func WithServerVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxServerVersion, version)
}

// ServerVersion recovers the value set by WithServerVersion.
func ServerVersion(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxServerVersion).(string)
	if !ok {
		return "", missingContextErr(ctxServerVersion)
	}
	return v, nil
}
