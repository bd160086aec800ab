package services

import "context"

type ctxKey int

const (
	clientIPKey ctxKey = iota
	actorKey
)

// WithClientIP tags ctx with the caller's address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFrom(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// WithActor tags ctx with the authenticated username performing the request.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey, username)
}

func ActorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}
