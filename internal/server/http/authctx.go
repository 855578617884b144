package httpserver

import (
	"context"

	"github.com/and161185/zknotes/internal/token"
)

type ctxKey string

const identityKey ctxKey = "zkn.identity"

// WithIdentity stores the authenticated caller in context.
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the authenticated caller from context.
func IdentityFromCtx(ctx context.Context) (token.Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return token.Identity{}, false
	}
	id, ok := v.(token.Identity)
	return id, ok
}
