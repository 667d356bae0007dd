package httpx

import (
	"context"

	"github.com/aussiebroadwan/bkpk/pkg/jwtx"
)

type ctxKey int

// Request context keys set by BearerAuth.
const (
	CtxKeyUserID ctxKey = iota
	CtxKeyClaims
)

func contextWithAuth(ctx context.Context, c *jwtx.Claims) context.Context {
	return context.WithValue(context.WithValue(ctx, CtxKeyUserID, c.Subject), CtxKeyClaims, c)
}

// ClaimsFromContext returns the claims stored by BearerAuth.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(*jwtx.Claims)
	return c, ok
}
