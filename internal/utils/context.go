package utils

import (
	"context"
)

type contextKey string

const ContextBearerTokenKey contextKey = "bearerToken"

func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextBearerTokenKey, token)
}

func GetBearerTokenFromContext(ctx context.Context) (string, bool) {
	token := ctx.Value(ContextBearerTokenKey)
	tokenStr, ok := token.(string)
	return tokenStr, ok && tokenStr != ""
}
