package auth

import (
	"context"
	"strings"

	"github.com/corvusruntime/mcprt/protocol"
)

// methodsExemptFromAuth are allowed through before a principal is
// established, since a peer has no token to present until the handshake
// itself has told it how to authenticate.
var methodsExemptFromAuth = map[string]struct{}{
	protocol.MethodInitialize:  {},
	protocol.MethodInitialized: {},
	protocol.MethodPing:        {},
}

// Authenticate validates a bearer token against validator and, on success,
// returns ctx with the resulting Principal embedded. method lets initialize,
// the initialized notification and ping through when authorizationHeader is
// empty; every other method requires a valid token. A nil validator fails
// every request that carries a token.
//
// Callers are transports, not the dispatcher: a Streamable HTTP transport
// calls this against the incoming Authorization header before an envelope is
// ever queued, returning its own 401 on error without touching the session
// store or the registry.
func Authenticate(ctx context.Context, validator TokenValidator, method, authorizationHeader string) (context.Context, error) {
	token := strings.TrimSpace(authorizationHeader)
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")

	if token == "" {
		if _, exempt := methodsExemptFromAuth[method]; exempt {
			return ctx, nil
		}
		return ctx, protocol.NewAuthenticationFailedError("missing authentication token")
	}

	if validator == nil {
		return ctx, protocol.NewAuthenticationFailedError("no token validator configured")
	}
	principal, err := validator.ValidateToken(ctx, token)
	if err != nil {
		return ctx, protocol.AsMCPError(err)
	}
	return ContextWithPrincipal(ctx, principal), nil
}

type tokenKeyType struct{}

var tokenKey = tokenKeyType{}

// ContextWithToken embeds a raw bearer token string in ctx, for transports
// that need to thread it separately from the Authorization header value.
func ContextWithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimPrefix(token, "Bearer ")
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extracts a token embedded by ContextWithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}
