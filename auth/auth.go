// Package auth defines interfaces and structures for handling authentication
// and authorization within the MCP server, focusing initially on OAuth 2.1 JWTs.
package auth

import (
	"context"

	"github.com/corvusruntime/mcprt/protocol"
)

// Principal represents the authenticated entity (e.g., user, client application)
// after successful token validation. It can carry claims from the token.
type Principal interface {
	// GetClaims returns the claims associated with the principal.
	// The specific type of claims depends on the token format (e.g., map[string]interface{} for JWT).
	GetClaims() interface{}
	// GetSubject returns a unique identifier for the principal (e.g., 'sub' claim from JWT).
	GetSubject() string
}

// TokenValidator defines the interface for validating access tokens.
// Implementations will handle specific token types (e.g., JWT) and validation methods (e.g., JWKS).
type TokenValidator interface {
	// ValidateToken attempts to validate the given token string.
	ValidateToken(ctx context.Context, tokenString string) (Principal, error)
}

// PermissionChecker defines the interface for checking if a principal
// is authorized to perform a specific MCP action.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, principal Principal, method string, params interface{}) error
}

type principalKeyType struct{}

var principalKey = principalKeyType{}

// ContextWithPrincipal returns a new context with the given Principal embedded.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the Principal from the context, if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// AllowAllPermissionChecker grants any method to any authenticated
// principal. Useful for servers that rely on token validation alone.
type AllowAllPermissionChecker struct{}

func (c *AllowAllPermissionChecker) CheckPermission(ctx context.Context, principal Principal, method string, params interface{}) error {
	if principal == nil {
		return protocol.NewAuthenticationFailedError("no authenticated principal found in context")
	}
	return nil
}

var _ PermissionChecker = (*AllowAllPermissionChecker)(nil)
