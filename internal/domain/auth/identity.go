// Package auth defines the caller identity model produced by the external
// identity service and consumed by the order domain for role-gated access.
package auth

import "context"

// Role enumerates the caller roles recognised by the order service.
type Role string

const (
	// RoleUser is a regular buyer. Users only see and cancel their own orders.
	RoleUser Role = "user"
	// RoleSeller owns a store and manages orders placed against it.
	RoleSeller Role = "seller"
	// RoleAdmin has unrestricted access to all orders.
	RoleAdmin Role = "admin"
)

// Identity is the verified caller extracted from a bearer token.
// StoreID is only populated for sellers.
type Identity struct {
	ID        string
	Role      Role
	StoreID   string
	FirstName string
	LastName  string
	Email     string
}

// DisplayName returns the buyer-facing name recorded on order snapshots.
func (i Identity) DisplayName() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	default:
		return i.FirstName + " " + i.LastName
	}
}

// TokenVerifier validates a bearer token and resolves the caller identity.
// Implementations call the external identity service or verify locally
// signed tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity stores the verified identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the verified identity from the context.
// It returns nil when the request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
