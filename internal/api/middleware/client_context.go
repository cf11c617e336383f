package middleware

import (
	"context"
	"slices"
	"time"
)

// clientContextKey is the context key for the authenticated client.
type clientContextKey struct{}

// ClientContext describes the data engine client behind an authenticated request.
// It is added to the request context by the authentication middleware.
type ClientContext struct {
	// ClientID identifies the client, e.g. "airflow-prod". Handlers use it as the
	// user ID of the writes the request makes.
	ClientID string

	// Name is the human-readable client name.
	Name string

	// Permissions are the scopes granted to the API key.
	Permissions []string

	// KeyID is the ID of the API key used, for audit logging.
	KeyID string

	// AuthTime is when authentication succeeded.
	AuthTime time.Time
}

// HasPermission reports whether the client was granted permission.
func (c ClientContext) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// GetClientContext returns the authenticated client of ctx.
// Returns (context, true) if authenticated, (empty, false) otherwise.
//
//	clientCtx, authenticated := middleware.GetClientContext(r.Context())
//	if authenticated {
//	    userID = clientCtx.ClientID
//	}
func GetClientContext(ctx context.Context) (ClientContext, bool) {
	clientCtx, ok := ctx.Value(clientContextKey{}).(ClientContext)

	return clientCtx, ok
}

// SetClientContext returns a copy of ctx carrying clientCtx.
func SetClientContext(ctx context.Context, clientCtx ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, clientCtx)
}
