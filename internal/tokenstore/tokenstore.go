// Package tokenstore persists the credential pair and the cached user record
// of a portal session. Stores never report "not found": absent values come
// back as "" or nil with a nil error, and errors are reserved for storage I/O.
package tokenstore

import (
	"context"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
)

// Store holds the three independent entries of one portal session.
type Store interface {
	Access(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, access, refresh string) error
	// SwapTokens stores the pair only while the stored refresh token is
	// still prev, and reports whether it did. A refresh that completes after
	// a logout must not bring the session back.
	SwapTokens(ctx context.Context, prev, access, refresh string) (bool, error)
	Clear(ctx context.Context) error

	CachedUser(ctx context.Context) (*domain.User, error)
	SetCachedUser(ctx context.Context, u domain.User) error
	ClearCachedUser(ctx context.Context) error
}

// Provider hands out the store namespace of a portal session.
type Provider interface {
	ForSession(sid string) Store
}

// Releaser is implemented by providers that hold per-session state in
// process memory and can drop it once a session is gone.
type Releaser interface {
	Release(sid string)
}
