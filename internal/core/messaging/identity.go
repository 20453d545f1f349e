package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrIdentityNotFound is returned when no identity exists for a name.
var ErrIdentityNotFound = errors.New("identity not found")

// DefaultIdentity is the identity name used when none is given.
const DefaultIdentity = "default"

// Identity binds a human friendly name to a stable client ID. Delivery is
// exactly-once per client ID, so reusing an identity across invocations
// keeps a subscriber from seeing the same message twice.
type Identity struct {
	Name       string    `json:"name"`
	ClientID   string    `json:"client_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// IdentityStore defines persistence operations for identities.
type IdentityStore interface {
	Get(ctx context.Context, name string) (Identity, error)
	Save(ctx context.Context, identity Identity) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Identity, error)
}

// IdentityResolver finds or creates the client ID for an identity name.
type IdentityResolver struct {
	store IdentityStore
	now   func() time.Time
}

// NewIdentityResolver creates a new resolver backed by store.
func NewIdentityResolver(store IdentityStore) *IdentityResolver {
	return &IdentityResolver{store: store, now: time.Now}
}

// Resolve returns the identity registered under name, creating one with a
// fresh client ID when it does not exist. An empty name resolves the
// default identity.
func (r *IdentityResolver) Resolve(ctx context.Context, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultIdentity
	}

	now := r.now()

	ident, err := r.store.Get(ctx, name)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		ident = Identity{
			Name:      name,
			ClientID:  uuid.NewString(),
			CreatedAt: now,
		}
	case err != nil:
		return Identity{}, fmt.Errorf("load identity %q: %w", name, err)
	}

	ident.LastUsedAt = now
	if err := r.store.Save(ctx, ident); err != nil {
		return Identity{}, fmt.Errorf("save identity %q: %w", name, err)
	}

	return ident, nil
}
