package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/stagecart/api/internal/platform/firestore"
	"github.com/stagecart/api/internal/repositories"
)

// Registry bundles the Firestore repository implementations behind the typed
// accessors services are wired against.
type Registry struct {
	provider *pfirestore.Provider

	orders  *OrderRepository
	changes *OrderChangeRepository
	scopes  *ChangeScopeRepository
}

// NewRegistry constructs every Firestore repository against a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	changes, err := NewOrderChangeRepository(provider)
	if err != nil {
		return nil, err
	}
	scopes, err := NewChangeScopeRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		changes:  changes,
		scopes:   scopes,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) OrderChanges() repositories.OrderChangeRepository { return r.changes }

func (r *Registry) ChangeScopes() repositories.ChangeScopeRepository { return r.scopes }

// RunInTx groups repository writes. Each Firestore repository write is
// individually transactional, and the multi-document invariants live at the
// repository level: creation locks via Create's compare-and-set, and the
// confirm commit via ConfirmCommit's single transaction. The registry
// boundary only sequences the callback.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction callback is required")
	}
	return fn(ctx)
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
