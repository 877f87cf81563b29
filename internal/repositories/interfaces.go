package repositories

import (
	"context"

	domain "github.com/stagecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderChanges() OrderChangeRepository
	ChangeScopes() ChangeScopeRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates. The change subsystem reads orders
// freely but writes them only from the confirmation engine or compensation.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)

	// Shipping methods are materialized independently of the order document so
	// staged SHIPPING_ADD actions can create them speculatively and
	// compensation can delete or restore them without touching the order.
	InsertShippingMethod(ctx context.Context, method domain.OrderShippingMethod) error
	UpdateShippingMethod(ctx context.Context, method domain.OrderShippingMethod) error
	DeleteShippingMethod(ctx context.Context, orderID string, shippingMethodID string) error

	InsertCreditLine(ctx context.Context, line domain.OrderCreditLine) error
}

// ConfirmCommit carries every write a confirmed change produces: the order at
// its next version, removed shipping method rows, new credit lines, and the
// confirmed change itself. Implementations apply the whole commit atomically
// and must re-check the stored order version against ExpectedVersion inside
// the same boundary, surfacing a mismatch as a conflict RepositoryError.
type ConfirmCommit struct {
	Order                    domain.Order
	ExpectedVersion          int
	RemovedShippingMethodIDs []string
	NewCreditLines           []domain.OrderCreditLine
	Change                   domain.OrderChange
}

// OrderChangeRepository persists order changes and their staged actions.
//
// Create must enforce the serialization invariant: at most one change with an
// active status may exist per (order, scope). Implementations back this with a
// uniqueness constraint or compare-and-set that is safe under concurrent
// creation attempts, and surface violations as a conflict RepositoryError.
type OrderChangeRepository interface {
	Create(ctx context.Context, change domain.OrderChange) (domain.OrderChange, error)
	Update(ctx context.Context, change domain.OrderChange) error
	Delete(ctx context.Context, changeID string) error
	ConfirmCommit(ctx context.Context, commit ConfirmCommit) error
	FindByID(ctx context.Context, changeID string) (domain.OrderChange, error)
	FindActiveByOrder(ctx context.Context, orderID string) (domain.OrderChange, error)
	ListByOrder(ctx context.Context, orderID string, filter OrderChangeListFilter) (domain.CursorPage[domain.OrderChange], error)

	InsertActions(ctx context.Context, actions []domain.OrderChangeAction) ([]domain.OrderChangeAction, error)
	UpdateAction(ctx context.Context, action domain.OrderChangeAction) error
	DeleteActions(ctx context.Context, changeID string, actionIDs []string) error
	FindActionByID(ctx context.Context, actionID string) (domain.OrderChangeAction, error)
}

// ChangeScopeRepository stores the sub-process records (returns, exchanges,
// claims) that scoped changes are bound to. Compensation deletes these records
// when a scoped change is declined or canceled.
type ChangeScopeRepository interface {
	InsertReturn(ctx context.Context, ret domain.Return) error
	GetReturn(ctx context.Context, returnID string) (domain.Return, error)
	DeleteReturn(ctx context.Context, returnID string) error

	InsertExchange(ctx context.Context, exchange domain.Exchange) error
	GetExchange(ctx context.Context, exchangeID string) (domain.Exchange, error)
	DeleteExchange(ctx context.Context, exchangeID string) error

	InsertClaim(ctx context.Context, claim domain.Claim) error
	GetClaim(ctx context.Context, claimID string) (domain.Claim, error)
	DeleteClaim(ctx context.Context, claimID string) error
}

// OrderChangeListFilter narrows change listings per order.
type OrderChangeListFilter struct {
	Status     []domain.ChangeStatus
	ChangeType []domain.ChangeType
	Pagination domain.Pagination
}
