package services

import (
	"context"
	"time"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/repositories"
)

// Aliases keep service signatures terse while domain remains the canonical home.
type (
	Pagination            = domain.Pagination
	Order                 = domain.Order
	OrderSummary          = domain.OrderSummary
	OrderLineItem         = domain.OrderLineItem
	OrderShippingMethod   = domain.OrderShippingMethod
	OrderAdjustment       = domain.OrderAdjustment
	OrderTaxLine          = domain.OrderTaxLine
	OrderCreditLine       = domain.OrderCreditLine
	OrderChange           = domain.OrderChange
	OrderChangeAction     = domain.OrderChangeAction
	OrderPreview          = domain.OrderPreview
	PreviewItem           = domain.PreviewItem
	PreviewShippingMethod = domain.PreviewShippingMethod
	ActionKind            = domain.ActionKind
	ActionDetails         = domain.ActionDetails
	ChangeType            = domain.ChangeType
	ChangeStatus          = domain.ChangeStatus
	ChangeScope           = domain.ChangeScope
	ShippingOption        = domain.ShippingOption
	Address               = domain.Address
)

// OrderChangeService manages the lifecycle of staged order changes: creation,
// action staging, request/confirm/decline/cancel transitions, and deletion of
// abandoned edit sessions.
type OrderChangeService interface {
	CreateChange(ctx context.Context, cmd CreateChangeCommand) (OrderChange, error)
	GetChange(ctx context.Context, changeID string) (OrderChange, error)
	ListChanges(ctx context.Context, orderID string, filter repositories.OrderChangeListFilter) (domain.CursorPage[OrderChange], error)

	AppendActions(ctx context.Context, cmd AppendActionsCommand) ([]OrderChangeAction, error)
	UpdateAction(ctx context.Context, cmd UpdateActionCommand) (OrderChangeAction, error)
	RemoveAction(ctx context.Context, cmd RemoveActionCommand) error

	RequestChange(ctx context.Context, cmd RequestChangeCommand) (OrderChange, error)
	ConfirmChange(ctx context.Context, cmd ConfirmChangeCommand) (Order, error)
	DeclineChange(ctx context.Context, cmd DeclineChangeCommand) (OrderChange, error)
	CancelChange(ctx context.Context, cmd CancelChangeCommand) (OrderChange, error)
	DeleteChanges(ctx context.Context, changeIDs []string) error
}

// PreviewService computes read-only order previews with pending actions
// overlaid. Computation is pure: it never writes to storage.
type PreviewService interface {
	ComputePreview(ctx context.Context, orderID string) (OrderPreview, error)
}

// TaxLineService resolves tax lines for items and shipping methods. Invoked
// only when the order has automatic taxes enabled or recalculation is forced;
// a forced recalculation without a shipping-address country yields empty sets.
type TaxLineService interface {
	GetTaxLines(ctx context.Context, order Order, items []OrderLineItem, methods []OrderShippingMethod) (TaxLineSets, error)
}

// PromotionAdjustmentService computes item and shipping adjustments for a set
// of applied promotion codes against a pricing context.
type PromotionAdjustmentService interface {
	ComputeAdjustments(ctx context.Context, order Order, codes []string) (AdjustmentSets, error)
}

// ShippingOptionService resolves shipping options referenced by staged
// shipping actions.
type ShippingOptionService interface {
	GetOption(ctx context.Context, shippingOptionID string) (ShippingOption, error)
}

// ChangeEventPublisher publishes order-change lifecycle events for downstream
// consumers. Publishing is fire-and-forget; failures never roll back a change.
type ChangeEventPublisher interface {
	PublishChangeEvent(ctx context.Context, event ChangeEvent) error
}

// ChangeEvent captures metadata for emitted order-change events.
type ChangeEvent struct {
	Type          string
	OrderID       string
	OrderChangeID string
	ChangeType    ChangeType
	ActorID       string
	OrderVersion  int
	OccurredAt    time.Time
	Metadata      map[string]any
}

// TaxLineSets maps entity ids to their recomputed tax lines.
type TaxLineSets struct {
	ItemTaxLines     map[string][]OrderTaxLine
	ShippingTaxLines map[string][]OrderTaxLine
}

// AdjustmentSets maps entity ids to their recomputed adjustments.
type AdjustmentSets struct {
	ItemAdjustments     map[string][]OrderAdjustment
	ShippingAdjustments map[string][]OrderAdjustment
}

// CreateChangeCommand opens a new change against an order.
type CreateChangeCommand struct {
	OrderID      string
	ChangeType   ChangeType
	ReturnID     *string
	ClaimID      *string
	ExchangeID   *string
	Description  string
	InternalNote string
	RequestedBy  string
	Actions      []StageActionInput
}

// StageActionInput is one proposed action to stage on a change.
type StageActionInput struct {
	Action       ActionKind
	Reference    string
	ReferenceID  string
	Details      ActionDetails
	Amount       *int64
	InternalNote string
}

// AppendActionsCommand stages additional actions on an active change.
type AppendActionsCommand struct {
	OrderChangeID string
	Actions       []StageActionInput
}

// UpdateActionCommand patches a staged action while the change is active.
type UpdateActionCommand struct {
	ActionID     string
	Details      ActionDetails
	Amount       *int64
	InternalNote *string
}

// RemoveActionCommand removes a staged action, cascading to dependent
// adjustment-replace actions that reference it.
type RemoveActionCommand struct {
	ActionID string
}

// RequestChangeCommand transitions a pending change to requested.
type RequestChangeCommand struct {
	OrderChangeID string
	RequestedBy   string
}

// ConfirmChangeCommand applies every staged action and bumps the order version.
type ConfirmChangeCommand struct {
	OrderChangeID string
	ConfirmedBy   string
	ForceTaxCalc  bool
}

// DeclineChangeCommand rejects a change and compensates materialized effects.
type DeclineChangeCommand struct {
	OrderChangeID  string
	DeclinedBy     string
	DeclinedReason string
}

// CancelChangeCommand abandons a change and compensates materialized effects.
type CancelChangeCommand struct {
	OrderChangeID string
	CanceledBy    string
}
