package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates a placed order that has not completed yet.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted indicates the order has been fulfilled and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusDraft indicates the order exists only as an unconfirmed draft.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusArchived indicates the order has been archived.
	OrderStatusArchived OrderStatus = "archived"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusRequiresAction indicates the order needs manual intervention.
	OrderStatusRequiresAction OrderStatus = "requires_action"
)

// Order is the immutable-until-changed root entity. Mutations flow exclusively
// through a confirmed OrderChange, which is the only path that bumps Version.
type Order struct {
	ID              string
	DisplayID       int64
	Version         int
	Status          OrderStatus
	CustomerID      string
	Email           string
	RegionID        string
	CurrencyCode    string
	AutomaticTaxes  bool
	PromotionCodes  []string
	Items           []OrderLineItem
	ShippingMethods []OrderShippingMethod
	CreditLines     []OrderCreditLine
	Transactions    []OrderTransaction
	ShippingAddress *Address
	BillingAddress  *Address
	Summary         OrderSummary
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CanceledAt      *time.Time
}

// OrderSummary holds rolled-up monetary fields in the smallest currency unit.
type OrderSummary struct {
	Subtotal             int64
	DiscountTotal        int64
	ShippingTotal        int64
	TaxTotal             int64
	CreditLineTotal      int64
	Total                int64
	PendingDifference    int64
	ReturnRequestedTotal int64
}

// OrderLineItem is a purchased line on the base order.
type OrderLineItem struct {
	ID                 string
	OrderID            string
	Title              string
	SKU                string
	VariantID          string
	Quantity           int
	FulfilledQuantity  int
	ShippedQuantity    int
	DeliveredQuantity  int
	ReturnRequestedQty int
	ReturnReceivedQty  int
	WrittenOffQty      int
	UnitPrice          int64
	CompareAtUnitPrice *int64
	Adjustments        []OrderAdjustment
	TaxLines           []OrderTaxLine
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderShippingMethod is a shipping method attached to the base order.
type OrderShippingMethod struct {
	ID               string
	OrderID          string
	Name             string
	ShippingOptionID string
	Amount           int64
	Adjustments      []OrderAdjustment
	TaxLines         []OrderTaxLine
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderAdjustment records a promotion-driven amount applied to an item or
// shipping method. Amounts are positive and subtracted from the line total.
type OrderAdjustment struct {
	ID          string
	Code        string
	PromotionID string
	Amount      int64
}

// OrderTaxLine records a computed tax amount for an item or shipping method.
type OrderTaxLine struct {
	ID     string
	Code   string
	Rate   float64
	Amount int64
}

// OrderCreditLine represents an amount credited or debited against the order's
// pending balance outside of regular payment capture.
type OrderCreditLine struct {
	ID          string
	OrderID     string
	Reference   string
	ReferenceID string
	Amount      int64
	CreatedAt   time.Time
}

// OrderTransaction captures a captured or refunded payment amount.
type OrderTransaction struct {
	ID           string
	OrderID      string
	Amount       int64
	CurrencyCode string
	Reference    string
	ReferenceID  string
	CreatedAt    time.Time
}

// ChangeType enumerates the sub-process an order change belongs to.
type ChangeType string

const (
	// ChangeTypeEdit is a plain staff-driven order edit.
	ChangeTypeEdit ChangeType = "edit"
	// ChangeTypeReturnRequest stages a customer return request.
	ChangeTypeReturnRequest ChangeType = "return_request"
	// ChangeTypeReturnReceive stages receival of previously returned items.
	ChangeTypeReturnReceive ChangeType = "return_receive"
	// ChangeTypeExchange stages an item exchange.
	ChangeTypeExchange ChangeType = "exchange"
	// ChangeTypeClaim stages a claim for damaged or missing items.
	ChangeTypeClaim ChangeType = "claim"
	// ChangeTypeCreditLine stages credit line additions.
	ChangeTypeCreditLine ChangeType = "credit_line"
)

// ChangeStatus enumerates lifecycle states for an order change.
type ChangeStatus string

const (
	// ChangeStatusPending is the initial state of a freshly created change.
	ChangeStatusPending ChangeStatus = "pending"
	// ChangeStatusRequested indicates a customer-facing request step occurred.
	ChangeStatusRequested ChangeStatus = "requested"
	// ChangeStatusConfirmed is terminal; the change has been applied to the order.
	ChangeStatusConfirmed ChangeStatus = "confirmed"
	// ChangeStatusDeclined is terminal; staged work was rejected and compensated.
	ChangeStatusDeclined ChangeStatus = "declined"
	// ChangeStatusCanceled is terminal; staged work was abandoned and compensated.
	ChangeStatusCanceled ChangeStatus = "canceled"
)

// IsActive reports whether the change still accepts staged actions.
func (s ChangeStatus) IsActive() bool {
	return s == ChangeStatusPending || s == ChangeStatusRequested
}

// IsTerminal reports whether the change reached a final state.
func (s ChangeStatus) IsTerminal() bool {
	return s == ChangeStatusConfirmed || s == ChangeStatusDeclined || s == ChangeStatusCanceled
}

// OrderChange represents one in-flight modification scope for an order. At
// most one change with an active status may exist per (order, scope) pair.
type OrderChange struct {
	ID             string
	OrderID        string
	ReturnID       *string
	ClaimID        *string
	ExchangeID     *string
	ChangeType     ChangeType
	Status         ChangeStatus
	Version        int
	Description    string
	InternalNote   string
	RequestedBy    string
	RequestedAt    *time.Time
	ConfirmedBy    string
	ConfirmedAt    *time.Time
	DeclinedBy     string
	DeclinedAt     *time.Time
	DeclinedReason string
	CanceledBy     string
	CanceledAt     *time.Time
	Actions        []OrderChangeAction
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Scope identifies the mutual-exclusion scope the change occupies on its
// order. Changes of different scopes may coexist; changes of the same scope
// may not while one is still active.
func (c OrderChange) Scope() ChangeScope {
	switch {
	case c.ReturnID != nil:
		return ChangeScope{Kind: ScopeReturn, ReferenceID: *c.ReturnID}
	case c.ClaimID != nil:
		return ChangeScope{Kind: ScopeClaim, ReferenceID: *c.ClaimID}
	case c.ExchangeID != nil:
		return ChangeScope{Kind: ScopeExchange, ReferenceID: *c.ExchangeID}
	default:
		return ChangeScope{Kind: ScopeEdit}
	}
}

// ScopeKind names the family of sub-process a change scope belongs to.
type ScopeKind string

const (
	// ScopeEdit covers plain edits and credit line changes.
	ScopeEdit ScopeKind = "edit"
	// ScopeReturn covers return request/receive changes.
	ScopeReturn ScopeKind = "return"
	// ScopeExchange covers exchange changes.
	ScopeExchange ScopeKind = "exchange"
	// ScopeClaim covers claim changes.
	ScopeClaim ScopeKind = "claim"
)

// ChangeScope pairs a scope kind with the owning sub-process record, if any.
type ChangeScope struct {
	Kind        ScopeKind
	ReferenceID string
}

// OrderChangeAction is one atomic, typed proposed mutation staged inside a
// change. Actions are append-only while the owning change is active and are
// never mutated after the change reaches a terminal state.
type OrderChangeAction struct {
	ID            string
	OrderChangeID string
	OrderID       string
	Version       int
	Action        ActionKind
	Reference     string
	ReferenceID   string
	Details       ActionDetails
	Amount        *int64
	InternalNote  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Return is the sub-process record owning return-scoped changes.
type Return struct {
	ID         string
	OrderID    string
	Status     string
	CreatedAt  time.Time
	CanceledAt *time.Time
}

// Exchange is the sub-process record owning exchange-scoped changes.
type Exchange struct {
	ID         string
	OrderID    string
	ReturnID   *string
	CreatedAt  time.Time
	CanceledAt *time.Time
}

// Claim is the sub-process record owning claim-scoped changes.
type Claim struct {
	ID         string
	OrderID    string
	ReturnID   *string
	Type       string
	CreatedAt  time.Time
	CanceledAt *time.Time
}

// PreviewItem is a base line item annotated with the staged actions that
// reference it. Base quantities and amounts are never altered by the preview.
type PreviewItem struct {
	OrderLineItem
	Actions []OrderChangeAction
}

// PreviewShippingMethod is a shipping method annotated with staged actions.
type PreviewShippingMethod struct {
	OrderShippingMethod
	Actions []OrderChangeAction
}

// OrderPreview is a derived, non-persisted projection of "order as it would
// look if the active change were confirmed". It is recomputed on every read.
type OrderPreview struct {
	Order
	PreviewItems           []PreviewItem
	PreviewShippingMethods []PreviewShippingMethod
	OrderChange            *OrderChange
	ReturnRequestedTotal   int64
}

// ShippingOption describes a resolvable shipping option from the shipping
// collaborator service.
type ShippingOption struct {
	ID     string
	Name   string
	Amount int64
}

// Address represents postal address structures shared by order layers.
type Address struct {
	Recipient   string
	Line1       string
	Line2       *string
	City        string
	State       *string
	PostalCode  string
	CountryCode string
	Phone       *string
}
