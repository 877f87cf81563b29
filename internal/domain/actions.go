package domain

// ActionKind enumerates the closed set of change-action kinds.
type ActionKind string

const (
	ActionItemAdd                ActionKind = "ITEM_ADD"
	ActionItemUpdate             ActionKind = "ITEM_UPDATE"
	ActionItemRemove             ActionKind = "ITEM_REMOVE"
	ActionShippingAdd            ActionKind = "SHIPPING_ADD"
	ActionShippingUpdate         ActionKind = "SHIPPING_UPDATE"
	ActionShippingRemove         ActionKind = "SHIPPING_REMOVE"
	ActionReturnItem             ActionKind = "RETURN_ITEM"
	ActionReceiveReturnItem      ActionKind = "RECEIVE_RETURN_ITEM"
	ActionReceiveDamagedItem     ActionKind = "RECEIVE_DAMAGED_RETURN_ITEM"
	ActionCancelReturnItem       ActionKind = "CANCEL_RETURN_ITEM"
	ActionFulfillItem            ActionKind = "FULFILL_ITEM"
	ActionShipItem               ActionKind = "SHIP_ITEM"
	ActionDeliverItem            ActionKind = "DELIVER_ITEM"
	ActionCancelItemFulfillment  ActionKind = "CANCEL_ITEM_FULFILLMENT"
	ActionWriteOffItem           ActionKind = "WRITE_OFF_ITEM"
	ActionReinstateItem          ActionKind = "REINSTATE_ITEM"
	ActionPromotionAdd           ActionKind = "PROMOTION_ADD"
	ActionPromotionRemove        ActionKind = "PROMOTION_REMOVE"
	ActionCreditLineAdd          ActionKind = "CREDIT_LINE_ADD"
	ActionTransferCustomer       ActionKind = "TRANSFER_CUSTOMER"
	ActionUpdateOrderProperties  ActionKind = "UPDATE_ORDER_PROPERTIES"
	ActionItemAdjustmentsReplace ActionKind = "ITEM_ADJUSTMENTS_REPLACE"
)

// KnownActionKinds lists every supported action kind in a stable order.
var KnownActionKinds = []ActionKind{
	ActionItemAdd, ActionItemUpdate, ActionItemRemove,
	ActionShippingAdd, ActionShippingUpdate, ActionShippingRemove,
	ActionReturnItem, ActionReceiveReturnItem, ActionReceiveDamagedItem, ActionCancelReturnItem,
	ActionFulfillItem, ActionShipItem, ActionDeliverItem, ActionCancelItemFulfillment,
	ActionWriteOffItem, ActionReinstateItem,
	ActionPromotionAdd, ActionPromotionRemove,
	ActionCreditLineAdd, ActionTransferCustomer, ActionUpdateOrderProperties,
	ActionItemAdjustmentsReplace,
}

// IsKnown reports whether the kind is part of the supported taxonomy.
func (k ActionKind) IsKnown() bool {
	for _, known := range KnownActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ActionDetails is the variant payload of an OrderChangeAction, keyed by the
// action kind. Each kind has exactly one statically known details struct so
// payload fields are exhaustively matchable rather than duck-typed maps.
type ActionDetails interface {
	Kind() ActionKind
}

// ItemAddDetails introduces a line item that does not exist on the base order.
type ItemAddDetails struct {
	VariantID          string
	Title              string
	Quantity           int
	UnitPrice          int64
	CompareAtUnitPrice *int64
	Metadata           map[string]any
}

func (ItemAddDetails) Kind() ActionKind { return ActionItemAdd }

// ItemUpdateDetails stages a quantity/price change for a base line item.
// QuantityDiff is always computed against the base order item quantity, not
// against any earlier staged action, so repeated updates stay idempotent
// relative to the order's true baseline.
type ItemUpdateDetails struct {
	ItemID       string
	Quantity     int
	QuantityDiff int
	UnitPrice    *int64
}

func (ItemUpdateDetails) Kind() ActionKind { return ActionItemUpdate }

// ItemRemoveDetails stages removal of a base line item.
type ItemRemoveDetails struct {
	ItemID   string
	Quantity int
}

func (ItemRemoveDetails) Kind() ActionKind { return ActionItemRemove }

// ShippingAddDetails records a shipping method created speculatively for the
// change. The method exists in storage before confirmation and is deleted by
// compensation on decline/cancel.
type ShippingAddDetails struct {
	ShippingMethodID string
	ShippingOptionID string
	Amount           int64
}

func (ShippingAddDetails) Kind() ActionKind { return ActionShippingAdd }

// ShippingUpdateDetails stages a shipping method swap. Old values are retained
// so compensation can restore the prior option and amount.
type ShippingUpdateDetails struct {
	ShippingMethodID    string
	OldShippingOptionID string
	NewShippingOptionID string
	OldAmount           int64
	NewAmount           int64
}

func (ShippingUpdateDetails) Kind() ActionKind { return ActionShippingUpdate }

// ShippingRemoveDetails stages removal of a base shipping method.
type ShippingRemoveDetails struct {
	ShippingMethodID string
}

func (ShippingRemoveDetails) Kind() ActionKind { return ActionShippingRemove }

// ReturnItemDetails stages a return request for a quantity of a base item.
type ReturnItemDetails struct {
	ItemID           string
	Quantity         int
	ReceivedQuantity int
	ReasonID         string
	Note             string
}

func (ReturnItemDetails) Kind() ActionKind { return ActionReturnItem }

// ReceiveReturnItemDetails records receival of previously returned units.
type ReceiveReturnItemDetails struct {
	ItemID   string
	Quantity int
}

func (ReceiveReturnItemDetails) Kind() ActionKind { return ActionReceiveReturnItem }

// ReceiveDamagedItemDetails records receival of damaged returned units that
// will not restock.
type ReceiveDamagedItemDetails struct {
	ItemID   string
	Quantity int
}

func (ReceiveDamagedItemDetails) Kind() ActionKind { return ActionReceiveDamagedItem }

// CancelReturnItemDetails cancels a previously staged return request line.
type CancelReturnItemDetails struct {
	ItemID   string
	Quantity int
}

func (CancelReturnItemDetails) Kind() ActionKind { return ActionCancelReturnItem }

// FulfillItemDetails marks a quantity of an item as fulfilled.
type FulfillItemDetails struct {
	ItemID   string
	Quantity int
}

func (FulfillItemDetails) Kind() ActionKind { return ActionFulfillItem }

// ShipItemDetails marks a quantity of an item as shipped.
type ShipItemDetails struct {
	ItemID   string
	Quantity int
}

func (ShipItemDetails) Kind() ActionKind { return ActionShipItem }

// DeliverItemDetails marks a quantity of an item as delivered.
type DeliverItemDetails struct {
	ItemID   string
	Quantity int
}

func (DeliverItemDetails) Kind() ActionKind { return ActionDeliverItem }

// CancelItemFulfillmentDetails reverses a fulfilled quantity.
type CancelItemFulfillmentDetails struct {
	ItemID   string
	Quantity int
}

func (CancelItemFulfillmentDetails) Kind() ActionKind { return ActionCancelItemFulfillment }

// WriteOffItemDetails removes a quantity from accounting without a return.
type WriteOffItemDetails struct {
	ItemID   string
	Quantity int
}

func (WriteOffItemDetails) Kind() ActionKind { return ActionWriteOffItem }

// ReinstateItemDetails restores previously written-off quantity.
type ReinstateItemDetails struct {
	ItemID   string
	Quantity int
}

func (ReinstateItemDetails) Kind() ActionKind { return ActionReinstateItem }

// PromotionAddDetails stages application of a promotion code.
type PromotionAddDetails struct {
	Code string
}

func (PromotionAddDetails) Kind() ActionKind { return ActionPromotionAdd }

// PromotionRemoveDetails stages removal of an applied promotion code.
type PromotionRemoveDetails struct {
	Code string
}

func (PromotionRemoveDetails) Kind() ActionKind { return ActionPromotionRemove }

// CreditLineAddDetails stages a credit line against the order balance.
type CreditLineAddDetails struct {
	Reference   string
	ReferenceID string
	Amount      int64
}

func (CreditLineAddDetails) Kind() ActionKind { return ActionCreditLineAdd }

// TransferCustomerDetails stages moving the order to another customer.
type TransferCustomerDetails struct {
	OriginalCustomerID string
	NewCustomerID      string
	OriginalEmail      string
	NewEmail           string
}

func (TransferCustomerDetails) Kind() ActionKind { return ActionTransferCustomer }

// UpdateOrderPropertiesDetails stages header-level order edits.
type UpdateOrderPropertiesDetails struct {
	Email           *string
	ShippingAddress *Address
	BillingAddress  *Address
	Metadata        map[string]any
}

func (UpdateOrderPropertiesDetails) Kind() ActionKind { return ActionUpdateOrderProperties }

// ItemAdjustmentsReplaceDetails replaces the adjustment set of an item. When
// SourceActionID is set the adjustments belong to an item introduced by a
// staged ITEM_ADD and must be removed together with it.
type ItemAdjustmentsReplaceDetails struct {
	ItemID         string
	SourceActionID string
	Adjustments    []OrderAdjustment
}

func (ItemAdjustmentsReplaceDetails) Kind() ActionKind { return ActionItemAdjustmentsReplace }
