package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/stagecart/api/internal/domain"
)

// ensureOrderNotCanceled rejects staging work against a canceled order.
func ensureOrderNotCanceled(order Order) error {
	if order.CanceledAt != nil || order.Status == domain.OrderStatusCanceled {
		return fmt.Errorf("%w: order %s is canceled", ErrOrderChangeNotAllowed, order.ID)
	}
	return nil
}

// ensureChangeActive rejects staged mutations once a change reached a terminal
// state. Terminal changes and their actions are immutable history.
func ensureChangeActive(change OrderChange) error {
	if !change.Status.IsActive() {
		return fmt.Errorf("%w: change %s is %s", ErrOrderChangeNotAllowed, change.ID, change.Status)
	}
	return nil
}

func ensureNotCanceled(kind, id string, canceledAt *time.Time) error {
	if canceledAt != nil {
		return fmt.Errorf("%w: %s %s is canceled", ErrOrderChangeNotAllowed, kind, id)
	}
	return nil
}

// normalizeStagedAction validates one proposed action against the base order
// and fills in derived fields such as quantity diffs and reference ids. It
// never touches storage; eager side effects happen afterwards in the service.
func normalizeStagedAction(order Order, change OrderChange, input StageActionInput) (StageActionInput, error) {
	if input.Details == nil {
		return StageActionInput{}, fmt.Errorf("%w: action details are required", ErrOrderChangeInvalidInput)
	}
	if input.Action == "" {
		input.Action = input.Details.Kind()
	}
	if !input.Action.IsKnown() {
		return StageActionInput{}, fmt.Errorf("%w: unknown action kind %q", ErrOrderChangeInvalidInput, input.Action)
	}
	if input.Action != input.Details.Kind() {
		return StageActionInput{}, fmt.Errorf("%w: action kind %s does not match details kind %s",
			ErrOrderChangeInvalidInput, input.Action, input.Details.Kind())
	}

	switch details := input.Details.(type) {
	case domain.ItemAddDetails:
		if strings.TrimSpace(details.VariantID) == "" {
			return StageActionInput{}, fmt.Errorf("%w: variant id is required for %s", ErrOrderChangeInvalidInput, input.Action)
		}
		if details.Quantity < 1 {
			return StageActionInput{}, fmt.Errorf("%w: quantity must be at least 1", ErrOrderChangeInvalidInput)
		}
		if details.UnitPrice < 0 {
			return StageActionInput{}, fmt.Errorf("%w: unit price cannot be negative", ErrOrderChangeInvalidInput)
		}

	case domain.ItemUpdateDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity < 0 {
			return StageActionInput{}, fmt.Errorf("%w: quantity cannot be negative", ErrOrderChangeInvalidInput)
		}
		if details.Quantity < item.FulfilledQuantity {
			return StageActionInput{}, fmt.Errorf("%w: quantity %d is below fulfilled quantity %d for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.FulfilledQuantity, item.ID)
		}
		details.QuantityDiff = details.Quantity - item.Quantity
		input.Details = details
		input.ReferenceID = item.ID

	case domain.ItemRemoveDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if item.FulfilledQuantity > 0 {
			return StageActionInput{}, fmt.Errorf("%w: item %s has fulfilled units and cannot be removed",
				ErrOrderChangeInvalidInput, item.ID)
		}
		details.Quantity = item.Quantity
		input.Details = details
		input.ReferenceID = item.ID

	case domain.ShippingAddDetails:
		if strings.TrimSpace(details.ShippingOptionID) == "" {
			return StageActionInput{}, fmt.Errorf("%w: shipping option id is required", ErrOrderChangeInvalidInput)
		}
		if details.Amount < 0 {
			return StageActionInput{}, fmt.Errorf("%w: shipping amount cannot be negative", ErrOrderChangeInvalidInput)
		}

	case domain.ShippingUpdateDetails:
		if strings.TrimSpace(details.ShippingMethodID) == "" {
			return StageActionInput{}, fmt.Errorf("%w: shipping method id is required", ErrOrderChangeInvalidInput)
		}
		if strings.TrimSpace(details.NewShippingOptionID) == "" {
			return StageActionInput{}, fmt.Errorf("%w: new shipping option id is required", ErrOrderChangeInvalidInput)
		}
		if details.NewAmount < 0 {
			return StageActionInput{}, fmt.Errorf("%w: shipping amount cannot be negative", ErrOrderChangeInvalidInput)
		}
		input.ReferenceID = details.ShippingMethodID

	case domain.ShippingRemoveDetails:
		if _, found := findShippingMethod(order, details.ShippingMethodID); !found {
			return StageActionInput{}, fmt.Errorf("%w: shipping method %s not on order %s",
				ErrOrderChangeInvalidInput, details.ShippingMethodID, order.ID)
		}
		input.ReferenceID = details.ShippingMethodID

	case domain.ReturnItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity < 1 {
			return StageActionInput{}, fmt.Errorf("%w: return quantity must be at least 1", ErrOrderChangeInvalidInput)
		}
		if details.Quantity > item.Quantity-item.ReturnRequestedQty {
			return StageActionInput{}, fmt.Errorf("%w: return quantity %d exceeds returnable quantity for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.ReceiveReturnItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity > item.ReturnRequestedQty {
			return StageActionInput{}, fmt.Errorf("%w: receive quantity %d exceeds requested quantity %d for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.ReturnRequestedQty, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.ReceiveDamagedItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		input.ReferenceID = item.ID

	case domain.CancelReturnItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		input.ReferenceID = item.ID

	case domain.FulfillItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity > item.Quantity-item.FulfilledQuantity {
			return StageActionInput{}, fmt.Errorf("%w: fulfill quantity %d exceeds unfulfilled quantity for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.ShipItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity > item.FulfilledQuantity-item.ShippedQuantity {
			return StageActionInput{}, fmt.Errorf("%w: ship quantity %d exceeds fulfilled unshipped quantity for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.DeliverItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		input.ReferenceID = item.ID

	case domain.CancelItemFulfillmentDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity > item.FulfilledQuantity {
			return StageActionInput{}, fmt.Errorf("%w: cancel quantity %d exceeds fulfilled quantity %d for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.FulfilledQuantity, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.WriteOffItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		input.ReferenceID = item.ID

	case domain.ReinstateItemDetails:
		item, err := requireOrderItem(order, details.ItemID)
		if err != nil {
			return StageActionInput{}, err
		}
		if err := requirePositiveQuantity(details.Quantity); err != nil {
			return StageActionInput{}, err
		}
		if details.Quantity > item.WrittenOffQty {
			return StageActionInput{}, fmt.Errorf("%w: reinstate quantity %d exceeds written-off quantity %d for item %s",
				ErrOrderChangeInvalidInput, details.Quantity, item.WrittenOffQty, item.ID)
		}
		input.ReferenceID = item.ID

	case domain.PromotionAddDetails:
		code := strings.TrimSpace(details.Code)
		if code == "" {
			return StageActionInput{}, fmt.Errorf("%w: promotion code is required", ErrOrderChangeInvalidInput)
		}
		if slices.Contains(workingPromotionCodes(order, change), code) {
			return StageActionInput{}, fmt.Errorf("%w: promotion %s is already applied", ErrOrderChangeInvalidInput, code)
		}
		details.Code = code
		input.Details = details
		input.Reference = "promotion"
		input.ReferenceID = code

	case domain.PromotionRemoveDetails:
		code := strings.TrimSpace(details.Code)
		if code == "" {
			return StageActionInput{}, fmt.Errorf("%w: promotion code is required", ErrOrderChangeInvalidInput)
		}
		if !slices.Contains(workingPromotionCodes(order, change), code) {
			return StageActionInput{}, fmt.Errorf("%w: promotion %s is not applied to order %s", ErrOrderChangeInvalidInput, code, order.ID)
		}
		details.Code = code
		input.Details = details
		input.Reference = "promotion"
		input.ReferenceID = code

	case domain.CreditLineAddDetails:
		if err := validateCreditLineAmount(order, details.Amount); err != nil {
			return StageActionInput{}, err
		}

	case domain.TransferCustomerDetails:
		if strings.TrimSpace(details.NewCustomerID) == "" {
			return StageActionInput{}, fmt.Errorf("%w: new customer id is required", ErrOrderChangeInvalidInput)
		}
		details.OriginalCustomerID = order.CustomerID
		details.OriginalEmail = order.Email
		input.Details = details

	case domain.UpdateOrderPropertiesDetails:
		if details.Email == nil && details.ShippingAddress == nil && details.BillingAddress == nil && details.Metadata == nil {
			return StageActionInput{}, fmt.Errorf("%w: at least one order property must be set", ErrOrderChangeInvalidInput)
		}

	case domain.ItemAdjustmentsReplaceDetails:
		if details.SourceActionID != "" {
			if !changeHasItemAddAction(change, details.SourceActionID) {
				return StageActionInput{}, fmt.Errorf("%w: source action %s is not a staged ITEM_ADD on change %s",
					ErrOrderChangeInvalidInput, details.SourceActionID, change.ID)
			}
		} else if _, err := requireOrderItem(order, details.ItemID); err != nil {
			return StageActionInput{}, err
		}
		for _, adj := range details.Adjustments {
			if adj.Amount < 0 {
				return StageActionInput{}, fmt.Errorf("%w: adjustment amounts cannot be negative", ErrOrderChangeInvalidInput)
			}
		}
		input.ReferenceID = details.ItemID
	}

	return input, nil
}

func requireOrderItem(order Order, itemID string) (OrderLineItem, error) {
	item, found := findOrderItem(order, itemID)
	if !found {
		return OrderLineItem{}, fmt.Errorf("%w: item %s not on order %s", ErrOrderChangeInvalidInput, itemID, order.ID)
	}
	return item, nil
}

func requirePositiveQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrOrderChangeInvalidInput)
	}
	return nil
}

// workingPromotionCodes returns the order's promotion codes with earlier staged
// promotion actions on the same change already folded in.
func workingPromotionCodes(order Order, change OrderChange) []string {
	codes := slices.Clone(order.PromotionCodes)
	for _, action := range change.Actions {
		switch details := action.Details.(type) {
		case domain.PromotionAddDetails:
			if !slices.Contains(codes, details.Code) {
				codes = append(codes, details.Code)
			}
		case domain.PromotionRemoveDetails:
			codes = slices.DeleteFunc(codes, func(code string) bool { return code == details.Code })
		}
	}
	return codes
}

// validateCreditLineAmount requires the credit to pull the pending difference
// toward zero without overshooting it.
func validateCreditLineAmount(order Order, amount int64) error {
	if amount == 0 {
		return fmt.Errorf("%w: credit line amount cannot be zero", ErrOrderChangeInvalidInput)
	}
	pending := order.Summary.PendingDifference
	if pending == 0 {
		return fmt.Errorf("%w: order %s has no pending difference to credit", ErrOrderChangeInvalidInput, order.ID)
	}
	// Pending difference is total minus captured payments minus credit lines,
	// so a credit with the same sign pulls the balance toward zero.
	if (pending > 0) != (amount > 0) {
		return fmt.Errorf("%w: credit line amount %d must match the sign of pending difference %d", ErrOrderChangeInvalidInput, amount, pending)
	}
	if abs64(amount) > abs64(pending) {
		return fmt.Errorf("%w: credit line amount %d exceeds pending difference %d", ErrOrderChangeInvalidInput, amount, pending)
	}
	return nil
}

func changeHasItemAddAction(change OrderChange, actionID string) bool {
	for _, action := range change.Actions {
		if action.ID == actionID && action.Action == domain.ActionItemAdd {
			return true
		}
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
