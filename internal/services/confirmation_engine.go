package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/repositories"
)

const (
	lineItemIDPrefix   = "ordli_"
	creditLineIDPrefix = "ocl_"
)

// ChangeEngineDeps bundles collaborators for the confirmation engine.
type ChangeEngineDeps struct {
	Orders      repositories.OrderRepository
	Changes     repositories.OrderChangeRepository
	Scopes      repositories.ChangeScopeRepository
	UnitOfWork  repositories.UnitOfWork
	Taxes       TaxLineService
	Promotions  PromotionAdjustmentService
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// ChangeEngine applies confirmed changes to orders and compensates declined or
// canceled ones. Confirmation computes the full post-change order in memory
// first; storage is only touched once every action has been applied cleanly.
type ChangeEngine struct {
	orders     repositories.OrderRepository
	changes    repositories.OrderChangeRepository
	scopes     repositories.ChangeScopeRepository
	unitOfWork repositories.UnitOfWork
	taxes      TaxLineService
	promotions PromotionAdjustmentService
	newID      func() string
	logger     func(context.Context, string, map[string]any)
	tracer     trace.Tracer
}

// ConfirmContext carries per-confirmation inputs from the service layer.
type ConfirmContext struct {
	ConfirmedBy  string
	ForceTaxCalc bool
	Now          time.Time
}

// CompensateContext carries per-compensation inputs from the service layer.
type CompensateContext struct {
	Status  domain.ChangeStatus
	ActorID string
	Reason  string
	Now     time.Time
}

// NewChangeEngine wires dependencies into a ChangeEngine.
func NewChangeEngine(deps ChangeEngineDeps) (*ChangeEngine, error) {
	if deps.Orders == nil {
		return nil, errors.New("change engine: order repository is required")
	}
	if deps.Changes == nil {
		return nil, errors.New("change engine: change repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ChangeEngine{
		orders:     deps.Orders,
		changes:    deps.Changes,
		scopes:     deps.Scopes,
		unitOfWork: unit,
		taxes:      deps.Taxes,
		promotions: deps.Promotions,
		newID:      idGen,
		logger:     logger,
		tracer:     otel.Tracer("services/order_change"),
	}, nil
}

// applyState accumulates the in-memory effects of staged actions before any
// write happens.
type applyState struct {
	order          Order
	newCreditLines []OrderCreditLine
	// addedItemIDs maps staged ITEM_ADD action ids to the ids of the line
	// items they produced, so adjustment-replace actions can find them.
	addedItemIDs     map[string]string
	promotionsDirty  bool
	removedMethodIDs []string
}

// Confirm applies every staged action to a copy of the order, recomputes
// adjustments, taxes and summary, then persists the new order version and the
// confirmed change in a single transactional boundary.
func (e *ChangeEngine) Confirm(ctx context.Context, order Order, change OrderChange, confirm ConfirmContext) (Order, error) {
	ctx, span := e.tracer.Start(ctx, "order_change.confirm", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order_change.id", change.ID),
		attribute.Int("order_change.actions", len(change.Actions)),
	))
	defer span.End()

	state := applyState{
		order:        cloneOrder(order),
		addedItemIDs: map[string]string{},
	}
	for _, action := range change.Actions {
		if err := e.applyAction(&state, action, confirm.Now); err != nil {
			return Order{}, err
		}
	}

	if state.promotionsDirty {
		if err := e.recomputeAdjustments(ctx, &state.order); err != nil {
			return Order{}, err
		}
	}
	if err := e.recomputeTaxes(ctx, &state.order, confirm.ForceTaxCalc); err != nil {
		return Order{}, err
	}
	recalculateSummary(&state.order)

	state.order.Version = order.Version + 1
	state.order.UpdatedAt = confirm.Now

	change.Status = domain.ChangeStatusConfirmed
	change.ConfirmedBy = confirm.ConfirmedBy
	confirmedAt := confirm.Now
	change.ConfirmedAt = &confirmedAt
	change.UpdatedAt = confirm.Now

	// Every write rides one commit so a failure anywhere leaves the stored
	// order, its rows, and the change exactly as they were. The repository
	// re-checks the stored version inside the same boundary; losing that race
	// surfaces as a conflict here.
	err := e.changes.ConfirmCommit(ctx, repositories.ConfirmCommit{
		Order:                    state.order,
		ExpectedVersion:          order.Version,
		RemovedShippingMethodIDs: state.removedMethodIDs,
		NewCreditLines:           state.newCreditLines,
		Change:                   change,
	})
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: order %s advanced past version %d during confirmation",
				ErrOrderChangeStaleVersion, order.ID, order.Version)
		}
		return Order{}, err
	}

	e.logger(ctx, "order_change.confirmed", map[string]any{
		"order":   state.order.ID,
		"change":  change.ID,
		"version": state.order.Version,
	})

	return state.order, nil
}

func (e *ChangeEngine) applyAction(state *applyState, action OrderChangeAction, now time.Time) error {
	order := &state.order

	switch details := action.Details.(type) {
	case domain.ItemAddDetails:
		item := OrderLineItem{
			ID:                 lineItemIDPrefix + e.newID(),
			OrderID:            order.ID,
			Title:              details.Title,
			VariantID:          details.VariantID,
			Quantity:           details.Quantity,
			UnitPrice:          details.UnitPrice,
			CompareAtUnitPrice: cloneInt64Ptr(details.CompareAtUnitPrice),
			Metadata:           maps.Clone(details.Metadata),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		order.Items = append(order.Items, item)
		state.addedItemIDs[action.ID] = item.ID

	case domain.ItemUpdateDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.Quantity = details.Quantity
		if details.UnitPrice != nil {
			item.UnitPrice = *details.UnitPrice
		}
		item.UpdatedAt = now

	case domain.ItemRemoveDetails:
		idx := slices.IndexFunc(order.Items, func(i OrderLineItem) bool { return i.ID == details.ItemID })
		if idx < 0 {
			return applyFailure(action, "item %s not on order", details.ItemID)
		}
		order.Items = slices.Delete(order.Items, idx, idx+1)

	case domain.ShippingAddDetails:
		// The method row already exists from staging; make sure the order
		// aggregate carries it too.
		if _, found := findShippingMethod(*order, details.ShippingMethodID); !found {
			order.ShippingMethods = append(order.ShippingMethods, OrderShippingMethod{
				ID:               details.ShippingMethodID,
				OrderID:          order.ID,
				ShippingOptionID: details.ShippingOptionID,
				Amount:           details.Amount,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
		}

	case domain.ShippingUpdateDetails:
		for i := range order.ShippingMethods {
			if order.ShippingMethods[i].ID == details.ShippingMethodID {
				order.ShippingMethods[i].ShippingOptionID = details.NewShippingOptionID
				order.ShippingMethods[i].Amount = details.NewAmount
				order.ShippingMethods[i].UpdatedAt = now
			}
		}

	case domain.ShippingRemoveDetails:
		idx := slices.IndexFunc(order.ShippingMethods, func(m OrderShippingMethod) bool { return m.ID == details.ShippingMethodID })
		if idx < 0 {
			return applyFailure(action, "shipping method %s not on order", details.ShippingMethodID)
		}
		order.ShippingMethods = slices.Delete(order.ShippingMethods, idx, idx+1)
		state.removedMethodIDs = append(state.removedMethodIDs, details.ShippingMethodID)

	case domain.ReturnItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.ReturnRequestedQty += details.Quantity
		item.UpdatedAt = now

	case domain.ReceiveReturnItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.ReturnReceivedQty += details.Quantity
		item.ReturnRequestedQty = max(0, item.ReturnRequestedQty-details.Quantity)
		item.UpdatedAt = now

	case domain.ReceiveDamagedItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.ReturnReceivedQty += details.Quantity
		item.ReturnRequestedQty = max(0, item.ReturnRequestedQty-details.Quantity)
		item.WrittenOffQty += details.Quantity
		item.UpdatedAt = now

	case domain.CancelReturnItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.ReturnRequestedQty = max(0, item.ReturnRequestedQty-details.Quantity)
		item.UpdatedAt = now

	case domain.FulfillItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.FulfilledQuantity += details.Quantity
		item.UpdatedAt = now

	case domain.ShipItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.ShippedQuantity += details.Quantity
		item.UpdatedAt = now

	case domain.DeliverItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.DeliveredQuantity += details.Quantity
		item.UpdatedAt = now

	case domain.CancelItemFulfillmentDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.FulfilledQuantity = max(0, item.FulfilledQuantity-details.Quantity)
		item.UpdatedAt = now

	case domain.WriteOffItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.WrittenOffQty += details.Quantity
		item.UpdatedAt = now

	case domain.ReinstateItemDetails:
		item, err := e.resolveItem(order, details.ItemID, action)
		if err != nil {
			return err
		}
		item.WrittenOffQty = max(0, item.WrittenOffQty-details.Quantity)
		item.UpdatedAt = now

	case domain.PromotionAddDetails:
		if !slices.Contains(order.PromotionCodes, details.Code) {
			order.PromotionCodes = append(order.PromotionCodes, details.Code)
		}
		state.promotionsDirty = true

	case domain.PromotionRemoveDetails:
		order.PromotionCodes = slices.DeleteFunc(order.PromotionCodes, func(code string) bool { return code == details.Code })
		state.promotionsDirty = true

	case domain.CreditLineAddDetails:
		line := OrderCreditLine{
			ID:          creditLineIDPrefix + e.newID(),
			OrderID:     order.ID,
			Reference:   details.Reference,
			ReferenceID: details.ReferenceID,
			Amount:      details.Amount,
			CreatedAt:   now,
		}
		order.CreditLines = append(order.CreditLines, line)
		state.newCreditLines = append(state.newCreditLines, line)

	case domain.TransferCustomerDetails:
		order.CustomerID = details.NewCustomerID
		if details.NewEmail != "" {
			order.Email = details.NewEmail
		}

	case domain.UpdateOrderPropertiesDetails:
		if details.Email != nil {
			order.Email = *details.Email
		}
		if details.ShippingAddress != nil {
			addr := *details.ShippingAddress
			order.ShippingAddress = &addr
		}
		if details.BillingAddress != nil {
			addr := *details.BillingAddress
			order.BillingAddress = &addr
		}
		if details.Metadata != nil {
			if order.Metadata == nil {
				order.Metadata = map[string]any{}
			}
			maps.Copy(order.Metadata, details.Metadata)
		}

	case domain.ItemAdjustmentsReplaceDetails:
		itemID := details.ItemID
		if details.SourceActionID != "" {
			mapped, ok := state.addedItemIDs[details.SourceActionID]
			if !ok {
				return applyFailure(action, "source action %s produced no item", details.SourceActionID)
			}
			itemID = mapped
		}
		item, err := e.resolveItem(order, itemID, action)
		if err != nil {
			return err
		}
		item.Adjustments = slices.Clone(details.Adjustments)
		item.UpdatedAt = now

	default:
		return applyFailure(action, "unsupported action kind %s", action.Action)
	}

	return nil
}

func (e *ChangeEngine) resolveItem(order *Order, itemID string, action OrderChangeAction) (*OrderLineItem, error) {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i], nil
		}
	}
	return nil, applyFailure(action, "item %s not on order", itemID)
}

func applyFailure(action OrderChangeAction, format string, args ...any) error {
	return fmt.Errorf("%w: action %s (%s): %s", ErrOrderChangeInvalidInput, action.ID, action.Action, fmt.Sprintf(format, args...))
}

func (e *ChangeEngine) recomputeAdjustments(ctx context.Context, order *Order) error {
	if e.promotions == nil {
		return nil
	}
	sets, err := e.promotions.ComputeAdjustments(ctx, *order, order.PromotionCodes)
	if err != nil {
		return fmt.Errorf("recompute adjustments for order %s: %w", order.ID, err)
	}
	applyAdjustmentSets(order, sets)
	return nil
}

func applyAdjustmentSets(order *Order, sets AdjustmentSets) {
	for i := range order.Items {
		order.Items[i].Adjustments = sets.ItemAdjustments[order.Items[i].ID]
	}
	for i := range order.ShippingMethods {
		order.ShippingMethods[i].Adjustments = sets.ShippingAdjustments[order.ShippingMethods[i].ID]
	}
}

func (e *ChangeEngine) recomputeTaxes(ctx context.Context, order *Order, force bool) error {
	if e.taxes == nil {
		return nil
	}
	if !order.AutomaticTaxes && !force {
		return nil
	}
	// A forced recalculation without a destination country yields no tax data;
	// leave existing lines untouched rather than zeroing them.
	if force && !order.AutomaticTaxes {
		if order.ShippingAddress == nil || order.ShippingAddress.CountryCode == "" {
			return nil
		}
	}
	sets, err := e.taxes.GetTaxLines(ctx, *order, order.Items, order.ShippingMethods)
	if err != nil {
		return fmt.Errorf("recompute taxes for order %s: %w", order.ID, err)
	}
	for i := range order.Items {
		order.Items[i].TaxLines = sets.ItemTaxLines[order.Items[i].ID]
	}
	for i := range order.ShippingMethods {
		order.ShippingMethods[i].TaxLines = sets.ShippingTaxLines[order.ShippingMethods[i].ID]
	}
	return nil
}

// Compensate rolls back the materialized side effects of a declined or
// canceled change in reverse staging order, then marks the change terminal.
// Every step is idempotent: an effect that is already gone is treated as
// satisfied and logged, never retried or failed.
func (e *ChangeEngine) Compensate(ctx context.Context, order Order, change OrderChange, comp CompensateContext) (OrderChange, error) {
	ctx, span := e.tracer.Start(ctx, "order_change.compensate", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order_change.id", change.ID),
		attribute.String("order_change.status", string(comp.Status)),
	))
	defer span.End()

	working := cloneOrder(order)
	err := e.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		promotionsDirty := false
		for i := len(change.Actions) - 1; i >= 0; i-- {
			dirty, err := e.compensateAction(txCtx, &working, change, change.Actions[i], comp.Now)
			if err != nil {
				return err
			}
			promotionsDirty = promotionsDirty || dirty
		}

		if promotionsDirty {
			if err := e.recomputeAdjustments(txCtx, &working); err != nil {
				return err
			}
			recalculateSummary(&working)
			working.UpdatedAt = comp.Now
			// Restoring the promotion set never bumps the version; only a
			// confirmed change does that.
			if err := e.orders.Update(txCtx, working); err != nil {
				return fmt.Errorf("persist order %s: %w", working.ID, err)
			}
		}

		change.UpdatedAt = comp.Now
		switch comp.Status {
		case domain.ChangeStatusDeclined:
			change.Status = domain.ChangeStatusDeclined
			change.DeclinedBy = comp.ActorID
			change.DeclinedReason = comp.Reason
			at := comp.Now
			change.DeclinedAt = &at
		case domain.ChangeStatusCanceled:
			change.Status = domain.ChangeStatusCanceled
			change.CanceledBy = comp.ActorID
			at := comp.Now
			change.CanceledAt = &at
		default:
			return fmt.Errorf("%w: %s is not a compensable terminal status", ErrOrderChangeInvalidInput, comp.Status)
		}

		if err := e.releaseScope(txCtx, change); err != nil {
			return err
		}

		if change.ReturnID != nil || change.ClaimID != nil || change.ExchangeID != nil {
			// A scoped change disappears with its sub-process record; only
			// plain edits keep a terminal row for audit.
			if err := e.changes.Delete(txCtx, change.ID); err != nil && !isRepoNotFound(err) {
				return fmt.Errorf("delete change %s: %w", change.ID, err)
			}
		} else if err := e.changes.Update(txCtx, change); err != nil {
			return fmt.Errorf("persist change %s: %w", change.ID, err)
		}
		return nil
	})
	if err != nil {
		return OrderChange{}, err
	}

	e.logger(ctx, "order_change.compensated", map[string]any{
		"order":  order.ID,
		"change": change.ID,
		"status": string(change.Status),
	})

	return change, nil
}

// UnwindStaged reverses the materialized side effects of staged actions that
// never became, or are no longer, part of a persisted change. Reversals run in
// reverse staging order and tolerate effects that are already gone, same as
// compensation does.
func (e *ChangeEngine) UnwindStaged(ctx context.Context, order Order, actions []OrderChangeAction, now time.Time) error {
	if len(actions) == 0 {
		return nil
	}

	working := cloneOrder(order)
	promotionsDirty := false
	for i := len(actions) - 1; i >= 0; i-- {
		synthetic := OrderChange{ID: actions[i].OrderChangeID, OrderID: order.ID}
		dirty, err := e.compensateAction(ctx, &working, synthetic, actions[i], now)
		if err != nil {
			return err
		}
		promotionsDirty = promotionsDirty || dirty
	}

	if promotionsDirty {
		if err := e.recomputeAdjustments(ctx, &working); err != nil {
			return err
		}
		recalculateSummary(&working)
		working.UpdatedAt = now
		if err := e.orders.Update(ctx, working); err != nil {
			return fmt.Errorf("persist order %s: %w", working.ID, err)
		}
	}
	return nil
}

// compensateAction reverses one materialized side effect. The returned flag
// reports whether the order's promotion set was touched and needs recompute.
func (e *ChangeEngine) compensateAction(ctx context.Context, order *Order, change OrderChange, action OrderChangeAction, now time.Time) (bool, error) {
	switch details := action.Details.(type) {
	case domain.ShippingAddDetails:
		if details.ShippingMethodID == "" {
			return false, nil
		}
		err := e.orders.DeleteShippingMethod(ctx, order.ID, details.ShippingMethodID)
		if err != nil {
			if isRepoNotFound(err) {
				e.logAlreadySatisfied(ctx, change, action)
				return false, nil
			}
			return false, fmt.Errorf("compensate %s: %w", action.ID, err)
		}

	case domain.ShippingUpdateDetails:
		method, found := findShippingMethod(*order, details.ShippingMethodID)
		if !found {
			e.logAlreadySatisfied(ctx, change, action)
			return false, nil
		}
		method.ShippingOptionID = details.OldShippingOptionID
		method.Amount = details.OldAmount
		method.UpdatedAt = now
		if err := e.orders.UpdateShippingMethod(ctx, method); err != nil {
			if isRepoNotFound(err) {
				e.logAlreadySatisfied(ctx, change, action)
				return false, nil
			}
			return false, fmt.Errorf("compensate %s: %w", action.ID, err)
		}

	case domain.PromotionAddDetails:
		// The code was applied to the working set at staging time; take it
		// back out.
		order.PromotionCodes = slices.DeleteFunc(order.PromotionCodes, func(code string) bool { return code == details.Code })
		return true, nil

	case domain.PromotionRemoveDetails:
		if !slices.Contains(order.PromotionCodes, details.Code) {
			order.PromotionCodes = append(order.PromotionCodes, details.Code)
		}
		return true, nil
	}
	// All other kinds are pure staging and leave nothing behind to undo.
	return false, nil
}

// releaseScope deletes the sub-process record a terminated scoped change was
// bound to, freeing the (order, scope) slot for a fresh attempt.
func (e *ChangeEngine) releaseScope(ctx context.Context, change OrderChange) error {
	if e.scopes == nil {
		return nil
	}

	var err error
	switch {
	case change.ReturnID != nil:
		err = e.scopes.DeleteReturn(ctx, *change.ReturnID)
	case change.ClaimID != nil:
		err = e.scopes.DeleteClaim(ctx, *change.ClaimID)
	case change.ExchangeID != nil:
		err = e.scopes.DeleteExchange(ctx, *change.ExchangeID)
	default:
		return nil
	}
	if err != nil && !isRepoNotFound(err) {
		return fmt.Errorf("release scope for change %s: %w", change.ID, err)
	}
	return nil
}

func (e *ChangeEngine) logAlreadySatisfied(ctx context.Context, change OrderChange, action OrderChangeAction) {
	e.logger(ctx, "order_change.compensation.already_satisfied", map[string]any{
		"change": change.ID,
		"action": action.ID,
		"kind":   string(action.Action),
	})
}

// recalculateSummary rebuilds the order's monetary rollup from its lines.
func recalculateSummary(order *Order) {
	var summary OrderSummary
	for _, item := range order.Items {
		summary.Subtotal += item.UnitPrice * int64(item.Quantity)
		for _, adj := range item.Adjustments {
			summary.DiscountTotal += adj.Amount
		}
		for _, tax := range item.TaxLines {
			summary.TaxTotal += tax.Amount
		}
		summary.ReturnRequestedTotal += item.UnitPrice * int64(item.ReturnRequestedQty)
	}
	for _, method := range order.ShippingMethods {
		summary.ShippingTotal += method.Amount
		for _, adj := range method.Adjustments {
			summary.DiscountTotal += adj.Amount
		}
		for _, tax := range method.TaxLines {
			summary.TaxTotal += tax.Amount
		}
	}
	for _, line := range order.CreditLines {
		summary.CreditLineTotal += line.Amount
	}

	summary.Total = summary.Subtotal - summary.DiscountTotal + summary.ShippingTotal + summary.TaxTotal

	var captured int64
	for _, tx := range order.Transactions {
		captured += tx.Amount
	}
	summary.PendingDifference = summary.Total - captured - summary.CreditLineTotal

	order.Summary = summary
}

// cloneOrder deep-copies the mutable parts of an order so action application
// never leaks into the caller's copy.
func cloneOrder(order Order) Order {
	clone := order
	clone.PromotionCodes = slices.Clone(order.PromotionCodes)
	clone.Items = make([]OrderLineItem, len(order.Items))
	for i, item := range order.Items {
		copied := item
		copied.Adjustments = slices.Clone(item.Adjustments)
		copied.TaxLines = slices.Clone(item.TaxLines)
		copied.Metadata = maps.Clone(item.Metadata)
		copied.CompareAtUnitPrice = cloneInt64Ptr(item.CompareAtUnitPrice)
		clone.Items[i] = copied
	}
	clone.ShippingMethods = make([]OrderShippingMethod, len(order.ShippingMethods))
	for i, method := range order.ShippingMethods {
		copied := method
		copied.Adjustments = slices.Clone(method.Adjustments)
		copied.TaxLines = slices.Clone(method.TaxLines)
		copied.Metadata = maps.Clone(method.Metadata)
		clone.ShippingMethods[i] = copied
	}
	clone.CreditLines = slices.Clone(order.CreditLines)
	clone.Transactions = slices.Clone(order.Transactions)
	if order.ShippingAddress != nil {
		addr := *order.ShippingAddress
		clone.ShippingAddress = &addr
	}
	if order.BillingAddress != nil {
		addr := *order.BillingAddress
		clone.BillingAddress = &addr
	}
	clone.Metadata = maps.Clone(order.Metadata)
	return clone
}
