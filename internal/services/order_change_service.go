package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/repositories"
)

const (
	changeEventCreated   = "order.change.created"
	changeEventRequested = "order.change.requested"
	changeEventConfirmed = "order.change.confirmed"
	changeEventDeclined  = "order.change.declined"
	changeEventCanceled  = "order.change.canceled"
	orderEventUpdated    = "order.updated"

	orderChangeIDPrefix    = "ordch_"
	changeActionIDPrefix   = "ordchact_"
	shippingMethodIDPrefix = "osm_"
)

var (
	// ErrOrderNotFound indicates the referenced order could not be located.
	ErrOrderNotFound = errors.New("order change: order not found")
	// ErrOrderChangeNotFound indicates the change could not be located.
	ErrOrderChangeNotFound = errors.New("order change: not found")
	// ErrOrderChangeActionNotFound indicates a staged action id is absent.
	ErrOrderChangeActionNotFound = errors.New("order change: action not found")
	// ErrOrderChangeInvalidInput signals the caller provided invalid data.
	ErrOrderChangeInvalidInput = errors.New("order change: invalid input")
	// ErrOrderChangeNotAllowed indicates an operation on a canceled entity or a
	// transition out of a terminal change state.
	ErrOrderChangeNotAllowed = errors.New("order change: not allowed")
	// ErrOrderChangeConflict indicates another active change already occupies
	// the same (order, scope) slot.
	ErrOrderChangeConflict = errors.New("order change: conflict")
	// ErrOrderChangeStaleVersion indicates the order version advanced past the
	// version the change was opened against. Callers must recompute the
	// preview and re-stage before retrying.
	ErrOrderChangeStaleVersion = errors.New("order change: concurrent modification")
)

// OrderChangeServiceDeps bundles collaborators required to construct the service.
type OrderChangeServiceDeps struct {
	Orders          repositories.OrderRepository
	Changes         repositories.OrderChangeRepository
	Scopes          repositories.ChangeScopeRepository
	ShippingOptions ShippingOptionService
	Promotions      PromotionAdjustmentService
	Engine          *ChangeEngine
	UnitOfWork      repositories.UnitOfWork
	Clock           func() time.Time
	IDGenerator     func() string
	Events          ChangeEventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderChangeService struct {
	orders          repositories.OrderRepository
	changes         repositories.OrderChangeRepository
	scopes          repositories.ChangeScopeRepository
	shippingOptions ShippingOptionService
	promotions      PromotionAdjustmentService
	engine          *ChangeEngine
	unitOfWork      repositories.UnitOfWork
	clock           func() time.Time
	newID           func() string
	events          ChangeEventPublisher
	logger          func(context.Context, string, map[string]any)
}

// NewOrderChangeService wires dependencies into a concrete OrderChangeService.
func NewOrderChangeService(deps OrderChangeServiceDeps) (OrderChangeService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order change service: order repository is required")
	}
	if deps.Changes == nil {
		return nil, errors.New("order change service: change repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("order change service: change engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderChangeService{
		orders:          deps.Orders,
		changes:         deps.Changes,
		scopes:          deps.Scopes,
		shippingOptions: deps.ShippingOptions,
		promotions:      deps.Promotions,
		engine:          deps.Engine,
		unitOfWork:      unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderChangeService) CreateChange(ctx context.Context, cmd CreateChangeCommand) (OrderChange, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderChange{}, fmt.Errorf("%w: order id is required", ErrOrderChangeInvalidInput)
	}
	if cmd.ChangeType == "" {
		return OrderChange{}, fmt.Errorf("%w: change type is required", ErrOrderChangeInvalidInput)
	}
	if countScopeRefs(cmd.ReturnID, cmd.ClaimID, cmd.ExchangeID) > 1 {
		return OrderChange{}, fmt.Errorf("%w: return, claim and exchange scopes are mutually exclusive", ErrOrderChangeInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderChange{}, s.mapOrderLookupError(err)
	}
	if err := ensureOrderNotCanceled(order); err != nil {
		return OrderChange{}, err
	}
	if err := s.ensureScopeOperable(ctx, cmd.ReturnID, cmd.ClaimID, cmd.ExchangeID); err != nil {
		return OrderChange{}, err
	}

	now := s.now()
	change := OrderChange{
		ID:           orderChangeIDPrefix + s.newID(),
		OrderID:      order.ID,
		ReturnID:     cloneStringPtr(cmd.ReturnID),
		ClaimID:      cloneStringPtr(cmd.ClaimID),
		ExchangeID:   cloneStringPtr(cmd.ExchangeID),
		ChangeType:   cmd.ChangeType,
		Status:       domain.ChangeStatusPending,
		Version:      order.Version,
		Description:  strings.TrimSpace(cmd.Description),
		InternalNote: strings.TrimSpace(cmd.InternalNote),
		RequestedBy:  strings.TrimSpace(cmd.RequestedBy),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	normalized, err := s.validateStagedInputs(order, change, cmd.Actions)
	if err != nil {
		return OrderChange{}, err
	}

	// Win the (order, scope) slot before any staged side effect touches
	// storage. A losing caller gets the conflict with nothing to clean up.
	var created OrderChange
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var createErr error
		created, createErr = s.changes.Create(txCtx, change)
		if createErr != nil {
			return s.mapRepositoryError(createErr)
		}
		return nil
	})
	if err != nil {
		return OrderChange{}, err
	}

	if len(normalized) > 0 {
		staged, err := s.stageActions(ctx, order, created, normalized, now)
		if err != nil {
			s.unwindStaging(ctx, order.ID, staged)
			s.discardChange(ctx, created.ID)
			return OrderChange{}, err
		}

		var inserted []OrderChangeAction
		err = s.runInTx(ctx, func(txCtx context.Context) error {
			var insertErr error
			inserted, insertErr = s.changes.InsertActions(txCtx, staged)
			if insertErr != nil {
				return s.mapRepositoryError(insertErr)
			}
			return nil
		})
		if err != nil {
			s.unwindStaging(ctx, order.ID, staged)
			s.discardChange(ctx, created.ID)
			return OrderChange{}, err
		}
		created.Actions = inserted
	}

	s.publishEvent(ctx, ChangeEvent{
		Type:          changeEventCreated,
		OrderID:       order.ID,
		OrderChangeID: created.ID,
		ChangeType:    created.ChangeType,
		ActorID:       cmd.RequestedBy,
		OrderVersion:  order.Version,
		OccurredAt:    now,
	})

	return created, nil
}

func (s *orderChangeService) GetChange(ctx context.Context, changeID string) (OrderChange, error) {
	changeID = strings.TrimSpace(changeID)
	if changeID == "" {
		return OrderChange{}, fmt.Errorf("%w: change id is required", ErrOrderChangeInvalidInput)
	}
	change, err := s.changes.FindByID(ctx, changeID)
	if err != nil {
		return OrderChange{}, s.mapRepositoryError(err)
	}
	return change, nil
}

func (s *orderChangeService) ListChanges(ctx context.Context, orderID string, filter repositories.OrderChangeListFilter) (domain.CursorPage[OrderChange], error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[OrderChange]{}, fmt.Errorf("%w: order id is required", ErrOrderChangeInvalidInput)
	}
	page, err := s.changes.ListByOrder(ctx, orderID, filter)
	if err != nil {
		return domain.CursorPage[OrderChange]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderChangeService) AppendActions(ctx context.Context, cmd AppendActionsCommand) ([]OrderChangeAction, error) {
	change, order, err := s.loadActiveChange(ctx, cmd.OrderChangeID)
	if err != nil {
		return nil, err
	}
	if len(cmd.Actions) == 0 {
		return nil, fmt.Errorf("%w: at least one action is required", ErrOrderChangeInvalidInput)
	}

	normalized, err := s.validateStagedInputs(order, change, cmd.Actions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	staged, err := s.stageActions(ctx, order, change, normalized, now)
	if err != nil {
		s.unwindStaging(ctx, order.ID, staged)
		return nil, err
	}

	var inserted []OrderChangeAction
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var insertErr error
		inserted, insertErr = s.changes.InsertActions(txCtx, staged)
		if insertErr != nil {
			return s.mapRepositoryError(insertErr)
		}
		return nil
	})
	if err != nil {
		s.unwindStaging(ctx, order.ID, staged)
		return nil, err
	}

	s.logger(ctx, "order_change.actions.appended", map[string]any{
		"change": change.ID,
		"order":  change.OrderID,
		"count":  len(inserted),
	})

	return inserted, nil
}

func (s *orderChangeService) UpdateAction(ctx context.Context, cmd UpdateActionCommand) (OrderChangeAction, error) {
	actionID := strings.TrimSpace(cmd.ActionID)
	if actionID == "" {
		return OrderChangeAction{}, fmt.Errorf("%w: action id is required", ErrOrderChangeInvalidInput)
	}

	action, err := s.changes.FindActionByID(ctx, actionID)
	if err != nil {
		return OrderChangeAction{}, s.mapActionLookupError(err)
	}

	_, order, err := s.loadActiveChange(ctx, action.OrderChangeID)
	if err != nil {
		return OrderChangeAction{}, err
	}

	if cmd.Details != nil {
		if cmd.Details.Kind() != action.Action {
			return OrderChangeAction{}, fmt.Errorf("%w: action %s is %s, cannot patch with %s details",
				ErrOrderChangeInvalidInput, action.ID, action.Action, cmd.Details.Kind())
		}
		details := cmd.Details
		// Quantity diffs are always recomputed against the base order item so
		// repeated updates stay anchored to the order's true baseline.
		if upd, ok := details.(domain.ItemUpdateDetails); ok {
			item, found := findOrderItem(order, upd.ItemID)
			if !found {
				return OrderChangeAction{}, fmt.Errorf("%w: item %s not on order %s", ErrOrderChangeInvalidInput, upd.ItemID, order.ID)
			}
			if upd.Quantity < 0 {
				return OrderChangeAction{}, fmt.Errorf("%w: quantity cannot be negative", ErrOrderChangeInvalidInput)
			}
			upd.QuantityDiff = upd.Quantity - item.Quantity
			details = upd
		}
		action.Details = details
	}
	if cmd.Amount != nil {
		action.Amount = cloneInt64Ptr(cmd.Amount)
	}
	if cmd.InternalNote != nil {
		action.InternalNote = strings.TrimSpace(*cmd.InternalNote)
	}
	action.UpdatedAt = s.now()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.changes.UpdateAction(txCtx, action); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderChangeAction{}, err
	}

	return action, nil
}

func (s *orderChangeService) RemoveAction(ctx context.Context, cmd RemoveActionCommand) error {
	actionID := strings.TrimSpace(cmd.ActionID)
	if actionID == "" {
		return fmt.Errorf("%w: action id is required", ErrOrderChangeInvalidInput)
	}

	action, err := s.changes.FindActionByID(ctx, actionID)
	if err != nil {
		return s.mapActionLookupError(err)
	}

	change, order, err := s.loadActiveChange(ctx, action.OrderChangeID)
	if err != nil {
		return err
	}

	toDelete := []string{action.ID}
	if action.Action == domain.ActionItemAdd {
		// Removing a staged ITEM_ADD cascades to adjustment-replace actions
		// that were staged against the pending item.
		for _, other := range change.Actions {
			repl, ok := other.Details.(domain.ItemAdjustmentsReplaceDetails)
			if ok && repl.SourceActionID == action.ID {
				toDelete = append(toDelete, other.ID)
			}
		}
	}

	// Materialized effects are reversed the same way a decline would reverse
	// them, and before the row is deleted: once the action is gone a later
	// compensation can no longer see it. The reversal is idempotent, so a
	// failed delete leaves a retryable state.
	if err := s.engine.UnwindStaged(ctx, order, []OrderChangeAction{action}, s.now()); err != nil {
		return err
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.changes.DeleteActions(txCtx, change.ID, toDelete); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *orderChangeService) RequestChange(ctx context.Context, cmd RequestChangeCommand) (OrderChange, error) {
	change, err := s.GetChange(ctx, cmd.OrderChangeID)
	if err != nil {
		return OrderChange{}, err
	}
	if change.Status == domain.ChangeStatusRequested {
		return change, nil
	}
	if change.Status.IsTerminal() {
		return OrderChange{}, fmt.Errorf("%w: change %s is %s", ErrOrderChangeNotAllowed, change.ID, change.Status)
	}

	now := s.now()
	change.Status = domain.ChangeStatusRequested
	change.RequestedBy = strings.TrimSpace(cmd.RequestedBy)
	change.RequestedAt = &now
	change.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.changes.Update(txCtx, change); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderChange{}, err
	}

	s.publishEvent(ctx, ChangeEvent{
		Type:          changeEventRequested,
		OrderID:       change.OrderID,
		OrderChangeID: change.ID,
		ChangeType:    change.ChangeType,
		ActorID:       cmd.RequestedBy,
		OccurredAt:    now,
	})

	return change, nil
}

func (s *orderChangeService) ConfirmChange(ctx context.Context, cmd ConfirmChangeCommand) (Order, error) {
	change, order, err := s.loadActiveChange(ctx, cmd.OrderChangeID)
	if err != nil {
		return Order{}, err
	}

	if order.Version != change.Version {
		return Order{}, fmt.Errorf("%w: order %s is at version %d but change %s was opened against version %d",
			ErrOrderChangeStaleVersion, order.ID, order.Version, change.ID, change.Version)
	}

	now := s.now()
	updated, err := s.engine.Confirm(ctx, order, change, ConfirmContext{
		ConfirmedBy:  strings.TrimSpace(cmd.ConfirmedBy),
		ForceTaxCalc: cmd.ForceTaxCalc,
		Now:          now,
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, ChangeEvent{
		Type:          changeEventConfirmed,
		OrderID:       updated.ID,
		OrderChangeID: change.ID,
		ChangeType:    change.ChangeType,
		ActorID:       cmd.ConfirmedBy,
		OrderVersion:  updated.Version,
		OccurredAt:    now,
	})
	s.publishEvent(ctx, ChangeEvent{
		Type:         orderEventUpdated,
		OrderID:      updated.ID,
		ActorID:      cmd.ConfirmedBy,
		OrderVersion: updated.Version,
		OccurredAt:   now,
	})

	return updated, nil
}

func (s *orderChangeService) DeclineChange(ctx context.Context, cmd DeclineChangeCommand) (OrderChange, error) {
	return s.terminate(ctx, cmd.OrderChangeID, terminateRequest{
		status:  domain.ChangeStatusDeclined,
		actorID: strings.TrimSpace(cmd.DeclinedBy),
		reason:  strings.TrimSpace(cmd.DeclinedReason),
		event:   changeEventDeclined,
	})
}

func (s *orderChangeService) CancelChange(ctx context.Context, cmd CancelChangeCommand) (OrderChange, error) {
	return s.terminate(ctx, cmd.OrderChangeID, terminateRequest{
		status:  domain.ChangeStatusCanceled,
		actorID: strings.TrimSpace(cmd.CanceledBy),
		event:   changeEventCanceled,
	})
}

func (s *orderChangeService) DeleteChanges(ctx context.Context, changeIDs []string) error {
	if len(changeIDs) == 0 {
		return nil
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		for _, id := range changeIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			change, err := s.changes.FindByID(txCtx, id)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if change.Status.IsTerminal() {
				return fmt.Errorf("%w: change %s is %s and cannot be deleted", ErrOrderChangeNotAllowed, change.ID, change.Status)
			}
			if err := s.changes.Delete(txCtx, change.ID); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
}

type terminateRequest struct {
	status  domain.ChangeStatus
	actorID string
	reason  string
	event   string
}

func (s *orderChangeService) terminate(ctx context.Context, changeID string, req terminateRequest) (OrderChange, error) {
	change, err := s.GetChange(ctx, changeID)
	if err != nil {
		return OrderChange{}, err
	}
	if change.Status.IsTerminal() {
		return OrderChange{}, fmt.Errorf("%w: change %s is already %s", ErrOrderChangeNotAllowed, change.ID, change.Status)
	}

	order, err := s.orders.FindByID(ctx, change.OrderID)
	if err != nil {
		return OrderChange{}, s.mapOrderLookupError(err)
	}

	now := s.now()
	updated, err := s.engine.Compensate(ctx, order, change, CompensateContext{
		Status:  req.status,
		ActorID: req.actorID,
		Reason:  req.reason,
		Now:     now,
	})
	if err != nil {
		return OrderChange{}, err
	}

	s.publishEvent(ctx, ChangeEvent{
		Type:          req.event,
		OrderID:       change.OrderID,
		OrderChangeID: change.ID,
		ChangeType:    change.ChangeType,
		ActorID:       req.actorID,
		OccurredAt:    now,
	})

	return updated, nil
}

// loadActiveChange resolves the change and its order, enforcing the shared
// preconditions for every staged mutation: the order is not canceled and the
// change still accepts actions.
func (s *orderChangeService) loadActiveChange(ctx context.Context, changeID string) (OrderChange, Order, error) {
	change, err := s.GetChange(ctx, changeID)
	if err != nil {
		return OrderChange{}, Order{}, err
	}

	order, err := s.orders.FindByID(ctx, change.OrderID)
	if err != nil {
		return OrderChange{}, Order{}, s.mapOrderLookupError(err)
	}

	if err := ensureOrderNotCanceled(order); err != nil {
		return OrderChange{}, Order{}, err
	}
	if err := ensureChangeActive(change); err != nil {
		return OrderChange{}, Order{}, err
	}

	return change, order, nil
}

// validateStagedInputs runs every proposed action through the validator before
// any of them touches storage, so an invalid batch aborts with no effects.
func (s *orderChangeService) validateStagedInputs(order Order, change OrderChange, inputs []StageActionInput) ([]StageActionInput, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	normalized := make([]StageActionInput, 0, len(inputs))
	for _, input := range inputs {
		n, err := normalizeStagedAction(order, change, input)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}
	return normalized, nil
}

// stageActions materializes validated inputs in submission order. On failure
// it returns the actions whose effects already hit storage so the caller can
// unwind them.
func (s *orderChangeService) stageActions(ctx context.Context, order Order, change OrderChange, inputs []StageActionInput, now time.Time) ([]OrderChangeAction, error) {
	staged := make([]OrderChangeAction, 0, len(inputs))
	for _, input := range inputs {
		normalized, err := s.materializeStagedAction(ctx, order, input, now)
		if err != nil {
			return staged, err
		}
		staged = append(staged, OrderChangeAction{
			ID:            changeActionIDPrefix + s.newID(),
			OrderChangeID: change.ID,
			OrderID:       order.ID,
			Version:       change.Version,
			Action:        normalized.Action,
			Reference:     normalized.Reference,
			ReferenceID:   normalized.ReferenceID,
			Details:       normalized.Details,
			Amount:        cloneInt64Ptr(normalized.Amount),
			InternalNote:  strings.TrimSpace(normalized.InternalNote),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return staged, nil
}

// materializeStagedAction performs the eager side effects some action kinds
// carry: shipping methods exist as real rows from the moment they are staged
// so previews and pricing see them, and compensation deletes or restores them.
func (s *orderChangeService) materializeStagedAction(ctx context.Context, order Order, input StageActionInput, now time.Time) (StageActionInput, error) {
	switch details := input.Details.(type) {
	case domain.ShippingAddDetails:
		if details.ShippingMethodID != "" {
			return input, nil
		}
		if s.shippingOptions == nil {
			return StageActionInput{}, fmt.Errorf("%w: shipping option service not configured", ErrOrderChangeInvalidInput)
		}
		option, err := s.shippingOptions.GetOption(ctx, details.ShippingOptionID)
		if err != nil {
			return StageActionInput{}, fmt.Errorf("resolve shipping option %s: %w", details.ShippingOptionID, err)
		}
		amount := details.Amount
		if amount == 0 {
			amount = option.Amount
		}
		method := OrderShippingMethod{
			ID:               shippingMethodIDPrefix + s.newID(),
			OrderID:          order.ID,
			Name:             option.Name,
			ShippingOptionID: option.ID,
			Amount:           amount,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.orders.InsertShippingMethod(ctx, method); err != nil {
			return StageActionInput{}, s.mapRepositoryError(err)
		}
		details.ShippingMethodID = method.ID
		details.Amount = amount
		input.Details = details
		input.ReferenceID = method.ID
		return input, nil

	case domain.ShippingUpdateDetails:
		method, found := findShippingMethod(order, details.ShippingMethodID)
		if !found {
			return StageActionInput{}, fmt.Errorf("%w: shipping method %s not on order %s", ErrOrderChangeInvalidInput, details.ShippingMethodID, order.ID)
		}
		details.OldShippingOptionID = method.ShippingOptionID
		details.OldAmount = method.Amount

		method.ShippingOptionID = details.NewShippingOptionID
		method.Amount = details.NewAmount
		method.UpdatedAt = now
		if err := s.orders.UpdateShippingMethod(ctx, method); err != nil {
			return StageActionInput{}, s.mapRepositoryError(err)
		}
		input.Details = details
		return input, nil

	case domain.PromotionAddDetails:
		return input, s.applyPromotionStaging(ctx, order, details.Code, true, now)

	case domain.PromotionRemoveDetails:
		return input, s.applyPromotionStaging(ctx, order, details.Code, false, now)
	}
	return input, nil
}

// applyPromotionStaging updates the order's working promotion set the moment a
// promotion action is staged. Adjustments follow the working set so previews
// and pricing reflect the staged state; compensation restores the prior set if
// the change is declined or canceled.
func (s *orderChangeService) applyPromotionStaging(ctx context.Context, order Order, code string, add bool, now time.Time) error {
	working := cloneOrder(order)
	if add {
		if !slices.Contains(working.PromotionCodes, code) {
			working.PromotionCodes = append(working.PromotionCodes, code)
		}
	} else {
		working.PromotionCodes = slices.DeleteFunc(working.PromotionCodes, func(c string) bool { return c == code })
	}

	if s.promotions != nil {
		sets, err := s.promotions.ComputeAdjustments(ctx, working, working.PromotionCodes)
		if err != nil {
			return fmt.Errorf("recompute adjustments for order %s: %w", order.ID, err)
		}
		applyAdjustmentSets(&working, sets)
	}
	recalculateSummary(&working)
	working.UpdatedAt = now

	if err := s.orders.Update(ctx, working); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// unwindStaging reverses materialized staging effects after the change they
// belong to failed to persist, so a losing caller leaves no trace on the
// order. Failures are logged; the caller's original error takes precedence.
func (s *orderChangeService) unwindStaging(ctx context.Context, orderID string, actions []OrderChangeAction) {
	if len(actions) == 0 {
		return
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.logger(ctx, "order_change.staging.unwind_failed", map[string]any{
			"order": orderID,
			"error": err.Error(),
		})
		return
	}
	if err := s.engine.UnwindStaged(ctx, order, actions, s.now()); err != nil {
		s.logger(ctx, "order_change.staging.unwind_failed", map[string]any{
			"order": orderID,
			"error": err.Error(),
		})
	}
}

// discardChange removes a change whose staged actions failed to persist,
// releasing its (order, scope) slot.
func (s *orderChangeService) discardChange(ctx context.Context, changeID string) {
	if err := s.changes.Delete(ctx, changeID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "order_change.staging.discard_failed", map[string]any{
			"change": changeID,
			"error":  err.Error(),
		})
	}
}

func (s *orderChangeService) ensureScopeOperable(ctx context.Context, returnID, claimID, exchangeID *string) error {
	if s.scopes == nil {
		return nil
	}
	switch {
	case returnID != nil:
		ret, err := s.scopes.GetReturn(ctx, *returnID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		return ensureNotCanceled("return", ret.ID, ret.CanceledAt)
	case claimID != nil:
		claim, err := s.scopes.GetClaim(ctx, *claimID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		return ensureNotCanceled("claim", claim.ID, claim.CanceledAt)
	case exchangeID != nil:
		exchange, err := s.scopes.GetExchange(ctx, *exchangeID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		return ensureNotCanceled("exchange", exchange.ID, exchange.CanceledAt)
	}
	return nil
}

func (s *orderChangeService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderChangeNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderChangeConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order change: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderChangeService) mapOrderLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	return s.mapRepositoryError(err)
}

func (s *orderChangeService) mapActionLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrOrderChangeActionNotFound, err)
	}
	return s.mapRepositoryError(err)
}

func (s *orderChangeService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderChangeService) now() time.Time {
	return s.clock()
}

func (s *orderChangeService) publishEvent(ctx context.Context, event ChangeEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishChangeEvent(ctx, event); err != nil {
		s.logger(ctx, "order_change.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"change": event.OrderChangeID,
			"error":  err.Error(),
		})
	}
}

func defaultIDGenerator() string {
	return ulid.Make().String()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func countScopeRefs(refs ...*string) int {
	count := 0
	for _, ref := range refs {
		if ref != nil && strings.TrimSpace(*ref) != "" {
			count++
		}
	}
	return count
}

func findOrderItem(order Order, itemID string) (OrderLineItem, bool) {
	for _, item := range order.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderLineItem{}, false
}

func findShippingMethod(order Order, methodID string) (OrderShippingMethod, bool) {
	for _, method := range order.ShippingMethods {
		if method.ID == methodID {
			return method, true
		}
	}
	return OrderShippingMethod{}, false
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	ref := *value
	return &ref
}

func cloneInt64Ptr(value *int64) *int64 {
	if value == nil {
		return nil
	}
	ref := *value
	return &ref
}
