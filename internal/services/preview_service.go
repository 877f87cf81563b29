package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/repositories"
)

// PreviewServiceDeps bundles collaborators for preview computation.
type PreviewServiceDeps struct {
	Orders  repositories.OrderRepository
	Changes repositories.OrderChangeRepository
}

type previewService struct {
	orders  repositories.OrderRepository
	changes repositories.OrderChangeRepository
}

// NewPreviewService wires dependencies into a concrete PreviewService.
func NewPreviewService(deps PreviewServiceDeps) (PreviewService, error) {
	if deps.Orders == nil {
		return nil, errors.New("preview service: order repository is required")
	}
	if deps.Changes == nil {
		return nil, errors.New("preview service: change repository is required")
	}
	return &previewService{orders: deps.Orders, changes: deps.Changes}, nil
}

// ComputePreview overlays the most recent active change on the base order. The
// computation is annotative: base quantities and amounts are left untouched,
// staged actions are attached to the entities they reference, and items staged
// for addition are synthesized from their action payload. Nothing is written.
func (s *previewService) ComputePreview(ctx context.Context, orderID string) (OrderPreview, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderPreview{}, fmt.Errorf("%w: order id is required", ErrOrderChangeInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderPreview{}, mapPreviewLookupError(err)
	}

	preview := OrderPreview{Order: order}

	change, err := s.changes.FindActiveByOrder(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			preview.PreviewItems = bareItems(order)
			preview.PreviewShippingMethods = bareShippingMethods(order)
			return preview, nil
		}
		return OrderPreview{}, mapPreviewLookupError(err)
	}
	preview.OrderChange = &change

	byReference := map[string][]OrderChangeAction{}
	for _, action := range change.Actions {
		key := actionTargetID(action)
		if key == "" {
			continue
		}
		byReference[key] = append(byReference[key], action)
	}

	preview.PreviewItems = make([]PreviewItem, 0, len(order.Items))
	for _, item := range order.Items {
		preview.PreviewItems = append(preview.PreviewItems, PreviewItem{
			OrderLineItem: item,
			Actions:       byReference[item.ID],
		})
	}

	// Items staged for addition do not exist on the base order yet; synthesize
	// them from the action payload keyed by the action id.
	for _, action := range change.Actions {
		add, ok := action.Details.(domain.ItemAddDetails)
		if !ok {
			continue
		}
		preview.PreviewItems = append(preview.PreviewItems, PreviewItem{
			OrderLineItem: OrderLineItem{
				ID:                 action.ID,
				OrderID:            order.ID,
				Title:              add.Title,
				VariantID:          add.VariantID,
				Quantity:           add.Quantity,
				UnitPrice:          add.UnitPrice,
				CompareAtUnitPrice: add.CompareAtUnitPrice,
				CreatedAt:          action.CreatedAt,
				UpdatedAt:          action.UpdatedAt,
			},
			Actions: append(byReference[action.ID], action),
		})
	}

	preview.PreviewShippingMethods = make([]PreviewShippingMethod, 0, len(order.ShippingMethods))
	for _, method := range order.ShippingMethods {
		preview.PreviewShippingMethods = append(preview.PreviewShippingMethods, PreviewShippingMethod{
			OrderShippingMethod: method,
			Actions:             byReference[method.ID],
		})
	}

	preview.ReturnRequestedTotal = pendingReturnTotal(change)

	return preview, nil
}

// actionTargetID resolves the entity an action annotates in the preview.
func actionTargetID(action OrderChangeAction) string {
	if action.ReferenceID != "" {
		return action.ReferenceID
	}
	switch details := action.Details.(type) {
	case domain.ItemUpdateDetails:
		return details.ItemID
	case domain.ItemRemoveDetails:
		return details.ItemID
	case domain.ReturnItemDetails:
		return details.ItemID
	case domain.ReceiveReturnItemDetails:
		return details.ItemID
	case domain.ReceiveDamagedItemDetails:
		return details.ItemID
	case domain.CancelReturnItemDetails:
		return details.ItemID
	case domain.FulfillItemDetails:
		return details.ItemID
	case domain.ShipItemDetails:
		return details.ItemID
	case domain.DeliverItemDetails:
		return details.ItemID
	case domain.CancelItemFulfillmentDetails:
		return details.ItemID
	case domain.WriteOffItemDetails:
		return details.ItemID
	case domain.ReinstateItemDetails:
		return details.ItemID
	case domain.ShippingAddDetails:
		return details.ShippingMethodID
	case domain.ShippingUpdateDetails:
		return details.ShippingMethodID
	case domain.ShippingRemoveDetails:
		return details.ShippingMethodID
	case domain.ItemAdjustmentsReplaceDetails:
		if details.SourceActionID != "" {
			return details.SourceActionID
		}
		return details.ItemID
	}
	return ""
}

// pendingReturnTotal sums return-request quantities not yet received across
// the change's staged RETURN_ITEM actions.
func pendingReturnTotal(change OrderChange) int64 {
	var total int64
	for _, action := range change.Actions {
		ret, ok := action.Details.(domain.ReturnItemDetails)
		if !ok {
			continue
		}
		if outstanding := ret.Quantity - ret.ReceivedQuantity; outstanding > 0 {
			total += int64(outstanding)
		}
	}
	return total
}

func bareItems(order Order) []PreviewItem {
	items := make([]PreviewItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, PreviewItem{OrderLineItem: item})
	}
	return items
}

func bareShippingMethods(order Order) []PreviewShippingMethod {
	methods := make([]PreviewShippingMethod, 0, len(order.ShippingMethods))
	for _, method := range order.ShippingMethods {
		methods = append(methods, PreviewShippingMethod{OrderShippingMethod: method})
	}
	return methods
}

func mapPreviewLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order preview: repository unavailable: %w", err)
		}
	}
	return err
}
