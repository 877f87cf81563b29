package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/stagecart/api/internal/domain"
)

func newTestPreview(t *testing.T, orders *stubOrderRepo, changes *stubChangeRepo) PreviewService {
	t.Helper()
	svc, err := NewPreviewService(PreviewServiceDeps{Orders: orders, Changes: changes})
	if err != nil {
		t.Fatalf("new preview service: %v", err)
	}
	return svc
}

func TestComputePreviewWithoutActiveChange(t *testing.T) {
	order := baseTestOrder()
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestPreview(t, orders, &stubChangeRepo{})

	preview, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("compute preview: %v", err)
	}

	if preview.OrderChange != nil {
		t.Fatal("expected no order change on preview")
	}
	if len(preview.PreviewItems) != len(order.Items) {
		t.Fatalf("expected %d items, got %d", len(order.Items), len(preview.PreviewItems))
	}
	for _, item := range preview.PreviewItems {
		if len(item.Actions) != 0 {
			t.Fatalf("expected no actions on item %s", item.ID)
		}
	}
	if preview.ReturnRequestedTotal != 0 {
		t.Fatalf("expected zero return total, got %d", preview.ReturnRequestedTotal)
	}
}

func TestComputePreviewAnnotatesWithoutMutatingBase(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusPending,
		Actions: []domain.OrderChangeAction{
			{
				ID:          "ordchact_upd",
				Action:      domain.ActionItemUpdate,
				ReferenceID: "ordli_1",
				Details:     domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: 8, QuantityDiff: 3},
			},
			{
				ID:          "ordchact_ship",
				Action:      domain.ActionShippingRemove,
				ReferenceID: "osm_1",
				Details:     domain.ShippingRemoveDetails{ShippingMethodID: "osm_1"},
			},
		},
	}

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	changes := &stubChangeRepo{
		findActiveFn: func(context.Context, string) (domain.OrderChange, error) { return change, nil },
	}
	svc := newTestPreview(t, orders, changes)

	preview, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("compute preview: %v", err)
	}

	if preview.OrderChange == nil || preview.OrderChange.ID != change.ID {
		t.Fatal("expected the active change attached to the preview")
	}

	// Base quantities stay untouched; the staged update only annotates.
	if preview.PreviewItems[0].Quantity != 5 {
		t.Fatalf("expected base quantity 5 preserved, got %d", preview.PreviewItems[0].Quantity)
	}
	if len(preview.PreviewItems[0].Actions) != 1 || preview.PreviewItems[0].Actions[0].ID != "ordchact_upd" {
		t.Fatalf("expected update action annotated on item, got %#v", preview.PreviewItems[0].Actions)
	}
	if len(preview.PreviewItems[1].Actions) != 0 {
		t.Fatal("expected no actions on the untouched item")
	}
	if len(preview.PreviewShippingMethods) != 1 || len(preview.PreviewShippingMethods[0].Actions) != 1 {
		t.Fatal("expected shipping removal annotated on the method")
	}
}

func TestComputePreviewSynthesizesStagedItems(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusPending,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_add",
				Action:  domain.ActionItemAdd,
				Details: domain.ItemAddDetails{VariantID: "var_9", Title: "Hat", Quantity: 2, UnitPrice: 2500},
			},
		},
	}

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	changes := &stubChangeRepo{
		findActiveFn: func(context.Context, string) (domain.OrderChange, error) { return change, nil },
	}
	svc := newTestPreview(t, orders, changes)

	preview, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("compute preview: %v", err)
	}

	if len(preview.PreviewItems) != 3 {
		t.Fatalf("expected synthesized item appended, got %d items", len(preview.PreviewItems))
	}
	synthesized := preview.PreviewItems[2]
	if synthesized.ID != "ordchact_add" {
		t.Fatalf("expected synthesized item keyed by action id, got %s", synthesized.ID)
	}
	if synthesized.Title != "Hat" || synthesized.Quantity != 2 || synthesized.UnitPrice != 2500 {
		t.Fatalf("unexpected synthesized item %#v", synthesized.OrderLineItem)
	}
}

func TestComputePreviewSumsOutstandingReturns(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusRequested,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_r1",
				Action:  domain.ActionReturnItem,
				Details: domain.ReturnItemDetails{ItemID: "ordli_1", Quantity: 3, ReceivedQuantity: 1},
			},
			{
				ID:      "ordchact_r2",
				Action:  domain.ActionReturnItem,
				Details: domain.ReturnItemDetails{ItemID: "ordli_2", Quantity: 2},
			},
		},
	}

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	changes := &stubChangeRepo{
		findActiveFn: func(context.Context, string) (domain.OrderChange, error) { return change, nil },
	}
	svc := newTestPreview(t, orders, changes)

	preview, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("compute preview: %v", err)
	}
	// 3 requested minus 1 received, plus 2 outstanding.
	if preview.ReturnRequestedTotal != 4 {
		t.Fatalf("expected return total 4, got %d", preview.ReturnRequestedTotal)
	}
}

func TestComputePreviewIsRepeatable(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusPending,
		Actions: []domain.OrderChangeAction{
			{
				ID:          "ordchact_upd",
				Action:      domain.ActionItemUpdate,
				ReferenceID: "ordli_1",
				Details:     domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: 8, QuantityDiff: 3},
			},
		},
	}

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	changes := &stubChangeRepo{
		findActiveFn: func(context.Context, string) (domain.OrderChange, error) { return change, nil },
	}
	svc := newTestPreview(t, orders, changes)

	first, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("first preview: %v", err)
	}
	second, err := svc.ComputePreview(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if first.PreviewItems[0].Quantity != second.PreviewItems[0].Quantity {
		t.Fatal("expected repeated previews to agree")
	}
	if len(first.PreviewItems[0].Actions) != len(second.PreviewItems[0].Actions) {
		t.Fatal("expected repeated previews to carry the same annotations")
	}
}

func TestComputePreviewUnknownOrder(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, notFoundErr("no such order")
		},
	}
	svc := newTestPreview(t, orders, &stubChangeRepo{})

	_, err := svc.ComputePreview(context.Background(), "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
