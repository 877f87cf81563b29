package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	domain "github.com/stagecart/api/internal/domain"
	"github.com/stagecart/api/internal/repositories"
)

func newTestEngine(t *testing.T, deps ChangeEngineDeps) *ChangeEngine {
	t.Helper()
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("eng")
	}
	engine, err := NewChangeEngine(deps)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestConfirmAppliesItemAndShippingAtomically(t *testing.T) {
	ctx := context.Background()
	order := baseTestOrder()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusRequested,
		Version: 1,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_item",
				Action:  domain.ActionItemAdd,
				Details: domain.ItemAddDetails{VariantID: "var_9", Title: "Hat", Quantity: 2, UnitPrice: 2000},
			},
			{
				ID:      "ordchact_ship",
				Action:  domain.ActionShippingAdd,
				Details: domain.ShippingAddDetails{ShippingMethodID: "osm_new", ShippingOptionID: "so_express", Amount: 1200},
			},
		},
	}

	var commit repositories.ConfirmCommit
	commits := 0
	changes := &stubChangeRepo{
		confirmCommitFn: func(_ context.Context, c repositories.ConfirmCommit) error {
			commits++
			commit = c
			return nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: changes})

	updated, err := engine.Confirm(ctx, order, change, ConfirmContext{ConfirmedBy: "usr_staff", Now: now})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if len(updated.Items) != 3 {
		t.Fatalf("expected new item applied, got %d items", len(updated.Items))
	}
	if len(updated.ShippingMethods) != 2 {
		t.Fatalf("expected new shipping method applied, got %d methods", len(updated.ShippingMethods))
	}
	// 5*1000 + 2*1500 + 2*2000 items, 700 + 1200 shipping.
	if updated.Summary.Total != 13900 {
		t.Fatalf("expected total 13900, got %d", updated.Summary.Total)
	}
	if commits != 1 {
		t.Fatalf("expected one atomic commit carrying every write, got %d", commits)
	}
	if commit.Order.Version != 2 || commit.ExpectedVersion != 1 {
		t.Fatalf("expected commit at version 2 guarded by expected version 1, got %d and %d", commit.Order.Version, commit.ExpectedVersion)
	}
	if commit.Change.Status != domain.ChangeStatusConfirmed {
		t.Fatalf("expected committed change confirmed, got %s", commit.Change.Status)
	}
}

func TestConfirmFailureLeavesNoPartialState(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Version: 1,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_item",
				Action:  domain.ActionItemAdd,
				Details: domain.ItemAddDetails{VariantID: "var_9", Title: "Hat", Quantity: 2, UnitPrice: 2000},
			},
			{
				ID:      "ordchact_bad",
				Action:  domain.ActionItemUpdate,
				Details: domain.ItemUpdateDetails{ItemID: "ordli_missing", Quantity: 1},
			},
		},
	}

	commits := 0
	changes := &stubChangeRepo{
		confirmCommitFn: func(context.Context, repositories.ConfirmCommit) error {
			commits++
			return nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: changes})

	_, err := engine.Confirm(context.Background(), order, change, ConfirmContext{Now: time.Now().UTC()})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
	if commits != 0 {
		t.Fatalf("expected no commit on failed confirm, got %d", commits)
	}
	if order.Version != 1 || len(order.Items) != 2 {
		t.Fatal("expected caller's order untouched")
	}
}

func TestConfirmInsertsCreditLines(t *testing.T) {
	order := baseTestOrder()
	order.Summary.PendingDifference = 8700
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Version: 1,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_credit",
				Action:  domain.ActionCreditLineAdd,
				Details: domain.CreditLineAddDetails{Reference: "goodwill", Amount: 500},
			},
		},
	}

	var commit repositories.ConfirmCommit
	changes := &stubChangeRepo{
		confirmCommitFn: func(_ context.Context, c repositories.ConfirmCommit) error {
			commit = c
			return nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: changes})

	updated, err := engine.Confirm(context.Background(), order, change, ConfirmContext{Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(commit.NewCreditLines) != 1 {
		t.Fatalf("expected 1 credit line in the commit, got %d", len(commit.NewCreditLines))
	}
	if commit.NewCreditLines[0].Amount != 500 {
		t.Fatalf("expected amount 500, got %d", commit.NewCreditLines[0].Amount)
	}
	if updated.Summary.CreditLineTotal != 500 {
		t.Fatalf("expected credit line total 500, got %d", updated.Summary.CreditLineTotal)
	}
	// Total 8700 minus the 500 credit.
	if updated.Summary.PendingDifference != 8200 {
		t.Fatalf("expected pending difference 8200, got %d", updated.Summary.PendingDifference)
	}
}

func TestConfirmRecomputesTaxesWhenAutomatic(t *testing.T) {
	order := baseTestOrder()
	order.AutomaticTaxes = true

	taxCalls := 0
	taxes := &stubTaxes{
		getFn: func(_ context.Context, _ Order, items []OrderLineItem, _ []OrderShippingMethod) (TaxLineSets, error) {
			taxCalls++
			sets := TaxLineSets{ItemTaxLines: map[string][]OrderTaxLine{}}
			for _, item := range items {
				sets.ItemTaxLines[item.ID] = []OrderTaxLine{{Code: "vat", Rate: 0.1, Amount: item.UnitPrice * int64(item.Quantity) / 10}}
			}
			return sets, nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: &stubChangeRepo{}, Taxes: taxes})

	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Version: 1,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_1",
				Action:  domain.ActionItemUpdate,
				Details: domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: 10, QuantityDiff: 5},
			},
		},
	}

	updated, err := engine.Confirm(context.Background(), order, change, ConfirmContext{Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if taxCalls != 1 {
		t.Fatalf("expected one tax recompute, got %d", taxCalls)
	}
	// 10*1000 + 2*1500 = 13000 subtotal, 10% item tax = 1300.
	if updated.Summary.TaxTotal != 1300 {
		t.Fatalf("expected tax total 1300, got %d", updated.Summary.TaxTotal)
	}
}

func TestConfirmSkipsForcedTaxesWithoutCountry(t *testing.T) {
	order := baseTestOrder()
	order.AutomaticTaxes = false
	order.ShippingAddress = nil

	taxCalls := 0
	taxes := &stubTaxes{
		getFn: func(context.Context, Order, []OrderLineItem, []OrderShippingMethod) (TaxLineSets, error) {
			taxCalls++
			return TaxLineSets{}, nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: &stubChangeRepo{}, Taxes: taxes})

	change := domain.OrderChange{ID: "ordch_1", OrderID: order.ID, Version: 1}
	_, err := engine.Confirm(context.Background(), order, change, ConfirmContext{ForceTaxCalc: true, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if taxCalls != 0 {
		t.Fatalf("expected forced tax calc skipped without a country, got %d calls", taxCalls)
	}
}

func TestCompensateRestoresPromotionSet(t *testing.T) {
	order := baseTestOrder()
	// Staging already swapped the working set: SALE10 out, VIP20 in.
	order.PromotionCodes = []string{"VIP20"}

	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Status:  domain.ChangeStatusRequested,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_remove",
				Action:  domain.ActionPromotionRemove,
				Details: domain.PromotionRemoveDetails{Code: "SALE10"},
			},
			{
				ID:      "ordchact_add",
				Action:  domain.ActionPromotionAdd,
				Details: domain.PromotionAddDetails{Code: "VIP20"},
			},
		},
	}

	var persisted domain.Order
	orders := &stubOrderRepo{
		updateFn: func(_ context.Context, o domain.Order) error {
			persisted = o
			return nil
		},
	}
	adjustCalls := 0
	promotions := &stubPromotions{
		computeFn: func(_ context.Context, _ Order, codes []string) (AdjustmentSets, error) {
			adjustCalls++
			if !slices.Equal(codes, []string{"SALE10"}) {
				t.Fatalf("expected adjustments recomputed for [SALE10], got %v", codes)
			}
			return AdjustmentSets{}, nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: orders, Changes: &stubChangeRepo{}, Promotions: promotions})

	updated, err := engine.Compensate(context.Background(), order, change, CompensateContext{
		Status:  domain.ChangeStatusDeclined,
		ActorID: "usr_staff",
		Reason:  "changed our mind",
		Now:     time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("compensate: %v", err)
	}

	if !slices.Equal(persisted.PromotionCodes, []string{"SALE10"}) {
		t.Fatalf("expected promotion set restored to [SALE10], got %v", persisted.PromotionCodes)
	}
	if persisted.Version != order.Version {
		t.Fatalf("expected no version bump on compensation, got %d", persisted.Version)
	}
	if adjustCalls != 1 {
		t.Fatalf("expected one adjustment recompute, got %d", adjustCalls)
	}
	if updated.Status != domain.ChangeStatusDeclined {
		t.Fatalf("expected declined change, got %s", updated.Status)
	}
	if updated.DeclinedReason != "changed our mind" {
		t.Fatalf("expected reason recorded, got %q", updated.DeclinedReason)
	}
}

func TestCompensateRestoresPriorShippingMethod(t *testing.T) {
	order := baseTestOrder()
	// The staged update already materialized the new option on the method row.
	order.ShippingMethods[0].ShippingOptionID = "so_express"
	order.ShippingMethods[0].Amount = 1200

	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Actions: []domain.OrderChangeAction{
			{
				ID:     "ordchact_upd",
				Action: domain.ActionShippingUpdate,
				Details: domain.ShippingUpdateDetails{
					ShippingMethodID:    "osm_1",
					OldShippingOptionID: "so_ground",
					NewShippingOptionID: "so_express",
					OldAmount:           700,
					NewAmount:           1200,
				},
			},
		},
	}

	var restored domain.OrderShippingMethod
	orders := &stubOrderRepo{
		updateMethodFn: func(_ context.Context, method domain.OrderShippingMethod) error {
			restored = method
			return nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: orders, Changes: &stubChangeRepo{}})

	_, err := engine.Compensate(context.Background(), order, change, CompensateContext{
		Status: domain.ChangeStatusCanceled,
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("compensate: %v", err)
	}
	if restored.ShippingOptionID != "so_ground" || restored.Amount != 700 {
		t.Fatalf("expected prior option restored, got %s amount %d", restored.ShippingOptionID, restored.Amount)
	}
}

func TestCompensateWithNoActionsIsANoOp(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", OrderID: order.ID, Status: domain.ChangeStatusPending}

	orderWrites := 0
	orders := &stubOrderRepo{
		updateFn: func(context.Context, domain.Order) error {
			orderWrites++
			return nil
		},
	}
	engine := newTestEngine(t, ChangeEngineDeps{Orders: orders, Changes: &stubChangeRepo{}})

	updated, err := engine.Compensate(context.Background(), order, change, CompensateContext{
		Status: domain.ChangeStatusCanceled,
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("compensate: %v", err)
	}
	if orderWrites != 0 {
		t.Fatalf("expected no order writes, got %d", orderWrites)
	}
	if updated.Status != domain.ChangeStatusCanceled {
		t.Fatalf("expected canceled, got %s", updated.Status)
	}
}

func TestConfirmReplacesAdjustmentsOnStagedItem(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{
		ID:      "ordch_1",
		OrderID: order.ID,
		Version: 1,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_add",
				Action:  domain.ActionItemAdd,
				Details: domain.ItemAddDetails{VariantID: "var_9", Title: "Hat", Quantity: 1, UnitPrice: 2000},
			},
			{
				ID:     "ordchact_adj",
				Action: domain.ActionItemAdjustmentsReplace,
				Details: domain.ItemAdjustmentsReplaceDetails{
					SourceActionID: "ordchact_add",
					Adjustments:    []domain.OrderAdjustment{{ID: "adj_1", Code: "SALE10", Amount: 200}},
				},
			},
		},
	}

	engine := newTestEngine(t, ChangeEngineDeps{Orders: &stubOrderRepo{}, Changes: &stubChangeRepo{}})

	updated, err := engine.Confirm(context.Background(), order, change, ConfirmContext{Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var added *domain.OrderLineItem
	for i := range updated.Items {
		if updated.Items[i].VariantID == "var_9" {
			added = &updated.Items[i]
		}
	}
	if added == nil {
		t.Fatal("expected staged item on confirmed order")
	}
	if len(added.Adjustments) != 1 || added.Adjustments[0].Amount != 200 {
		t.Fatalf("expected adjustment carried onto the new item, got %#v", added.Adjustments)
	}
	if updated.Summary.DiscountTotal != 200 {
		t.Fatalf("expected discount total 200, got %d", updated.Summary.DiscountTotal)
	}
}
