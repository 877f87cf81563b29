package services

import (
	"errors"
	"testing"

	domain "github.com/stagecart/api/internal/domain"
)

func TestNormalizeStagedActionComputesQuantityDiff(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", OrderID: order.ID, Status: domain.ChangeStatusPending}

	got, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: 8},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	details := got.Details.(domain.ItemUpdateDetails)
	if details.QuantityDiff != 3 {
		t.Fatalf("expected diff 3, got %d", details.QuantityDiff)
	}
	if got.Action != domain.ActionItemUpdate {
		t.Fatalf("expected action kind inferred, got %s", got.Action)
	}
	if got.ReferenceID != "ordli_1" {
		t.Fatalf("expected reference id set, got %q", got.ReferenceID)
	}
}

func TestNormalizeStagedActionRejectsNegativeQuantity(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: -1},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestNormalizeStagedActionRejectsUnknownItem(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ReturnItemDetails{ItemID: "ordli_missing", Quantity: 1},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestNormalizeStagedActionRejectsKindMismatch(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Action:  domain.ActionItemRemove,
		Details: domain.ItemUpdateDetails{ItemID: "ordli_1", Quantity: 3},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestNormalizeStagedActionRejectsOverReturn(t *testing.T) {
	order := baseTestOrder()
	order.Items[0].ReturnRequestedQty = 4
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	// Item quantity 5 with 4 already requested leaves room for 1.
	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ReturnItemDetails{ItemID: "ordli_1", Quantity: 2},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestNormalizeStagedActionRejectsRemovingFulfilledItem(t *testing.T) {
	order := baseTestOrder()
	order.Items[0].FulfilledQuantity = 2
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ItemRemoveDetails{ItemID: "ordli_1"},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestNormalizeStagedActionPromotionDuplicates(t *testing.T) {
	order := baseTestOrder()
	order.PromotionCodes = []string{"SALE10"}
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.PromotionAddDetails{Code: "SALE10"},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected duplicate promotion rejected, got %v", err)
	}

	_, err = normalizeStagedAction(order, change, StageActionInput{
		Details: domain.PromotionRemoveDetails{Code: "VIP20"},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected unapplied promotion removal rejected, got %v", err)
	}
}

func TestNormalizeStagedActionPromotionSeesStagedCodes(t *testing.T) {
	order := baseTestOrder()
	order.PromotionCodes = []string{"SALE10"}
	change := domain.OrderChange{
		ID:     "ordch_1",
		Status: domain.ChangeStatusPending,
		Actions: []domain.OrderChangeAction{
			{
				ID:      "ordchact_rm",
				Action:  domain.ActionPromotionRemove,
				Details: domain.PromotionRemoveDetails{Code: "SALE10"},
			},
		},
	}

	// SALE10 is staged for removal, so adding it again is allowed.
	got, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.PromotionAddDetails{Code: "SALE10"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Reference != "promotion" || got.ReferenceID != "SALE10" {
		t.Fatalf("expected promotion reference set, got %q/%q", got.Reference, got.ReferenceID)
	}
}

func TestValidateCreditLineAmount(t *testing.T) {
	order := baseTestOrder()
	order.Summary.PendingDifference = 1000

	cases := []struct {
		name    string
		amount  int64
		wantErr bool
	}{
		{name: "matches sign within balance", amount: 600, wantErr: false},
		{name: "zero amount", amount: 0, wantErr: true},
		{name: "wrong sign", amount: -600, wantErr: true},
		{name: "exceeds balance", amount: 1500, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCreditLineAmount(order, tc.amount)
			if tc.wantErr && !errors.Is(err, ErrOrderChangeInvalidInput) {
				t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected amount accepted, got %v", err)
			}
		})
	}
}

func TestNormalizeStagedActionAdjustmentsReplaceNeedsValidSource(t *testing.T) {
	order := baseTestOrder()
	change := domain.OrderChange{ID: "ordch_1", Status: domain.ChangeStatusPending}

	_, err := normalizeStagedAction(order, change, StageActionInput{
		Details: domain.ItemAdjustmentsReplaceDetails{SourceActionID: "ordchact_ghost"},
	})
	if !errors.Is(err, ErrOrderChangeInvalidInput) {
		t.Fatalf("expected ErrOrderChangeInvalidInput, got %v", err)
	}
}

func TestEnsureChangeActive(t *testing.T) {
	for _, status := range []domain.ChangeStatus{domain.ChangeStatusPending, domain.ChangeStatusRequested} {
		if err := ensureChangeActive(domain.OrderChange{ID: "ordch_1", Status: status}); err != nil {
			t.Fatalf("expected %s change accepted, got %v", status, err)
		}
	}
	for _, status := range []domain.ChangeStatus{domain.ChangeStatusConfirmed, domain.ChangeStatusDeclined, domain.ChangeStatusCanceled} {
		err := ensureChangeActive(domain.OrderChange{ID: "ordch_1", Status: status})
		if !errors.Is(err, ErrOrderChangeNotAllowed) {
			t.Fatalf("expected %s change rejected, got %v", status, err)
		}
	}
}
