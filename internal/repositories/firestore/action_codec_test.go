package firestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stagecart/api/internal/domain"
)

func TestActionDetailsCodecItemUpdate(t *testing.T) {
	price := int64(1250)
	encoded := encodeActionDetails(domain.ItemUpdateDetails{
		ItemID:       "ordli_1",
		Quantity:     8,
		QuantityDiff: 3,
		UnitPrice:    &price,
	})
	require.Equal(t, "ITEM_UPDATE", encoded["kind"])

	decoded, err := decodeActionDetails(encoded)
	require.NoError(t, err)

	details, ok := decoded.(domain.ItemUpdateDetails)
	require.True(t, ok, "expected ItemUpdateDetails, got %T", decoded)
	assert.Equal(t, "ordli_1", details.ItemID)
	assert.Equal(t, 8, details.Quantity)
	assert.Equal(t, 3, details.QuantityDiff)
	require.NotNil(t, details.UnitPrice)
	assert.Equal(t, int64(1250), *details.UnitPrice)
}

func TestActionDetailsCodecHandlesFirestoreNumbers(t *testing.T) {
	// Firestore hands integers back as int64; emulator JSON paths may
	// produce float64. Both must decode.
	for _, raw := range []map[string]any{
		{"kind": "RETURN_ITEM", "itemId": "ordli_1", "quantity": int64(3), "receivedQuantity": int64(1)},
		{"kind": "RETURN_ITEM", "itemId": "ordli_1", "quantity": float64(3), "receivedQuantity": float64(1)},
	} {
		decoded, err := decodeActionDetails(raw)
		require.NoError(t, err)
		details, ok := decoded.(domain.ReturnItemDetails)
		require.True(t, ok)
		assert.Equal(t, 3, details.Quantity)
		assert.Equal(t, 1, details.ReceivedQuantity)
	}
}

func TestActionDetailsCodecOrderProperties(t *testing.T) {
	email := "new@example.com"
	encoded := encodeActionDetails(domain.UpdateOrderPropertiesDetails{
		Email: &email,
		ShippingAddress: &domain.Address{
			Recipient:   "A. Customer",
			Line1:       "1 Main St",
			City:        "Osaka",
			PostalCode:  "530-0001",
			CountryCode: "JP",
		},
	})

	decoded, err := decodeActionDetails(encoded)
	require.NoError(t, err)

	details, ok := decoded.(domain.UpdateOrderPropertiesDetails)
	require.True(t, ok)
	require.NotNil(t, details.Email)
	assert.Equal(t, email, *details.Email)
	require.NotNil(t, details.ShippingAddress)
	assert.Equal(t, "JP", details.ShippingAddress.CountryCode)
	assert.Nil(t, details.BillingAddress)
}

func TestActionDetailsCodecAdjustmentsReplace(t *testing.T) {
	encoded := encodeActionDetails(domain.ItemAdjustmentsReplaceDetails{
		SourceActionID: "ordchact_add",
		Adjustments: []domain.OrderAdjustment{
			{ID: "adj_1", Code: "SALE10", PromotionID: "promo_1", Amount: 200},
		},
	})

	// Simulate the round trip through Firestore, which returns the
	// adjustments slice as []any.
	list := encoded["adjustments"].([]map[string]any)
	anyList := make([]any, len(list))
	for i, m := range list {
		anyList[i] = map[string]any(m)
	}
	encoded["adjustments"] = anyList

	decoded, err := decodeActionDetails(encoded)
	require.NoError(t, err)

	details, ok := decoded.(domain.ItemAdjustmentsReplaceDetails)
	require.True(t, ok)
	assert.Equal(t, "ordchact_add", details.SourceActionID)
	require.Len(t, details.Adjustments, 1)
	assert.Equal(t, int64(200), details.Adjustments[0].Amount)
}

func TestActionDetailsCodecRejectsUnknownKind(t *testing.T) {
	_, err := decodeActionDetails(map[string]any{"kind": "TELEPORT_ITEM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action details kind")
}
