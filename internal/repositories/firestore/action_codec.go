package firestore

import (
	"fmt"

	domain "github.com/stagecart/api/internal/domain"
)

// Action details are stored as a flat map tagged with the action kind. Each
// kind decodes into its statically known variant struct so the service layer
// never sees untyped payloads.

func encodeActionDetails(details domain.ActionDetails) map[string]any {
	if details == nil {
		return nil
	}
	out := map[string]any{"kind": string(details.Kind())}

	switch d := details.(type) {
	case domain.ItemAddDetails:
		out["variantId"] = d.VariantID
		out["title"] = d.Title
		out["quantity"] = d.Quantity
		out["unitPrice"] = d.UnitPrice
		if d.CompareAtUnitPrice != nil {
			out["compareAtUnitPrice"] = *d.CompareAtUnitPrice
		}
		if len(d.Metadata) > 0 {
			out["metadata"] = d.Metadata
		}
	case domain.ItemUpdateDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
		out["quantityDiff"] = d.QuantityDiff
		if d.UnitPrice != nil {
			out["unitPrice"] = *d.UnitPrice
		}
	case domain.ItemRemoveDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.ShippingAddDetails:
		out["shippingMethodId"] = d.ShippingMethodID
		out["shippingOptionId"] = d.ShippingOptionID
		out["amount"] = d.Amount
	case domain.ShippingUpdateDetails:
		out["shippingMethodId"] = d.ShippingMethodID
		out["oldShippingOptionId"] = d.OldShippingOptionID
		out["newShippingOptionId"] = d.NewShippingOptionID
		out["oldAmount"] = d.OldAmount
		out["newAmount"] = d.NewAmount
	case domain.ShippingRemoveDetails:
		out["shippingMethodId"] = d.ShippingMethodID
	case domain.ReturnItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
		out["receivedQuantity"] = d.ReceivedQuantity
		out["reasonId"] = d.ReasonID
		out["note"] = d.Note
	case domain.ReceiveReturnItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.ReceiveDamagedItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.CancelReturnItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.FulfillItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.ShipItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.DeliverItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.CancelItemFulfillmentDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.WriteOffItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.ReinstateItemDetails:
		out["itemId"] = d.ItemID
		out["quantity"] = d.Quantity
	case domain.PromotionAddDetails:
		out["code"] = d.Code
	case domain.PromotionRemoveDetails:
		out["code"] = d.Code
	case domain.CreditLineAddDetails:
		out["reference"] = d.Reference
		out["referenceId"] = d.ReferenceID
		out["amount"] = d.Amount
	case domain.TransferCustomerDetails:
		out["originalCustomerId"] = d.OriginalCustomerID
		out["newCustomerId"] = d.NewCustomerID
		out["originalEmail"] = d.OriginalEmail
		out["newEmail"] = d.NewEmail
	case domain.UpdateOrderPropertiesDetails:
		if d.Email != nil {
			out["email"] = *d.Email
		}
		if d.ShippingAddress != nil {
			out["shippingAddress"] = encodeAddressMap(d.ShippingAddress)
		}
		if d.BillingAddress != nil {
			out["billingAddress"] = encodeAddressMap(d.BillingAddress)
		}
		if len(d.Metadata) > 0 {
			out["metadata"] = d.Metadata
		}
	case domain.ItemAdjustmentsReplaceDetails:
		out["itemId"] = d.ItemID
		out["sourceActionId"] = d.SourceActionID
		adjustments := make([]map[string]any, 0, len(d.Adjustments))
		for _, adj := range d.Adjustments {
			adjustments = append(adjustments, map[string]any{
				"id":          adj.ID,
				"code":        adj.Code,
				"promotionId": adj.PromotionID,
				"amount":      adj.Amount,
			})
		}
		out["adjustments"] = adjustments
	}
	return out
}

func decodeActionDetails(raw map[string]any) (domain.ActionDetails, error) {
	kind := domain.ActionKind(asString(raw["kind"]))
	switch kind {
	case domain.ActionItemAdd:
		return domain.ItemAddDetails{
			VariantID:          asString(raw["variantId"]),
			Title:              asString(raw["title"]),
			Quantity:           asInt(raw["quantity"]),
			UnitPrice:          asInt64(raw["unitPrice"]),
			CompareAtUnitPrice: asInt64Ptr(raw["compareAtUnitPrice"]),
			Metadata:           asMap(raw["metadata"]),
		}, nil
	case domain.ActionItemUpdate:
		return domain.ItemUpdateDetails{
			ItemID:       asString(raw["itemId"]),
			Quantity:     asInt(raw["quantity"]),
			QuantityDiff: asInt(raw["quantityDiff"]),
			UnitPrice:    asInt64Ptr(raw["unitPrice"]),
		}, nil
	case domain.ActionItemRemove:
		return domain.ItemRemoveDetails{
			ItemID:   asString(raw["itemId"]),
			Quantity: asInt(raw["quantity"]),
		}, nil
	case domain.ActionShippingAdd:
		return domain.ShippingAddDetails{
			ShippingMethodID: asString(raw["shippingMethodId"]),
			ShippingOptionID: asString(raw["shippingOptionId"]),
			Amount:           asInt64(raw["amount"]),
		}, nil
	case domain.ActionShippingUpdate:
		return domain.ShippingUpdateDetails{
			ShippingMethodID:    asString(raw["shippingMethodId"]),
			OldShippingOptionID: asString(raw["oldShippingOptionId"]),
			NewShippingOptionID: asString(raw["newShippingOptionId"]),
			OldAmount:           asInt64(raw["oldAmount"]),
			NewAmount:           asInt64(raw["newAmount"]),
		}, nil
	case domain.ActionShippingRemove:
		return domain.ShippingRemoveDetails{
			ShippingMethodID: asString(raw["shippingMethodId"]),
		}, nil
	case domain.ActionReturnItem:
		return domain.ReturnItemDetails{
			ItemID:           asString(raw["itemId"]),
			Quantity:         asInt(raw["quantity"]),
			ReceivedQuantity: asInt(raw["receivedQuantity"]),
			ReasonID:         asString(raw["reasonId"]),
			Note:             asString(raw["note"]),
		}, nil
	case domain.ActionReceiveReturnItem:
		return domain.ReceiveReturnItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionReceiveDamagedItem:
		return domain.ReceiveDamagedItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionCancelReturnItem:
		return domain.CancelReturnItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionFulfillItem:
		return domain.FulfillItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionShipItem:
		return domain.ShipItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionDeliverItem:
		return domain.DeliverItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionCancelItemFulfillment:
		return domain.CancelItemFulfillmentDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionWriteOffItem:
		return domain.WriteOffItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionReinstateItem:
		return domain.ReinstateItemDetails{ItemID: asString(raw["itemId"]), Quantity: asInt(raw["quantity"])}, nil
	case domain.ActionPromotionAdd:
		return domain.PromotionAddDetails{Code: asString(raw["code"])}, nil
	case domain.ActionPromotionRemove:
		return domain.PromotionRemoveDetails{Code: asString(raw["code"])}, nil
	case domain.ActionCreditLineAdd:
		return domain.CreditLineAddDetails{
			Reference:   asString(raw["reference"]),
			ReferenceID: asString(raw["referenceId"]),
			Amount:      asInt64(raw["amount"]),
		}, nil
	case domain.ActionTransferCustomer:
		return domain.TransferCustomerDetails{
			OriginalCustomerID: asString(raw["originalCustomerId"]),
			NewCustomerID:      asString(raw["newCustomerId"]),
			OriginalEmail:      asString(raw["originalEmail"]),
			NewEmail:           asString(raw["newEmail"]),
		}, nil
	case domain.ActionUpdateOrderProperties:
		details := domain.UpdateOrderPropertiesDetails{Metadata: asMap(raw["metadata"])}
		if email, ok := raw["email"].(string); ok {
			details.Email = &email
		}
		if addr := decodeAddressMap(raw["shippingAddress"]); addr != nil {
			details.ShippingAddress = addr
		}
		if addr := decodeAddressMap(raw["billingAddress"]); addr != nil {
			details.BillingAddress = addr
		}
		return details, nil
	case domain.ActionItemAdjustmentsReplace:
		details := domain.ItemAdjustmentsReplaceDetails{
			ItemID:         asString(raw["itemId"]),
			SourceActionID: asString(raw["sourceActionId"]),
		}
		if list, ok := raw["adjustments"].([]any); ok {
			for _, entry := range list {
				m, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				details.Adjustments = append(details.Adjustments, domain.OrderAdjustment{
					ID:          asString(m["id"]),
					Code:        asString(m["code"]),
					PromotionID: asString(m["promotionId"]),
					Amount:      asInt64(m["amount"]),
				})
			}
		}
		return details, nil
	}
	return nil, fmt.Errorf("unknown action details kind %q", kind)
}

func encodeAddressMap(addr *domain.Address) map[string]any {
	if addr == nil {
		return nil
	}
	out := map[string]any{
		"recipient":   addr.Recipient,
		"line1":       addr.Line1,
		"city":        addr.City,
		"postalCode":  addr.PostalCode,
		"countryCode": addr.CountryCode,
	}
	if addr.Line2 != nil {
		out["line2"] = *addr.Line2
	}
	if addr.State != nil {
		out["state"] = *addr.State
	}
	if addr.Phone != nil {
		out["phone"] = *addr.Phone
	}
	return out
}

func decodeAddressMap(value any) *domain.Address {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	addr := &domain.Address{
		Recipient:   asString(m["recipient"]),
		Line1:       asString(m["line1"]),
		City:        asString(m["city"]),
		PostalCode:  asString(m["postalCode"]),
		CountryCode: asString(m["countryCode"]),
	}
	if line2, ok := m["line2"].(string); ok {
		addr.Line2 = &line2
	}
	if state, ok := m["state"].(string); ok {
		addr.State = &state
	}
	if phone, ok := m["phone"].(string); ok {
		addr.Phone = &phone
	}
	return addr
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asInt(value any) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func asInt64Ptr(value any) *int64 {
	if value == nil {
		return nil
	}
	v := asInt64(value)
	return &v
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}
