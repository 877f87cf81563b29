package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/stagecart/api/internal/domain"
	pfirestore "github.com/stagecart/api/internal/platform/firestore"
	"github.com/stagecart/api/internal/repositories"
)

const (
	orderCollection          = "orders"
	shippingMethodCollection = "shippingMethods"
	creditLineCollection     = "creditLines"
)

// OrderRepository persists order aggregates within Firestore. Shipping methods
// and credit lines live in subcollections so staged actions can materialize
// and compensate them without rewriting the order document.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing if it already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, order.ID, encodeOrder(order))
	return err
}

// FindByID loads the order document together with its shipping method and
// credit line subcollections.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order := decodeOrder(doc.ID, doc.Data)

	methods, err := r.listShippingMethods(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.ShippingMethods = methods

	lines, err := r.listCreditLines(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.CreditLines = lines

	return order, nil
}

// InsertShippingMethod creates a shipping method row under the order.
func (r *OrderRepository) InsertShippingMethod(ctx context.Context, method domain.OrderShippingMethod) error {
	ref, err := r.shippingMethodRef(ctx, method.OrderID, method.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeShippingMethod(method)); err != nil {
		return pfirestore.WrapError("orders.shipping_methods.insert", err)
	}
	return nil
}

// UpdateShippingMethod replaces a shipping method row, failing when it is gone.
func (r *OrderRepository) UpdateShippingMethod(ctx context.Context, method domain.OrderShippingMethod) error {
	ref, err := r.shippingMethodRef(ctx, method.OrderID, method.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "shippingOptionId", Value: method.ShippingOptionID},
		{Path: "amount", Value: method.Amount},
		{Path: "updatedAt", Value: method.UpdatedAt},
	}); err != nil {
		return pfirestore.WrapError("orders.shipping_methods.update", err)
	}
	return nil
}

// DeleteShippingMethod removes a shipping method row. A missing row surfaces
// as a not-found error so compensation can treat it as already satisfied.
func (r *OrderRepository) DeleteShippingMethod(ctx context.Context, orderID, shippingMethodID string) error {
	ref, err := r.shippingMethodRef(ctx, orderID, shippingMethodID)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return pfirestore.WrapError("orders.shipping_methods.delete", err)
	}
	if _, err := snap.Ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.shipping_methods.delete", err)
	}
	return nil
}

// InsertCreditLine appends a credit line row under the order.
func (r *OrderRepository) InsertCreditLine(ctx context.Context, line domain.OrderCreditLine) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(line.OrderID) == "" || strings.TrimSpace(line.ID) == "" {
		return errors.New("order repository: credit line ids are required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(orderCollection).Doc(line.OrderID).Collection(creditLineCollection).Doc(line.ID)
	if _, err := ref.Create(ctx, creditLineDocument{
		Reference:   line.Reference,
		ReferenceID: line.ReferenceID,
		Amount:      line.Amount,
		CreatedAt:   line.CreatedAt,
	}); err != nil {
		return pfirestore.WrapError("orders.credit_lines.insert", err)
	}
	return nil
}

func (r *OrderRepository) shippingMethodRef(ctx context.Context, orderID, methodID string) (*firestore.DocumentRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(methodID) == "" {
		return nil, errors.New("order repository: order and shipping method ids are required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(orderCollection).Doc(orderID).Collection(shippingMethodCollection).Doc(methodID), nil
}

func (r *OrderRepository) listShippingMethods(ctx context.Context, orderID string) ([]domain.OrderShippingMethod, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(orderCollection).Doc(orderID).
		Collection(shippingMethodCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var methods []domain.OrderShippingMethod
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.shipping_methods.list", err)
		}
		var doc shippingMethodDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders.shipping_methods.list", err)
		}
		methods = append(methods, decodeShippingMethod(snap.Ref.ID, orderID, doc))
	}
	return methods, nil
}

func (r *OrderRepository) listCreditLines(ctx context.Context, orderID string) ([]domain.OrderCreditLine, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(orderCollection).Doc(orderID).
		Collection(creditLineCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var lines []domain.OrderCreditLine
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.credit_lines.list", err)
		}
		var doc creditLineDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders.credit_lines.list", err)
		}
		lines = append(lines, domain.OrderCreditLine{
			ID:          snap.Ref.ID,
			OrderID:     orderID,
			Reference:   doc.Reference,
			ReferenceID: doc.ReferenceID,
			Amount:      doc.Amount,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return lines, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		DisplayID:      order.DisplayID,
		Version:        order.Version,
		Status:         string(order.Status),
		CustomerID:     order.CustomerID,
		Email:          order.Email,
		RegionID:       order.RegionID,
		CurrencyCode:   strings.ToLower(strings.TrimSpace(order.CurrencyCode)),
		AutomaticTaxes: order.AutomaticTaxes,
		PromotionCodes: order.PromotionCodes,
		Metadata:       order.Metadata,
		Summary: summaryDocument{
			Subtotal:             order.Summary.Subtotal,
			DiscountTotal:        order.Summary.DiscountTotal,
			ShippingTotal:        order.Summary.ShippingTotal,
			TaxTotal:             order.Summary.TaxTotal,
			CreditLineTotal:      order.Summary.CreditLineTotal,
			Total:                order.Summary.Total,
			PendingDifference:    order.Summary.PendingDifference,
			ReturnRequestedTotal: order.Summary.ReturnRequestedTotal,
		},
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
		CanceledAt: order.CanceledAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, encodeLineItem(item))
	}
	for _, tx := range order.Transactions {
		doc.Transactions = append(doc.Transactions, transactionDocument{
			ID:           tx.ID,
			Amount:       tx.Amount,
			CurrencyCode: tx.CurrencyCode,
			Reference:    tx.Reference,
			ReferenceID:  tx.ReferenceID,
			CreatedAt:    tx.CreatedAt,
		})
	}
	doc.ShippingAddress = encodeAddress(order.ShippingAddress)
	doc.BillingAddress = encodeAddress(order.BillingAddress)
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:             id,
		DisplayID:      doc.DisplayID,
		Version:        doc.Version,
		Status:         domain.OrderStatus(doc.Status),
		CustomerID:     doc.CustomerID,
		Email:          doc.Email,
		RegionID:       doc.RegionID,
		CurrencyCode:   doc.CurrencyCode,
		AutomaticTaxes: doc.AutomaticTaxes,
		PromotionCodes: doc.PromotionCodes,
		Metadata:       doc.Metadata,
		Summary: domain.OrderSummary{
			Subtotal:             doc.Summary.Subtotal,
			DiscountTotal:        doc.Summary.DiscountTotal,
			ShippingTotal:        doc.Summary.ShippingTotal,
			TaxTotal:             doc.Summary.TaxTotal,
			CreditLineTotal:      doc.Summary.CreditLineTotal,
			Total:                doc.Summary.Total,
			PendingDifference:    doc.Summary.PendingDifference,
			ReturnRequestedTotal: doc.Summary.ReturnRequestedTotal,
		},
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		CanceledAt: doc.CanceledAt,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, decodeLineItem(id, item))
	}
	for _, tx := range doc.Transactions {
		order.Transactions = append(order.Transactions, domain.OrderTransaction{
			ID:           tx.ID,
			OrderID:      id,
			Amount:       tx.Amount,
			CurrencyCode: tx.CurrencyCode,
			Reference:    tx.Reference,
			ReferenceID:  tx.ReferenceID,
			CreatedAt:    tx.CreatedAt,
		})
	}
	order.ShippingAddress = decodeAddress(doc.ShippingAddress)
	order.BillingAddress = decodeAddress(doc.BillingAddress)
	return order
}

func encodeLineItem(item domain.OrderLineItem) lineItemDocument {
	doc := lineItemDocument{
		ID:                 item.ID,
		Title:              item.Title,
		SKU:                item.SKU,
		VariantID:          item.VariantID,
		Quantity:           item.Quantity,
		FulfilledQuantity:  item.FulfilledQuantity,
		ShippedQuantity:    item.ShippedQuantity,
		DeliveredQuantity:  item.DeliveredQuantity,
		ReturnRequestedQty: item.ReturnRequestedQty,
		ReturnReceivedQty:  item.ReturnReceivedQty,
		WrittenOffQty:      item.WrittenOffQty,
		UnitPrice:          item.UnitPrice,
		CompareAtUnitPrice: item.CompareAtUnitPrice,
		Metadata:           item.Metadata,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
	for _, adj := range item.Adjustments {
		doc.Adjustments = append(doc.Adjustments, adjustmentDocument{
			ID: adj.ID, Code: adj.Code, PromotionID: adj.PromotionID, Amount: adj.Amount,
		})
	}
	for _, tax := range item.TaxLines {
		doc.TaxLines = append(doc.TaxLines, taxLineDocument{
			ID: tax.ID, Code: tax.Code, Rate: tax.Rate, Amount: tax.Amount,
		})
	}
	return doc
}

func decodeLineItem(orderID string, doc lineItemDocument) domain.OrderLineItem {
	item := domain.OrderLineItem{
		ID:                 doc.ID,
		OrderID:            orderID,
		Title:              doc.Title,
		SKU:                doc.SKU,
		VariantID:          doc.VariantID,
		Quantity:           doc.Quantity,
		FulfilledQuantity:  doc.FulfilledQuantity,
		ShippedQuantity:    doc.ShippedQuantity,
		DeliveredQuantity:  doc.DeliveredQuantity,
		ReturnRequestedQty: doc.ReturnRequestedQty,
		ReturnReceivedQty:  doc.ReturnReceivedQty,
		WrittenOffQty:      doc.WrittenOffQty,
		UnitPrice:          doc.UnitPrice,
		CompareAtUnitPrice: doc.CompareAtUnitPrice,
		Metadata:           doc.Metadata,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
	for _, adj := range doc.Adjustments {
		item.Adjustments = append(item.Adjustments, domain.OrderAdjustment{
			ID: adj.ID, Code: adj.Code, PromotionID: adj.PromotionID, Amount: adj.Amount,
		})
	}
	for _, tax := range doc.TaxLines {
		item.TaxLines = append(item.TaxLines, domain.OrderTaxLine{
			ID: tax.ID, Code: tax.Code, Rate: tax.Rate, Amount: tax.Amount,
		})
	}
	return item
}

func encodeShippingMethod(method domain.OrderShippingMethod) shippingMethodDocument {
	doc := shippingMethodDocument{
		Name:             method.Name,
		ShippingOptionID: method.ShippingOptionID,
		Amount:           method.Amount,
		Metadata:         method.Metadata,
		CreatedAt:        method.CreatedAt,
		UpdatedAt:        method.UpdatedAt,
	}
	for _, adj := range method.Adjustments {
		doc.Adjustments = append(doc.Adjustments, adjustmentDocument{
			ID: adj.ID, Code: adj.Code, PromotionID: adj.PromotionID, Amount: adj.Amount,
		})
	}
	for _, tax := range method.TaxLines {
		doc.TaxLines = append(doc.TaxLines, taxLineDocument{
			ID: tax.ID, Code: tax.Code, Rate: tax.Rate, Amount: tax.Amount,
		})
	}
	return doc
}

func decodeShippingMethod(id, orderID string, doc shippingMethodDocument) domain.OrderShippingMethod {
	method := domain.OrderShippingMethod{
		ID:               id,
		OrderID:          orderID,
		Name:             doc.Name,
		ShippingOptionID: doc.ShippingOptionID,
		Amount:           doc.Amount,
		Metadata:         doc.Metadata,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	for _, adj := range doc.Adjustments {
		method.Adjustments = append(method.Adjustments, domain.OrderAdjustment{
			ID: adj.ID, Code: adj.Code, PromotionID: adj.PromotionID, Amount: adj.Amount,
		})
	}
	for _, tax := range doc.TaxLines {
		method.TaxLines = append(method.TaxLines, domain.OrderTaxLine{
			ID: tax.ID, Code: tax.Code, Rate: tax.Rate, Amount: tax.Amount,
		})
	}
	return method
}

func encodeAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Recipient:   addr.Recipient,
		Line1:       addr.Line1,
		Line2:       addr.Line2,
		City:        addr.City,
		State:       addr.State,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode,
		Phone:       addr.Phone,
	}
}

func decodeAddress(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		Recipient:   doc.Recipient,
		Line1:       doc.Line1,
		Line2:       doc.Line2,
		City:        doc.City,
		State:       doc.State,
		PostalCode:  doc.PostalCode,
		CountryCode: doc.CountryCode,
		Phone:       doc.Phone,
	}
}

type orderDocument struct {
	DisplayID       int64                 `firestore:"displayId"`
	Version         int                   `firestore:"version"`
	Status          string                `firestore:"status"`
	CustomerID      string                `firestore:"customerId,omitempty"`
	Email           string                `firestore:"email,omitempty"`
	RegionID        string                `firestore:"regionId,omitempty"`
	CurrencyCode    string                `firestore:"currencyCode"`
	AutomaticTaxes  bool                  `firestore:"automaticTaxes"`
	PromotionCodes  []string              `firestore:"promotionCodes,omitempty"`
	Items           []lineItemDocument    `firestore:"items,omitempty"`
	Transactions    []transactionDocument `firestore:"transactions,omitempty"`
	ShippingAddress *addressDocument      `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument      `firestore:"billingAddress,omitempty"`
	Summary         summaryDocument       `firestore:"summary"`
	Metadata        map[string]any        `firestore:"metadata,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
	CanceledAt      *time.Time            `firestore:"canceledAt,omitempty"`
}

type summaryDocument struct {
	Subtotal             int64 `firestore:"subtotal"`
	DiscountTotal        int64 `firestore:"discountTotal"`
	ShippingTotal        int64 `firestore:"shippingTotal"`
	TaxTotal             int64 `firestore:"taxTotal"`
	CreditLineTotal      int64 `firestore:"creditLineTotal"`
	Total                int64 `firestore:"total"`
	PendingDifference    int64 `firestore:"pendingDifference"`
	ReturnRequestedTotal int64 `firestore:"returnRequestedTotal"`
}

type lineItemDocument struct {
	ID                 string               `firestore:"id"`
	Title              string               `firestore:"title"`
	SKU                string               `firestore:"sku,omitempty"`
	VariantID          string               `firestore:"variantId,omitempty"`
	Quantity           int                  `firestore:"quantity"`
	FulfilledQuantity  int                  `firestore:"fulfilledQuantity"`
	ShippedQuantity    int                  `firestore:"shippedQuantity"`
	DeliveredQuantity  int                  `firestore:"deliveredQuantity"`
	ReturnRequestedQty int                  `firestore:"returnRequestedQty"`
	ReturnReceivedQty  int                  `firestore:"returnReceivedQty"`
	WrittenOffQty      int                  `firestore:"writtenOffQty"`
	UnitPrice          int64                `firestore:"unitPrice"`
	CompareAtUnitPrice *int64               `firestore:"compareAtUnitPrice,omitempty"`
	Adjustments        []adjustmentDocument `firestore:"adjustments,omitempty"`
	TaxLines           []taxLineDocument    `firestore:"taxLines,omitempty"`
	Metadata           map[string]any       `firestore:"metadata,omitempty"`
	CreatedAt          time.Time            `firestore:"createdAt"`
	UpdatedAt          time.Time            `firestore:"updatedAt"`
}

type shippingMethodDocument struct {
	Name             string               `firestore:"name,omitempty"`
	ShippingOptionID string               `firestore:"shippingOptionId"`
	Amount           int64                `firestore:"amount"`
	Adjustments      []adjustmentDocument `firestore:"adjustments,omitempty"`
	TaxLines         []taxLineDocument    `firestore:"taxLines,omitempty"`
	Metadata         map[string]any       `firestore:"metadata,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
}

type adjustmentDocument struct {
	ID          string `firestore:"id,omitempty"`
	Code        string `firestore:"code,omitempty"`
	PromotionID string `firestore:"promotionId,omitempty"`
	Amount      int64  `firestore:"amount"`
}

type taxLineDocument struct {
	ID     string  `firestore:"id,omitempty"`
	Code   string  `firestore:"code,omitempty"`
	Rate   float64 `firestore:"rate"`
	Amount int64   `firestore:"amount"`
}

type transactionDocument struct {
	ID           string    `firestore:"id"`
	Amount       int64     `firestore:"amount"`
	CurrencyCode string    `firestore:"currencyCode"`
	Reference    string    `firestore:"reference,omitempty"`
	ReferenceID  string    `firestore:"referenceId,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

type creditLineDocument struct {
	Reference   string    `firestore:"reference,omitempty"`
	ReferenceID string    `firestore:"referenceId,omitempty"`
	Amount      int64     `firestore:"amount"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type addressDocument struct {
	Recipient   string  `firestore:"recipient,omitempty"`
	Line1       string  `firestore:"line1"`
	Line2       *string `firestore:"line2,omitempty"`
	City        string  `firestore:"city"`
	State       *string `firestore:"state,omitempty"`
	PostalCode  string  `firestore:"postalCode"`
	CountryCode string  `firestore:"countryCode"`
	Phone       *string `firestore:"phone,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
