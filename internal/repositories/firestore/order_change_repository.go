package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stagecart/api/internal/domain"
	pfirestore "github.com/stagecart/api/internal/platform/firestore"
	"github.com/stagecart/api/internal/platform/pagination"
	"github.com/stagecart/api/internal/repositories"
)

const (
	orderChangeCollection     = "orderChanges"
	changeActionCollection    = "actions"
	orderChangeLockCollection = "orderChangeLocks"
)

// OrderChangeRepository persists order changes, their staged actions, and the
// per-(order, scope) locks that serialize active changes.
type OrderChangeRepository struct {
	base     *pfirestore.BaseRepository[orderChangeDocument]
	provider *pfirestore.Provider
}

// NewOrderChangeRepository constructs a Firestore-backed change repository.
func NewOrderChangeRepository(provider *pfirestore.Provider) (*OrderChangeRepository, error) {
	if provider == nil {
		return nil, errors.New("order change repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderChangeDocument](provider, orderChangeCollection, nil, nil)
	return &OrderChangeRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Create persists the change and its initial actions. A lock document keyed by
// (order, scope) is created in the same transaction; when another active
// change already holds the slot the lock create fails with AlreadyExists and
// the whole creation surfaces as a conflict.
func (r *OrderChangeRepository) Create(ctx context.Context, change domain.OrderChange) (domain.OrderChange, error) {
	if r == nil || r.provider == nil {
		return domain.OrderChange{}, errors.New("order change repository not initialised")
	}
	if strings.TrimSpace(change.ID) == "" || strings.TrimSpace(change.OrderID) == "" {
		return domain.OrderChange{}, errors.New("order change repository: change and order ids are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderChange{}, err
	}

	changeRef := client.Collection(orderChangeCollection).Doc(change.ID)
	lockRef := client.Collection(orderChangeLockCollection).Doc(scopeLockID(change))

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(lockRef)
		switch status.Code(err) {
		case codes.NotFound:
			// slot free
		case codes.OK:
			return status.Errorf(codes.AlreadyExists,
				"active change already exists for order %s scope %s", change.OrderID, scopeLockID(change))
		default:
			return err
		}

		if err := tx.Create(lockRef, scopeLockDocument{
			OrderID:       change.OrderID,
			OrderChangeID: change.ID,
			CreatedAt:     change.CreatedAt,
		}); err != nil {
			return err
		}
		if err := tx.Create(changeRef, encodeOrderChange(change)); err != nil {
			return err
		}
		for _, action := range change.Actions {
			actionRef := changeRef.Collection(changeActionCollection).Doc(action.ID)
			if err := tx.Create(actionRef, encodeChangeAction(action)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.OrderChange{}, pfirestore.WrapError("order_changes.create", err)
	}
	return change, nil
}

// Update replaces the change document. Transitions into a terminal status
// release the scope lock in the same transaction.
func (r *OrderChangeRepository) Update(ctx context.Context, change domain.OrderChange) error {
	if r == nil || r.provider == nil {
		return errors.New("order change repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	changeRef := client.Collection(orderChangeCollection).Doc(change.ID)
	lockRef := client.Collection(orderChangeLockCollection).Doc(scopeLockID(change))

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(changeRef); err != nil {
			return err
		}
		if err := tx.Set(changeRef, encodeOrderChange(change)); err != nil {
			return err
		}
		if change.Status.IsTerminal() {
			if err := tx.Delete(lockRef); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("order_changes.update", err)
}

// ConfirmCommit applies a confirmed change in a single transaction: the order
// document at its next version, the shipping method and credit line rows, the
// confirmed change document, and the released scope lock. The stored order
// version is re-read inside the transaction; a mismatch aborts the whole
// commit with a conflict so a concurrent confirmation can never overwrite an
// order that already advanced.
func (r *OrderChangeRepository) ConfirmCommit(ctx context.Context, commit repositories.ConfirmCommit) error {
	if r == nil || r.provider == nil {
		return errors.New("order change repository not initialised")
	}
	if strings.TrimSpace(commit.Order.ID) == "" || strings.TrimSpace(commit.Change.ID) == "" {
		return errors.New("order change repository: order and change ids are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	orderRef := client.Collection(orderCollection).Doc(commit.Order.ID)
	changeRef := client.Collection(orderChangeCollection).Doc(commit.Change.ID)
	lockRef := client.Collection(orderChangeLockCollection).Doc(scopeLockID(commit.Change))

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if stored.Version != commit.ExpectedVersion {
			return status.Errorf(codes.FailedPrecondition,
				"order %s is at version %d, commit expected %d", commit.Order.ID, stored.Version, commit.ExpectedVersion)
		}

		if err := tx.Set(orderRef, encodeOrder(commit.Order)); err != nil {
			return err
		}
		for _, method := range commit.Order.ShippingMethods {
			ref := orderRef.Collection(shippingMethodCollection).Doc(method.ID)
			if err := tx.Set(ref, encodeShippingMethod(method)); err != nil {
				return err
			}
		}
		for _, methodID := range commit.RemovedShippingMethodIDs {
			if err := tx.Delete(orderRef.Collection(shippingMethodCollection).Doc(methodID)); err != nil {
				return err
			}
		}
		for _, line := range commit.NewCreditLines {
			ref := orderRef.Collection(creditLineCollection).Doc(line.ID)
			if err := tx.Create(ref, creditLineDocument{
				Reference:   line.Reference,
				ReferenceID: line.ReferenceID,
				Amount:      line.Amount,
				CreatedAt:   line.CreatedAt,
			}); err != nil {
				return err
			}
		}
		if err := tx.Set(changeRef, encodeOrderChange(commit.Change)); err != nil {
			return err
		}
		return tx.Delete(lockRef)
	})
	return pfirestore.WrapError("order_changes.confirm", err)
}

// Delete removes the change, its actions, and its scope lock.
func (r *OrderChangeRepository) Delete(ctx context.Context, changeID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order change repository not initialised")
	}
	change, err := r.FindByID(ctx, changeID)
	if err != nil {
		return err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	changeRef := client.Collection(orderChangeCollection).Doc(change.ID)
	lockRef := client.Collection(orderChangeLockCollection).Doc(scopeLockID(change))

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, action := range change.Actions {
			if err := tx.Delete(changeRef.Collection(changeActionCollection).Doc(action.ID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(changeRef); err != nil {
			return err
		}
		if !change.Status.IsTerminal() {
			if err := tx.Delete(lockRef); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("order_changes.delete", err)
}

// FindByID loads the change together with its staged actions.
func (r *OrderChangeRepository) FindByID(ctx context.Context, changeID string) (domain.OrderChange, error) {
	if r == nil || r.base == nil {
		return domain.OrderChange{}, errors.New("order change repository not initialised")
	}
	id := strings.TrimSpace(changeID)
	if id == "" {
		return domain.OrderChange{}, errors.New("order change repository: change id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.OrderChange{}, err
	}
	change, err := decodeOrderChange(doc.ID, doc.Data)
	if err != nil {
		return domain.OrderChange{}, pfirestore.WrapError("order_changes.get", err)
	}

	actions, err := r.listActions(ctx, id)
	if err != nil {
		return domain.OrderChange{}, err
	}
	change.Actions = actions
	return change, nil
}

// FindActiveByOrder returns the most recently created active change for the
// order, across every scope.
func (r *OrderChangeRepository) FindActiveByOrder(ctx context.Context, orderID string) (domain.OrderChange, error) {
	if r == nil || r.base == nil {
		return domain.OrderChange{}, errors.New("order change repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).
			Where("status", "in", []string{string(domain.ChangeStatusPending), string(domain.ChangeStatusRequested)}).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.OrderChange{}, err
	}
	if len(docs) == 0 {
		return domain.OrderChange{}, pfirestore.WrapError("order_changes.find_active",
			status.Errorf(codes.NotFound, "no active change for order %s", orderID))
	}

	change, err := decodeOrderChange(docs[0].ID, docs[0].Data)
	if err != nil {
		return domain.OrderChange{}, pfirestore.WrapError("order_changes.find_active", err)
	}
	actions, err := r.listActions(ctx, change.ID)
	if err != nil {
		return domain.OrderChange{}, err
	}
	change.Actions = actions
	return change, nil
}

// ListByOrder pages through the order's changes, newest first.
func (r *OrderChangeRepository) ListByOrder(ctx context.Context, orderID string, filter repositories.OrderChangeListFilter) (domain.CursorPage[domain.OrderChange], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.OrderChange]{}, errors.New("order change repository not initialised")
	}

	pageSize := pagination.ClampPageSize(filter.Pagination.PageSize)

	var cursor time.Time
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.OrderChange]{}, err
		}
		if len(decoded.StartAfter) > 0 {
			raw, _ := decoded.StartAfter[0].(string)
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return domain.CursorPage[domain.OrderChange]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
			}
			cursor = parsed
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("orderId", "==", orderID)
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if len(filter.ChangeType) > 0 {
			types := make([]string, 0, len(filter.ChangeType))
			for _, t := range filter.ChangeType {
				types = append(types, string(t))
			}
			q = q.Where("changeType", "in", types)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.OrderChange]{}, err
	}

	page := domain.CursorPage[domain.OrderChange]{}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.CreatedAt.Format(time.RFC3339Nano)},
			})
			if err != nil {
				return domain.CursorPage[domain.OrderChange]{}, err
			}
			page.NextPageToken = token
			break
		}
		change, err := decodeOrderChange(doc.ID, doc.Data)
		if err != nil {
			return domain.CursorPage[domain.OrderChange]{}, pfirestore.WrapError("order_changes.list", err)
		}
		actions, err := r.listActions(ctx, change.ID)
		if err != nil {
			return domain.CursorPage[domain.OrderChange]{}, err
		}
		change.Actions = actions
		page.Items = append(page.Items, change)
	}
	return page, nil
}

// InsertActions appends staged actions under their change document.
func (r *OrderChangeRepository) InsertActions(ctx context.Context, actions []domain.OrderChangeAction) ([]domain.OrderChangeAction, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order change repository not initialised")
	}
	if len(actions) == 0 {
		return nil, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, action := range actions {
			ref := client.Collection(orderChangeCollection).Doc(action.OrderChangeID).
				Collection(changeActionCollection).Doc(action.ID)
			if err := tx.Create(ref, encodeChangeAction(action)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, pfirestore.WrapError("order_changes.actions.insert", err)
	}
	return actions, nil
}

// UpdateAction replaces a staged action document.
func (r *OrderChangeRepository) UpdateAction(ctx context.Context, action domain.OrderChangeAction) error {
	if r == nil || r.provider == nil {
		return errors.New("order change repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(orderChangeCollection).Doc(action.OrderChangeID).
		Collection(changeActionCollection).Doc(action.ID)
	if _, err := ref.Get(ctx); err != nil {
		return pfirestore.WrapError("order_changes.actions.update", err)
	}
	if _, err := ref.Set(ctx, encodeChangeAction(action)); err != nil {
		return pfirestore.WrapError("order_changes.actions.update", err)
	}
	return nil
}

// DeleteActions removes staged actions from a change.
func (r *OrderChangeRepository) DeleteActions(ctx context.Context, changeID string, actionIDs []string) error {
	if r == nil || r.provider == nil {
		return errors.New("order change repository not initialised")
	}
	if len(actionIDs) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, id := range actionIDs {
			ref := client.Collection(orderChangeCollection).Doc(changeID).
				Collection(changeActionCollection).Doc(id)
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("order_changes.actions.delete", err)
}

// FindActionByID resolves a staged action across all changes.
func (r *OrderChangeRepository) FindActionByID(ctx context.Context, actionID string) (domain.OrderChangeAction, error) {
	if r == nil || r.provider == nil {
		return domain.OrderChangeAction{}, errors.New("order change repository not initialised")
	}
	id := strings.TrimSpace(actionID)
	if id == "" {
		return domain.OrderChangeAction{}, errors.New("order change repository: action id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderChangeAction{}, err
	}

	iter := client.CollectionGroup(changeActionCollection).
		Where("id", "==", id).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.OrderChangeAction{}, pfirestore.WrapError("order_changes.actions.get",
			status.Errorf(codes.NotFound, "action %s not found", id))
	}
	if err != nil {
		return domain.OrderChangeAction{}, pfirestore.WrapError("order_changes.actions.get", err)
	}

	var doc changeActionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.OrderChangeAction{}, pfirestore.WrapError("order_changes.actions.get", err)
	}
	return decodeChangeAction(snap.Ref.ID, doc)
}

func (r *OrderChangeRepository) listActions(ctx context.Context, changeID string) ([]domain.OrderChangeAction, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(orderChangeCollection).Doc(changeID).
		Collection(changeActionCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var actions []domain.OrderChangeAction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("order_changes.actions.list", err)
		}
		var doc changeActionDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("order_changes.actions.list", err)
		}
		action, err := decodeChangeAction(snap.Ref.ID, doc)
		if err != nil {
			return nil, pfirestore.WrapError("order_changes.actions.list", err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// scopeLockID derives the lock document id for the change's mutual-exclusion
// slot. Scoped changes lock on their sub-process record; edits share a single
// per-order slot.
func scopeLockID(change domain.OrderChange) string {
	scope := change.Scope()
	if scope.ReferenceID != "" {
		return fmt.Sprintf("%s_%s_%s", change.OrderID, scope.Kind, scope.ReferenceID)
	}
	return fmt.Sprintf("%s_%s", change.OrderID, scope.Kind)
}

func encodeOrderChange(change domain.OrderChange) orderChangeDocument {
	return orderChangeDocument{
		OrderID:        change.OrderID,
		ReturnID:       change.ReturnID,
		ClaimID:        change.ClaimID,
		ExchangeID:     change.ExchangeID,
		ChangeType:     string(change.ChangeType),
		Status:         string(change.Status),
		Version:        change.Version,
		Description:    change.Description,
		InternalNote:   change.InternalNote,
		RequestedBy:    change.RequestedBy,
		RequestedAt:    change.RequestedAt,
		ConfirmedBy:    change.ConfirmedBy,
		ConfirmedAt:    change.ConfirmedAt,
		DeclinedBy:     change.DeclinedBy,
		DeclinedAt:     change.DeclinedAt,
		DeclinedReason: change.DeclinedReason,
		CanceledBy:     change.CanceledBy,
		CanceledAt:     change.CanceledAt,
		CreatedAt:      change.CreatedAt,
		UpdatedAt:      change.UpdatedAt,
	}
}

func decodeOrderChange(id string, doc orderChangeDocument) (domain.OrderChange, error) {
	return domain.OrderChange{
		ID:             id,
		OrderID:        doc.OrderID,
		ReturnID:       doc.ReturnID,
		ClaimID:        doc.ClaimID,
		ExchangeID:     doc.ExchangeID,
		ChangeType:     domain.ChangeType(doc.ChangeType),
		Status:         domain.ChangeStatus(doc.Status),
		Version:        doc.Version,
		Description:    doc.Description,
		InternalNote:   doc.InternalNote,
		RequestedBy:    doc.RequestedBy,
		RequestedAt:    doc.RequestedAt,
		ConfirmedBy:    doc.ConfirmedBy,
		ConfirmedAt:    doc.ConfirmedAt,
		DeclinedBy:     doc.DeclinedBy,
		DeclinedAt:     doc.DeclinedAt,
		DeclinedReason: doc.DeclinedReason,
		CanceledBy:     doc.CanceledBy,
		CanceledAt:     doc.CanceledAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

func encodeChangeAction(action domain.OrderChangeAction) changeActionDocument {
	return changeActionDocument{
		ID:            action.ID,
		OrderChangeID: action.OrderChangeID,
		OrderID:       action.OrderID,
		Version:       action.Version,
		Action:        string(action.Action),
		Reference:     action.Reference,
		ReferenceID:   action.ReferenceID,
		Details:       encodeActionDetails(action.Details),
		Amount:        action.Amount,
		InternalNote:  action.InternalNote,
		CreatedAt:     action.CreatedAt,
		UpdatedAt:     action.UpdatedAt,
	}
}

func decodeChangeAction(id string, doc changeActionDocument) (domain.OrderChangeAction, error) {
	details, err := decodeActionDetails(doc.Details)
	if err != nil {
		return domain.OrderChangeAction{}, fmt.Errorf("decode action %s: %w", id, err)
	}
	return domain.OrderChangeAction{
		ID:            id,
		OrderChangeID: doc.OrderChangeID,
		OrderID:       doc.OrderID,
		Version:       doc.Version,
		Action:        domain.ActionKind(doc.Action),
		Reference:     doc.Reference,
		ReferenceID:   doc.ReferenceID,
		Details:       details,
		Amount:        doc.Amount,
		InternalNote:  doc.InternalNote,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

type orderChangeDocument struct {
	OrderID        string     `firestore:"orderId"`
	ReturnID       *string    `firestore:"returnId,omitempty"`
	ClaimID        *string    `firestore:"claimId,omitempty"`
	ExchangeID     *string    `firestore:"exchangeId,omitempty"`
	ChangeType     string     `firestore:"changeType"`
	Status         string     `firestore:"status"`
	Version        int        `firestore:"version"`
	Description    string     `firestore:"description,omitempty"`
	InternalNote   string     `firestore:"internalNote,omitempty"`
	RequestedBy    string     `firestore:"requestedBy,omitempty"`
	RequestedAt    *time.Time `firestore:"requestedAt,omitempty"`
	ConfirmedBy    string     `firestore:"confirmedBy,omitempty"`
	ConfirmedAt    *time.Time `firestore:"confirmedAt,omitempty"`
	DeclinedBy     string     `firestore:"declinedBy,omitempty"`
	DeclinedAt     *time.Time `firestore:"declinedAt,omitempty"`
	DeclinedReason string     `firestore:"declinedReason,omitempty"`
	CanceledBy     string     `firestore:"canceledBy,omitempty"`
	CanceledAt     *time.Time `firestore:"canceledAt,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

type scopeLockDocument struct {
	OrderID       string    `firestore:"orderId"`
	OrderChangeID string    `firestore:"orderChangeId"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type changeActionDocument struct {
	ID            string         `firestore:"id"`
	OrderChangeID string         `firestore:"orderChangeId"`
	OrderID       string         `firestore:"orderId"`
	Version       int            `firestore:"version"`
	Action        string         `firestore:"action"`
	Reference     string         `firestore:"reference,omitempty"`
	ReferenceID   string         `firestore:"referenceId,omitempty"`
	Details       map[string]any `firestore:"details"`
	Amount        *int64         `firestore:"amount,omitempty"`
	InternalNote  string         `firestore:"internalNote,omitempty"`
	CreatedAt     time.Time      `firestore:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt"`
}

var _ repositories.OrderChangeRepository = (*OrderChangeRepository)(nil)
