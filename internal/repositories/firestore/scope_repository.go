package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stagecart/api/internal/domain"
	pfirestore "github.com/stagecart/api/internal/platform/firestore"
	"github.com/stagecart/api/internal/repositories"
)

const (
	returnCollection   = "returns"
	exchangeCollection = "exchanges"
	claimCollection    = "claims"
)

// ChangeScopeRepository stores the return, exchange, and claim records that
// scoped changes bind to. Compensation deletes them when a scoped change is
// declined or canceled.
type ChangeScopeRepository struct {
	returns   *pfirestore.BaseRepository[returnDocument]
	exchanges *pfirestore.BaseRepository[exchangeDocument]
	claims    *pfirestore.BaseRepository[claimDocument]
}

// NewChangeScopeRepository constructs a Firestore-backed scope repository.
func NewChangeScopeRepository(provider *pfirestore.Provider) (*ChangeScopeRepository, error) {
	if provider == nil {
		return nil, errors.New("change scope repository requires firestore provider")
	}
	return &ChangeScopeRepository{
		returns:   pfirestore.NewBaseRepository[returnDocument](provider, returnCollection, nil, nil),
		exchanges: pfirestore.NewBaseRepository[exchangeDocument](provider, exchangeCollection, nil, nil),
		claims:    pfirestore.NewBaseRepository[claimDocument](provider, claimCollection, nil, nil),
	}, nil
}

func (r *ChangeScopeRepository) InsertReturn(ctx context.Context, ret domain.Return) error {
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("change scope repository: return id is required")
	}
	ref, err := r.returns.DocumentRef(ctx, ret.ID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, returnDocument{
		OrderID:    ret.OrderID,
		Status:     ret.Status,
		CreatedAt:  ret.CreatedAt,
		CanceledAt: ret.CanceledAt,
	})
	return pfirestore.WrapError("returns.insert", err)
}

func (r *ChangeScopeRepository) GetReturn(ctx context.Context, returnID string) (domain.Return, error) {
	doc, err := r.returns.Get(ctx, strings.TrimSpace(returnID))
	if err != nil {
		return domain.Return{}, err
	}
	return domain.Return{
		ID:         doc.ID,
		OrderID:    doc.Data.OrderID,
		Status:     doc.Data.Status,
		CreatedAt:  doc.Data.CreatedAt,
		CanceledAt: doc.Data.CanceledAt,
	}, nil
}

func (r *ChangeScopeRepository) DeleteReturn(ctx context.Context, returnID string) error {
	return r.deleteDoc(ctx, r.returns.DocumentRef, returnID, "returns.delete")
}

func (r *ChangeScopeRepository) InsertExchange(ctx context.Context, exchange domain.Exchange) error {
	if strings.TrimSpace(exchange.ID) == "" {
		return errors.New("change scope repository: exchange id is required")
	}
	ref, err := r.exchanges.DocumentRef(ctx, exchange.ID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, exchangeDocument{
		OrderID:    exchange.OrderID,
		ReturnID:   exchange.ReturnID,
		CreatedAt:  exchange.CreatedAt,
		CanceledAt: exchange.CanceledAt,
	})
	return pfirestore.WrapError("exchanges.insert", err)
}

func (r *ChangeScopeRepository) GetExchange(ctx context.Context, exchangeID string) (domain.Exchange, error) {
	doc, err := r.exchanges.Get(ctx, strings.TrimSpace(exchangeID))
	if err != nil {
		return domain.Exchange{}, err
	}
	return domain.Exchange{
		ID:         doc.ID,
		OrderID:    doc.Data.OrderID,
		ReturnID:   doc.Data.ReturnID,
		CreatedAt:  doc.Data.CreatedAt,
		CanceledAt: doc.Data.CanceledAt,
	}, nil
}

func (r *ChangeScopeRepository) DeleteExchange(ctx context.Context, exchangeID string) error {
	return r.deleteDoc(ctx, r.exchanges.DocumentRef, exchangeID, "exchanges.delete")
}

func (r *ChangeScopeRepository) InsertClaim(ctx context.Context, claim domain.Claim) error {
	if strings.TrimSpace(claim.ID) == "" {
		return errors.New("change scope repository: claim id is required")
	}
	ref, err := r.claims.DocumentRef(ctx, claim.ID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, claimDocument{
		OrderID:    claim.OrderID,
		ReturnID:   claim.ReturnID,
		Type:       claim.Type,
		CreatedAt:  claim.CreatedAt,
		CanceledAt: claim.CanceledAt,
	})
	return pfirestore.WrapError("claims.insert", err)
}

func (r *ChangeScopeRepository) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	doc, err := r.claims.Get(ctx, strings.TrimSpace(claimID))
	if err != nil {
		return domain.Claim{}, err
	}
	return domain.Claim{
		ID:         doc.ID,
		OrderID:    doc.Data.OrderID,
		ReturnID:   doc.Data.ReturnID,
		Type:       doc.Data.Type,
		CreatedAt:  doc.Data.CreatedAt,
		CanceledAt: doc.Data.CanceledAt,
	}, nil
}

func (r *ChangeScopeRepository) DeleteClaim(ctx context.Context, claimID string) error {
	return r.deleteDoc(ctx, r.claims.DocumentRef, claimID, "claims.delete")
}

// deleteDoc reads before deleting so missing records surface as not-found,
// which compensation relies on for idempotency.
func (r *ChangeScopeRepository) deleteDoc(ctx context.Context, refFn func(context.Context, string) (*firestore.DocumentRef, error), id string, op string) error {
	ref, err := refFn(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if _, err := ref.Get(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

type returnDocument struct {
	OrderID    string     `firestore:"orderId"`
	Status     string     `firestore:"status"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	CanceledAt *time.Time `firestore:"canceledAt,omitempty"`
}

type exchangeDocument struct {
	OrderID    string     `firestore:"orderId"`
	ReturnID   *string    `firestore:"returnId,omitempty"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	CanceledAt *time.Time `firestore:"canceledAt,omitempty"`
}

type claimDocument struct {
	OrderID    string     `firestore:"orderId"`
	ReturnID   *string    `firestore:"returnId,omitempty"`
	Type       string     `firestore:"type"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	CanceledAt *time.Time `firestore:"canceledAt,omitempty"`
}

var _ repositories.ChangeScopeRepository = (*ChangeScopeRepository)(nil)
