package services

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pkg/pg"
)

// Purchase statuses.
const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseRefunded  = "refunded"
)

// Purchase is one buyer's acquisition of a content item.
type Purchase struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	ContentID   uuid.UUID `json:"content_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Purchases manages purchase records, scoped to the registry's
// organization.
type Purchases struct {
	conn  *pgxpool.Conn
	orgID uuid.UUID
}

// Record inserts a pending purchase for a content item.
func (s *Purchases) Record(ctx context.Context, contentID, buyerID uuid.UUID, amountCents int64, currency, checkoutURL string) (*Purchase, error) {
	p := &Purchase{
		ID:          uuid.New(),
		OrgID:       s.orgID,
		ContentID:   contentID,
		BuyerID:     buyerID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      PurchasePending,
		CheckoutURL: checkoutURL,
		CreatedAt:   time.Now(),
	}

	query, args, err := psql.
		Insert("purchases").
		Columns("id", "org_id", "content_id", "buyer_id", "amount_cents", "currency", "status", "checkout_url", "created_at").
		Values(p.ID, p.OrgID, p.ContentID, p.BuyerID, p.AmountCents, p.Currency, p.Status, p.CheckoutURL, p.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build purchase insert: %w", err)
	}

	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return nil, core.NotFound("content not found")
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	return p, nil
}

// Complete marks a purchase as completed once payment settles.
func (s *Purchases) Complete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.
		Update("purchases").
		Set("status", PurchaseCompleted).
		Where(sq.Eq{"id": id, "org_id": s.orgID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build purchase update: %w", err)
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("purchase not found")
	}
	return nil
}

// ListForBuyer returns the buyer's purchases in this organization, newest
// first.
func (s *Purchases) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]Purchase, error) {
	query, args, err := psql.
		Select("id", "org_id", "content_id", "buyer_id", "amount_cents", "currency", "status", "checkout_url", "created_at").
		From("purchases").
		Where(sq.Eq{"org_id": s.orgID, "buyer_id": buyerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build purchase list query: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.OrgID, &p.ContentID, &p.BuyerID, &p.AmountCents,
			&p.Currency, &p.Status, &p.CheckoutURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
