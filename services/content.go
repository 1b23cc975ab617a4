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

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Content statuses.
const (
	ContentDraft      = "draft"
	ContentProcessing = "processing"
	ContentPublished  = "published"
)

// ContentItem is one piece of published creator media.
type ContentItem struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	MediaURL    string    `json:"media_url,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	// PriceID names the payment processor's catalog price used at checkout.
	PriceID   string    `json:"price_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Content manages the organization's content catalog. All queries are
// scoped to the registry's organization.
type Content struct {
	conn  *pgxpool.Conn
	orgID uuid.UUID
}

// List returns the organization's content, newest first.
func (s *Content) List(ctx context.Context) ([]ContentItem, error) {
	query, args, err := psql.
		Select("id", "org_id", "creator_id", "title", "description", "status", "media_url", "price_cents", "price_id", "created_at", "updated_at").
		From("content").
		Where(sq.Eq{"org_id": s.orgID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content list query: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		var item ContentItem
		if err := rows.Scan(&item.ID, &item.OrgID, &item.CreatorID, &item.Title, &item.Description,
			&item.Status, &item.MediaURL, &item.PriceCents, &item.PriceID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns one content item by id.
func (s *Content) Get(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	query, args, err := psql.
		Select("id", "org_id", "creator_id", "title", "description", "status", "media_url", "price_cents", "price_id", "created_at", "updated_at").
		From("content").
		Where(sq.Eq{"id": id, "org_id": s.orgID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content get query: %w", err)
	}

	var item ContentItem
	err = s.conn.QueryRow(ctx, query, args...).Scan(&item.ID, &item.OrgID, &item.CreatorID,
		&item.Title, &item.Description, &item.Status, &item.MediaURL, &item.PriceCents,
		&item.PriceID, &item.CreatedAt, &item.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, core.NotFound("content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return &item, nil
}

// Create inserts a new draft content item for the creator.
func (s *Content) Create(ctx context.Context, creatorID uuid.UUID, title, description string, priceCents int64, priceID string) (*ContentItem, error) {
	item := &ContentItem{
		ID:          uuid.New(),
		OrgID:       s.orgID,
		CreatorID:   creatorID,
		Title:       title,
		Description: description,
		Status:      ContentDraft,
		PriceCents:  priceCents,
		PriceID:     priceID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	query, args, err := psql.
		Insert("content").
		Columns("id", "org_id", "creator_id", "title", "description", "status", "media_url", "price_cents", "price_id", "created_at", "updated_at").
		Values(item.ID, item.OrgID, item.CreatorID, item.Title, item.Description, item.Status, "", item.PriceCents, item.PriceID, item.CreatedAt, item.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content insert: %w", err)
	}

	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert content: %w", err)
	}
	return item, nil
}

// AttachMedia records the stored media object for a content item and moves
// it to processing until the transcode worker reports back.
func (s *Content) AttachMedia(ctx context.Context, id uuid.UUID, mediaURL string) error {
	return s.setStatus(ctx, id, ContentProcessing, &mediaURL)
}

// Publish marks a processed item as published. Worker callbacks use it once
// transcoding succeeds.
func (s *Content) Publish(ctx context.Context, id uuid.UUID, mediaURL string) error {
	return s.setStatus(ctx, id, ContentPublished, &mediaURL)
}

func (s *Content) setStatus(ctx context.Context, id uuid.UUID, status string, mediaURL *string) error {
	builder := psql.
		Update("content").
		Set("status", status).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "org_id": s.orgID})
	if mediaURL != nil {
		builder = builder.Set("media_url", *mediaURL)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build content update: %w", err)
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("content not found")
	}
	return nil
}

// Delete removes a content item.
func (s *Content) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.
		Delete("content").
		Where(sq.Eq{"id": id, "org_id": s.orgID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build content delete: %w", err)
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("content not found")
	}
	return nil
}
