package services

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mixforge/platform/pkg/pg"
	"github.com/mixforge/platform/pkg/tenant"
)

// Directory implements tenant.Directory over PostgreSQL. It queries the
// pool directly rather than a request-scoped connection because policy
// enforcement runs before any registry exists.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates the organization/membership lookup used by policy
// enforcement and tenant resolution.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) OrgBySlug(ctx context.Context, slug string) (*tenant.Organization, error) {
	query, args, err := psql.
		Select("id", "slug", "name", "created_at").
		From("organizations").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build org query: %w", err)
	}

	var org tenant.Organization
	err = d.pool.QueryRow(ctx, query, args...).Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("org by slug: %w", err)
	}
	return &org, nil
}

func (d *Directory) Membership(ctx context.Context, orgID, userID uuid.UUID) (*tenant.Membership, error) {
	query, args, err := psql.
		Select("org_id", "user_id", "role", "status", "joined_at").
		From("memberships").
		Where(sq.Eq{"org_id": orgID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build membership query: %w", err)
	}

	var m tenant.Membership
	err = d.pool.QueryRow(ctx, query, args...).Scan(&m.OrgID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	return &m, nil
}

func (d *Directory) FirstMembershipForUser(ctx context.Context, userID uuid.UUID) (*tenant.Membership, error) {
	query, args, err := psql.
		Select("org_id", "user_id", "role", "status", "joined_at").
		From("memberships").
		Where(sq.Eq{"user_id": userID, "status": tenant.StatusActive}).
		OrderBy("joined_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build membership query: %w", err)
	}

	var m tenant.Membership
	err = d.pool.QueryRow(ctx, query, args...).Scan(&m.OrgID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first membership lookup: %w", err)
	}
	return &m, nil
}
