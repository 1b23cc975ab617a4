package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pipeline"
	"github.com/mixforge/platform/pkg/requestid"
	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/services"
)

var idParams = pipeline.MustSchema(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "format": "uuid"}
	}
}`)

var createContentBody = pipeline.MustSchema(`{
	"type": "object",
	"required": ["title", "price_cents"],
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 200},
		"description": {"type": "string", "maxLength": 5000},
		"price_cents": {"type": "integer", "minimum": 0},
		"price_id": {"type": "string", "maxLength": 200}
	},
	"additionalProperties": false
}`)

var transcodeBody = pipeline.MustSchema(`{
	"type": "object",
	"required": ["media_url", "status"],
	"properties": {
		"media_url": {"type": "string", "minLength": 1},
		"status": {"type": "string", "enum": ["ready", "failed"]}
	}
}`)

func newRouter(p *pipeline.Pipeline, pool *pgxpool.Pool, rdb *redis.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	r.Get("/health", p.Handle(pipeline.Route{
		Policy: pipeline.Policy{Auth: pipeline.AuthNone},
	}, healthHandler(pool, rdb)))

	// Fan-facing catalog on the organization's subdomain.
	r.Route("/catalog", func(r chi.Router) {
		catalog := pipeline.Policy{Auth: pipeline.AuthOptional, RequireOrgContext: true, RateLimitTier: "public"}

		r.Get("/", p.Handle(pipeline.Route{Policy: catalog}, listCatalog))
		r.Get("/{id}", p.Handle(pipeline.Route{
			Policy: catalog,
			Input:  pipeline.Input{Params: idParams},
		}, getCatalogItem))
	})

	// Purchases by authenticated fans.
	r.Post("/purchases/{id}/checkout", p.Handle(pipeline.Route{
		Policy:        pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgContext: true, RateLimitTier: "authed"},
		Input:         pipeline.Input{Params: idParams},
		SuccessStatus: http.StatusCreated,
	}, startCheckout))
	r.Get("/me/purchases", p.Handle(pipeline.Route{
		Policy: pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgContext: true, RateLimitTier: "authed"},
	}, listMyPurchases))

	// Creator studio, restricted to organization members.
	r.Route("/studio/content", func(r chi.Router) {
		member := pipeline.Policy{
			Auth:                 pipeline.AuthRequired,
			Roles:                []string{session.RoleCreator, session.RolePlatformOwner},
			RequireOrgMembership: true,
			RateLimitTier:        "authed",
		}

		r.Get("/", p.Handle(pipeline.Route{Policy: member}, listContent))
		r.Post("/", p.Handle(pipeline.Route{
			Policy:        member,
			Input:         pipeline.Input{Body: createContentBody},
			SuccessStatus: http.StatusCreated,
		}, createContent))
		r.Get("/{id}", p.Handle(pipeline.Route{
			Policy: member,
			Input:  pipeline.Input{Params: idParams},
		}, getContent))
		r.Get("/{id}/stats", p.Handle(pipeline.Route{
			Policy: member,
			Input:  pipeline.Input{Params: idParams},
		}, contentStats))

		uploads := member
		uploads.RateLimitTier = "uploads"
		r.Post("/{id}/media", p.HandleMultipart(pipeline.Route{
			Policy: uploads,
			Input:  pipeline.Input{Params: idParams},
			Files: map[string]pipeline.FileSpec{
				"media": {
					Required:         true,
					MaxSizeBytes:     512 << 20,
					AllowedMimeTypes: []string{"audio/mpeg", "audio/wav", "video/mp4", "video/quicktime"},
				},
				"thumbnail": {
					MaxSizeBytes:     5 << 20,
					AllowedMimeTypes: []string{"image/png", "image/jpeg", "image/webp"},
				},
			},
		}, uploadMedia))

		manage := member
		manage.RequireOrgManagement = true
		r.Delete("/{id}", p.Handle(pipeline.Route{
			Policy:        manage,
			Input:         pipeline.Input{Params: idParams},
			SuccessStatus: http.StatusNoContent,
		}, deleteContent))
	})

	// Transcode worker callbacks, authenticated by shared secret.
	r.Post("/internal/orgs/{orgID}/content/{id}/transcoded", p.Handle(pipeline.Route{
		Policy: pipeline.Policy{Auth: pipeline.AuthWorker},
		Input:  pipeline.Input{Params: idParams, Body: transcodeBody},
	}, completeTranscode))

	// Cross-tenant administration for platform owners.
	r.Route("/admin/orgs/{orgID}", func(r chi.Router) {
		admin := pipeline.Policy{Auth: pipeline.AuthPlatformOwner, RateLimitTier: "admin"}

		r.Get("/content", p.Handle(pipeline.Route{Policy: admin}, listContent))
		r.Delete("/content/{id}", p.Handle(pipeline.Route{
			Policy:        admin,
			Input:         pipeline.Input{Params: idParams},
			SuccessStatus: http.StatusNoContent,
		}, deleteContent))
	})

	return r
}

func healthHandler(pool *pgxpool.Pool, rdb *redis.Client) pipeline.HandlerFunc {
	return func(ctx *pipeline.Context) (any, error) {
		if err := pool.Ping(ctx); err != nil {
			return nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}
}

func contentID(ctx *pipeline.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, core.Validation("invalid content id",
			core.FieldError{Path: "params.id", Message: "must be a uuid"})
	}
	return id, nil
}

func listCatalog(ctx *pipeline.Context) (any, error) {
	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	items, err := content.List(ctx)
	if err != nil {
		return nil, err
	}

	published := make([]services.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Status == services.ContentPublished {
			published = append(published, item)
		}
	}
	return map[string]any{"items": published, "total": len(published)}, nil
}

func getCatalogItem(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	item, err := content.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != services.ContentPublished {
		return nil, core.NotFound("content not found")
	}

	// View counting is best effort; a Redis hiccup must not break the page.
	if analytics, err := ctx.Services.Analytics(ctx); err == nil {
		_ = analytics.TrackView(ctx, item.ID)
	}
	return item, nil
}

func startCheckout(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	item, err := content.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != services.ContentPublished {
		return nil, core.NotFound("content not found")
	}

	if item.PriceID == "" {
		return nil, core.Conflict("content has no price configured")
	}

	payments, err := ctx.Services.Payments(ctx)
	if err != nil {
		return nil, err
	}
	checkoutURL, err := payments.CheckoutLink(ctx, item.PriceID, ctx.User.ID, item.ID)
	if err != nil {
		return nil, err
	}

	purchases, err := ctx.Services.Purchases(ctx)
	if err != nil {
		return nil, err
	}
	purchase, err := purchases.Record(ctx, item.ID, ctx.User.ID, item.PriceCents, "USD", checkoutURL)
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

func listMyPurchases(ctx *pipeline.Context) (any, error) {
	purchases, err := ctx.Services.Purchases(ctx)
	if err != nil {
		return nil, err
	}
	items, err := purchases.ListForBuyer(ctx, ctx.User.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": items, "total": len(items)}, nil
}

func listContent(ctx *pipeline.Context) (any, error) {
	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	items, err := content.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": items, "total": len(items)}, nil
}

func createContent(ctx *pipeline.Context) (any, error) {
	body := ctx.BodyMap()
	title, _ := body["title"].(string)
	description, _ := body["description"].(string)
	price, _ := body["price_cents"].(float64)
	priceID, _ := body["price_id"].(string)

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	return content.Create(ctx, ctx.User.ID, title, description, int64(price), priceID)
}

func getContent(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	return content.Get(ctx, id)
}

func contentStats(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := content.Get(ctx, id); err != nil {
		return nil, err
	}

	analytics, err := ctx.Services.Analytics(ctx)
	if err != nil {
		return nil, err
	}
	views, err := analytics.Views(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content_id": id, "views": views}, nil
}

func uploadMedia(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	item, err := content.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	storage, err := ctx.Services.Storage(ctx)
	if err != nil {
		return nil, err
	}

	media := ctx.File("media")
	key := services.MediaKey(ctx.OrgID, item.ID, media.Filename)
	mediaURL, err := storage.Upload(ctx, key, media.MimeType, media.Content)
	if err != nil {
		return nil, err
	}

	if thumb := ctx.File("thumbnail"); thumb != nil {
		thumbKey := services.MediaKey(ctx.OrgID, item.ID, thumb.Filename)
		if _, err := storage.Upload(ctx, thumbKey, thumb.MimeType, thumb.Content); err != nil {
			return nil, err
		}
	}

	if err := content.AttachMedia(ctx, item.ID, mediaURL); err != nil {
		return nil, err
	}
	return map[string]any{"content_id": item.ID, "media_url": mediaURL, "status": services.ContentProcessing}, nil
}

func deleteContent(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	return nil, content.Delete(ctx, id)
}

func completeTranscode(ctx *pipeline.Context) (any, error) {
	id, err := contentID(ctx)
	if err != nil {
		return nil, err
	}

	body := ctx.BodyMap()
	mediaURL, _ := body["media_url"].(string)
	status, _ := body["status"].(string)

	content, err := ctx.Services.Content(ctx)
	if err != nil {
		return nil, err
	}
	if status != "ready" {
		// Failed transcodes keep the draft status so the creator can retry.
		return map[string]any{"content_id": id, "status": services.ContentDraft}, nil
	}
	if err := content.Publish(ctx, id, mediaURL); err != nil {
		return nil, err
	}
	return map[string]any{"content_id": id, "status": services.ContentPublished}, nil
}
