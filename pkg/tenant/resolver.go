package tenant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mixforge/platform/pkg/logger"
)

// reservedLabels are subdomains that belong to platform infrastructure and
// never name a tenant.
var reservedLabels = map[string]struct{}{
	"api":    {},
	"app":    {},
	"www":    {},
	"admin":  {},
	"cdn":    {},
	"assets": {},
	"status": {},
}

// Resolver derives an organization id from a request hostname by treating
// the first label as an organization slug.
type Resolver struct {
	dir Directory
	log *slog.Logger
}

// NewResolver creates a hostname-based tenant resolver.
func NewResolver(dir Directory, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{dir: dir, log: log}
}

// OrgFromHost returns the organization id for the hostname's subdomain, or
// uuid.Nil when the hostname carries no tenant context. Lookup failures also
// yield uuid.Nil: the caller cannot tell them apart from "no tenant", so the
// failure is logged here before it degrades.
func (r *Resolver) OrgFromHost(ctx context.Context, host string) uuid.UUID {
	slug := slugFromHost(host)
	if slug == "" {
		return uuid.Nil
	}

	org, err := r.dir.OrgBySlug(ctx, slug)
	if err != nil {
		r.log.WarnContext(ctx, "tenant lookup failed",
			slog.String("slug", slug),
			logger.Error(err),
			logger.Component("tenant"),
		)
		return uuid.Nil
	}
	if org == nil {
		return uuid.Nil
	}
	return org.ID
}

// slugFromHost extracts the candidate organization slug from a hostname.
// Local hosts, hostnames with fewer than three labels, and reserved
// infrastructure labels yield "".
func slugFromHost(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	host = strings.ToLower(host)

	if host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost") {
		return ""
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}

	label := parts[0]
	if label == "" {
		return ""
	}
	if _, reserved := reservedLabels[label]; reserved {
		return ""
	}
	return label
}
