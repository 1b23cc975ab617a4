package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/services"
)

// Context is the value handed to route handlers once the pipeline has run:
// policy enforced, input validated, services ready. It embeds the request's
// context.Context for cancellation and deadlines.
type Context struct {
	context.Context

	RequestID string
	ClientIP  string
	UserAgent string

	// User and Session are nil on none/worker routes and may be nil on
	// optional routes; handlers on such routes must check.
	User    *session.User
	Session *session.Session

	// OrgID is non-nil whenever the route policy requires organization
	// membership or platform-owner access; uuid.Nil otherwise.
	OrgID   uuid.UUID
	OrgRole string

	// Input holds the validated request parts the route declared.
	Input Validated

	// Files holds extracted multipart uploads, keyed by field name.
	// Only set on multipart routes; absent optional fields have no entry.
	Files map[string]*FileUpload

	// Services is the request-scoped service registry.
	Services *services.Registry
}

// Param returns a validated route parameter as a string.
func (c *Context) Param(name string) string {
	v, _ := c.Input.Params[name].(string)
	return v
}

// Query returns a validated query parameter as a string.
func (c *Context) Query(name string) string {
	v, _ := c.Input.Query[name].(string)
	return v
}

// BodyMap returns the validated body as an object, or nil when the body is
// absent or not a JSON object.
func (c *Context) BodyMap() map[string]any {
	m, _ := c.Input.Body.(map[string]any)
	return m
}

// File returns the extracted upload for a declared field, or nil when an
// optional field was not sent.
func (c *Context) File(field string) *FileUpload {
	return c.Files[field]
}

// Authenticated reports whether the request carries a resolved user.
func (c *Context) Authenticated() bool {
	return c.User != nil
}
