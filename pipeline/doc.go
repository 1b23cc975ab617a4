// Package pipeline is the request-processing core every API endpoint runs
// through. A route is declared as a Policy (who may call it), an Input (what
// it consumes) and a HandlerFunc (what it does); the pipeline enforces the
// policy, resolves the organization context, validates the input, builds the
// request-scoped service registry, invokes the handler, and renders the
// uniform response envelope.
//
// Ordering is the security invariant: no domain service is constructed and
// no handler code runs until policy enforcement has fully succeeded. Every
// error from any stage is mapped to a response in exactly one place, and
// service cleanup is scheduled exactly once per request as a background
// task, on every exit path.
//
//	var createContent = pipeline.Route{
//		Policy: pipeline.Policy{Auth: pipeline.AuthRequired, Roles: []string{"creator"}},
//		Input:  pipeline.Input{Body: contentSchema},
//		SuccessStatus: http.StatusCreated,
//	}
//
//	r.Post("/content", p.Handle(createContent, func(ctx *pipeline.Context) (any, error) {
//		svc, err := ctx.Services.Content(ctx)
//		if err != nil {
//			return nil, err
//		}
//		title, _ := ctx.BodyMap()["title"].(string)
//		return svc.Create(ctx, ctx.User.ID, title, "", 0, "")
//	}))
package pipeline
