package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mixforge/platform/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20 // 1 MB

// Input declares which parts of the request a route consumes and the schema
// each must satisfy. Undeclared parts are never read.
type Input struct {
	Params *Schema
	Query  *Schema
	Body   *Schema
}

// Validated holds the parsed request parts that passed validation.
type Validated struct {
	Params map[string]any
	Query  map[string]any
	Body   any
}

// validateInput extracts and validates the declared parts. Route parameters
// and the query string are cheap to read; the body is read only when the
// route declares a body schema (readBody is false on multipart routes).
// All declared parts are validated together so that a single response
// reports every violated field.
func validateInput(r *http.Request, in Input, readBody bool) (Validated, error) {
	var out Validated
	var details []core.FieldError

	if in.Params != nil {
		out.Params = routeParams(r)
		details = append(details, in.Params.check("params", out.Params)...)
	}

	if in.Query != nil {
		out.Query = queryValues(r)
		details = append(details, in.Query.check("query", out.Query)...)
	}

	if in.Body != nil && readBody {
		body, err := decodeBody(r)
		if err != nil {
			return Validated{}, err
		}
		out.Body = body
		details = append(details, in.Body.check("body", body)...)
	}

	if len(details) > 0 {
		return Validated{}, core.Validation("invalid input", details...)
	}
	return out, nil
}

// routeParams collects chi URL parameters into a schema-checkable map.
func routeParams(r *http.Request) map[string]any {
	out := map[string]any{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			out[key] = rctx.URLParams.Values[i]
		}
	}
	return out
}

// queryValues collects the query string, first value per key.
func queryValues(r *http.Request) map[string]any {
	out := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// decodeBody parses the JSON body. Malformed JSON is a distinguished
// validation failure reported before any schema validation runs.
func decodeBody(r *http.Request) (any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.Join(core.Internal(), err)
	}
	if int64(len(raw)) > maxBodyBytes {
		return nil, core.Validation("request body too large")
	}
	if len(raw) == 0 {
		return nil, core.InvalidJSON()
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.InvalidJSON()
	}
	return body, nil
}
