package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mixforge/platform/core"
)

// Schema validates one declared part of the request (params, query or body)
// against a compiled JSON schema.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(src string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustSchema compiles a JSON schema document and panics on failure. Route
// schemas are package-level declarations; a broken one should prevent
// startup.
func MustSchema(src string) *Schema {
	s, err := CompileSchema(src)
	if err != nil {
		panic(err)
	}
	return s
}

// check validates v and returns one FieldError per violated field, with
// paths rooted at the given part name (e.g. "body.title").
func (s *Schema) check(part string, v any) []core.FieldError {
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []core.FieldError{{Path: part, Message: err.Error()}}
	}

	var out []core.FieldError
	collectLeaves(part, ve, &out)
	return out
}

// collectLeaves walks the validation error tree and records every leaf
// cause, so a response reports all violated fields rather than the first.
func collectLeaves(part string, ve *jsonschema.ValidationError, out *[]core.FieldError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, core.FieldError{
			Path:    joinPath(part, ve.InstanceLocation),
			Message: ve.Message,
		})
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(part, cause, out)
	}
}

// joinPath converts a JSON pointer instance location into a dotted path
// rooted at the part name: ("body", "/items/0/title") -> "body.items.0.title".
func joinPath(part, location string) string {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return part
	}
	return part + "." + strings.ReplaceAll(location, "/", ".")
}
