// Copyright 2025 Joseph Cumines
//
// Tool catalog: typed argument structs, reflected JSON Schemas, and
// argument validation

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// arguments is implemented by every tool's argument struct. Validate checks
// the rules a JSON Schema cannot express, such as fields required by one
// action only.
type arguments interface {
	Validate() error
}

// budgeted is implemented by arguments of calls that wait, and reports how
// much longer than the request timeout the call may take.
type budgeted interface {
	Budget() time.Duration
}

// Tool represents an MCP tool
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Tool struct {
	schema      *validator.Schema
	decode      func(instance any) (call, error)
	InputSchema json.RawMessage
	Name        string
	Description string
}

// call is a validated invocation, ready to run.
type call struct {
	run    func(ctx context.Context) (*Output, error)
	budget time.Duration
}

var reflector = &jsonschema.Reflector{
	Anonymous:                 true,
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// newTool builds a catalog entry whose schema is reflected from A. It panics
// if the schema does not compile, which can only happen through a bad
// struct tag.
func newTool[A arguments](name, description string, handler func(context.Context, A) (*Output, error)) *Tool {
	schemaJSON, err := json.Marshal(reflector.Reflect(new(A)))
	if err != nil {
		panic(fmt.Sprintf("server: reflect schema for %s: %v", name, err))
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("server: decode schema for %s: %v", name, err))
	}
	c := validator.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("server: add schema for %s: %v", name, err))
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("server: compile schema for %s: %v", name, err))
	}

	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: schemaJSON,
		schema:      schema,
		decode: func(instance any) (call, error) {
			b, err := json.Marshal(instance)
			if err != nil {
				return call{}, desktop.InvalidArgumentf("arguments", "arguments could not be encoded: %v", err)
			}
			var args A
			if err := json.Unmarshal(b, &args); err != nil {
				var te *json.UnmarshalTypeError
				if errors.As(err, &te) && te.Field != "" {
					return call{}, desktop.InvalidArgumentf(te.Field, "invalid %s: expected %s", te.Field, te.Type)
				}
				return call{}, desktop.InvalidArgumentf("arguments", "invalid arguments: %v", err)
			}
			if err := args.Validate(); err != nil {
				return call{}, err
			}
			c := call{run: func(ctx context.Context) (*Output, error) { return handler(ctx, args) }}
			if b, ok := any(args).(budgeted); ok {
				c.budget = b.Budget()
			}
			return c, nil
		},
	}
}

// prepare validates raw against the tool's schema and decodes it.
func (t *Tool) prepare(raw json.RawMessage) (call, error) {
	instance := any(map[string]any{})
	if trimmed := bytes.TrimSpace(raw); len(trimmed) != 0 && !bytes.Equal(trimmed, []byte("null")) {
		v, err := validator.UnmarshalJSON(bytes.NewReader(trimmed))
		if err != nil {
			return call{}, desktop.InvalidArgumentf("arguments", "arguments are not valid JSON: %v", err)
		}
		instance = v
	}
	if err := t.schema.Validate(instance); err != nil {
		return call{}, schemaError(err)
	}
	return t.decode(normalizeNumbers(instance))
}

var printer = message.NewPrinter(language.English)

// schemaError converts a validation failure to InvalidArgument, naming the
// first offending field.
func schemaError(err error) error {
	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return desktop.InvalidArgumentf("arguments", "invalid arguments: %v", err)
	}

	leaves := collectLeaves(ve, nil)
	slices.SortStableFunc(leaves, func(a, b *validator.ValidationError) int {
		return strings.Compare(leafField(a), leafField(b))
	})
	leaf := leaves[0]

	field := leafField(leaf)
	if field == "" {
		field = "arguments"
	}
	return desktop.InvalidArgumentf(field, "invalid %s: %s", field, leaf.ErrorKind.LocalizedString(printer))
}

func collectLeaves(ve *validator.ValidationError, out []*validator.ValidationError) []*validator.ValidationError {
	if len(ve.Causes) == 0 {
		return append(out, ve)
	}
	for _, c := range ve.Causes {
		out = collectLeaves(c, out)
	}
	return out
}

// leafField is the dotted path of the argument a leaf error is about. For
// missing or unexpected properties that is the property itself rather than
// the object holding it.
func leafField(ve *validator.ValidationError) string {
	path := slices.Clone(ve.InstanceLocation)
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			path = append(path, k.Missing[0])
		}
	case *kind.AdditionalProperties:
		if len(k.Properties) > 0 {
			path = append(path, k.Properties[0])
		}
	}
	return strings.Join(path, ".")
}

// normalizeNumbers rewrites integral numbers such as 100.0 as 100, so they
// decode into integer fields.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return x
		}
		if f, err := x.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return json.Number(strconv.FormatInt(int64(f), 10))
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
	}
	return v
}
