// Package validation checks inbound JSON documents (API payloads, tracker
// events and AI proposals) against embedded JSON Schemas before decoding.
package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/jimdaga/capacity-planner/internal/apperr"
)

// Schema names.
const (
	CheckIn       = "checkin"
	Plan          = "plan"
	TrackerEvents = "tracker_events"
	Proposal      = "proposal"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, name := range []string{CheckIn, Plan, TrackerEvents, Proposal} {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks raw JSON against the named schema. Violations are returned
// as an apperr.ValidationError listing every failing location.
func (v *Validator) Validate(name string, raw []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Validation("body", "invalid JSON: %v", err)
	}

	result := schema.Validate(doc)
	if result.IsValid() {
		return nil
	}

	var messages []string
	for field, evalErr := range result.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
	}
	sort.Strings(messages)
	return apperr.Validation(name, "%s", strings.Join(messages, "; "))
}

// Decode validates raw against the named schema and unmarshals it into dst.
func (v *Validator) Decode(name string, raw []byte, dst interface{}) error {
	if err := v.Validate(name, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("body", "%v", err)
	}
	return nil
}
