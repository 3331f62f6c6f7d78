package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/propsignal/crosscheck/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaCheckResult reports the outcome of one structural check. Performed is
// false when no engine or no declared schema covered the record; callers must
// treat that as an advisory pass, not a failure.
type SchemaCheckResult struct {
	Performed bool     `json:"performed"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// SchemaValidator validates one source's record against the declared schema
// for an entity kind. Implementations never fail hard: structural validation
// is advisory and the pipeline keeps working without it.
type SchemaValidator interface {
	Check(record domain.Record, entityKind string) SchemaCheckResult
	Available() bool
}

type jsonSchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

type noopSchemaValidator struct {
	note string
}

// NewSchemaValidator compiles the embedded entity schemas. If compilation
// fails the returned validator degrades to a no-op that passes everything
// with a note.
func NewSchemaValidator() SchemaValidator {
	schemas := make(map[string]*jsonschema.Schema, 2)
	compiler := jsonschema.NewCompiler()

	for kind, name := range map[string]string{
		domain.EntityPlayer: "schemas/player.json",
		domain.EntityGame:   "schemas/game.json",
	} {
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			log.Warn().Err(err).Str("schema", name).Msg("schema engine unavailable, structural checks disabled")
			return NewNoopSchemaValidator("schema engine unavailable")
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			log.Warn().Err(err).Str("schema", name).Msg("schema engine unavailable, structural checks disabled")
			return NewNoopSchemaValidator("schema engine unavailable")
		}
		compiled, err := compiler.Compile(name)
		if err != nil {
			log.Warn().Err(err).Str("schema", name).Msg("schema engine unavailable, structural checks disabled")
			return NewNoopSchemaValidator("schema engine unavailable")
		}
		schemas[kind] = compiled
	}

	return &jsonSchemaValidator{schemas: schemas}
}

// NewNoopSchemaValidator returns the explicit pass-everything implementation,
// selected when structural validation is unwanted or unavailable.
func NewNoopSchemaValidator(note string) SchemaValidator {
	return &noopSchemaValidator{note: note}
}

func (v *jsonSchemaValidator) Available() bool { return true }

func (v *jsonSchemaValidator) Check(record domain.Record, entityKind string) SchemaCheckResult {
	schema, ok := v.schemas[entityKind]
	if !ok {
		return SchemaCheckResult{
			Performed: false,
			Valid:     true,
			Note:      fmt.Sprintf("no schema declared for %q", entityKind),
		}
	}

	// Round-trip through JSON so Go-native int values validate the same way
	// decoded payloads do.
	raw, err := json.Marshal(record)
	if err != nil {
		return SchemaCheckResult{
			Performed: true,
			Valid:     false,
			Errors:    []string{fmt.Sprintf("record not serializable: %v", err)},
		}
	}
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SchemaCheckResult{
			Performed: true,
			Valid:     false,
			Errors:    []string{fmt.Sprintf("record not decodable: %v", err)},
		}
	}

	if err := schema.Validate(payload); err != nil {
		var errs []string
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			errs = flattenSchemaError(ve)
		} else {
			errs = []string{err.Error()}
		}
		return SchemaCheckResult{Performed: true, Valid: false, Errors: errs}
	}

	return SchemaCheckResult{Performed: true, Valid: true}
}

func (v *noopSchemaValidator) Available() bool { return false }

func (v *noopSchemaValidator) Check(domain.Record, string) SchemaCheckResult {
	return SchemaCheckResult{Performed: false, Valid: true, Note: v.note}
}

// flattenSchemaError walks the cause tree and keeps the leaves, which carry
// the field-level violations.
func flattenSchemaError(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "record"
			}
			out = append(out, fmt.Sprintf("%s: %s", field, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
