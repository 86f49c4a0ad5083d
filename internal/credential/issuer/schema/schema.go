// Package schema validates credential claims against the JSON Schema of
// their credential type.
package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"rxvc/internal/credential/models"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var schemaPaths = map[models.CredentialType]string{
	models.TypePrescription: "schemas/prescription.json",
	models.TypeDispensing:   "schemas/dispensing.json",
	models.TypeConfirmation: "schemas/confirmation.json",
}

const rootField = "(root)"

// Violation is one failed constraint, keyed by dotted claim path.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// Validator holds the compiled schemas.
type Validator struct {
	schemas map[models.CredentialType]*gojsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[models.CredentialType]*gojsonschema.Schema, len(schemaPaths))}
	for credType, path := range schemaPaths {
		raw, err := schemaFiles.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", path, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", path, err)
		}
		v.schemas[credType] = compiled
	}
	return v, nil
}

// MustNew is New for package-level initialization; the schemas are embedded
// so a failure is a build defect.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns the violations of claims against the schema of credType,
// sorted by field. An error is returned only when validation itself could not
// run.
func (v *Validator) Validate(credType models.CredentialType, claims map[string]any) ([]Violation, error) {
	compiled, ok := v.schemas[credType]
	if !ok {
		return nil, fmt.Errorf("no schema for credential type %q", credType)
	}
	if claims == nil {
		claims = map[string]any{}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(claims))
	if err != nil {
		return nil, fmt.Errorf("validate %s claims: %w", credType, err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, Violation{Field: fieldOf(re), Reason: re.Description()})
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Field != violations[j].Field {
			return violations[i].Field < violations[j].Field
		}
		return violations[i].Reason < violations[j].Reason
	})
	return violations, nil
}

// fieldOf returns the dotted path of the offending claim. Required and
// additional-property errors point at the parent object, so the property
// name is appended.
func fieldOf(re gojsonschema.ResultError) string {
	field := re.Field()
	if field == rootField {
		field = ""
	}
	switch re.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := re.Details()["property"].(string); ok {
			if field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == "" {
		return rootField
	}
	return strings.TrimPrefix(field, rootField+".")
}
