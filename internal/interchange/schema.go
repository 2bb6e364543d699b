package interchange

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaEnvelope is the typed mirror of the wire envelope that
// schema generation reflects over. It does not replace the map[string]any
// encoder in bundle.go — Serialize's output must validate against the
// schema this type produces, not be produced by it — so every field here is
// deliberately loose (any/map[string]any) to describe shape rather than
// pin exact per-kind fields, which vary by construct kind.
type SchemaEnvelope struct {
	ID           string           `json:"id" jsonschema:"required"`
	Kind         string           `json:"kind" jsonschema:"enum=Bundle,required"`
	Tenor        string           `json:"tenor" jsonschema:"required"`
	TenorVersion string           `json:"tenor_version" jsonschema:"required"`
	Constructs   []SchemaConstruct `json:"constructs" jsonschema:"required"`
}

// SchemaConstruct describes the fields every construct carries regardless
// of kind: kind, id, provenance, tenor, plus an open bag of
// kind-specific fields the schema cannot pin without knowing the kind.
type SchemaConstruct struct {
	Kind       string            `json:"kind" jsonschema:"required"`
	ID         string            `json:"id" jsonschema:"required"`
	Tenor      string            `json:"tenor" jsonschema:"required"`
	Provenance SchemaProvenance  `json:"provenance" jsonschema:"required"`
	Fields     map[string]any    `json:"-" jsonschema:"-"`
}

type SchemaProvenance struct {
	File string `json:"file" jsonschema:"required"`
	Line int    `json:"line" jsonschema:"required"`
}

// GenerateSchema reflects SchemaEnvelope into a draft 2020-12 JSON Schema
// document, the structural authority every elaborator output must
// validate against.
func GenerateSchema() ([]byte, error) {
	// Constructs carry kind-specific fields beyond the common ones, so the
	// reflected schema must leave additionalProperties open.
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&SchemaEnvelope{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	return json.MarshalIndent(schema, "", "  ")
}
