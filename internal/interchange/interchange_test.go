package interchange

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/riverline-labs/tenor/internal/ast"
)

func TestCanonicalMarshalSortsKeys(t *testing.T) {
	got, err := CanonicalMarshal(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"y": true, "x": false},
	})
	if err != nil {
		t.Fatalf("CanonicalMarshal: %v", err)
	}
	want := `{"alpha":{"x":false,"y":true},"zebra":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func testSource(id string) *Source {
	boolTrue := true
	return &Source{
		BundleID: id,
		Facts: map[string]ast.Fact{
			"approved": {IDVal: "approved", Type: ast.BoolType{}, Default: &ast.Literal{Bool: &boolTrue, Type: ast.BoolType{}}, Prov: ast.Provenance{File: "main.tenor", Line: 1}},
		},
		FactTypes: map[string]ast.Type{"approved": ast.BoolType{}},
		Personas: map[string]ast.Persona{
			"clerk": {IDVal: "clerk", Prov: ast.Provenance{File: "main.tenor", Line: 2}},
		},
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	a, err := Serialize(testSource("b1"))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	b, err := Serialize(testSource("b1"))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("two serializations of the same source must be byte-identical")
	}
}

func TestSerializeEnvelopeShape(t *testing.T) {
	out, err := Serialize(testSource("b1"))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if env["kind"] != "Bundle" || env["tenor"] != "1.0" || env["id"] != "b1" {
		t.Fatalf("unexpected envelope %v", env)
	}
	if !strings.HasPrefix(env["tenor_version"].(string), "1.0") {
		t.Fatalf("unexpected tenor_version %v", env["tenor_version"])
	}
	constructs := env["constructs"].([]any)
	if len(constructs) != 2 {
		t.Fatalf("want 2 constructs, got %d", len(constructs))
	}
	// Construct array sorts by (kind, id): Fact before Persona.
	first := constructs[0].(map[string]any)
	if first["kind"] != "Fact" || first["tenor"] != "1.0" {
		t.Fatalf("unexpected first construct %v", first)
	}
	prov := first["provenance"].(map[string]any)
	if prov["file"] != "main.tenor" || prov["line"] != float64(1) {
		t.Fatalf("unexpected provenance %v", prov)
	}
}

func TestDiffKeyedByKindAndID(t *testing.T) {
	before := []byte(`{"constructs":[
		{"kind":"Fact","id":"a","tenor":"1.0","provenance":{"file":"x.tenor","line":1},"type":{"kind":"Bool"}},
		{"kind":"Fact","id":"b","tenor":"1.0","provenance":{"file":"x.tenor","line":2},"type":{"kind":"Bool"}}
	]}`)
	after := []byte(`{"constructs":[
		{"kind":"Fact","id":"b","tenor":"1.0","provenance":{"file":"y.tenor","line":9},"type":{"kind":"Bool"}},
		{"kind":"Fact","id":"c","tenor":"1.0","provenance":{"file":"y.tenor","line":3},"type":{"kind":"Bool"}}
	]}`)
	changes := Diff(before, after)
	if len(changes) != 2 {
		t.Fatalf("want 2 changes, got %d: %v", len(changes), changes)
	}
	if changes[0].Kind != ChangeRemoved || changes[0].ID != "a" {
		t.Errorf("unexpected first change %v", changes[0])
	}
	if changes[1].Kind != ChangeAdded || changes[1].ID != "c" {
		t.Errorf("unexpected second change %v", changes[1])
	}
}

func TestDiffIgnoresProvenance(t *testing.T) {
	before := []byte(`{"constructs":[{"kind":"Fact","id":"a","provenance":{"file":"x.tenor","line":1},"type":{"kind":"Bool"}}]}`)
	after := []byte(`{"constructs":[{"kind":"Fact","id":"a","provenance":{"file":"z.tenor","line":42},"type":{"kind":"Bool"}}]}`)
	if changes := Diff(before, after); len(changes) != 0 {
		t.Fatalf("provenance-only change must not be reported, got %v", changes)
	}
}

func TestDiffReportsModification(t *testing.T) {
	before := []byte(`{"constructs":[{"kind":"Fact","id":"a","provenance":{"file":"x.tenor","line":1},"type":{"kind":"Bool"}}]}`)
	after := []byte(`{"constructs":[{"kind":"Fact","id":"a","provenance":{"file":"x.tenor","line":1},"type":{"kind":"Text"}}]}`)
	changes := Diff(before, after)
	if len(changes) != 1 || changes[0].Kind != ChangeModified {
		t.Fatalf("want one modification, got %v", changes)
	}
}

func TestDiffComparesPrimitiveArraysAsSets(t *testing.T) {
	before := []byte(`{"constructs":[{"kind":"Operation","id":"o","provenance":{"file":"x","line":1},"personas":["a","b"],"outcomes":["ok"]}]}`)
	after := []byte(`{"constructs":[{"kind":"Operation","id":"o","provenance":{"file":"x","line":1},"personas":["b","a"],"outcomes":["ok"]}]}`)
	if changes := Diff(before, after); len(changes) != 0 {
		t.Fatalf("reordered persona list must not be reported, got %v", changes)
	}
}

func TestGenerateSchemaIsDraft2020(t *testing.T) {
	doc, err := GenerateSchema()
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(doc, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Fatalf("unexpected $schema %v", schema["$schema"])
	}
}
