package evaluator

import "encoding/json"

// Type mirrors the closed type taxonomy as decoded from the wire
// bundle. Unlike internal/ast.Type, this is evaluator-local: the evaluator
// never imports the elaborator's AST, only the JSON it emits.
type Type struct {
	Kind      string // Bool, Int, Decimal, Money, Text, Date, DateTime, Duration, Enum, List, Record, TaggedUnion
	Min, Max  *int64 // Int bound
	Precision int    // Decimal
	Scale     int    // Decimal
	Currency  string // Money
	MaxLength *int   // Text
	Unit      string // Duration
	Values    []string // Enum
	Element   *Type    // List
	ListMax   *int     // List
	Fields    map[string]Type // Record
	Tags      map[string]Type // TaggedUnion
}

type wireType struct {
	Kind      string          `json:"kind"`
	Min       *int64          `json:"min"`
	Max       *int64          `json:"max"`
	Precision int             `json:"precision"`
	Scale     int             `json:"scale"`
	Currency  string          `json:"currency"`
	MaxLength *int            `json:"max_length"`
	Unit      string          `json:"unit"`
	Values    []string        `json:"values"`
	Element   json.RawMessage `json:"element"`
	Fields    map[string]json.RawMessage `json:"fields"`
	Tags      map[string]json.RawMessage `json:"tags"`
}

func decodeType(raw json.RawMessage) (Type, error) {
	if len(raw) == 0 {
		return Type{}, errKind(ErrMalformedBundle, "missing type")
	}
	var w wireType
	if err := json.Unmarshal(raw, &w); err != nil {
		return Type{}, errKind(ErrMalformedBundle, "decoding type: %v", err)
	}
	t := Type{
		Kind: w.Kind, Min: w.Min, Max: w.Max, Precision: w.Precision, Scale: w.Scale,
		Currency: w.Currency, MaxLength: w.MaxLength, Unit: w.Unit, Values: w.Values,
	}
	if len(w.Element) > 0 {
		el, err := decodeType(w.Element)
		if err != nil {
			return Type{}, err
		}
		t.Element = &el
		if w.Max != nil {
			n := int(*w.Max)
			t.ListMax = &n
		}
	}
	if w.Fields != nil {
		t.Fields = map[string]Type{}
		for k, v := range w.Fields {
			ft, err := decodeType(v)
			if err != nil {
				return Type{}, err
			}
			t.Fields[k] = ft
		}
	}
	if w.Tags != nil {
		t.Tags = map[string]Type{}
		for k, v := range w.Tags {
			tt, err := decodeType(v)
			if err != nil {
				return Type{}, err
			}
			t.Tags[k] = tt
		}
	}
	return t, nil
}

func (t Type) numeric() bool {
	return t.Kind == "Int" || t.Kind == "Decimal" || t.Kind == "Money"
}

func (t Type) ordered() bool {
	switch t.Kind {
	case "Bool", "Enum", "Text":
		return false
	default:
		return true
	}
}
