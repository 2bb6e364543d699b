package evaluator

import (
	"fmt"

	"github.com/riverline-labs/tenor/internal/numeric"
)

// Value is the runtime discriminated union: exactly one of the
// pointer/slice/map fields below is populated, matching t.Kind. Decimal,
// Money, and Int never use float64 — Int is carried as int64, Decimal and
// Money amounts as numeric.Decimal.
type Value struct {
	Kind     string
	Bool     bool
	Int      int64
	Decimal  numeric.Decimal
	Currency string // set alongside Decimal when Kind == "Money"
	Text     string // also used for Date/DateTime/Enum tag
	Duration DurationValue
	List     []Value
	Record   map[string]Value
	Tag      string // TaggedUnion discriminant
	TagValue *Value
}

type DurationValue struct {
	Unit  string
	Value int64
}

// decodeValue converts a JSON-decoded any (from a facts file or a bundle
// default) into a typed runtime Value: decode against the
// declared type; reject on mismatch".
func decodeValue(raw any, t Type) (Value, error) {
	switch t.Kind {
	case "Bool":
		b, ok := raw.(bool)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Bool, got %T", raw)
		}
		return Value{Kind: "Bool", Bool: b}, nil
	case "Int":
		n, err := asInt64(raw)
		if err != nil {
			return Value{}, err
		}
		if t.Min != nil && n < *t.Min {
			return Value{}, errKind(ErrFactTypeMismatch, "Int %d below declared min %d", n, *t.Min)
		}
		if t.Max != nil && n > *t.Max {
			return Value{}, errKind(ErrFactTypeMismatch, "Int %d above declared max %d", n, *t.Max)
		}
		return Value{Kind: "Int", Int: n}, nil
	case "Decimal":
		d, err := decodeDecimal(raw, t.Scale)
		if err != nil {
			return Value{}, err
		}
		d, err = numeric.CheckOverflow(d, t.Precision, t.Scale)
		if err != nil {
			return Value{}, errKind(ErrNumericOverflow, "%v", err)
		}
		return Value{Kind: "Decimal", Decimal: d}, nil
	case "Money":
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Money object, got %T", raw)
		}
		amount, ok := m["amount"]
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "Money value missing amount")
		}
		cur, _ := m["currency"].(string)
		if cur != t.Currency {
			return Value{}, errKind(ErrFactTypeMismatch, "Money currency %q does not match declared %q", cur, t.Currency)
		}
		d, err := decodeDecimal(amount, 2)
		if err != nil {
			return Value{}, err
		}
		d, err = numeric.CheckOverflow(d, 18, 2)
		if err != nil {
			return Value{}, errKind(ErrNumericOverflow, "%v", err)
		}
		return Value{Kind: "Money", Decimal: d, Currency: cur}, nil
	case "Text":
		s, ok := raw.(string)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Text, got %T", raw)
		}
		if t.MaxLength != nil && len(s) > *t.MaxLength {
			return Value{}, errKind(ErrFactTypeMismatch, "Text exceeds max_length %d", *t.MaxLength)
		}
		return Value{Kind: "Text", Text: s}, nil
	case "Date", "DateTime":
		s, ok := raw.(string)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected %s string, got %T", t.Kind, raw)
		}
		return Value{Kind: t.Kind, Text: s}, nil
	case "Duration":
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Duration object, got %T", raw)
		}
		n, err := asInt64(m["value"])
		if err != nil {
			return Value{}, err
		}
		unit, _ := m["unit"].(string)
		return Value{Kind: "Duration", Duration: DurationValue{Unit: unit, Value: n}}, nil
	case "Enum":
		s, ok := raw.(string)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Enum string, got %T", raw)
		}
		for _, v := range t.Values {
			if v == s {
				return Value{Kind: "Enum", Text: s}, nil
			}
		}
		return Value{}, errKind(ErrFactTypeMismatch, "%q is not a member of declared Enum", s)
	case "List":
		arr, ok := raw.([]any)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected List, got %T", raw)
		}
		if t.ListMax != nil && len(arr) > *t.ListMax {
			return Value{}, errKind(ErrFactTypeMismatch, "List length %d exceeds max %d", len(arr), *t.ListMax)
		}
		out := make([]Value, len(arr))
		for i, el := range arr {
			v, err := decodeValue(el, *t.Element)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Value{Kind: "List", List: out}, nil
	case "Record":
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected Record, got %T", raw)
		}
		out := map[string]Value{}
		for name, ft := range t.Fields {
			fv, ok := m[name]
			if !ok {
				return Value{}, errKind(ErrFactTypeMismatch, "Record missing field %q", name)
			}
			v, err := decodeValue(fv, ft)
			if err != nil {
				return Value{}, err
			}
			out[name] = v
		}
		return Value{Kind: "Record", Record: out}, nil
	case "TaggedUnion":
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "expected TaggedUnion object, got %T", raw)
		}
		tag, ok := m["tag"].(string)
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "TaggedUnion value missing tag")
		}
		tt, ok := t.Tags[tag]
		if !ok {
			return Value{}, errKind(ErrFactTypeMismatch, "%q is not a declared tag", tag)
		}
		inner, err := decodeValue(m["value"], tt)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: "TaggedUnion", Tag: tag, TagValue: &inner}, nil
	default:
		return Value{}, errKind(ErrMalformedBundle, "unknown type kind %q", t.Kind)
	}
}

func decodeDecimal(raw any, scale int) (numeric.Decimal, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return numeric.Decimal{}, errKind(ErrFactTypeMismatch, "expected structured Decimal object, got %T", raw)
	}
	s, ok := m["value"].(string)
	if !ok {
		return numeric.Decimal{}, errKind(ErrFactTypeMismatch, "Decimal value missing digit string")
	}
	if sc, ok := m["scale"].(float64); ok {
		scale = int(sc)
	}
	d, err := numeric.FromString(s, scale)
	if err != nil {
		return numeric.Decimal{}, errKind(ErrFactTypeMismatch, "%v", err)
	}
	return d, nil
}

func asInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, errKind(ErrFactTypeMismatch, "expected Int, got %T", raw)
	}
}

// encodeValue renders a runtime Value back to the same structured wire
// encoding the interchange package uses for bundle defaults, so
// evaluator output round-trips through the same canonical JSON rules.
func encodeValue(v Value) any {
	switch v.Kind {
	case "Bool":
		return v.Bool
	case "Int":
		return v.Int
	case "Decimal":
		return map[string]any{"precision": precisionOf(v.Decimal), "scale": v.Decimal.Scale, "value": v.Decimal.String()}
	case "Money":
		return map[string]any{
			"amount":   map[string]any{"precision": 18, "scale": v.Decimal.Scale, "value": v.Decimal.String()},
			"currency": v.Currency,
		}
	case "Text", "Date", "DateTime", "Enum":
		return v.Text
	case "Duration":
		return map[string]any{"unit": v.Duration.Unit, "value": v.Duration.Value}
	case "List":
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = encodeValue(e)
		}
		return out
	case "Record":
		out := map[string]any{}
		for k, e := range v.Record {
			out[k] = encodeValue(e)
		}
		return out
	case "TaggedUnion":
		var inner any
		if v.TagValue != nil {
			inner = encodeValue(*v.TagValue)
		}
		return map[string]any{"tag": v.Tag, "value": inner}
	default:
		return nil
	}
}

// precisionOf is a display-only fallback: the evaluator does not track a
// runtime Value's declared precision once decoded, only its scale, so
// re-encoding reports the digit count actually present.
func precisionOf(d numeric.Decimal) int {
	return len(fmt.Sprintf("%d", d.Unscaled))
}
