package interchange

import (
	"bytes"
	"encoding/json"
	"sort"
)

// canonicalMarshal serializes v as compact JSON with every object's keys
// sorted lexicographically. v is built from map[string]any and
// []any by the construct encoders in bundle.go; any other leaf value falls
// through to encoding/json, which is safe because DecimalValue and
// MoneyValue declare their struct fields in already-alphabetical order.
func canonicalMarshal(v any) ([]byte, error) {
	return CanonicalMarshal(v)
}

// CanonicalMarshal is the exported form canonicalMarshal delegates to, reused
// by the evaluator and CLI for verdict/flow output, which must honor
// the same sorted-key, structured-decimal encoding as the bundle itself.
func CanonicalMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []map[string]any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
