package interchange

import (
	"github.com/riverline-labs/tenor/internal/ast"
	"github.com/riverline-labs/tenor/internal/numeric"
)

// DecimalValue is the structured encoding required for any value with
// precision constraints: never a raw JSON number. Field names
// are declared alphabetically so a plain encoding/json.Marshal already
// satisfies the "keys sorted" requirement for this leaf type.
type DecimalValue struct {
	Precision int    `json:"precision"`
	Scale     int    `json:"scale"`
	Value     string `json:"value"`
}

// MoneyValue pairs a DecimalValue amount with an ISO-4217 currency code.
type MoneyValue struct {
	Amount   DecimalValue `json:"amount"`
	Currency string       `json:"currency"`
}

// EncodeDecimal converts a numeric.Decimal into its wire form.
func EncodeDecimal(d numeric.Decimal, precision int) DecimalValue {
	return DecimalValue{Precision: precision, Scale: d.Scale, Value: d.String()}
}

// EncodeLiteral renders a resolved ast.Literal into its wire value per the
// structured-encoding rules. t is the literal's resolved type
// (post type-check), used to pick DecimalValue/MoneyValue precision.
func EncodeLiteral(lit ast.Literal, t ast.Type) (any, error) {
	switch ty := t.(type) {
	case ast.BoolType:
		return *lit.Bool, nil
	case ast.IntType:
		if lit.Int != nil {
			return *lit.Int, nil
		}
		d, err := numeric.FromString(lit.Text, 0)
		if err != nil {
			return nil, err
		}
		return d.Unscaled.Int64(), nil
	case ast.DecimalType:
		d, err := numeric.FromString(lit.Text, ty.Scale)
		if err != nil {
			return nil, err
		}
		return EncodeDecimal(d, ty.Precision), nil
	case ast.MoneyType:
		d, err := numeric.FromString(lit.Text, 2)
		if err != nil {
			return nil, err
		}
		return MoneyValue{Amount: EncodeDecimal(d, 18), Currency: ty.Currency}, nil
	case ast.TextType:
		return lit.Text, nil
	case ast.DateType, ast.DateTimeType:
		return lit.Text, nil
	case ast.DurationType:
		n := int64(0)
		if lit.Int != nil {
			n = *lit.Int
		}
		return map[string]any{"unit": ty.Unit, "value": n}, nil
	case ast.EnumType:
		return lit.Enum, nil
	default:
		if lit.Bool != nil {
			return *lit.Bool, nil
		}
		if lit.Int != nil {
			return *lit.Int, nil
		}
		return lit.Text, nil
	}
}
