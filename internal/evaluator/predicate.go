package evaluator

import (
	"encoding/json"

	"github.com/riverline-labs/tenor/internal/numeric"
)

// Expr mirrors the closed predicate-expression tree as decoded from
// the wire bundle: FactRef, FieldRef, Mul, Literal.
type Expr struct {
	Kind       string
	Fact       string // FactRef.fact, Mul.fact
	Variable   string // FieldRef.variable
	Field      string // FieldRef.field
	Literal    int64  // Mul.literal
	ResultType Type   // Mul.result_type
	Type       Type   // Literal.type
	Value      any    // Literal.value (raw JSON-decoded)
}

// Predicate mirrors the closed predicate tree: Compare, And, Or, Not,
// Forall, Exists, VerdictPresent.
type Predicate struct {
	Kind           string
	Left, Right    *Expr
	Op             string
	ComparisonType Type
	LeftP, RightP  *Predicate // And/Or operands
	Operand        *Predicate // Not
	Variable       string     // Forall/Exists
	Domain         string     // Forall/Exists fact id
	VariableType   Type
	Body           *Predicate
	VerdictID      string // VerdictPresent
}

type wireExpr struct {
	Kind       string          `json:"kind"`
	Fact       string          `json:"fact"`
	Variable   string          `json:"variable"`
	Field      string          `json:"field"`
	Literal    int64           `json:"literal"`
	ResultType json.RawMessage `json:"result_type"`
	Type       json.RawMessage `json:"type"`
	Value      any             `json:"value"`
}

func decodeExpr(raw json.RawMessage) (Expr, error) {
	var w wireExpr
	if err := json.Unmarshal(raw, &w); err != nil {
		return Expr{}, errKind(ErrMalformedBundle, "decoding expr: %v", err)
	}
	e := Expr{Kind: w.Kind, Fact: w.Fact, Variable: w.Variable, Field: w.Field, Literal: w.Literal, Value: w.Value}
	if len(w.ResultType) > 0 {
		t, err := decodeType(w.ResultType)
		if err != nil {
			return Expr{}, err
		}
		e.ResultType = t
	}
	if len(w.Type) > 0 {
		t, err := decodeType(w.Type)
		if err != nil {
			return Expr{}, err
		}
		e.Type = t
	}
	return e, nil
}

type wirePredicate struct {
	Kind           string          `json:"kind"`
	Left           json.RawMessage `json:"left"`
	Right          json.RawMessage `json:"right"`
	Op             string          `json:"op"`
	ComparisonType json.RawMessage `json:"comparison_type"`
	Operand        json.RawMessage `json:"operand"`
	Variable       string          `json:"variable"`
	Domain         string          `json:"domain"`
	VariableType   json.RawMessage `json:"variable_type"`
	Body           json.RawMessage `json:"body"`
	VerdictID      string          `json:"verdict_id"`
}

func decodePredicate(raw json.RawMessage) (Predicate, error) {
	var w wirePredicate
	if err := json.Unmarshal(raw, &w); err != nil {
		return Predicate{}, errKind(ErrMalformedBundle, "decoding predicate: %v", err)
	}
	p := Predicate{Kind: w.Kind, Op: w.Op, Variable: w.Variable, Domain: w.Domain, VerdictID: w.VerdictID}
	switch w.Kind {
	case "Compare":
		l, err := decodeExpr(w.Left)
		if err != nil {
			return Predicate{}, err
		}
		r, err := decodeExpr(w.Right)
		if err != nil {
			return Predicate{}, err
		}
		ct, err := decodeType(w.ComparisonType)
		if err != nil {
			return Predicate{}, err
		}
		p.Left, p.Right, p.ComparisonType = &l, &r, ct
	case "And", "Or":
		l, err := decodePredicate(w.Left)
		if err != nil {
			return Predicate{}, err
		}
		r, err := decodePredicate(w.Right)
		if err != nil {
			return Predicate{}, err
		}
		p.LeftP, p.RightP = &l, &r
	case "Not":
		o, err := decodePredicate(w.Operand)
		if err != nil {
			return Predicate{}, err
		}
		p.Operand = &o
	case "Forall", "Exists":
		vt, err := decodeType(w.VariableType)
		if err != nil {
			return Predicate{}, err
		}
		b, err := decodePredicate(w.Body)
		if err != nil {
			return Predicate{}, err
		}
		p.VariableType, p.Body = vt, &b
	case "VerdictPresent":
		// nothing further to decode
	default:
		return Predicate{}, errKind(ErrMalformedBundle, "unknown predicate kind %q", w.Kind)
	}
	return p, nil
}

// Env is the evaluation environment threaded through predicate/expr
// evaluation: the frozen fact/verdict snapshot plus any quantifier-bound
// variables currently in scope.
type Env struct {
	Facts     map[string]Value
	Verdicts  *VerdictSet
	Scope     map[string]Value
	Provenance *ProvenanceCollector
}

// ProvenanceCollector records every FactRef and VerdictPresent read during a
// rule body's evaluation.
type ProvenanceCollector struct {
	FactsUsed    []string
	VerdictsUsed []string
}

func (c *ProvenanceCollector) readFact(id string) {
	if c == nil {
		return
	}
	c.FactsUsed = append(c.FactsUsed, id)
}

func (c *ProvenanceCollector) readVerdict(id string) {
	if c == nil {
		return
	}
	c.VerdictsUsed = append(c.VerdictsUsed, id)
}

// evalPredicate recursively evaluates p against env, short-circuiting And/Or
// left-to-right.
func evalPredicate(p Predicate, env *Env) (bool, error) {
	switch p.Kind {
	case "Compare":
		lv, err := evalExpr(*p.Left, env)
		if err != nil {
			return false, err
		}
		rv, err := evalExpr(*p.Right, env)
		if err != nil {
			return false, err
		}
		return compareValues(lv, rv, p.Op, p.ComparisonType)
	case "And":
		l, err := evalPredicate(*p.LeftP, env)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return evalPredicate(*p.RightP, env)
	case "Or":
		l, err := evalPredicate(*p.LeftP, env)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalPredicate(*p.RightP, env)
	case "Not":
		v, err := evalPredicate(*p.Operand, env)
		if err != nil {
			return false, err
		}
		return !v, nil
	case "Forall", "Exists":
		domain, ok := env.Facts[p.Domain]
		if !ok {
			return false, errKind(ErrMalformedBundle, "quantifier domain fact %q not in scope", p.Domain)
		}
		env.Provenance.readFact(p.Domain)
		universal := p.Kind == "Forall"
		for _, elem := range domain.List {
			childScope := map[string]Value{}
			for k, v := range env.Scope {
				childScope[k] = v
			}
			childScope[p.Variable] = elem
			childEnv := &Env{Facts: env.Facts, Verdicts: env.Verdicts, Scope: childScope, Provenance: env.Provenance}
			res, err := evalPredicate(*p.Body, childEnv)
			if err != nil {
				return false, err
			}
			if universal && !res {
				return false, nil
			}
			if !universal && res {
				return true, nil
			}
		}
		return universal, nil
	case "VerdictPresent":
		env.Provenance.readVerdict(p.VerdictID)
		_, ok := env.Verdicts.get(p.VerdictID)
		return ok, nil
	default:
		return false, errKind(ErrMalformedBundle, "unknown predicate kind %q", p.Kind)
	}
}

func evalExpr(e Expr, env *Env) (Value, error) {
	switch e.Kind {
	case "FactRef":
		v, ok := env.Facts[e.Fact]
		if !ok {
			return Value{}, errKind(ErrMalformedBundle, "fact %q not in scope", e.Fact)
		}
		env.Provenance.readFact(e.Fact)
		return v, nil
	case "FieldRef":
		bound, ok := env.Scope[e.Variable]
		if !ok {
			return Value{}, errKind(ErrMalformedBundle, "variable %q not bound", e.Variable)
		}
		fv, ok := bound.Record[e.Field]
		if !ok {
			return Value{}, errKind(ErrMalformedBundle, "field %q not present on %q", e.Field, e.Variable)
		}
		return fv, nil
	case "Mul":
		factVal, ok := env.Facts[e.Fact]
		if !ok {
			return Value{}, errKind(ErrMalformedBundle, "fact %q not in scope", e.Fact)
		}
		env.Provenance.readFact(e.Fact)
		return mulValue(factVal, e.Literal, e.ResultType)
	case "Literal":
		return decodeValue(e.Value, e.Type)
	default:
		return Value{}, errKind(ErrMalformedBundle, "unknown expr kind %q", e.Kind)
	}
}

func mulValue(v Value, n int64, resultType Type) (Value, error) {
	switch v.Kind {
	case "Int":
		return Value{Kind: "Int", Int: v.Int * n}, nil
	case "Decimal":
		d := numeric.MulInt(v.Decimal, n)
		d, err := numeric.CheckOverflow(d, resultType.Precision, resultType.Scale)
		if err != nil {
			return Value{}, errKind(ErrNumericOverflow, "%v", err)
		}
		return Value{Kind: "Decimal", Decimal: d}, nil
	case "Money":
		d := numeric.MulInt(v.Decimal, n)
		d, err := numeric.CheckOverflow(d, 18, v.Decimal.Scale)
		if err != nil {
			return Value{}, errKind(ErrNumericOverflow, "%v", err)
		}
		return Value{Kind: "Money", Decimal: d, Currency: v.Currency}, nil
	default:
		return Value{}, errKind(ErrFactTypeMismatch, "Mul requires a numeric fact operand, got %s", v.Kind)
	}
}

func compareValues(l, r Value, op string, ct Type) (bool, error) {
	if l.Kind == "Money" && r.Kind == "Money" && l.Currency != r.Currency {
		return false, errKind(ErrFactTypeMismatch, "cannot compare Money across currencies %q vs %q", l.Currency, r.Currency)
	}
	var cmp int
	switch {
	case ct.numeric():
		ld, rd := asDecimal(l), asDecimal(r)
		cmp = numeric.Cmp(ld, rd)
	case ct.Kind == "Bool":
		cmp = boolCmp(l.Bool, r.Bool)
	case ct.Kind == "Text", ct.Kind == "Enum", ct.Kind == "Date", ct.Kind == "DateTime":
		cmp = textCmp(l.Text, r.Text)
	default:
		return false, errKind(ErrFactTypeMismatch, "unsupported comparison type %q", ct.Kind)
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "≠":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "≤":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case "≥":
		return cmp >= 0, nil
	default:
		return false, errKind(ErrMalformedBundle, "unknown comparison operator %q", op)
	}
}

func asDecimal(v Value) numeric.Decimal {
	if v.Kind == "Int" {
		return numeric.Decimal{Unscaled: bigFromInt64(v.Int), Scale: 0}
	}
	return v.Decimal
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}

func textCmp(a, b string) int {
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}
