package elaborate

import (
	"github.com/riverline-labs/tenor/internal/ast"
	"github.com/riverline-labs/tenor/internal/numeric"
)

// TypedBundle is Pass 4's output: the same constructs as Index, with
// every Fact's declared type fully resolved and every predicate/payload
// expression annotated with its resolved type.
type TypedBundle struct {
	Index *Index
	Env   *TypeEnv

	FactTypes map[string]ast.Type // resolved, post TypeRef inlining
	Rules     map[string]ast.Rule
	Operations map[string]ast.Operation
	Flows     map[string]ast.Flow
}

type typeChecker struct {
	idx       *Index
	env       *TypeEnv
	factTypes map[string]ast.Type
	scope     map[string]ast.Type // bound quantifier variables
}

func typeCheck(idx *Index, env *TypeEnv) (*TypedBundle, error) {
	tc := &typeChecker{idx: idx, env: env, factTypes: map[string]ast.Type{}, scope: map[string]ast.Type{}}

	for id, f := range idx.Facts {
		rt, err := env.ResolveType(f.Type)
		if err != nil {
			return nil, err
		}
		tc.factTypes[id] = rt
	}

	rules := map[string]ast.Rule{}
	for id, r := range idx.Rules {
		when, err := tc.checkPredicate(r.When)
		if err != nil {
			return nil, err
		}
		r.When = when
		payloadType, err := env.ResolveType(r.Produce.PayloadType)
		if err != nil {
			return nil, err
		}
		val, valType, err := tc.checkExpr(r.Produce.PayloadValue)
		if err != nil {
			return nil, err
		}
		if err := assertAssignable(valType, payloadType, r.Prov); err != nil {
			return nil, err
		}
		r.Produce.PayloadType = payloadType
		r.Produce.PayloadValue = val
		rules[id] = r
	}

	ops := map[string]ast.Operation{}
	for id, o := range idx.Operations {
		if o.Precondition != nil {
			pred, err := tc.checkPredicate(o.Precondition)
			if err != nil {
				return nil, err
			}
			o.Precondition = pred
		}
		ops[id] = o
	}

	flows := map[string]ast.Flow{}
	for id, fl := range idx.Flows {
		steps := map[string]ast.Step{}
		for sid, s := range fl.Steps {
			checked, err := tc.checkStep(s)
			if err != nil {
				return nil, err
			}
			steps[sid] = checked
		}
		fl.Steps = steps
		flows[id] = fl
	}

	return &TypedBundle{Index: idx, Env: env, FactTypes: tc.factTypes, Rules: rules, Operations: ops, Flows: flows}, nil
}

func (tc *typeChecker) checkStep(s ast.Step) (ast.Step, error) {
	switch v := s.(type) {
	case ast.BranchStep:
		cond, err := tc.checkPredicate(v.Condition)
		if err != nil {
			return nil, err
		}
		v.Condition = cond
		return v, nil
	case ast.ParallelStep:
		for i, br := range v.Branches {
			steps := map[string]ast.Step{}
			for sid, bs := range br.Steps {
				checked, err := tc.checkStep(bs)
				if err != nil {
					return nil, err
				}
				steps[sid] = checked
			}
			v.Branches[i].Steps = steps
		}
		return v, nil
	default:
		return s, nil
	}
}

func (tc *typeChecker) checkPredicate(p ast.Predicate) (ast.Predicate, error) {
	switch v := p.(type) {
	case ast.Compare:
		left, leftType, err := tc.checkExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, rightType, err := tc.checkExpr(v.Right)
		if err != nil {
			return nil, err
		}
		left, right, cmpType, err := promote(left, leftType, right, rightType, v.Prov)
		if err != nil {
			return nil, err
		}
		if err := checkComparable(cmpType, v.Op, v.Prov); err != nil {
			return nil, err
		}
		v.Left, v.Right, v.ComparisonType = left, right, cmpType
		return v, nil
	case ast.And:
		l, err := tc.checkPredicate(v.Left)
		if err != nil {
			return nil, err
		}
		r, err := tc.checkPredicate(v.Right)
		if err != nil {
			return nil, err
		}
		v.Left, v.Right = l, r
		return v, nil
	case ast.Or:
		l, err := tc.checkPredicate(v.Left)
		if err != nil {
			return nil, err
		}
		r, err := tc.checkPredicate(v.Right)
		if err != nil {
			return nil, err
		}
		v.Left, v.Right = l, r
		return v, nil
	case ast.Not:
		op, err := tc.checkPredicate(v.Operand)
		if err != nil {
			return nil, err
		}
		v.Operand = op
		return v, nil
	case ast.Forall:
		return tc.checkQuantifier(v.Variable, v.Domain, v.Body, true)
	case ast.Exists:
		return tc.checkQuantifier(v.Variable, v.Domain, v.Body, false)
	case ast.VerdictPresent:
		return v, nil
	default:
		return p, nil
	}
}

func (tc *typeChecker) checkQuantifier(variable string, domain ast.FactRef, body ast.Predicate, universal bool) (ast.Predicate, error) {
	domainType, ok := tc.factTypes[domain.FactID]
	if !ok {
		return nil, errAt("UnresolvedReference", domain.Prov.File, domain.Prov.Line, "unknown fact %q", domain.FactID)
	}
	list, ok := domainType.(ast.ListType)
	if !ok {
		return nil, errAt("TypeMismatch", domain.Prov.File, domain.Prov.Line, "quantifier domain %q must be a List fact", domain.FactID)
	}
	prev, hadPrev := tc.scope[variable]
	tc.scope[variable] = list.Element
	checkedBody, err := tc.checkPredicate(body)
	if hadPrev {
		tc.scope[variable] = prev
	} else {
		delete(tc.scope, variable)
	}
	if err != nil {
		return nil, err
	}
	if universal {
		return ast.Forall{Variable: variable, Domain: domain, VariableType: list.Element, Body: checkedBody}, nil
	}
	return ast.Exists{Variable: variable, Domain: domain, VariableType: list.Element, Body: checkedBody}, nil
}

// checkExpr resolves e's type and returns the (possibly rewritten) node.
func (tc *typeChecker) checkExpr(e ast.Expr) (ast.Expr, ast.Type, error) {
	switch v := e.(type) {
	case ast.FactRef:
		t, ok := tc.factTypes[v.FactID]
		if !ok {
			return nil, nil, errAt("UnresolvedReference", v.Prov.File, v.Prov.Line, "unknown fact %q", v.FactID)
		}
		return v, t, nil
	case ast.FieldRef:
		varType, ok := tc.scope[v.Var]
		if !ok {
			return nil, nil, errAt("UnresolvedReference", v.Prov.File, v.Prov.Line, "unbound variable %q", v.Var)
		}
		rec, ok := varType.(ast.RecordType)
		if !ok {
			return nil, nil, errAt("TypeMismatch", v.Prov.File, v.Prov.Line, "%q is not a Record", v.Var)
		}
		ft, ok := rec.Fields[v.Field]
		if !ok {
			return nil, nil, errAt("UnresolvedReference", v.Prov.File, v.Prov.Line, "unknown field %q on %q", v.Field, v.Var)
		}
		return v, ft, nil
	case ast.Mul:
		factType, ok := tc.factTypes[v.Fact.FactID]
		if !ok {
			return nil, nil, errAt("UnresolvedReference", v.Prov.File, v.Prov.Line, "unknown fact %q", v.Fact.FactID)
		}
		switch factType.(type) {
		case ast.IntType, ast.DecimalType, ast.MoneyType:
		default:
			return nil, nil, errAt("TypeMismatch", v.Prov.File, v.Prov.Line, "Mul requires a numeric fact operand")
		}
		v.ResultType = factType
		return v, factType, nil
	case ast.Literal:
		t, err := tc.env.ResolveType(v.Type)
		if err != nil {
			return nil, nil, err
		}
		// The parser leaves decimal literals with a placeholder shape;
		// infer (precision, scale) from the digit string itself so the
		// literal is never rounded away from what was written.
		if dt, ok := t.(ast.DecimalType); ok && dt.Precision == 0 && dt.Scale == 0 && v.Text != "" {
			t = inferDecimalShape(v.Text)
		}
		v.Type = t
		return v, t, nil
	default:
		return e, nil, errAt("TypeMismatch", "", 0, "unsupported expression node")
	}
}

// promote applies the numeric promotion rules: Int/Decimal promotion, and
// rejection of cross-currency Money. It returns operands rewritten (if
// promoted) along with the shared comparison type.
func promote(left ast.Expr, leftType ast.Type, right ast.Expr, rightType ast.Type, prov ast.Provenance) (ast.Expr, ast.Expr, ast.Type, error) {
	if leftType.Equal(rightType) {
		if mt, ok := leftType.(ast.MoneyType); ok {
			return left, right, mt, nil
		}
		return left, right, leftType, nil
	}

	lm, lok := leftType.(ast.MoneyType)
	rm, rok := rightType.(ast.MoneyType)
	if lok || rok {
		if !lok || !rok || lm.Currency != rm.Currency {
			return nil, nil, nil, errAt("CurrencyMismatch", prov.File, prov.Line,
				"cannot compare/combine Money across currencies")
		}
		return left, right, lm, nil
	}

	li, lIsInt := leftType.(ast.IntType)
	ri, rIsInt := rightType.(ast.IntType)
	ld, lIsDec := leftType.(ast.DecimalType)
	rd, rIsDec := rightType.(ast.DecimalType)

	switch {
	case lIsInt && rIsInt:
		// Differently-bounded Ints are the same underlying ordered type;
		// the comparison itself is unbounded.
		return left, right, ast.IntType{}, nil
	case lIsDec && rIsDec:
		scale := ld.Scale
		if rd.Scale > scale {
			scale = rd.Scale
		}
		precision := ld.Precision + (scale - ld.Scale)
		if rp := rd.Precision + (scale - rd.Scale); rp > precision {
			precision = rp
		}
		return left, right, ast.DecimalType{Precision: precision, Scale: scale}, nil
	case lIsInt && rIsDec:
		precision, scale := intDecimalPromotion(li, rd)
		return left, right, ast.DecimalType{Precision: precision, Scale: scale}, nil
	case rIsInt && lIsDec:
		precision, scale := intDecimalPromotion(ri, ld)
		return left, right, ast.DecimalType{Precision: precision, Scale: scale}, nil
	}

	return nil, nil, nil, errAt("TypeMismatch", prov.File, prov.Line,
		"incompatible operand types in comparison")
}

func inferDecimalShape(text string) ast.DecimalType {
	digits, scale := 0, 0
	seenPoint := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
			if seenPoint {
				scale++
			}
		case r == '.':
			seenPoint = true
		}
	}
	if digits == 0 {
		digits = 1
	}
	return ast.DecimalType{Precision: digits, Scale: scale}
}

func intDecimalPromotion(i ast.IntType, d ast.DecimalType) (precision, scale int) {
	min, max := int64(-1<<31), int64(1<<31-1)
	if i.Min != nil {
		min = *i.Min
	}
	if i.Max != nil {
		max = *i.Max
	}
	return numeric.PromotedScale(min, max, d.Precision, d.Scale)
}

func checkComparable(t ast.Type, op ast.CompareOp, prov ast.Provenance) error {
	ordered := op != ast.OpEq && op != ast.OpNeq
	if !ordered {
		return nil
	}
	switch t.(type) {
	case ast.BoolType, ast.EnumType, ast.TextType:
		return errAt("UnorderedComparison", prov.File, prov.Line, "type does not support ordered comparison")
	}
	return nil
}

func assertAssignable(actual, declared ast.Type, prov ast.Provenance) error {
	if actual == nil || declared == nil {
		return nil
	}
	if actual.Equal(declared) {
		return nil
	}
	// Decimal/Money literals are parsed with placeholder precision; accept
	// any Decimal-vs-Decimal pairing, and a Money-vs-Money pairing in the
	// same currency.
	if _, ok := actual.(ast.DecimalType); ok {
		if _, ok := declared.(ast.DecimalType); ok {
			return nil
		}
	}
	if am, ok := actual.(ast.MoneyType); ok {
		if dm, ok := declared.(ast.MoneyType); ok && am.Currency == dm.Currency {
			return nil
		}
	}
	return errAt("TypeMismatch", prov.File, prov.Line, "payload value type does not match declared verdict payload type")
}
