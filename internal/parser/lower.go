package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/riverline-labs/tenor/internal/ast"
)

// lowerer converts the tagged grammar tree into the raw ast the later
// passes consume, attaching file/line provenance from lexer positions.
type lowerer struct {
	file string
}

func (l *lowerer) prov(pos lexer.Position) ast.Provenance {
	return ast.Provenance{File: l.file, Line: pos.Line}
}

func (l *lowerer) errAt(kind string, pos lexer.Position, format string, args ...any) *Error {
	return errf(kind, l.file, pos.Line, format, args...)
}

func lowerFile(logicalPath string, g *fileGrammar) (*ast.File, error) {
	l := &lowerer{file: logicalPath}
	f := &ast.File{LogicalPath: logicalPath}
	for _, imp := range g.Imports {
		f.Imports = append(f.Imports, ast.Import{Path: unquote(imp.Path), Prov: l.prov(imp.Pos)})
	}
	for _, c := range g.Constructs {
		lowered, err := l.construct(c)
		if err != nil {
			return nil, err
		}
		f.Constructs = append(f.Constructs, lowered)
	}
	return f, nil
}

func (l *lowerer) construct(c constructGrammar) (ast.Construct, error) {
	prov := l.prov(c.Pos)
	switch {
	case c.Fact != nil:
		return l.fact(c.Fact, prov)
	case c.Entity != nil:
		return l.entity(c.Entity, prov)
	case c.Rule != nil:
		return l.rule(c.Rule, prov)
	case c.Operation != nil:
		return l.operation(c.Operation, prov)
	case c.Flow != nil:
		return l.flow(c.Flow, prov)
	case c.Persona != nil:
		return ast.Persona{IDVal: *c.Persona, Prov: prov}, nil
	case c.Source != nil:
		return ast.Source{IDVal: c.Source.ID, Kind_: c.Source.Kind, Prov: prov}, nil
	case c.TypeDecl != nil:
		body, err := l.typ(c.TypeDecl.Body)
		if err != nil {
			return nil, err
		}
		return ast.TypeDecl{Name: c.TypeDecl.Name, Body: body, Prov: prov}, nil
	case c.System != nil:
		return l.system(c.System, prov)
	default:
		return nil, l.errAt("UnexpectedToken", c.Pos, "empty construct")
	}
}

func (l *lowerer) fact(g *factGrammar, prov ast.Provenance) (ast.Construct, error) {
	ty, err := l.typ(g.Type)
	if err != nil {
		return nil, err
	}
	f := ast.Fact{IDVal: g.ID, Type: ty, Prov: prov}
	for _, attr := range g.Attrs {
		switch {
		case attr.Default != nil:
			expr, err := l.expr(*attr.Default)
			if err != nil {
				return nil, err
			}
			lit, ok := expr.(ast.Literal)
			if !ok {
				return nil, l.errAt("UnexpectedToken", attr.Default.Pos, "expected a literal value")
			}
			f.Default = &lit
		case attr.Source != nil:
			f.Source = unquote(*attr.Source)
		}
	}
	return f, nil
}

func (l *lowerer) entity(g *entityGrammar, prov ast.Provenance) (ast.Construct, error) {
	e := ast.Entity{IDVal: g.ID, Prov: prov}
	for _, field := range g.Fields {
		switch {
		case field.States != nil:
			e.States = field.States.IDs
		case field.Initial != nil:
			e.Initial = *field.Initial
		case field.Cyclic != nil:
			e.Cyclic = *field.Cyclic == "true"
		case field.Transitions != nil:
			for _, p := range field.Transitions.Pairs {
				e.Transitions = append(e.Transitions, ast.Transition{From: p.A, To: p.B})
			}
		}
	}
	return e, nil
}

func (l *lowerer) rule(g *ruleGrammar, prov ast.Provenance) (ast.Construct, error) {
	when, err := l.pred(g.When)
	if err != nil {
		return nil, err
	}
	payloadType, err := l.typ(g.Produce.Type)
	if err != nil {
		return nil, err
	}
	payload, err := l.expr(g.Produce.Value)
	if err != nil {
		return nil, err
	}
	return ast.Rule{
		IDVal:   g.ID,
		Stratum: g.Stratum,
		When:    when,
		Produce: ast.Produce{VerdictType: g.Produce.VerdictType, PayloadType: payloadType, PayloadValue: payload},
		Prov:    prov,
	}, nil
}

func (l *lowerer) operation(g *operationGrammar, prov ast.Provenance) (ast.Construct, error) {
	o := ast.Operation{IDVal: g.ID, Prov: prov}
	for _, field := range g.Fields {
		switch {
		case field.Personas != nil:
			o.AllowedPersonas = field.Personas.IDs
		case field.Precondition != nil:
			pred, err := l.pred(*field.Precondition)
			if err != nil {
				return nil, err
			}
			o.Precondition = pred
		case field.Effects != nil:
			for _, eg := range field.Effects.Effects {
				eff := ast.Effect{Entity: eg.Entity, From: eg.From, To: eg.To}
				if eg.Outcome != nil {
					eff.Outcome = *eg.Outcome
				}
				o.Effects = append(o.Effects, eff)
			}
		case field.Errors != nil:
			o.ErrorContract = field.Errors.IDs
		case field.Outcomes != nil:
			o.Outcomes = field.Outcomes.IDs
		}
	}
	return o, nil
}

func (l *lowerer) system(g *systemGrammar, prov ast.Provenance) (ast.Construct, error) {
	s := ast.System{IDVal: g.ID, Prov: prov}
	for _, field := range g.Fields {
		switch {
		case field.Members != nil:
			s.Members = field.Members.IDs
		case field.SharedPersonas != nil:
			s.SharedPersonas = field.SharedPersonas.IDs
		case field.SharedEntities != nil:
			s.SharedEntities = field.SharedEntities.IDs
		case field.Triggers != nil:
			for _, p := range field.Triggers.Pairs {
				s.Triggers = append(s.Triggers, ast.SystemTrigger{Flow: p.A, Member: p.B})
			}
		}
	}
	return s, nil
}

// typ interprets a head-plus-parameters type expression. Unknown heads are
// TypeDecl references resolved by the type-environment pass.
func (l *lowerer) typ(g typeGrammar) (ast.Type, error) {
	params := []typeParamGrammar{}
	if g.Params != nil {
		params = g.Params.Params
	}
	switch g.Name {
	case "Bool":
		return ast.BoolType{}, nil
	case "Int":
		t := ast.IntType{}
		for _, p := range params {
			n, err := l.paramInt(p)
			if err != nil {
				return nil, err
			}
			switch p.Key {
			case "min":
				t.Min = &n
			case "max":
				t.Max = &n
			default:
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Int parameter %q", p.Key)
			}
		}
		return t, nil
	case "Decimal":
		// A bare Decimal (no parameter block) is a placeholder shape the
		// type checker later infers from context, matching decimal
		// literals.
		t := ast.DecimalType{}
		for _, p := range params {
			n, err := l.paramInt(p)
			if err != nil {
				return nil, err
			}
			switch p.Key {
			case "precision":
				t.Precision = int(n)
			case "scale":
				t.Scale = int(n)
			default:
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Decimal parameter %q", p.Key)
			}
		}
		return t, nil
	case "Money":
		if g.Params == nil {
			return nil, l.errAt("UnexpectedToken", g.Pos, "Money requires a currency")
		}
		t := ast.MoneyType{}
		for _, p := range params {
			if p.Key != "currency" {
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Money parameter %q", p.Key)
			}
			cur, err := l.paramIdent(p)
			if err != nil {
				return nil, err
			}
			t.Currency = cur
		}
		return t, nil
	case "Text":
		t := ast.TextType{}
		for _, p := range params {
			if p.Key != "max_length" {
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Text parameter %q", p.Key)
			}
			n, err := l.paramInt(p)
			if err != nil {
				return nil, err
			}
			v := int(n)
			t.MaxLength = &v
		}
		return t, nil
	case "Date":
		return ast.DateType{}, nil
	case "DateTime":
		return ast.DateTimeType{}, nil
	case "Duration":
		t := ast.DurationType{}
		for _, p := range params {
			if p.Key != "unit" {
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Duration parameter %q", p.Key)
			}
			unit, err := l.paramIdent(p)
			if err != nil {
				return nil, err
			}
			t.Unit = unit
		}
		return t, nil
	case "Enum":
		if g.Params == nil {
			return nil, l.errAt("UnexpectedToken", g.Pos, "Enum requires a values list")
		}
		t := ast.EnumType{}
		for _, p := range params {
			if p.Key != "values" || p.List == nil {
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown Enum parameter %q", p.Key)
			}
			t.Values = p.List.IDs
		}
		return t, nil
	case "List":
		if g.Params == nil {
			return nil, l.errAt("UnexpectedToken", g.Pos, "List requires an element type")
		}
		t := ast.ListType{}
		for _, p := range params {
			switch p.Key {
			case "element":
				if p.Type == nil {
					return nil, l.errAt("UnexpectedToken", g.Pos, "List element expects a type")
				}
				el, err := l.typ(*p.Type)
				if err != nil {
					return nil, err
				}
				t.Element = el
			case "max":
				n, err := l.paramInt(p)
				if err != nil {
					return nil, err
				}
				v := int(n)
				t.Max = &v
			default:
				return nil, l.errAt("UnexpectedToken", g.Pos, "unknown List parameter %q", p.Key)
			}
		}
		if t.Element == nil {
			return nil, l.errAt("UnexpectedToken", g.Pos, "List requires an element type")
		}
		return t, nil
	case "Record", "TaggedUnion":
		fields := map[string]ast.Type{}
		var order []string
		for _, p := range params {
			if p.Type == nil {
				return nil, l.errAt("UnexpectedToken", g.Pos, "field %q expects a type", p.Key)
			}
			ft, err := l.typ(*p.Type)
			if err != nil {
				return nil, err
			}
			fields[p.Key] = ft
			order = append(order, p.Key)
		}
		if g.Name == "Record" {
			return ast.RecordType{Fields: fields, Order: order}, nil
		}
		return ast.TaggedUnionType{Tags: fields, Order: order}, nil
	default:
		if g.Params != nil {
			return nil, l.errAt("UnexpectedToken", g.Pos, "type reference %q takes no parameters", g.Name)
		}
		return ast.TypeRef{Name: g.Name, Prov: l.prov(g.Pos)}, nil
	}
}

func (l *lowerer) paramInt(p typeParamGrammar) (int64, error) {
	if p.Num == nil {
		return 0, errf("BadNumber", l.file, 0, "parameter %q expects an integer literal", p.Key)
	}
	n, err := strconv.ParseInt(*p.Num, 10, 64)
	if err != nil {
		return 0, errf("BadNumber", l.file, 0, "malformed integer %q", *p.Num)
	}
	return n, nil
}

func (l *lowerer) paramIdent(p typeParamGrammar) (string, error) {
	if p.Type == nil || p.Type.Params != nil {
		return "", errf("UnexpectedToken", l.file, 0, "parameter %q expects an identifier", p.Key)
	}
	return p.Type.Name, nil
}

// Predicates.

func (l *lowerer) pred(g predGrammar) (ast.Predicate, error) {
	left, err := l.andPred(g.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range g.Rest {
		right, err := l.andPred(*rest)
		if err != nil {
			return nil, err
		}
		left = ast.Or{Left: left, Right: right, Prov: l.prov(rest.Pos)}
	}
	return left, nil
}

func (l *lowerer) andPred(g andGrammar) (ast.Predicate, error) {
	left, err := l.notPred(g.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range g.Rest {
		right, err := l.notPred(*rest)
		if err != nil {
			return nil, err
		}
		left = ast.And{Left: left, Right: right, Prov: l.prov(rest.Pos)}
	}
	return left, nil
}

func (l *lowerer) notPred(g notGrammar) (ast.Predicate, error) {
	if g.Not != nil {
		operand, err := l.notPred(*g.Not)
		if err != nil {
			return nil, err
		}
		return ast.Not{Operand: operand, Prov: l.prov(g.Pos)}, nil
	}
	return l.atomPred(*g.Atom)
}

func (l *lowerer) atomPred(g atomGrammar) (ast.Predicate, error) {
	prov := l.prov(g.Pos)
	switch {
	case g.Paren != nil:
		return l.pred(*g.Paren)
	case g.Forall != nil:
		return l.quant(*g.Forall, true, prov)
	case g.Exists != nil:
		return l.quant(*g.Exists, false, prov)
	case g.Verdict != nil:
		return ast.VerdictPresent{VerdictID: *g.Verdict, Prov: prov}, nil
	case g.Compare != nil:
		left, err := l.expr(g.Compare.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.expr(g.Compare.Right)
		if err != nil {
			return nil, err
		}
		return ast.Compare{Left: left, Right: right, Op: normalizeOp(g.Compare.Op), Prov: l.prov(g.Compare.Pos)}, nil
	default:
		return nil, l.errAt("UnexpectedToken", g.Pos, "empty predicate")
	}
}

func (l *lowerer) quant(g quantGrammar, universal bool, prov ast.Provenance) (ast.Predicate, error) {
	body, err := l.pred(g.Body)
	if err != nil {
		return nil, err
	}
	domain := ast.FactRef{FactID: g.Domain, Prov: prov}
	if universal {
		return ast.Forall{Variable: g.Variable, Domain: domain, Body: body, Prov: prov}, nil
	}
	return ast.Exists{Variable: g.Variable, Domain: domain, Body: body, Prov: prov}, nil
}

// normalizeOp folds the ASCII operator spellings onto their canonical
// Unicode forms so every later pass matches a single spelling.
func normalizeOp(op string) ast.CompareOp {
	switch op {
	case "!=":
		return ast.OpNeq
	case "<=":
		return ast.OpLeq
	case ">=":
		return ast.OpGeq
	default:
		return ast.CompareOp(op)
	}
}

// Expressions.

func (l *lowerer) expr(g exprGrammar) (ast.Expr, error) {
	prov := l.prov(g.Pos)
	switch {
	case g.Money != nil:
		if !isUpperIdent(g.Money.Currency) {
			return nil, l.errAt("UnexpectedToken", g.Pos, "money literal expects an uppercase currency code")
		}
		return ast.Literal{Text: g.Money.Amount, Type: ast.MoneyType{Currency: g.Money.Currency}, Prov: prov}, nil
	case g.Number != nil:
		return l.numberLiteral(*g.Number, g.Pos)
	case g.Str != nil:
		return ast.Literal{Text: unquote(*g.Str), IsText: true, Type: ast.TextType{}, Prov: prov}, nil
	case g.True:
		b := true
		return ast.Literal{Bool: &b, Type: ast.BoolType{}, Prov: prov}, nil
	case g.False:
		b := false
		return ast.Literal{Bool: &b, Type: ast.BoolType{}, Prov: prov}, nil
	case g.Enum != nil:
		return ast.Literal{Enum: g.Enum.Value, Type: ast.EnumType{Values: []string{g.Enum.Value}}, Prov: prov}, nil
	case g.Field != nil:
		return ast.FieldRef{Var: g.Field.Var, Field: g.Field.Field, Prov: prov}, nil
	case g.Mul != nil:
		if strings.Contains(g.Mul.Literal, ".") {
			return nil, l.errAt("UnexpectedToken", g.Pos, "Mul requires an integer literal operand")
		}
		n, err := strconv.ParseInt(g.Mul.Literal, 10, 64)
		if err != nil {
			return nil, l.errAt("BadNumber", g.Pos, "integer literal out of range")
		}
		return ast.Mul{Fact: ast.FactRef{FactID: g.Mul.Fact, Prov: prov}, Literal: n, Prov: prov}, nil
	case g.Fact != nil:
		return ast.FactRef{FactID: *g.Fact, Prov: prov}, nil
	default:
		return nil, l.errAt("UnexpectedToken", g.Pos, "empty expression")
	}
}

func (l *lowerer) numberLiteral(text string, pos lexer.Position) (ast.Expr, error) {
	prov := l.prov(pos)
	if strings.Contains(text, ".") {
		return ast.Literal{Text: text, Type: ast.DecimalType{}, Prov: prov}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, l.errAt("BadNumber", pos, "integer literal out of range")
	}
	return ast.Literal{Int: &n, Type: ast.IntType{}, Prov: prov}, nil
}

// Flows.

func (l *lowerer) flow(g *flowGrammar, prov ast.Provenance) (ast.Construct, error) {
	f := ast.Flow{IDVal: g.ID, Steps: map[string]ast.Step{}, Prov: prov}
	for _, item := range g.Items {
		switch {
		case item.Entry != nil:
			f.Entry = *item.Entry
		case item.Step != nil:
			step, err := l.step(*item.Step)
			if err != nil {
				return nil, err
			}
			f.Steps[step.StepID()] = step
		}
	}
	return f, nil
}

func (l *lowerer) step(g stepGrammar) (ast.Step, error) {
	switch {
	case g.Operation != nil:
		s := ast.OperationStep{
			ID:        g.ID,
			Operation: g.Operation.Operation,
			Persona:   g.Operation.Persona,
			Outcomes:  map[string]ast.StepTarget{},
		}
		for _, arm := range g.Operation.Arms {
			switch {
			case arm.OnFailure != nil:
				handler, err := l.handler(*arm.OnFailure)
				if err != nil {
					return nil, err
				}
				s.OnFailure = handler
			case arm.Outcome != nil:
				s.Outcomes[arm.Outcome.Label] = lowerTarget(arm.Outcome.Target)
			}
		}
		return s, nil
	case g.Branch != nil:
		cond, err := l.pred(g.Branch.Condition)
		if err != nil {
			return nil, err
		}
		s := ast.BranchStep{ID: g.ID, Condition: cond}
		for _, arm := range g.Branch.Arms {
			if arm.Key == "true" {
				s.IfTrue = lowerTarget(arm.Target)
			} else {
				s.IfFalse = lowerTarget(arm.Target)
			}
		}
		return s, nil
	case g.Handoff != nil:
		return ast.HandoffStep{ID: g.ID, Persona: g.Handoff.Persona, Next: lowerTarget(g.Handoff.Next)}, nil
	case g.SubFlow != nil:
		s := ast.SubFlowStep{ID: g.ID, Flow: g.SubFlow.Flow}
		for _, arm := range g.SubFlow.Arms {
			if arm.Key == "on_success" {
				s.OnSuccess = lowerTarget(arm.Target)
			} else {
				s.OnFailure = lowerTarget(arm.Target)
			}
		}
		return s, nil
	case g.Parallel != nil:
		s := ast.ParallelStep{ID: g.ID}
		for _, item := range g.Parallel.Items {
			switch {
			case item.Branch != nil:
				branch := ast.ParallelBranch{
					Name:  item.Branch.Name,
					Entry: lowerTarget(item.Branch.Entry),
					Steps: map[string]ast.Step{},
				}
				for _, bs := range item.Branch.Steps {
					st, err := l.step(bs)
					if err != nil {
						return nil, err
					}
					branch.Steps[st.StepID()] = st
				}
				s.Branches = append(s.Branches, branch)
			case item.Join != nil:
				for _, arm := range item.Join.Arms {
					if arm.Key == "all_success" {
						s.Join.OnAllSuccess = lowerTarget(arm.Target)
					} else {
						s.Join.OnAnyFailure = lowerTarget(arm.Target)
					}
				}
			}
		}
		return s, nil
	default:
		return nil, l.errAt("UnexpectedToken", g.Pos, "step %q has no body", g.ID)
	}
}

func (l *lowerer) handler(g handlerGrammar) (ast.FailureHandler, error) {
	switch {
	case g.Terminate != nil:
		return ast.Terminate{Outcome: *g.Terminate}, nil
	case g.Escalate != nil:
		return ast.Escalate{ToPersona: g.Escalate.Persona, Next: lowerTarget(g.Escalate.Next)}, nil
	case g.Compensate != nil:
		var steps []ast.CompensateStep
		for _, p := range g.Compensate.Steps {
			steps = append(steps, ast.CompensateStep{Operation: p.A, Persona: p.B})
		}
		return ast.Compensate{Steps: steps, Then: ast.Terminate{Outcome: g.Compensate.Then}}, nil
	default:
		return nil, errf("UnexpectedToken", l.file, 0, "empty failure handler")
	}
}

func lowerTarget(g targetGrammar) ast.StepTarget {
	if g.Terminal != nil {
		return ast.StepTarget{Terminal: *g.Terminal, IsTerm: true}
	}
	if g.Step != nil {
		return ast.StepTarget{StepID: *g.Step}
	}
	return ast.StepTarget{}
}

// unquote strips the surrounding double quotes the lexer leaves on String
// tokens and resolves escapes.
func unquote(s string) string {
	if out, err := strconv.Unquote(s); err == nil {
		return out
	}
	return strings.Trim(s, `"`)
}

func isUpperIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
