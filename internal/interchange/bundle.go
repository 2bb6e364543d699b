// Package interchange implements Pass 6 — Serialize and the wire
// format it produces: the sole trust boundary between the
// elaborator and the evaluator.
package interchange

import (
	"sort"

	"github.com/google/uuid"

	"github.com/riverline-labs/tenor/internal/ast"
)

const TenorVersion = "1.0"
const TenorPatch = "1.0.0"

// Source is the minimal view Pass 6 needs of the elaborated bundle: a flat
// construct list plus the information earlier passes accumulated (resolved
// fact types, annotated predicates). Elaborate() in internal/elaborate
// assembles this from its own TypedBundle so interchange never imports
// internal/elaborate (it is the downstream consumer, not the reverse).
type Source struct {
	BundleID   string
	Facts      map[string]ast.Fact
	FactTypes  map[string]ast.Type
	Entities   map[string]ast.Entity
	Rules      map[string]ast.Rule
	Operations map[string]ast.Operation
	Flows      map[string]ast.Flow
	Personas   map[string]ast.Persona
	TypeDecls  map[string]ast.TypeDecl
	Sources    map[string]ast.Source
	Systems    map[string]ast.System
}

// Serialize encodes Source as the canonical interchange bundle:
// sorted keys, constructs sorted by (kind, id), structured decimal/money
// encoding, and deterministic output across repeated calls.
func Serialize(s *Source) ([]byte, error) {
	id := s.BundleID
	if id == "" {
		id = uuid.NewString()
	}

	var constructs []map[string]any

	for cid, f := range s.Facts {
		c := baseConstruct("Fact", cid, f.Prov)
		c["type"] = typeToWire(s.FactTypes[cid])
		if f.Default != nil {
			val, err := EncodeLiteral(*f.Default, s.FactTypes[cid])
			if err != nil {
				return nil, err
			}
			c["default"] = val
		}
		if f.Source != "" {
			c["source"] = f.Source
		}
		constructs = append(constructs, c)
	}

	for cid, e := range s.Entities {
		c := baseConstruct("Entity", cid, e.Prov)
		c["states"] = toAnySlice(e.States)
		c["initial"] = e.Initial
		c["cyclic"] = e.Cyclic
		var transitions []any
		for _, t := range e.Transitions {
			transitions = append(transitions, map[string]any{"from": t.From, "to": t.To})
		}
		c["transitions"] = transitions
		constructs = append(constructs, c)
	}

	for cid, r := range s.Rules {
		c := baseConstruct("Rule", cid, r.Prov)
		c["stratum"] = r.Stratum
		c["when"] = predicateToWire(r.When)
		payloadVal, err := valueExprToWire(r.Produce.PayloadValue, r.Produce.PayloadType)
		if err != nil {
			return nil, err
		}
		c["produce"] = map[string]any{
			"verdict_type": r.Produce.VerdictType,
			"payload_type": typeToWire(r.Produce.PayloadType),
			"payload":      payloadVal,
		}
		constructs = append(constructs, c)
	}

	for cid, o := range s.Operations {
		c := baseConstruct("Operation", cid, o.Prov)
		c["personas"] = toAnySlice(o.AllowedPersonas)
		if o.Precondition != nil {
			c["precondition"] = predicateToWire(o.Precondition)
		}
		var effects []any
		for _, eff := range o.Effects {
			m := map[string]any{"entity": eff.Entity, "from": eff.From, "to": eff.To}
			if eff.Outcome != "" {
				m["outcome"] = eff.Outcome
			}
			effects = append(effects, m)
		}
		c["effects"] = effects
		c["errors"] = toAnySlice(o.ErrorContract)
		c["outcomes"] = toAnySlice(o.Outcomes)
		constructs = append(constructs, c)
	}

	for cid, fl := range s.Flows {
		c := baseConstruct("Flow", cid, fl.Prov)
		c["entry"] = fl.Entry
		steps := map[string]any{}
		for sid, st := range fl.Steps {
			steps[sid] = stepToWire(st)
		}
		c["steps"] = steps
		constructs = append(constructs, c)
	}

	for cid, p := range s.Personas {
		constructs = append(constructs, baseConstruct("Persona", cid, p.Prov))
	}

	for cid, td := range s.TypeDecls {
		c := baseConstruct("TypeDecl", cid, td.Prov)
		c["body"] = typeToWire(td.Body)
		constructs = append(constructs, c)
	}

	for cid, src := range s.Sources {
		c := baseConstruct("Source", cid, src.Prov)
		c["source_kind"] = src.Kind_
		constructs = append(constructs, c)
	}

	for cid, sys := range s.Systems {
		c := baseConstruct("System", cid, sys.Prov)
		c["members"] = toAnySlice(sys.Members)
		c["shared_personas"] = toAnySlice(sys.SharedPersonas)
		c["shared_entities"] = toAnySlice(sys.SharedEntities)
		var triggers []any
		for _, t := range sys.Triggers {
			triggers = append(triggers, map[string]any{"flow": t.Flow, "member": t.Member})
		}
		c["triggers"] = triggers
		constructs = append(constructs, c)
	}

	sort.Slice(constructs, func(i, j int) bool {
		ki, kj := constructs[i]["kind"].(string), constructs[j]["kind"].(string)
		if ki != kj {
			return ki < kj
		}
		return constructs[i]["id"].(string) < constructs[j]["id"].(string)
	})

	envelope := map[string]any{
		"id":            id,
		"kind":          "Bundle",
		"tenor":         TenorVersion,
		"tenor_version": TenorPatch,
		"constructs":    constructs,
	}
	return canonicalMarshal(envelope)
}

func baseConstruct(kind, id string, prov ast.Provenance) map[string]any {
	return map[string]any{
		"kind":       kind,
		"id":         id,
		"tenor":      TenorVersion,
		"provenance": map[string]any{"file": prov.File, "line": prov.Line},
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func stepTargetToWire(t ast.StepTarget) any {
	if t.IsTerm {
		return map[string]any{"terminal": t.Terminal}
	}
	if t.StepID == "" {
		return nil
	}
	return map[string]any{"step": t.StepID}
}

func failureHandlerToWire(h ast.FailureHandler) any {
	switch v := h.(type) {
	case ast.Terminate:
		return map[string]any{"kind": "Terminate", "outcome": v.Outcome}
	case ast.Escalate:
		return map[string]any{"kind": "Escalate", "to_persona": v.ToPersona, "next": stepTargetToWire(v.Next)}
	case ast.Compensate:
		var steps []any
		for _, s := range v.Steps {
			steps = append(steps, map[string]any{"operation": s.Operation, "persona": s.Persona})
		}
		return map[string]any{
			"kind":  "Compensate",
			"steps": steps,
			"then":  map[string]any{"outcome": v.Then.Outcome},
		}
	default:
		return nil
	}
}

func stepToWire(s ast.Step) map[string]any {
	switch v := s.(type) {
	case ast.OperationStep:
		outcomes := map[string]any{}
		for k, t := range v.Outcomes {
			outcomes[k] = stepTargetToWire(t)
		}
		m := map[string]any{
			"kind":      "OperationStep",
			"id":        v.ID,
			"operation": v.Operation,
			"persona":   v.Persona,
			"outcomes":  outcomes,
		}
		if v.OnFailure != nil {
			m["on_failure"] = failureHandlerToWire(v.OnFailure)
		}
		return m
	case ast.BranchStep:
		return map[string]any{
			"kind":      "BranchStep",
			"id":        v.ID,
			"condition": predicateToWire(v.Condition),
			"if_true":   stepTargetToWire(v.IfTrue),
			"if_false":  stepTargetToWire(v.IfFalse),
		}
	case ast.HandoffStep:
		return map[string]any{
			"kind":    "HandoffStep",
			"id":      v.ID,
			"persona": v.Persona,
			"next":    stepTargetToWire(v.Next),
		}
	case ast.SubFlowStep:
		return map[string]any{
			"kind":       "SubFlowStep",
			"id":         v.ID,
			"flow":       v.Flow,
			"on_success": stepTargetToWire(v.OnSuccess),
			"on_failure": stepTargetToWire(v.OnFailure),
		}
	case ast.ParallelStep:
		var branches []any
		for _, b := range v.Branches {
			steps := map[string]any{}
			for sid, st := range b.Steps {
				steps[sid] = stepToWire(st)
			}
			branches = append(branches, map[string]any{
				"name":  b.Name,
				"entry": stepTargetToWire(b.Entry),
				"steps": steps,
			})
		}
		return map[string]any{
			"kind":     "ParallelStep",
			"id":       v.ID,
			"branches": branches,
			"join": map[string]any{
				"all_success": stepTargetToWire(v.Join.OnAllSuccess),
				"any_failure": stepTargetToWire(v.Join.OnAnyFailure),
			},
		}
	default:
		return map[string]any{"kind": "Unknown"}
	}
}

func typeToWire(t ast.Type) map[string]any {
	switch v := t.(type) {
	case ast.BoolType:
		return map[string]any{"kind": "Bool"}
	case ast.IntType:
		m := map[string]any{"kind": "Int"}
		if v.Min != nil {
			m["min"] = *v.Min
		}
		if v.Max != nil {
			m["max"] = *v.Max
		}
		return m
	case ast.DecimalType:
		return map[string]any{"kind": "Decimal", "precision": v.Precision, "scale": v.Scale}
	case ast.MoneyType:
		return map[string]any{"kind": "Money", "currency": v.Currency}
	case ast.TextType:
		m := map[string]any{"kind": "Text"}
		if v.MaxLength != nil {
			m["max_length"] = *v.MaxLength
		}
		return m
	case ast.DateType:
		return map[string]any{"kind": "Date"}
	case ast.DateTimeType:
		return map[string]any{"kind": "DateTime"}
	case ast.DurationType:
		return map[string]any{"kind": "Duration", "unit": v.Unit}
	case ast.EnumType:
		return map[string]any{"kind": "Enum", "values": toAnySlice(v.Values)}
	case ast.ListType:
		m := map[string]any{"kind": "List", "element": typeToWire(v.Element)}
		if v.Max != nil {
			m["max"] = *v.Max
		}
		return m
	case ast.RecordType:
		fields := map[string]any{}
		for k, ft := range v.Fields {
			fields[k] = typeToWire(ft)
		}
		return map[string]any{"kind": "Record", "fields": fields}
	case ast.TaggedUnionType:
		tags := map[string]any{}
		for k, tt := range v.Tags {
			tags[k] = typeToWire(tt)
		}
		return map[string]any{"kind": "TaggedUnion", "tags": tags}
	default:
		return map[string]any{"kind": "Unknown"}
	}
}

func predicateToWire(p ast.Predicate) map[string]any {
	switch v := p.(type) {
	case ast.Compare:
		return map[string]any{
			"kind":            "Compare",
			"left":            exprToWire(v.Left),
			"op":              string(v.Op),
			"right":           exprToWire(v.Right),
			"comparison_type": typeToWire(v.ComparisonType),
		}
	case ast.And:
		return map[string]any{"kind": "And", "left": predicateToWire(v.Left), "right": predicateToWire(v.Right)}
	case ast.Or:
		return map[string]any{"kind": "Or", "left": predicateToWire(v.Left), "right": predicateToWire(v.Right)}
	case ast.Not:
		return map[string]any{"kind": "Not", "operand": predicateToWire(v.Operand)}
	case ast.Forall:
		return map[string]any{
			"kind": "Forall", "variable": v.Variable,
			"domain": v.Domain.FactID, "variable_type": typeToWire(v.VariableType),
			"body": predicateToWire(v.Body),
		}
	case ast.Exists:
		return map[string]any{
			"kind": "Exists", "variable": v.Variable,
			"domain": v.Domain.FactID, "variable_type": typeToWire(v.VariableType),
			"body": predicateToWire(v.Body),
		}
	case ast.VerdictPresent:
		return map[string]any{"kind": "VerdictPresent", "verdict_id": v.VerdictID}
	default:
		return map[string]any{"kind": "Unknown"}
	}
}

func exprToWire(e ast.Expr) map[string]any {
	switch v := e.(type) {
	case ast.FactRef:
		return map[string]any{"kind": "FactRef", "fact": v.FactID}
	case ast.FieldRef:
		return map[string]any{"kind": "FieldRef", "variable": v.Var, "field": v.Field}
	case ast.Mul:
		return map[string]any{
			"kind": "Mul", "fact": v.Fact.FactID, "literal": v.Literal,
			"result_type": typeToWire(v.ResultType),
		}
	case ast.Literal:
		val, err := EncodeLiteral(v, v.Type)
		if err != nil {
			val = nil
		}
		return map[string]any{"kind": "Literal", "type": typeToWire(v.Type), "value": val}
	default:
		return map[string]any{"kind": "Unknown"}
	}
}

// valueExprToWire encodes a Rule's produce payload: a bare encoded value
// for the common Literal case, a tagged expression object otherwise (Mul).
func valueExprToWire(e ast.Expr, t ast.Type) (any, error) {
	lit, ok := e.(ast.Literal)
	if !ok {
		return exprToWire(e), nil
	}
	return EncodeLiteral(lit, t)
}
