package evaluator

import (
	"encoding/json"
	"sort"
	"strings"
)

// FactDecl is a contract's Fact declaration.
type FactDecl struct {
	ID      string
	Type    Type
	Default *Value
	Source  string
}

type Transition struct{ From, To string }

type EntityDecl struct {
	ID          string
	States      []string
	Initial     string
	Transitions []Transition
}

type Produce struct {
	VerdictType string
	PayloadType Type
	Payload     Expr
}

type RuleDecl struct {
	ID      string
	Stratum int
	When    Predicate
	Produce Produce
}

type Effect struct {
	Entity, From, To, Outcome string
}

type OperationDecl struct {
	ID              string
	AllowedPersonas []string
	Precondition    *Predicate
	Effects         []Effect
	ErrorContract   []string
	Outcomes        []string
}

type StepTarget struct {
	StepID   string
	Terminal string
	IsTerm   bool
}

type FailureHandler struct {
	Kind      string // Terminate, Escalate, Compensate
	Outcome   string
	ToPersona string
	Next      StepTarget
	Steps     []CompensateStep
	Then      string // outcome
}

type CompensateStep struct{ Operation, Persona string }

type Step struct {
	Kind      string // OperationStep, BranchStep, HandoffStep, SubFlowStep, ParallelStep
	ID        string
	Operation string
	Persona   string
	Outcomes  map[string]StepTarget
	OnFailure *FailureHandler

	Condition Predicate
	IfTrue    StepTarget
	IfFalse   StepTarget

	Next StepTarget

	Flow             string
	OnSuccess        StepTarget
	SubFlowOnFailure StepTarget

	Branches []ParallelBranch
	Join     JoinPolicy
}

type ParallelBranch struct {
	Name  string
	Entry StepTarget
	Steps map[string]Step
}

type JoinPolicy struct {
	OnAllSuccess StepTarget
	OnAnyFailure StepTarget
}

type FlowDecl struct {
	ID    string
	Entry string
	Steps map[string]Step
}

// Contract is the indexed, loaded form of a bundle: HashMap lookups
// by id for Operation/Flow/Entity/Fact, and rules grouped into an
// ascending-stratum ordered map for fix-point evaluation.
type Contract struct {
	BundleID string

	Facts      map[string]FactDecl
	Entities   map[string]EntityDecl
	Rules      map[string]RuleDecl
	Operations map[string]OperationDecl
	Flows      map[string]FlowDecl
	Personas   map[string]bool

	strata         []int
	rulesByStratum map[int][]RuleDecl
}

// RulesByStratum returns stratum keys in ascending order, the evaluator's
// ordered-map traversal over rules.
func (c *Contract) RulesByStratum() []int { return c.strata }

func (c *Contract) StratumRules(s int) []RuleDecl { return c.rulesByStratum[s] }

type wireEnvelope struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Tenor        string            `json:"tenor"`
	TenorVersion string            `json:"tenor_version"`
	Constructs   []json.RawMessage `json:"constructs"`
}

type wireHeader struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// supportedTenorPatch is the exact tenor_version this evaluator was built
// against, used by the "exact" version policy.
const supportedTenorPatch = "1.0.0"

// LoadContract deserializes an interchange bundle into an indexed Contract
// under the default "major-match" version policy: any tenor_version
// sharing major version 1 is accepted. Unknown construct kinds are silently
// skipped for forward compatibility.
func LoadContract(bundleJSON []byte) (*Contract, error) {
	return LoadContractPolicy(bundleJSON, "major-match")
}

// LoadContractPolicy is LoadContract with an explicit rejected-version
// policy: "major-match" (default) or "exact".
func LoadContractPolicy(bundleJSON []byte, versionPolicy string) (*Contract, error) {
	var env wireEnvelope
	if err := json.Unmarshal(bundleJSON, &env); err != nil {
		return nil, errKind(ErrMalformedBundle, "decoding envelope: %v", err)
	}
	if env.Kind != "Bundle" {
		return nil, errKind(ErrMalformedBundle, "top-level kind is %q, want Bundle", env.Kind)
	}
	switch versionPolicy {
	case "exact":
		if env.TenorVersion != supportedTenorPatch {
			return nil, errKind(ErrUnsupportedTenorVersion, "tenor_version %q does not match supported %q", env.TenorVersion, supportedTenorPatch)
		}
	default:
		if major, _, _ := strings.Cut(env.TenorVersion, "."); major != "1" {
			return nil, errKind(ErrUnsupportedTenorVersion, "tenor_version %q has unsupported major version", env.TenorVersion)
		}
	}

	c := &Contract{
		BundleID:       env.ID,
		Facts:          map[string]FactDecl{},
		Entities:       map[string]EntityDecl{},
		Rules:          map[string]RuleDecl{},
		Operations:     map[string]OperationDecl{},
		Flows:          map[string]FlowDecl{},
		Personas:       map[string]bool{},
		rulesByStratum: map[int][]RuleDecl{},
	}

	for _, raw := range env.Constructs {
		var h wireHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, errKind(ErrMalformedBundle, "decoding construct header: %v", err)
		}
		switch h.Kind {
		case "Fact":
			f, err := decodeFactConstruct(raw)
			if err != nil {
				return nil, err
			}
			c.Facts[f.ID] = f
		case "Entity":
			e, err := decodeEntityConstruct(raw)
			if err != nil {
				return nil, err
			}
			c.Entities[e.ID] = e
		case "Rule":
			r, err := decodeRuleConstruct(raw)
			if err != nil {
				return nil, err
			}
			c.Rules[r.ID] = r
			c.rulesByStratum[r.Stratum] = append(c.rulesByStratum[r.Stratum], r)
		case "Operation":
			o, err := decodeOperationConstruct(raw)
			if err != nil {
				return nil, err
			}
			c.Operations[o.ID] = o
		case "Flow":
			fl, err := decodeFlowConstruct(raw)
			if err != nil {
				return nil, err
			}
			c.Flows[fl.ID] = fl
		case "Persona":
			c.Personas[h.ID] = true
		case "TypeDecl", "Source", "System":
			// Not needed by the evaluator: TypeDecls are already inlined into
			// Fact/Record types, and Source/System are elaborator-facing.
		default:
			// forward-compatibility: ignore constructs this evaluator predates.
		}
	}

	for s := range c.rulesByStratum {
		c.strata = append(c.strata, s)
	}
	sort.Ints(c.strata)
	for _, rs := range c.rulesByStratum {
		sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	}

	return c, nil
}

type wireFact struct {
	ID      string          `json:"id"`
	Type    json.RawMessage `json:"type"`
	Default any             `json:"default"`
	Source  string          `json:"source"`
}

func decodeFactConstruct(raw json.RawMessage) (FactDecl, error) {
	var w wireFact
	if err := json.Unmarshal(raw, &w); err != nil {
		return FactDecl{}, errKind(ErrMalformedBundle, "decoding Fact: %v", err)
	}
	t, err := decodeType(w.Type)
	if err != nil {
		return FactDecl{}, err
	}
	f := FactDecl{ID: w.ID, Type: t, Source: w.Source}
	if w.Default != nil {
		dv, err := decodeValue(w.Default, t)
		if err != nil {
			return FactDecl{}, err
		}
		f.Default = &dv
	}
	return f, nil
}

type wireEntity struct {
	ID          string   `json:"id"`
	States      []string `json:"states"`
	Initial     string   `json:"initial"`
	Transitions []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"transitions"`
}

func decodeEntityConstruct(raw json.RawMessage) (EntityDecl, error) {
	var w wireEntity
	if err := json.Unmarshal(raw, &w); err != nil {
		return EntityDecl{}, errKind(ErrMalformedBundle, "decoding Entity: %v", err)
	}
	e := EntityDecl{ID: w.ID, States: w.States, Initial: w.Initial}
	for _, t := range w.Transitions {
		e.Transitions = append(e.Transitions, Transition{From: t.From, To: t.To})
	}
	return e, nil
}

type wireRule struct {
	ID      string          `json:"id"`
	Stratum int             `json:"stratum"`
	When    json.RawMessage `json:"when"`
	Produce struct {
		VerdictType string          `json:"verdict_type"`
		PayloadType json.RawMessage `json:"payload_type"`
		Payload     json.RawMessage `json:"payload"`
	} `json:"produce"`
}

func decodeRuleConstruct(raw json.RawMessage) (RuleDecl, error) {
	var w wireRule
	if err := json.Unmarshal(raw, &w); err != nil {
		return RuleDecl{}, errKind(ErrMalformedBundle, "decoding Rule: %v", err)
	}
	when, err := decodePredicate(w.When)
	if err != nil {
		return RuleDecl{}, err
	}
	pt, err := decodeType(w.Produce.PayloadType)
	if err != nil {
		return RuleDecl{}, err
	}
	payloadExpr, err := decodePayloadExpr(w.Produce.Payload, pt)
	if err != nil {
		return RuleDecl{}, err
	}
	return RuleDecl{
		ID: w.ID, Stratum: w.Stratum, When: when,
		Produce: Produce{VerdictType: w.Produce.VerdictType, PayloadType: pt, Payload: payloadExpr},
	}, nil
}

func decodeRawAny(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

// decodePayloadExpr handles the two shapes Pass 6 emits for a produce
// payload: a bare encoded constant (the common case) or an expression
// object such as Mul, distinguished by a "kind" discriminator.
func decodePayloadExpr(raw json.RawMessage, payloadType Type) (Expr, error) {
	if m, ok := decodeRawAny(raw).(map[string]any); ok {
		switch m["kind"] {
		case "FactRef", "FieldRef", "Mul", "Literal":
			return decodeExpr(raw)
		}
	}
	return Expr{Kind: "Literal", Type: payloadType, Value: decodeRawAny(raw)}, nil
}

type wireOperation struct {
	ID           string          `json:"id"`
	Personas     []string        `json:"personas"`
	Precondition json.RawMessage `json:"precondition"`
	Effects      []struct {
		Entity  string `json:"entity"`
		From    string `json:"from"`
		To      string `json:"to"`
		Outcome string `json:"outcome"`
	} `json:"effects"`
	Errors   []string `json:"errors"`
	Outcomes []string `json:"outcomes"`
}

func decodeOperationConstruct(raw json.RawMessage) (OperationDecl, error) {
	var w wireOperation
	if err := json.Unmarshal(raw, &w); err != nil {
		return OperationDecl{}, errKind(ErrMalformedBundle, "decoding Operation: %v", err)
	}
	o := OperationDecl{ID: w.ID, AllowedPersonas: w.Personas, ErrorContract: w.Errors, Outcomes: w.Outcomes}
	if len(w.Precondition) > 0 {
		p, err := decodePredicate(w.Precondition)
		if err != nil {
			return OperationDecl{}, err
		}
		o.Precondition = &p
	}
	for _, e := range w.Effects {
		o.Effects = append(o.Effects, Effect{Entity: e.Entity, From: e.From, To: e.To, Outcome: e.Outcome})
	}
	return o, nil
}

type wireStepTarget struct {
	Step     string `json:"step"`
	Terminal string `json:"terminal"`
}

func decodeStepTarget(raw json.RawMessage) StepTarget {
	if len(raw) == 0 || string(raw) == "null" {
		return StepTarget{}
	}
	var w wireStepTarget
	_ = json.Unmarshal(raw, &w)
	if w.Terminal != "" {
		return StepTarget{Terminal: w.Terminal, IsTerm: true}
	}
	return StepTarget{StepID: w.Step}
}

type wireFailureHandler struct {
	Kind      string          `json:"kind"`
	Outcome   string          `json:"outcome"`
	ToPersona string          `json:"to_persona"`
	Next      json.RawMessage `json:"next"`
	Steps     []struct {
		Operation string `json:"operation"`
		Persona   string `json:"persona"`
	} `json:"steps"`
	Then struct {
		Outcome string `json:"outcome"`
	} `json:"then"`
}

func decodeFailureHandler(raw json.RawMessage) *FailureHandler {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var w wireFailureHandler
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	h := &FailureHandler{Kind: w.Kind, Outcome: w.Outcome, ToPersona: w.ToPersona, Then: w.Then.Outcome}
	if len(w.Next) > 0 {
		h.Next = decodeStepTarget(w.Next)
	}
	for _, s := range w.Steps {
		h.Steps = append(h.Steps, CompensateStep{Operation: s.Operation, Persona: s.Persona})
	}
	return h
}

type wireStep struct {
	Kind      string                     `json:"kind"`
	ID        string                     `json:"id"`
	Operation string                     `json:"operation"`
	Persona   string                     `json:"persona"`
	Outcomes  map[string]json.RawMessage `json:"outcomes"`
	OnFailure json.RawMessage            `json:"on_failure"`
	Condition json.RawMessage            `json:"condition"`
	IfTrue    json.RawMessage            `json:"if_true"`
	IfFalse   json.RawMessage            `json:"if_false"`
	Next      json.RawMessage            `json:"next"`
	Flow      string                     `json:"flow"`
	OnSuccess json.RawMessage            `json:"on_success"`
	Branches  []struct {
		Name  string                     `json:"name"`
		Entry json.RawMessage            `json:"entry"`
		Steps map[string]json.RawMessage `json:"steps"`
	} `json:"branches"`
	Join struct {
		AllSuccess json.RawMessage `json:"all_success"`
		AnyFailure json.RawMessage `json:"any_failure"`
	} `json:"join"`
}

func decodeStep(raw json.RawMessage) (Step, error) {
	var w wireStep
	if err := json.Unmarshal(raw, &w); err != nil {
		return Step{}, errKind(ErrMalformedBundle, "decoding step: %v", err)
	}
	s := Step{Kind: w.Kind, ID: w.ID, Operation: w.Operation, Persona: w.Persona, Flow: w.Flow}
	if w.Outcomes != nil {
		s.Outcomes = map[string]StepTarget{}
		for k, v := range w.Outcomes {
			s.Outcomes[k] = decodeStepTarget(v)
		}
	}
	if w.Kind == "SubFlowStep" {
		s.SubFlowOnFailure = decodeStepTarget(w.OnFailure)
	} else {
		s.OnFailure = decodeFailureHandler(w.OnFailure)
	}
	if len(w.Condition) > 0 {
		cond, err := decodePredicate(w.Condition)
		if err != nil {
			return Step{}, err
		}
		s.Condition = cond
	}
	s.IfTrue = decodeStepTarget(w.IfTrue)
	s.IfFalse = decodeStepTarget(w.IfFalse)
	s.Next = decodeStepTarget(w.Next)
	s.OnSuccess = decodeStepTarget(w.OnSuccess)
	for _, b := range w.Branches {
		branchSteps := map[string]Step{}
		for sid, sraw := range b.Steps {
			st, err := decodeStep(sraw)
			if err != nil {
				return Step{}, err
			}
			branchSteps[sid] = st
		}
		s.Branches = append(s.Branches, ParallelBranch{Name: b.Name, Entry: decodeStepTarget(b.Entry), Steps: branchSteps})
	}
	s.Join = JoinPolicy{OnAllSuccess: decodeStepTarget(w.Join.AllSuccess), OnAnyFailure: decodeStepTarget(w.Join.AnyFailure)}
	return s, nil
}

type wireFlow struct {
	ID    string                     `json:"id"`
	Entry string                     `json:"entry"`
	Steps map[string]json.RawMessage `json:"steps"`
}

func decodeFlowConstruct(raw json.RawMessage) (FlowDecl, error) {
	var w wireFlow
	if err := json.Unmarshal(raw, &w); err != nil {
		return FlowDecl{}, errKind(ErrMalformedBundle, "decoding Flow: %v", err)
	}
	fl := FlowDecl{ID: w.ID, Entry: w.Entry, Steps: map[string]Step{}}
	for sid, sraw := range w.Steps {
		st, err := decodeStep(sraw)
		if err != nil {
			return FlowDecl{}, err
		}
		fl.Steps[sid] = st
	}
	return fl, nil
}
