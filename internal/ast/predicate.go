package ast

// Expr is the closed set of predicate operands: a fact reference, a
// literal, a field projection on a bound variable, or an arithmetic Mul
// node. Expr is distinct from Predicate — Mul produces a value, never a
// boolean.
type Expr interface {
	exprNode()
	Provenance() Provenance
}

// FactRef names a declared Fact by id.
type FactRef struct {
	FactID string
	Prov   Provenance
}

func (FactRef) exprNode()              {}
func (e FactRef) Provenance() Provenance { return e.Prov }

// Literal is an inline value annotated with its syntactic type. Decimal and
// Money literals carry their digit string in Text so no precision is lost
// parsing into a machine float.
type Literal struct {
	Bool    *bool
	Int     *int64
	Text    string // decimal/money digit string, or Text-type string value
	IsText  bool
	Enum    string
	Type    Type
	Prov    Provenance
}

func (Literal) exprNode()                {}
func (e Literal) Provenance() Provenance { return e.Prov }

// FieldRef projects Field off a variable bound by an enclosing Forall or
// Exists.
type FieldRef struct {
	Var   string
	Field string
	Prov  Provenance
}

func (FieldRef) exprNode()              {}
func (e FieldRef) Provenance() Provenance { return e.Prov }

// Mul multiplies a fact's numeric value by an integer literal. It is
// defined only between a fact reference and an integer literal; its
// ResultType is populated by Pass 4.
type Mul struct {
	Fact       FactRef
	Literal    int64
	ResultType Type
	Prov       Provenance
}

func (Mul) exprNode()              {}
func (e Mul) Provenance() Provenance { return e.Prov }

// CompareOp is the closed set of comparison operators.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNeq CompareOp = "≠"
	OpLt  CompareOp = "<"
	OpLeq CompareOp = "≤"
	OpGt  CompareOp = ">"
	OpGeq CompareOp = "≥"
)

// Predicate is the closed boolean expression tree.
type Predicate interface {
	predicateNode()
	Provenance() Provenance
}

type Compare struct {
	Left, Right    Expr
	Op             CompareOp
	ComparisonType Type
	Prov           Provenance
}

func (Compare) predicateNode()           {}
func (p Compare) Provenance() Provenance { return p.Prov }

type And struct {
	Left, Right Predicate
	Prov        Provenance
}

func (And) predicateNode()           {}
func (p And) Provenance() Provenance { return p.Prov }

type Or struct {
	Left, Right Predicate
	Prov        Provenance
}

func (Or) predicateNode()           {}
func (p Or) Provenance() Provenance { return p.Prov }

type Not struct {
	Operand Predicate
	Prov    Provenance
}

func (Not) predicateNode()           {}
func (p Not) Provenance() Provenance { return p.Prov }

// Forall/Exists bind Variable to each element of the List-typed Domain
// fact, re-evaluating Body once per element.
type Forall struct {
	Variable     string
	Domain       FactRef
	VariableType Type
	Body         Predicate
	Prov         Provenance
}

func (Forall) predicateNode()           {}
func (p Forall) Provenance() Provenance { return p.Prov }

type Exists struct {
	Variable     string
	Domain       FactRef
	VariableType Type
	Body         Predicate
	Prov         Provenance
}

func (Exists) predicateNode()           {}
func (p Exists) Provenance() Provenance { return p.Prov }

// VerdictPresent consults the verdict set accumulated so far.
type VerdictPresent struct {
	VerdictID string
	Prov      Provenance
}

func (VerdictPresent) predicateNode()           {}
func (p VerdictPresent) Provenance() Provenance { return p.Prov }
