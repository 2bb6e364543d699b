package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// tenorLexer tokenizes the surface language: comments, quoted text,
// integer/fixed-point numbers, the ASCII and Unicode operator spellings,
// and identifiers. Keywords are plain identifiers matched by value in the
// grammar, so construct keywords stay usable as field labels elsewhere.
var tenorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "Op", Pattern: `::|!=|<=|>=|[∧∨¬∀∃∈≠≤≥=<>]`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(){}\[\],.:*]`},
})

// tenorParser is the singleton built from the grammar below, in the style
// of a declarative tagged-struct grammar. Two tokens of lookahead resolve
// every Ident-led ambiguity: money literals (Ident Number), enum literals
// (Ident ::), field projections (Ident .), and Mul (Ident *).
var tenorParser = participle.MustBuild[fileGrammar](
	participle.Lexer(tenorLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// fileGrammar is the top-level node: imports first, then constructs.
type fileGrammar struct {
	Imports    []importGrammar    `parser:"@@*"`
	Constructs []constructGrammar `parser:"@@*"`
}

type importGrammar struct {
	Pos  lexer.Position
	Path string `parser:"'import' @String"`
}

// constructGrammar dispatches on the opening keyword.
type constructGrammar struct {
	Pos       lexer.Position
	Fact      *factGrammar      `parser:"  'fact' @@"`
	Entity    *entityGrammar    `parser:"| 'entity' @@"`
	Rule      *ruleGrammar      `parser:"| 'rule' @@"`
	Operation *operationGrammar `parser:"| 'operation' @@"`
	Flow      *flowGrammar      `parser:"| 'flow' @@"`
	Persona   *string           `parser:"| 'persona' @Ident"`
	Source    *sourceGrammar    `parser:"| 'source' @@"`
	TypeDecl  *typeDeclGrammar  `parser:"| 'type' @@"`
	System    *systemGrammar    `parser:"| 'system' @@"`
}

// factGrammar: fact id : Type [default <literal>] [source "ref"], with the
// trailing attributes accepted in either order.
type factGrammar struct {
	ID    string            `parser:"@Ident ':'"`
	Type  typeGrammar       `parser:"@@"`
	Attrs []factAttrGrammar `parser:"@@*"`
}

type factAttrGrammar struct {
	Default *exprGrammar `parser:"  'default' @@"`
	Source  *string      `parser:"| 'source' @String"`
}

// entityGrammar: entity id { states/initial/cyclic/transitions in any order }.
type entityGrammar struct {
	ID     string               `parser:"@Ident '{'"`
	Fields []entityFieldGrammar `parser:"( @@ ','? )* '}'"`
}

type entityFieldGrammar struct {
	States      *identListGrammar `parser:"  'states' ':' @@"`
	Initial     *string           `parser:"| 'initial' ':' @Ident"`
	Cyclic      *string           `parser:"| 'cyclic' ':' @Ident"`
	Transitions *pairListGrammar  `parser:"| 'transitions' ':' @@"`
}

type identListGrammar struct {
	IDs []string `parser:"'[' ( @Ident ( ',' @Ident )* )? ']'"`
}

type pairListGrammar struct {
	Pairs []pairGrammar `parser:"'[' ( @@ ( ',' @@ )* )? ']'"`
}

// pairGrammar is the closed tuple shape (a, b): entity transitions, system
// triggers, and compensation (operation, persona) steps all share it.
type pairGrammar struct {
	A string `parser:"'(' @Ident ','"`
	B string `parser:"@Ident ')'"`
}

// ruleGrammar: rule id stratum N { when <predicate> produce vt : Type = <expr> }.
type ruleGrammar struct {
	ID      string         `parser:"@Ident 'stratum'"`
	Stratum int            `parser:"@Number '{'"`
	When    predGrammar    `parser:"'when' @@"`
	Produce produceGrammar `parser:"'produce' @@ '}'"`
}

type produceGrammar struct {
	VerdictType string      `parser:"@Ident ':'"`
	Type        typeGrammar `parser:"@@ '='"`
	Value       exprGrammar `parser:"@@"`
}

// operationGrammar: operation id { personas/precondition/effects/errors/outcomes }.
type operationGrammar struct {
	ID     string                  `parser:"@Ident '{'"`
	Fields []operationFieldGrammar `parser:"( @@ ','? )* '}'"`
}

type operationFieldGrammar struct {
	Personas     *identListGrammar  `parser:"  'personas' ':' @@"`
	Precondition *predGrammar       `parser:"| 'precondition' ':' @@"`
	Effects      *effectListGrammar `parser:"| 'effects' ':' @@"`
	Errors       *identListGrammar  `parser:"| 'errors' ':' @@"`
	Outcomes     *identListGrammar  `parser:"| 'outcomes' ':' @@"`
}

type effectListGrammar struct {
	Effects []effectGrammar `parser:"'[' ( @@ ( ',' @@ )* )? ']'"`
}

type effectGrammar struct {
	Entity  string  `parser:"'(' @Ident ','"`
	From    string  `parser:"@Ident ','"`
	To      string  `parser:"@Ident"`
	Outcome *string `parser:"( ',' @Ident )? ')'"`
}

type sourceGrammar struct {
	ID   string `parser:"@Ident"`
	Kind string `parser:"@Ident"`
}

type typeDeclGrammar struct {
	Name string      `parser:"@Ident '='"`
	Body typeGrammar `parser:"@@"`
}

// systemGrammar: system id { members/shared_personas/shared_entities/triggers }.
type systemGrammar struct {
	ID     string               `parser:"@Ident '{'"`
	Fields []systemFieldGrammar `parser:"( @@ ','? )* '}'"`
}

type systemFieldGrammar struct {
	Members        *identListGrammar `parser:"  'members' ':' @@"`
	SharedPersonas *identListGrammar `parser:"| 'shared_personas' ':' @@"`
	SharedEntities *identListGrammar `parser:"| 'shared_entities' ':' @@"`
	Triggers       *pairListGrammar  `parser:"| 'triggers' ':' @@"`
}

// typeGrammar is any type expression: a head name plus an optional {...}
// parameter block. The head decides how each parameter is interpreted
// during lowering — Record/TaggedUnion treat every key as a field name, the
// scalar heads accept their closed parameter sets, and an unknown head is a
// TypeDecl reference.
type typeGrammar struct {
	Pos    lexer.Position
	Name   string             `parser:"@Ident"`
	Params *typeParamsGrammar `parser:"@@?"`
}

type typeParamsGrammar struct {
	Params []typeParamGrammar `parser:"'{' ( @@ ','? )* '}'"`
}

type typeParamGrammar struct {
	Key   string            `parser:"@Ident ':'"`
	Num   *string           `parser:"( @Number"`
	List  *identListGrammar `parser:"| @@"`
	Type  *typeGrammar      `parser:"| @@ )"`
}

// Predicate grammar, lowest precedence first: or, and, not, then atoms.
type predGrammar struct {
	Left andGrammar    `parser:"@@"`
	Rest []*andGrammar `parser:"( ( '∨' | 'or' ) @@ )*"`
}

type andGrammar struct {
	Pos  lexer.Position
	Left notGrammar    `parser:"@@"`
	Rest []*notGrammar `parser:"( ( '∧' | 'and' ) @@ )*"`
}

type notGrammar struct {
	Pos  lexer.Position
	Not  *notGrammar  `parser:"  ( '¬' | 'not' ) @@"`
	Atom *atomGrammar `parser:"| @@"`
}

type atomGrammar struct {
	Pos     lexer.Position
	Paren   *predGrammar    `parser:"  '(' @@ ')'"`
	Forall  *quantGrammar   `parser:"| '∀' @@"`
	Exists  *quantGrammar   `parser:"| '∃' @@"`
	Verdict *string         `parser:"| 'verdict' @Ident"`
	Compare *compareGrammar `parser:"| @@"`
}

type quantGrammar struct {
	Variable string      `parser:"@Ident '∈'"`
	Domain   string      `parser:"@Ident '.'"`
	Body     predGrammar `parser:"@@"`
}

type compareGrammar struct {
	Pos   lexer.Position
	Left  exprGrammar `parser:"@@"`
	Op    string      `parser:"@( '=' | '≠' | '!=' | '<' | '≤' | '<=' | '>' | '≥' | '>=' )"`
	Right exprGrammar `parser:"@@"`
}

// exprGrammar is a single predicate/payload operand. Branch order matters:
// the Ident-led shapes (money, enum, field projection, Mul) are tried
// before the bare fact reference, each decided by the second token.
type exprGrammar struct {
	Pos    lexer.Position
	Money  *moneyGrammar `parser:"  @@"`
	Number *string       `parser:"| @Number"`
	Str    *string       `parser:"| @String"`
	True   bool          `parser:"| @'true'"`
	False  bool          `parser:"| @'false'"`
	Enum   *enumGrammar  `parser:"| @@"`
	Field  *fieldGrammar `parser:"| @@"`
	Mul    *mulGrammar   `parser:"| @@"`
	Fact   *string       `parser:"| @Ident"`
}

// moneyGrammar composes a Money literal from a currency code immediately
// followed by a number, e.g. USD 19.99. There is no dedicated money token;
// lowering rejects a non-uppercase currency so ordinary fact references
// never lower as money.
type moneyGrammar struct {
	Currency string `parser:"@Ident"`
	Amount   string `parser:"@Number"`
}

type enumGrammar struct {
	Name  string `parser:"@Ident '::'"`
	Value string `parser:"@Ident"`
}

type fieldGrammar struct {
	Var   string `parser:"@Ident '.'"`
	Field string `parser:"@Ident"`
}

type mulGrammar struct {
	Fact    string `parser:"@Ident '*'"`
	Literal string `parser:"@Number"`
}

// Flow grammar.
type flowGrammar struct {
	ID    string            `parser:"@Ident '{'"`
	Items []flowItemGrammar `parser:"( @@ ','? )* '}'"`
}

type flowItemGrammar struct {
	Entry *string      `parser:"  'entry' ':' @Ident"`
	Step  *stepGrammar `parser:"| @@"`
}

type stepGrammar struct {
	Pos       lexer.Position
	ID        string                `parser:"'step' @Ident"`
	Operation *operationStepGrammar `parser:"( 'operation' @@"`
	Branch    *branchStepGrammar    `parser:"| 'branch' @@"`
	Handoff   *handoffStepGrammar   `parser:"| 'handoff' @@"`
	SubFlow   *subFlowStepGrammar   `parser:"| 'subflow' @@"`
	Parallel  *parallelStepGrammar  `parser:"| 'parallel' @@ )"`
}

type operationStepGrammar struct {
	Operation string                `parser:"@Ident 'persona'"`
	Persona   string                `parser:"@Ident '{'"`
	Arms      []operationArmGrammar `parser:"( @@ ','? )* '}'"`
}

type operationArmGrammar struct {
	OnFailure *handlerGrammar    `parser:"  'on_failure' ':' @@"`
	Outcome   *outcomeArmGrammar `parser:"| @@"`
}

type outcomeArmGrammar struct {
	Label  string        `parser:"@Ident ':'"`
	Target targetGrammar `parser:"@@"`
}

// targetGrammar is a step reference or terminal(outcome).
type targetGrammar struct {
	Terminal *string `parser:"  'terminal' '(' @Ident ')'"`
	Step     *string `parser:"| @Ident"`
}

type handlerGrammar struct {
	Terminate  *string            `parser:"  'terminate' '(' @Ident ')'"`
	Escalate   *escalateGrammar   `parser:"| 'escalate' '(' @@ ')'"`
	Compensate *compensateGrammar `parser:"| 'compensate' '(' @@ ')'"`
}

type escalateGrammar struct {
	Persona string        `parser:"@Ident ','"`
	Next    targetGrammar `parser:"@@"`
}

type compensateGrammar struct {
	Steps []pairGrammar `parser:"'[' ( @@ ( ',' @@ )* )? ']' ','"`
	Then  string        `parser:"'terminate' '(' @Ident ')'"`
}

type branchStepGrammar struct {
	Condition predGrammar        `parser:"@@ '{'"`
	Arms      []branchArmGrammar `parser:"( @@ ','? )* '}'"`
}

type branchArmGrammar struct {
	Key    string        `parser:"@( 'true' | 'false' ) ':'"`
	Target targetGrammar `parser:"@@"`
}

type handoffStepGrammar struct {
	Persona string        `parser:"'persona' @Ident 'next'"`
	Next    targetGrammar `parser:"@@"`
}

type subFlowStepGrammar struct {
	Flow string              `parser:"@Ident '{'"`
	Arms []subFlowArmGrammar `parser:"( @@ ','? )* '}'"`
}

type subFlowArmGrammar struct {
	Key    string        `parser:"@( 'on_success' | 'on_failure' ) ':'"`
	Target targetGrammar `parser:"@@"`
}

type parallelStepGrammar struct {
	Items []parallelItemGrammar `parser:"'{' ( @@ ','? )* '}'"`
}

type parallelItemGrammar struct {
	Branch *parallelBranchGrammar `parser:"  'branch' @@"`
	Join   *joinGrammar           `parser:"| 'join' @@"`
}

type parallelBranchGrammar struct {
	Name  string        `parser:"@Ident 'entry'"`
	Entry targetGrammar `parser:"@@ '{'"`
	Steps []stepGrammar `parser:"@@* '}'"`
}

type joinGrammar struct {
	Arms []joinArmGrammar `parser:"'{' ( @@ ','? )* '}'"`
}

type joinArmGrammar struct {
	Key    string        `parser:"@( 'all_success' | 'any_failure' ) ':'"`
	Target targetGrammar `parser:"@@"`
}
