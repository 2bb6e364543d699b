package ast

// Type is the closed set of base types. Records and
// TaggedUnions may be named via TypeDecl (see TypeRef); every other shape
// is always anonymous. Type identity is structural: two Records with
// identical fields are the same type, so callers compare by Equal, never
// by pointer or by name.
type Type interface {
	typeNode()
	// Equal reports structural equality ("Type identity is
	// structural").
	Equal(Type) bool
}

type BoolType struct{}

func (BoolType) typeNode() {}
func (BoolType) Equal(o Type) bool { _, ok := o.(BoolType); return ok }

// IntType carries optional inclusive bounds.
type IntType struct {
	Min, Max *int64
}

func (IntType) typeNode() {}
func (t IntType) Equal(o Type) bool {
	other, ok := o.(IntType)
	if !ok {
		return false
	}
	return ptrEq64(t.Min, other.Min) && ptrEq64(t.Max, other.Max)
}

// DecimalType is a fixed-point decimal with Precision total digits and
// Scale digits after the point.
type DecimalType struct {
	Precision, Scale int
}

func (DecimalType) typeNode() {}
func (t DecimalType) Equal(o Type) bool {
	other, ok := o.(DecimalType)
	return ok && t.Precision == other.Precision && t.Scale == other.Scale
}

// MoneyType is a Decimal amount tagged with an ISO-4217 currency code.
type MoneyType struct {
	Currency string
}

func (MoneyType) typeNode() {}
func (t MoneyType) Equal(o Type) bool {
	other, ok := o.(MoneyType)
	return ok && t.Currency == other.Currency
}

type TextType struct {
	MaxLength *int
}

func (TextType) typeNode() {}
func (t TextType) Equal(o Type) bool {
	other, ok := o.(TextType)
	return ok && ptrEqInt(t.MaxLength, other.MaxLength)
}

type DateType struct{}

func (DateType) typeNode() {}
func (DateType) Equal(o Type) bool { _, ok := o.(DateType); return ok }

type DateTimeType struct{}

func (DateTimeType) typeNode() {}
func (DateTimeType) Equal(o Type) bool { _, ok := o.(DateTimeType); return ok }

// DurationType carries an optional unit name ("seconds", "days", ...).
type DurationType struct {
	Unit string
}

func (DurationType) typeNode() {}
func (t DurationType) Equal(o Type) bool {
	other, ok := o.(DurationType)
	return ok && t.Unit == other.Unit
}

type EnumType struct {
	Values []string
}

func (EnumType) typeNode() {}
func (t EnumType) Equal(o Type) bool {
	other, ok := o.(EnumType)
	if !ok || len(t.Values) != len(other.Values) {
		return false
	}
	for i := range t.Values {
		if t.Values[i] != other.Values[i] {
			return false
		}
	}
	return true
}

// ListType carries an optional maximum length.
type ListType struct {
	Element Type
	Max     *int
}

func (ListType) typeNode() {}
func (t ListType) Equal(o Type) bool {
	other, ok := o.(ListType)
	return ok && t.Element.Equal(other.Element) && ptrEqInt(t.Max, other.Max)
}

// RecordType maps field name to type. Order is preserved for deterministic
// serialization; equality ignores order.
type RecordType struct {
	Fields map[string]Type
	Order  []string
}

func (RecordType) typeNode() {}
func (t RecordType) Equal(o Type) bool {
	other, ok := o.(RecordType)
	if !ok || len(t.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range t.Fields {
		ov, ok := other.Fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// TaggedUnionType maps tag name to payload type.
type TaggedUnionType struct {
	Tags  map[string]Type
	Order []string
}

func (TaggedUnionType) typeNode() {}
func (t TaggedUnionType) Equal(o Type) bool {
	other, ok := o.(TaggedUnionType)
	if !ok || len(t.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range t.Tags {
		ov, ok := other.Tags[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// TypeRef is a reference to a TypeDecl by name. It only ever appears in the
// raw AST (Pass 1 output); Pass 3 (type env) inlines every TypeRef inside
// TypeDecl bodies, and Pass 4 resolves the ones in Fact and Rule
// declarations against that environment, so no pass after Pass 4 observes one.
type TypeRef struct {
	Name string
	Prov Provenance
}

func (TypeRef) typeNode() {}
func (t TypeRef) Equal(o Type) bool {
	other, ok := o.(TypeRef)
	return ok && t.Name == other.Name
}

func ptrEq64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptrEqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
