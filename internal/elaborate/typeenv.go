package elaborate

import "github.com/riverline-labs/tenor/internal/ast"

// TypeEnv is Pass 3's output: every TypeDecl resolved to a BaseType
// with no TypeRef leaves remaining anywhere in its body.
type TypeEnv struct {
	Resolved map[string]ast.Type
}

type typeEnvBuilder struct {
	decls    map[string]ast.TypeDecl
	resolved map[string]ast.Type
	gray     map[string]bool
	black    map[string]bool
}

// buildTypeEnv resolves every TypeDecl by recursively inlining TypeRefs, per
// a gray/black DFS.
func buildTypeEnv(idx *Index) (*TypeEnv, error) {
	b := &typeEnvBuilder{
		decls:    idx.TypeDecls,
		resolved: map[string]ast.Type{},
		gray:     map[string]bool{},
		black:    map[string]bool{},
	}
	for name := range idx.TypeDecls {
		if _, err := b.resolve(name, nil); err != nil {
			return nil, err
		}
	}
	return &TypeEnv{Resolved: b.resolved}, nil
}

func (b *typeEnvBuilder) resolve(name string, chain []string) (ast.Type, error) {
	if b.black[name] {
		return b.resolved[name], nil
	}
	if b.gray[name] {
		cycle := append(append([]string{}, chain...), name)
		decl := b.decls[name]
		return nil, errAt("TypeCycle", decl.Prov.File, decl.Prov.Line, "type cycle: %v", cycle)
	}
	decl, ok := b.decls[name]
	if !ok {
		return nil, errAt("UnknownType", "", 0, "unknown type %q", name)
	}
	b.gray[name] = true
	chain = append(chain, name)
	body, err := b.inline(decl.Body, chain)
	if err != nil {
		return nil, err
	}
	b.gray[name] = false
	b.black[name] = true
	b.resolved[name] = body
	return body, nil
}

// inline replaces every TypeRef reachable from t with its resolved type.
func (b *typeEnvBuilder) inline(t ast.Type, chain []string) (ast.Type, error) {
	switch v := t.(type) {
	case ast.TypeRef:
		return b.resolve(v.Name, chain)
	case ast.ListType:
		el, err := b.inline(v.Element, chain)
		if err != nil {
			return nil, err
		}
		v.Element = el
		return v, nil
	case ast.RecordType:
		fields := make(map[string]ast.Type, len(v.Fields))
		for _, name := range v.Order {
			ft, err := b.inline(v.Fields[name], chain)
			if err != nil {
				return nil, err
			}
			fields[name] = ft
		}
		v.Fields = fields
		return v, nil
	case ast.TaggedUnionType:
		tags := make(map[string]ast.Type, len(v.Tags))
		for _, name := range v.Order {
			tt, err := b.inline(v.Tags[name], chain)
			if err != nil {
				return nil, err
			}
			tags[name] = tt
		}
		v.Tags = tags
		return v, nil
	default:
		return t, nil
	}
}

// ResolveType fully inlines any TypeRef in t against env, for use by later
// passes that encounter a TypeRef inside a Fact/Rule/Operation declaration
// (as opposed to inside a TypeDecl body, which buildTypeEnv already handles).
func (env *TypeEnv) ResolveType(t ast.Type) (ast.Type, error) {
	switch v := t.(type) {
	case ast.TypeRef:
		resolved, ok := env.Resolved[v.Name]
		if !ok {
			return nil, errAt("UnknownType", v.Prov.File, v.Prov.Line, "unknown type %q", v.Name)
		}
		return resolved, nil
	case ast.ListType:
		el, err := env.ResolveType(v.Element)
		if err != nil {
			return nil, err
		}
		v.Element = el
		return v, nil
	case ast.RecordType:
		fields := make(map[string]ast.Type, len(v.Fields))
		for k, ft := range v.Fields {
			rt, err := env.ResolveType(ft)
			if err != nil {
				return nil, err
			}
			fields[k] = rt
		}
		v.Fields = fields
		return v, nil
	case ast.TaggedUnionType:
		tags := make(map[string]ast.Type, len(v.Tags))
		for k, tt := range v.Tags {
			rt, err := env.ResolveType(tt)
			if err != nil {
				return nil, err
			}
			tags[k] = rt
		}
		v.Tags = tags
		return v, nil
	default:
		return t, nil
	}
}
