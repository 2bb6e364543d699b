package elaborate

import (
	"github.com/riverline-labs/tenor/internal/ast"
	"github.com/riverline-labs/tenor/internal/parser"
	"github.com/riverline-labs/tenor/internal/sourceprovider"
)

// Bundle is Pass 1's output: every construct reachable from a root
// logical path, concatenated in traversal order with file-level provenance
// intact. Later passes consume Constructs; Files is retained only for
// diagnostics that want to report a whole-file location.
type Bundle struct {
	Root       string
	Files      []*ast.File
	Constructs []ast.Construct
}

// assembleBundle runs a depth-first traversal over imports: an
// ordered stack for cycle-message reporting plus a set for O(1) membership,
// and a visited set so a diamond-shaped import graph is only parsed once.
func assembleBundle(provider sourceprovider.Provider, root string) (*Bundle, error) {
	rootPath, err := provider.Canonicalize(root)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Root: rootPath}
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var stack []string

	var visit func(path string) error
	visit = func(path string) error {
		if onStack[path] {
			cycle := append(append([]string{}, stack...), path)
			return errAt("ImportCycle", path, 0, "import cycle: %v", cycle)
		}
		if visited[path] {
			return nil
		}
		visited[path] = true
		onStack[path] = true
		stack = append(stack, path)
		defer func() {
			onStack[path] = false
			stack = stack[:len(stack)-1]
		}()

		src, err := provider.Read(path)
		if err != nil {
			if err == sourceprovider.ErrNotFound {
				return errAt("ImportNotFound", path, 0, "source %q not found", path)
			}
			return err
		}
		file, err := parser.ParseFile(path, src)
		if err != nil {
			return err
		}

		isTypeLibrary := true
		for _, c := range file.Constructs {
			if c.Kind() != "TypeDecl" {
				isTypeLibrary = false
				break
			}
		}
		if isTypeLibrary && len(file.Imports) > 0 {
			return errAt("TypeLibraryImportsForbidden", path, file.Imports[0].Prov.Line,
				"type-library file %q must not contain import", path)
		}

		for _, imp := range file.Imports {
			target, err := provider.Resolve(path, imp.Path)
			if err != nil {
				return err
			}
			if err := visit(target); err != nil {
				return err
			}
		}

		b.Files = append(b.Files, file)
		b.Constructs = append(b.Constructs, file.Constructs...)
		return nil
	}

	if err := visit(rootPath); err != nil {
		return nil, err
	}
	return b, nil
}
