// Package parser turns source text into the raw ast.File for a single
// file (the lex/parse half of Pass 1), using a participle tagged-struct
// grammar (grammar.go) lowered into the ast (lower.go). Bundling multiple
// files together, cycle detection, and the later passes are driven from
// internal/elaborate.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/riverline-labs/tenor/internal/ast"
)

// Error is a parse error tagged with a machine-readable Kind and source
// location.
type Error struct {
	Kind string
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s — %s", e.File, e.Line, e.Kind, e.Msg)
}

func errf(kind, file string, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ParseFile lexes and parses one source file's text into its raw AST.
func ParseFile(logicalPath string, src []byte) (*ast.File, error) {
	g, err := tenorParser.ParseBytes(logicalPath, src)
	if err != nil {
		return nil, classify(logicalPath, err)
	}
	return lowerFile(logicalPath, g)
}

// classify maps participle's errors onto the closed diagnostic taxonomy:
// lexer failures on a quote become UnterminatedString, other unlexable
// input becomes BadOperator, and everything else is an UnexpectedToken at
// the reported position. BadNumber is raised during lowering, where
// integer literals are actually decoded.
func classify(file string, err error) error {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return err
	}
	pos := perr.Position()
	msg := perr.Message()
	kind := "UnexpectedToken"
	if idx := strings.Index(msg, "invalid input text "); idx >= 0 {
		rest := msg[idx+len("invalid input text "):]
		if strings.HasPrefix(rest, `"\"`) {
			kind = "UnterminatedString"
		} else {
			kind = "BadOperator"
		}
	}
	return &Error{Kind: kind, File: file, Line: pos.Line, Msg: msg}
}
