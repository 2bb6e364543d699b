package elaborate

import (
	"github.com/sirupsen/logrus"

	"github.com/riverline-labs/tenor/internal/ast"
	"github.com/riverline-labs/tenor/internal/interchange"
	"github.com/riverline-labs/tenor/internal/sourceprovider"
)

// Options configures the pipeline tunables, normally populated from
// pkg/config.
type Options struct {
	MaxValidateErrors int
	MaxStratumDepth   int    // <= 0 applies DefaultMaxStratumDepth
	BundleID          string // fixed id for deterministic test fixtures; empty generates one
	Log               *logrus.Logger
}

// Elaborate runs the full six-pass pipeline against a source provider
// rooted at root, and returns the canonical interchange bundle.
func Elaborate(provider sourceprovider.Provider, root string, opts Options) ([]byte, error) {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	log.WithField("pass", "bundle").Debug("elaborate: starting pass 1 (bundle)")
	bundle, err := assembleBundle(provider, root)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"pass": "bundle", "files": len(bundle.Files)}).Debug("elaborate: pass 1 complete")

	log.WithField("pass", "index").Debug("elaborate: starting pass 2 (index)")
	idx, err := buildIndex(bundle)
	if err != nil {
		return nil, err
	}
	log.WithField("pass", "index").Debug("elaborate: pass 2 complete")

	log.WithField("pass", "types").Debug("elaborate: starting pass 3 (type env)")
	env, err := buildTypeEnv(idx)
	if err != nil {
		return nil, err
	}
	log.WithField("pass", "types").Debug("elaborate: pass 3 complete")

	log.WithField("pass", "typecheck").Debug("elaborate: starting pass 4 (type check)")
	typed, err := typeCheck(idx, env)
	if err != nil {
		return nil, err
	}
	log.WithField("pass", "typecheck").Debug("elaborate: pass 4 complete")

	log.WithField("pass", "validate").Debug("elaborate: starting pass 5 (validate)")
	if err := Validate(typed, opts.MaxValidateErrors, opts.MaxStratumDepth); err != nil {
		return nil, err
	}
	log.WithField("pass", "validate").Debug("elaborate: pass 5 complete")

	log.WithField("pass", "serialize").Debug("elaborate: starting pass 6 (serialize)")
	typeDecls := make(map[string]ast.TypeDecl, len(idx.TypeDecls))
	for name, td := range idx.TypeDecls {
		td.Body = env.Resolved[name]
		typeDecls[name] = td
	}
	src := &interchange.Source{
		BundleID:   opts.BundleID,
		Facts:      idx.Facts,
		FactTypes:  typed.FactTypes,
		Entities:   idx.Entities,
		Rules:      typed.Rules,
		Operations: typed.Operations,
		Flows:      typed.Flows,
		Personas:   idx.Personas,
		TypeDecls:  typeDecls,
		Sources:    idx.Sources,
		Systems:    idx.Systems,
	}
	out, err := interchange.Serialize(src)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"pass": "serialize", "bytes": len(out)}).Debug("elaborate: pass 6 complete")
	return out, nil
}
