package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// schemaValidator holds the compiled #Config definition. A cue.Context is not
// safe for concurrent use, so validation is serialized.
type schemaValidator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	def    cue.Value
	err    error
	loaded bool
}

var schema schemaValidator

func (s *schemaValidator) load() error {
	if s.loaded {
		return s.err
	}
	s.loaded = true

	s.ctx = cuecontext.New()
	value := s.ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if value.Err() != nil {
		s.err = fmt.Errorf("error building CUE schema: %v", value.Err())
		return s.err
	}

	s.def = value.LookupPath(cue.ParsePath("#Config"))
	if !s.def.Exists() {
		s.err = fmt.Errorf("#Config definition not found in schema")
	}
	return s.err
}

// ValidateSchema checks cfg against the embedded CUE schema, which bounds
// every field including the ones Validate leaves alone.
func ValidateSchema(cfg *Config) error {
	schema.mu.Lock()
	defer schema.mu.Unlock()

	if err := schema.load(); err != nil {
		return err
	}

	value := schema.ctx.Encode(cfg)
	if value.Err() != nil {
		return fmt.Errorf("error encoding config: %v", value.Err())
	}

	if err := schema.def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
