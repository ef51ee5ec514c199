package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// schemaMu guards the shared CUE context, which is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schema := schemaCtx.CompileBytes(schemaSource)
		if schema.Err() != nil {
			schemaErr = fmt.Errorf("compiling schema: %w", schema.Err())
			return
		}
		schemaDef = schema.LookupPath(cue.ParsePath("#Config"))
		if schemaDef.Err() != nil {
			schemaErr = fmt.Errorf("looking up #Config definition: %w", schemaDef.Err())
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks raw JSON configuration against the embedded schema.
func Validate(data []byte) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	value := ctx.CompileBytes(data)
	if value.Err() != nil {
		return fmt.Errorf("compiling config as CUE: %w", value.Err())
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %s", errors.Details(err, nil))
	}
	return nil
}
