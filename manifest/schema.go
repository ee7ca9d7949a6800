package manifest

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pkg/errors"
)

const schema = `
#Config: {
	project: {
		name?:    string
		version?: string
	}
	compiler: {
		"base-address":      int & >=0
		capacity:            int & >0 & <=1000000
		"trace-productions": bool
		precedence:          bool
	}
	case?: [...{
		name?:   string
		source:  string & !=""
		output?: string
	}]
	output: {
		"object-dir"?: string
		database?:     string
	}
}
`

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return errors.Wrap(err, "manifest schema")
	}

	val := ctx.Encode(m)
	if err := val.Err(); err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return errors.Wrap(err, "invalid manifest")
	}
	return nil
}
