// Copyright 2016 Mender Software AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package requirement

import (
	"github.com/pkg/errors"
)

// Predicate is an immutable registry entry: a name, a pure-over-argv
// validator called at archive-creation time, and an evaluator called at
// application time against a live device Context. This mirrors
// mendersoftware/mender's own habit of keeping a small static table
// (installer/modules.go's module registry) rather than a runtime registration
// API -- the predicate set is closed.
type Predicate struct {
	Name     string
	Validate func(ctx *Context) error
	Evaluate func(ctx *Context) error
}

// registry is the static, closed table of built-in predicates, looked up
// by ctx.Argv[0]. Populated by builtins.go's init.
var registry = map[string]*Predicate{}

func register(p *Predicate) {
	registry[p.Name] = p
}

func lookup(argc int, argv [MaxArgs]string) (*Predicate, error) {
	if argc < 1 {
		return nil, errors.New("Not enough parameters")
	}

	p, ok := registry[argv[0]]
	if !ok {
		return nil, errors.New("Unknown function")
	}
	return p, nil
}

// Validate checks syntactic well-formedness of ctx.Argv, called when
// creating the firmware file.
func Validate(ctx *Context) error {
	p, err := lookup(ctx.Argc, ctx.Argv)
	if err != nil {
		return recordErr(ctx, err)
	}
	return recordErr(ctx, p.Validate(ctx))
}

// Evaluate runs the requirement, called when applying the firmware. It
// returns nil if the requirement is met, or a non-nil error -- which the
// caller treats as "requirement not satisfied", not as an I/O fault --
// otherwise.
func Evaluate(ctx *Context) error {
	p, err := lookup(ctx.Argc, ctx.Argv)
	if err != nil {
		return recordErr(ctx, err)
	}
	return recordErr(ctx, p.Evaluate(ctx))
}

// recordErr mirrors err into ctx.Errors, if set, before returning it
// unchanged -- the explicit Go error remains the primary signal; Errors is
// an optional secondary one for callers that want a single "last error"
// string.
func recordErr(ctx *Context, err error) error {
	if err != nil && ctx.Errors != nil {
		ctx.Errors.Set(err.Error())
	}
	return err
}
