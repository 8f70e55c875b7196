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
	"strconv"

	"github.com/pkg/errors"
)

// ApplyFunc is either Validate or Evaluate, the two entry points ApplyList
// can drive across a reqlist.
type ApplyFunc func(ctx *Context) error

// ApplyList iterates a flat, arity-prefixed requirement-list (arity_1,
// arg_1_0, ..., arg_1_{arity_1-1}, arity_2, ...), populating ctx.Argc/Argv
// for each tuple and calling f. Any failure short-circuits the list: a
// reqlist is an AND of its entries, and the first unmet one stops the rest
// from running.
func ApplyList(ctx *Context, reqlist []string, f ApplyFunc) error {
	i := 0
	for i < len(reqlist) {
		arity, err := strconv.Atoi(reqlist[i])
		if err != nil || arity < 1 || arity > MaxArgs {
			return errors.New("Unexpected argc value in reqlist")
		}
		i++

		if i+arity > len(reqlist) {
			return errors.New("Unexpected error with reqlist")
		}

		ctx.setArgs(reqlist[i : i+arity])
		i += arity

		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EncodeList is the inverse of the flat encoding ApplyList consumes: given
// an ordered set of requirement invocations, produce the flat
// arity-prefixed string vector used in the configuration.
func EncodeList(reqs [][]string) []string {
	var out []string
	for _, r := range reqs {
		out = append(out, strconv.Itoa(len(r)))
		out = append(out, r...)
	}
	return out
}
