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

// Package requirement implements the requirement evaluation engine: a
// generic, table-dispatched predicate evaluator that inspects the current
// state of a target device (MBR partitions, FAT filesystem contents,
// U-Boot environment variables, host mount topology) to decide whether a
// given task in the firmware descriptor applies.
//
// The dispatch shape is modeled on mendersoftware/mender's own
// BootEnvReadWriter / installer capability split (installer/bootenv.go):
// a small interface describing what the predicate needs from the live
// device, plugged into a package-level static table rather than resolved
// at runtime.
package requirement

import (
	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/internal/errstate"
	"github.com/ebostijancic/fwup/internal/fat"
)

// MaxArgs bounds argc for any single requirement invocation.
const MaxArgs = 4

// Context is the per-evaluation bundle threaded to every predicate: argv,
// the parsed configuration, the output image descriptor, and the
// capability callback that resolves a FAT cache for a given block offset.
// It is stack-scoped per evaluation; slots in Argv beyond Argc are cleared
// so a predicate can never accidentally read a stale argument from a
// previous call.
type Context struct {
	Argc int
	Argv [MaxArgs]string

	Config *config.Config

	// OutputFile is the target image fd/file. May be nil for validate-only
	// calls (archive-creation time), since no predicate's validator reads
	// from it.
	OutputFile OutputFile

	// FATCache resolves a *fat.Cache for a FAT filesystem starting at the
	// given 512-byte block offset.
	FATCache func(blockOffset uint64) (fat.Cache, error)

	// PathOnDevice resolves whether path lives on the named host block
	// device. Host-side probe, deliberately distinct from the
	// target-image predicates above (see requirement/builtins.go's
	// require-path-on-device).
	PathOnDevice func(path, device string) (bool, error)

	// Errors is the process-wide last-error register, threaded here as an
	// explicit, optional collaborator rather than a package-level global.
	// May be nil; a nil
	// Errors simply means nothing beyond the returned error records the
	// failure, which is fine for callers that only care about the Go
	// return value.
	Errors *errstate.Register
}

// OutputFile is the capability this package needs from the target image:
// positioned reads against the output device or file.
type OutputFile interface {
	ReadAt(b []byte, off int64) (int, error)
}

// setArgs populates argc/argv for one tuple and clears the remaining argv
// slots, so a predicate can never read a stale argument left over from a
// previous call in the same reqlist.
func (c *Context) setArgs(args []string) {
	c.Argc = len(args)
	for i := 0; i < MaxArgs; i++ {
		if i < len(args) {
			c.Argv[i] = args[i]
		} else {
			c.Argv[i] = ""
		}
	}
}
