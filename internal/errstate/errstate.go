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

// Package errstate implements the process-wide last-error register that the
// original fwup exposes through set_last_error()/last_error(). Rather than a
// bare package-level global, the register is an explicit collaborator: the
// CLI frontend owns one and threads it into the packages that can fail, so
// that a failure's message survives past the scalar return code that carries
// it.
package errstate

import (
	"fmt"
	"sync"
)

// Register accumulates the most recent human-readable error message.
// It is safe for concurrent use, though the core itself is single-threaded.
type Register struct {
	mu  sync.Mutex
	msg string
}

// New returns an empty register.
func New() *Register {
	return &Register{}
}

// Set overwrites the last-error message.
func (r *Register) Set(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msg = msg
}

// Setf formats and overwrites the last-error message.
func (r *Register) Setf(format string, args ...interface{}) {
	r.Set(fmt.Sprintf(format, args...))
}

// Get returns the last-error message, or "" if none has been set.
func (r *Register) Get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msg
}

// Clear resets the register to empty.
func (r *Register) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msg = ""
}
