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

// Package ubootenv implements the single-copy U-Boot environment format:
// a 4-byte CRC32 header followed by NUL-terminated "key=value" strings, a
// double-NUL terminator, and 0xFF padding to the declared size. The wire
// format here is grounded on the (non-redundant) case of the format
// documented by the other_examples corpus member
// canonical-snapd's bootloader/ubootenv package. Redundant, dual-copy
// environments (CONFIG_SYS_REDUNDAND_ENVIRONMENT) are a non-goal: the
// requirement engine only ever needs read-one-variable semantics against a
// single block.
package ubootenv

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const headerSize = 4 // 4-byte CRC32, no redundant-copy flag byte

// Env is a decoded U-Boot environment block.
type Env struct {
	size int
	vars map[string]string
}

// New creates an empty environment of the given block size.
func New(size int) *Env {
	return &Env{size: size, vars: make(map[string]string)}
}

// Decode parses a raw environment block of exactly the declared size.
func Decode(buf []byte) (*Env, error) {
	if len(buf) < headerSize {
		return nil, errors.New("ubootenv: block too short for CRC header")
	}

	storedCRC := binary.LittleEndian.Uint32(buf[:headerSize])
	data := buf[headerSize:]
	actualCRC := crc32.ChecksumIEEE(data)
	if storedCRC != actualCRC {
		return nil, errors.Errorf("ubootenv: CRC mismatch: stored %08x, computed %08x", storedCRC, actualCRC)
	}

	env := &Env{size: len(buf), vars: make(map[string]string)}

	end := bytes.IndexByte(data, 0)
	for end >= 0 {
		if end == 0 {
			// Double-NUL terminator.
			break
		}
		entry := string(data[:end])
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			env.vars[entry[:eq]] = entry[eq+1:]
		}
		data = data[end+1:]
		end = bytes.IndexByte(data, 0)
	}

	return env, nil
}

// Getenv fetches variable, returning ok=false if it is not set.
func (e *Env) Getenv(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Setenv sets variable to value. An empty value is equivalent to unset.
func (e *Env) Setenv(name, value string) {
	if value == "" {
		delete(e.vars, name)
		return
	}
	e.vars[name] = value
}

// Encode serializes the environment back into a block of e.size bytes,
// padded with 0xFF, ready to be written at block_offset*512 on the target
// image.
func (e *Env) Encode() ([]byte, error) {
	var data bytes.Buffer

	names := make([]string, 0, len(e.vars))
	for k := range e.vars {
		names = append(names, k)
	}
	sort.Strings(names) // deterministic output

	for _, name := range names {
		data.WriteString(name)
		data.WriteByte('=')
		data.WriteString(e.vars[name])
		data.WriteByte(0)
	}
	data.WriteByte(0) // double-NUL terminator

	if headerSize+data.Len() > e.size {
		return nil, errors.Errorf("ubootenv: environment too large for %d-byte block", e.size)
	}

	block := make([]byte, e.size)
	for i := range block {
		block[i] = 0xff
	}
	copy(block[headerSize:], data.Bytes())
	crc := crc32.ChecksumIEEE(block[headerSize:])
	binary.LittleEndian.PutUint32(block[:headerSize], crc)

	return block, nil
}
