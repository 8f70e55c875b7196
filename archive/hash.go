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

// Package archive implements the firmware-archive creation pipeline:
// streaming file hashing (dual digest), metadata synthesis, and
// deterministic archive assembly into a signed, deflate-compressed ZIP
// container.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// HashState accumulates a dual digest (SHA-256 always, BLAKE2b-256
// optionally) plus a total byte count across one or more streamed reads.
// HashState always computes SHA-256, and computes BLAKE2b-256 only when
// NewHashState is called with withBlake2b set, so the choice is a runtime property
// of the signing backend in use, not a build-time flag.
type HashState struct {
	sha256  hash.Hash
	blake2b hash.Hash // nil when the signing backend doesn't want it
	total   int64
}

// NewHashState creates a hash state. withBlake2b mirrors whether the
// configured signature backend supports/wants the BLAKE2b-256 digest
// (true for Ed25519).
func NewHashState(withBlake2b bool) *HashState {
	hs := &HashState{sha256: sha256.New()}
	if withBlake2b {
		// blake2b.New256 only errors on a non-nil key, which is never
		// supplied here.
		h, _ := blake2b.New256(nil)
		hs.blake2b = h
	}
	return hs
}

// Update feeds len(p) more bytes into the digest(s) and the running total.
func (hs *HashState) Update(p []byte) {
	hs.sha256.Write(p)
	if hs.blake2b != nil {
		hs.blake2b.Write(p)
	}
	hs.total += int64(len(p))
}

// CopyFrom streams all of r through Update, returning the number of bytes
// read.
func (hs *HashState) CopyFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var n int64
	for {
		rn, err := r.Read(buf)
		if rn > 0 {
			hs.Update(buf[:rn])
			n += int64(rn)
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

// Total returns the accumulated byte count.
func (hs *HashState) Total() int64 {
	return hs.total
}

// SHA256Hex returns the lowercase-hex SHA-256 digest of everything fed so
// far. Calling it does not prevent further Update calls, matching the
// streaming digest semantics of hash.Hash.
func (hs *HashState) SHA256Hex() string {
	return hex.EncodeToString(hs.sha256.Sum(nil))
}

// Blake2b256Hex returns the lowercase-hex BLAKE2b-256 digest, or "" if this
// state was created without the BLAKE2b-256 capability.
func (hs *HashState) Blake2b256Hex() string {
	if hs.blake2b == nil {
		return ""
	}
	return hex.EncodeToString(hs.blake2b.Sum(nil))
}
