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

// Package sign implements the Ed25519 signing/verification collaborator
// used to produce and check the detached signature over a firmware
// archive's meta-config. The interface shape -- a Signer/Verifier pair
// wrapping a concrete
// algorithm -- is modeled directly on mendersoftware/mender-artifact's
// artifact.Signer/Verifier/Crypto pattern (vendored as
// github.com/mendersoftware/mender-artifact/artifact/signer.go), which
// wraps stdlib crypto/rsa and crypto/ecdsa behind the same kind of
// interface and reports errors via github.com/pkg/errors. Ed25519 is
// entirely stdlib (crypto/ed25519) so there is no third-party dependency
// to add for the algorithm itself.
package sign

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// Signer returns a detached signature over message.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Verifier checks a detached signature against message.
type Verifier interface {
	Verify(message, sig []byte) error
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

// Sign implements Signer.
func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	if len(s.Key) != ed25519.PrivateKeySize {
		return nil, errors.New("sign: invalid Ed25519 private key")
	}
	return ed25519.Sign(s.Key, message), nil
}

// Ed25519Verifier verifies with an Ed25519 public key.
type Ed25519Verifier struct {
	Key ed25519.PublicKey
}

// Verify implements Verifier.
func (v *Ed25519Verifier) Verify(message, sig []byte) error {
	if len(v.Key) != ed25519.PublicKeySize {
		return errors.New("sign: invalid Ed25519 public key")
	}
	if !ed25519.Verify(v.Key, message, sig) {
		return errors.New("sign: signature verification failed")
	}
	return nil
}
