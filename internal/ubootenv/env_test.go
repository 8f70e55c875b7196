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
package ubootenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := New(8192)
	env.Setenv("bootcount", "1")
	env.Setenv("bootlimit", "3")

	block, err := env.Encode()
	require.NoError(t, err)
	require.Len(t, block, 8192)

	decoded, err := Decode(block)
	require.NoError(t, err)

	v, ok := decoded.Getenv("bootcount")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = decoded.Getenv("bootlimit")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = decoded.Getenv("missing")
	assert.False(t, ok)
}

func TestDecode_RejectsCRCMismatch(t *testing.T) {
	env := New(512)
	env.Setenv("a", "b")
	block, err := env.Encode()
	require.NoError(t, err)

	block[100] ^= 0xff // corrupt padding region

	_, err = Decode(block)
	assert.Error(t, err)
}

func TestEncode_RejectsOversizedEnvironment(t *testing.T) {
	env := New(8)
	env.Setenv("a-very-long-variable-name", "and-a-long-value-too")
	_, err := env.Encode()
	assert.Error(t, err)
}

func TestEmptyEnvironmentRoundTrips(t *testing.T) {
	env := New(64)
	block, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(block)
	require.NoError(t, err)
	_, ok := decoded.Getenv("anything")
	assert.False(t, ok)
}
