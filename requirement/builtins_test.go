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
	"testing"

	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/internal/errstate"
	"github.com/ebostijancic/fwup/internal/fat"
	"github.com/ebostijancic/fwup/internal/mbr"
	"github.com/ebostijancic/fwup/internal/ubootenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	data []byte
}

func (m *memFile) ReadAt(b []byte, off int64) (int, error) {
	end := int(off) + len(b)
	if end > len(m.data) {
		end = len(m.data)
	}
	if int(off) >= len(m.data) {
		return 0, nil
	}
	n := copy(b, m.data[off:end])
	return n, nil
}

func newContextWithMBR(t *testing.T, partitionOffset uint32) *Context {
	t.Helper()
	var parts [mbr.NumPartitions]mbr.Partition
	parts[1] = mbr.Partition{BlockOffset: partitionOffset, BlockCount: 1000}
	sector := mbr.Encode(parts)

	return &Context{
		OutputFile: &memFile{data: sector},
	}
}

func TestRequirePartitionOffset_Met(t *testing.T) {
	ctx := newContextWithMBR(t, 63)
	ctx.setArgs([]string{"require-partition-offset", "1", "63"})

	require.NoError(t, Validate(ctx))
	assert.NoError(t, Evaluate(ctx))
}

func TestRequirePartitionOffset_NotMet(t *testing.T) {
	ctx := newContextWithMBR(t, 64)
	ctx.setArgs([]string{"require-partition-offset", "1", "63"})

	require.NoError(t, Validate(ctx))
	assert.Error(t, Evaluate(ctx))
}

func TestRequirePartitionOffset_ValidateRejectsBadPartition(t *testing.T) {
	ctx := &Context{}
	ctx.setArgs([]string{"require-partition-offset", "7", "63"})
	assert.Error(t, Validate(ctx))
}

func TestRequireUbootVariable(t *testing.T) {
	cfg := &config.Config{
		UbootEnvironments: []*config.UbootEnvironment{
			{Name: "uboot", BlockOffset: 0, EnvSize: 4096},
		},
	}

	env := ubootenv.New(4096)
	env.Setenv("bootcount", "1")
	block, err := env.Encode()
	require.NoError(t, err)

	ctx := &Context{
		Config:     cfg,
		OutputFile: &memFile{data: block},
	}

	ctx.setArgs([]string{"require-uboot-variable", "uboot", "bootcount", "1"})
	require.NoError(t, Validate(ctx))
	assert.NoError(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-uboot-variable", "uboot", "bootcount", "2"})
	assert.Error(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-uboot-variable", "uboot", "missing", "1"})
	assert.Error(t, Evaluate(ctx))
}

func TestRequireUbootVariable_ValidateRejectsUnknownSection(t *testing.T) {
	cfg := &config.Config{}
	ctx := &Context{Config: cfg}
	ctx.setArgs([]string{"require-uboot-variable", "nope", "bootcount", "1"})
	assert.Error(t, Validate(ctx))
}

func TestRequireFatFileExistsAndMatch(t *testing.T) {
	fc := fat.NewFakeCache()
	fc.Files["zImage"] = []byte("kernel-bytes")

	ctx := &Context{
		FATCache: func(blockOffset uint64) (fat.Cache, error) {
			return fc, nil
		},
	}

	ctx.setArgs([]string{"require-fat-file-exists", "256", "zImage"})
	require.NoError(t, Validate(ctx))
	assert.NoError(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-fat-file-exists", "256", "missing.bin"})
	assert.Error(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-fat-file-match", "256", "zImage", "^kernel"})
	require.NoError(t, Validate(ctx))
	assert.NoError(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-fat-file-match", "256", "zImage", "^nope"})
	assert.Error(t, Evaluate(ctx))
}

func TestRequirePathOnDevice(t *testing.T) {
	ctx := &Context{
		PathOnDevice: func(path, device string) (bool, error) {
			return path == "/mnt/data" && device == "/dev/mmcblk0p1", nil
		},
	}

	ctx.setArgs([]string{"require-path-on-device", "/mnt/data", "/dev/mmcblk0p1"})
	require.NoError(t, Validate(ctx))
	assert.NoError(t, Evaluate(ctx))

	ctx.setArgs([]string{"require-path-on-device", "/mnt/other", "/dev/mmcblk0p1"})
	assert.Error(t, Evaluate(ctx))
}

func TestLookup_UnknownFunction(t *testing.T) {
	ctx := &Context{}
	ctx.setArgs([]string{"require-something-unheard-of"})
	assert.EqualError(t, Validate(ctx), "Unknown function")
}

func TestLookup_NotEnoughParameters(t *testing.T) {
	ctx := &Context{Argc: 0}
	assert.EqualError(t, Validate(ctx), "Not enough parameters")
}

func TestEvaluate_RecordsFailureIntoErrorsRegister(t *testing.T) {
	reg := errstate.New()
	ctx := &Context{Errors: reg}
	ctx.setArgs([]string{"require-something-unheard-of"})

	err := Evaluate(ctx)
	require.Error(t, err)
	assert.Equal(t, err.Error(), reg.Get())
}
