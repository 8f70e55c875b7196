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

	"github.com/ebostijancic/fwup/internal/mbr"
	"github.com/ebostijancic/fwup/internal/ubootenv"
	"github.com/pkg/errors"
)

func init() {
	register(&Predicate{
		Name:     "require-partition-offset",
		Validate: requirePartitionOffsetValidate,
		Evaluate: requirePartitionOffsetEvaluate,
	})
	register(&Predicate{
		Name:     "require-fat-file-exists",
		Validate: requireFatFileExistsValidate,
		Evaluate: requireFatFileExistsEvaluate,
	})
	register(&Predicate{
		Name:     "require-fat-file-match",
		Validate: requireFatFileMatchValidate,
		Evaluate: requireFatFileMatchEvaluate,
	})
	register(&Predicate{
		Name:     "require-uboot-variable",
		Validate: requireUbootVariableValidate,
		Evaluate: requireUbootVariableEvaluate,
	})
	register(&Predicate{
		Name:     "require-path-on-device",
		Validate: requirePathOnDeviceValidate,
		Evaluate: requirePathOnDeviceEvaluate,
	})
}

func checkArgUint64(s, msg string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.New(msg)
	}
	return v, nil
}

// require-partition-offset: partition, block-offset

func requirePartitionOffsetValidate(ctx *Context) error {
	if ctx.Argc != 3 {
		return errors.New("require-partition-offset requires a partition number and a block offset")
	}

	partition, err := strconv.Atoi(ctx.Argv[1])
	if err != nil || partition < 0 || partition > 3 {
		return errors.New("require-partition-offset requires the partition number to be between 0, 1, 2, or 3")
	}

	if _, err := checkArgUint64(ctx.Argv[2], "require-partition-offset requires a non-negative integer block offset"); err != nil {
		return err
	}

	return nil
}

func requirePartitionOffsetEvaluate(ctx *Context) error {
	partition, _ := strconv.Atoi(ctx.Argv[1])
	blockOffset, _ := strconv.ParseUint(ctx.Argv[2], 0, 64)

	buf := make([]byte, mbr.SectorSize)
	n, err := ctx.OutputFile.ReadAt(buf, 0)
	if err != nil || n != mbr.SectorSize {
		return errors.New("require-partition-offset: could not read MBR")
	}

	partitions, err := mbr.Decode(buf)
	if err != nil {
		return err
	}

	if uint64(partitions[partition].BlockOffset) != blockOffset {
		return errors.New("require-partition-offset: partition offset mismatch")
	}
	return nil
}

// require-fat-file-exists: block-offset, filename

func requireFatFileExistsValidate(ctx *Context) error {
	if ctx.Argc != 3 {
		return errors.New("require-fat-file-exists requires a FAT FS block offset and a filename")
	}
	if _, err := checkArgUint64(ctx.Argv[1], "require-fat-file-exists requires a non-negative integer block offset"); err != nil {
		return err
	}
	return nil
}

func requireFatFileExistsEvaluate(ctx *Context) error {
	// Belt-and-braces re-check of argc, even though the validator already
	// rejected any other arity.
	if ctx.Argc != 3 {
		return errors.New("require-fat-file-exists: wrong argument count")
	}

	blockOffset, _ := strconv.ParseUint(ctx.Argv[1], 0, 64)
	fc, err := ctx.FATCache(blockOffset)
	if err != nil {
		return err
	}

	ok, err := fc.Exists(ctx.Argv[2])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("require-fat-file-exists: file not found")
	}
	return nil
}

// require-fat-file-match: block-offset, filename, pattern

func requireFatFileMatchValidate(ctx *Context) error {
	if ctx.Argc != 4 {
		return errors.New("require-fat-file-match requires a FAT FS block offset, a filename, and a pattern")
	}
	if _, err := checkArgUint64(ctx.Argv[1], "require-fat-file-match requires a non-negative integer block offset"); err != nil {
		return err
	}
	return nil
}

func requireFatFileMatchEvaluate(ctx *Context) error {
	if ctx.Argc != 4 {
		return errors.New("require-fat-file-match: wrong argument count")
	}

	blockOffset, _ := strconv.ParseUint(ctx.Argv[1], 0, 64)
	fc, err := ctx.FATCache(blockOffset)
	if err != nil {
		return err
	}

	ok, err := fc.Matches(ctx.Argv[2], ctx.Argv[3])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("require-fat-file-match: contents do not match")
	}
	return nil
}

// require-uboot-variable: uboot-environment name, variable name, expected value

func requireUbootVariableValidate(ctx *Context) error {
	if ctx.Argc != 4 {
		return errors.New("require-uboot-variable requires a uboot-environment reference, variable name, and value")
	}

	if ctx.Config.UbootEnvironmentByName(ctx.Argv[1]) == nil {
		return errors.New("require-uboot-variable can't find uboot-environment reference")
	}
	return nil
}

func requireUbootVariableEvaluate(ctx *Context) error {
	if ctx.Argc != 4 {
		return errors.New("require-uboot-variable: wrong argument count")
	}

	sec := ctx.Config.UbootEnvironmentByName(ctx.Argv[1])
	if sec == nil {
		return errors.New("require-uboot-variable can't find uboot-environment reference")
	}

	buf := make([]byte, sec.EnvSize)
	n, err := ctx.OutputFile.ReadAt(buf, int64(sec.BlockOffset)*512)
	if err != nil || uint64(n) != sec.EnvSize {
		return errors.New("require-uboot-variable: could not read environment block")
	}

	env, err := ubootenv.Decode(buf)
	if err != nil {
		return err
	}

	current, ok := env.Getenv(ctx.Argv[2])
	if !ok || current != ctx.Argv[3] {
		return errors.New("require-uboot-variable: value mismatch")
	}
	return nil
}

// require-path-on-device: path, device. A host-side probe, deliberately
// distinct from the target-image predicates above -- a reqlist mixing
// this with target-image predicates only makes sense when applied from
// the host doing the writing.

func requirePathOnDeviceValidate(ctx *Context) error {
	if ctx.Argc != 3 {
		return errors.New("require-path-on-device requires a path and a device")
	}
	return nil
}

func requirePathOnDeviceEvaluate(ctx *Context) error {
	if ctx.Argc != 3 {
		return errors.New("require-path-on-device: wrong argument count")
	}

	ok, err := ctx.PathOnDevice(ctx.Argv[1], ctx.Argv[2])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("require-path-on-device: path not on device")
	}
	return nil
}
