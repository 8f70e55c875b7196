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

// Package apply implements the task-application pipeline: configuration
// + runtime context → requirement-list evaluator → per-requirement
// predicate → go/no-go for a task; a satisfied task's resources are then
// streamed through the aligned writer, with progress reported as each
// task completes.
//
// This is deliberately reuse, not new engineering: Run is a thin loop over
// requirement.ApplyList, device.AlignedWriter, and progress.Reporter.
package apply

import (
	"io"

	"github.com/ebostijancic/fwup/device"
	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/progress"
	"github.com/ebostijancic/fwup/requirement"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// BlockSize is the coalescing granularity applied to every task resource
// write. 512 bytes matches the sector size used throughout the
// configuration model (block-offset fields are always in 512-byte units).
const BlockSize = 512

// ResourceOpener opens the archived content for a file-resource title, for
// streaming onto the target device. Typically backed by an open archive
// reader.
type ResourceOpener func(title string) (io.ReadCloser, error)

// Run evaluates cfg's tasks in declaration order against ctx. A task whose
// reqlist is not satisfied is skipped, not an error: a reqlist gates
// whether a task applies to this particular target, and the whole
// descriptor commonly bundles variants for several device kinds. A task
// whose reqlist is satisfied has each of its resources, in order, streamed
// through an AlignedWriter addressed at the resource's block-offset
// (converted to a byte offset via BlockSize); a write failure aborts Run.
func Run(cfg *config.Config, ctx *requirement.Context, target device.Pwriter, open ResourceOpener, reporter *progress.Reporter) (rerr error) {
	w, err := device.NewAlignedWriter(target, logBlockSize(BlockSize))
	if err != nil {
		return errors.Wrap(err, "apply: can't create aligned writer")
	}

	freed := false
	free := func() error {
		if freed {
			return nil
		}
		freed = true
		return w.Free()
	}
	defer func() {
		// Free must be called exactly once; this only runs it if the
		// success path below hasn't already.
		if cerr := free(); cerr != nil && rerr == nil {
			rerr = errors.Wrap(cerr, "apply: error flushing aligned writer")
		}
	}()

	for _, task := range cfg.Tasks {
		ok, err := taskApplies(ctx, task)
		if err != nil {
			return errors.Wrapf(err, "apply: error evaluating requirements for task %q", task.Name)
		}
		if !ok {
			log.WithField("task", task.Name).Debug("apply: task requirements not met, skipping")
			continue
		}

		if err := applyTask(w, open, task); err != nil {
			return errors.Wrapf(err, "apply: error applying task %q", task.Name)
		}

		if reporter != nil {
			reporter.Report(1)
		}
	}

	if err := free(); err != nil {
		return errors.Wrap(err, "apply: error flushing aligned writer")
	}
	if reporter != nil {
		reporter.Complete()
	}
	return nil
}

func taskApplies(ctx *requirement.Context, task *config.Task) (bool, error) {
	if len(task.Reqlist) == 0 {
		return true, nil
	}
	if err := requirement.ApplyList(ctx, task.Reqlist, requirement.Evaluate); err != nil {
		return false, nil
	}
	return true, nil
}

func applyTask(w *device.AlignedWriter, open ResourceOpener, task *config.Task) error {
	for _, res := range task.Resources {
		if err := streamResource(w, open, res); err != nil {
			return err
		}
	}
	return nil
}

func streamResource(w *device.AlignedWriter, open ResourceOpener, res config.TaskResource) error {
	rc, err := open(res.Title)
	if err != nil {
		return errors.Wrapf(err, "can't open resource %q", res.Title)
	}
	defer rc.Close()

	offset := int64(res.BlockOffset) * BlockSize
	buf := make([]byte, 32*1024)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := w.Pwrite(buf[:n], offset); werr != nil {
				return errors.Wrapf(werr, "error writing resource %q at offset %d", res.Title, offset)
			}
			offset += int64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errors.Wrapf(rerr, "error reading resource %q", res.Title)
		}
	}
}

// logBlockSize converts a byte block size to its log2 form, as
// NewAlignedWriter expects. BlockSize is a compile-time constant power of
// two, so this never fails at the values this package uses.
func logBlockSize(blockSize int64) int {
	n := 0
	for blockSize > 1 {
		blockSize >>= 1
		n++
	}
	return n
}
