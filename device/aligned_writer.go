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

// Package device implements the aligned raw-device writer: a coalescing
// write buffer that upgrades arbitrary (offset, length) writes into
// block-aligned, block-multiple I/O against devices that do not buffer
// (eMMC, SD cards opened O_DIRECT-style). It is modeled on the same pattern
// mendersoftware/mender uses for its own raw block-device writer
// (installer/block_device.go's BlockFrameWriter/FlushingWriter chain):
// a small owner-held buffer sitting in front of a plain *os.File, with the
// buffering policy kept entirely in this package and the underlying file
// treated as an unbuffered sink.
package device

import (
	"sync"

	"github.com/pkg/errors"
)

// MinBlockSizeLog2 and MaxBlockSizeLog2 bound the block sizes this writer
// will accept; blocks smaller than 9 (512 bytes) or larger than 20 (1 MiB)
// are not useful for the raw devices fwup targets.
const (
	MinBlockSizeLog2 = 9
	MaxBlockSizeLog2 = 20
)

// Pwriter is the capability this package needs from the underlying file
// descriptor: positioned, non-seeking writes. *os.File satisfies this.
type Pwriter interface {
	WriteAt(b []byte, off int64) (int, error)
}

// AlignedWriter buffers at most one pending block of output and only ever
// issues block_size-aligned, block_size-multiple writes to the underlying
// file, except for the final flush of a short trailing block performed by
// Free.
//
// Invariant: bufferOffset is always a multiple of blockSize; bufferCount <=
// blockSize; whenever bufferCount > 0, buffer[:bufferCount] is the
// authoritative content for [bufferOffset, bufferOffset+bufferCount) and may
// not yet be reflected on disk.
type AlignedWriter struct {
	mu sync.Mutex

	fd        Pwriter
	blockSize int64
	mask      int64

	buffer       []byte
	bufferOffset int64
	bufferCount  int64
}

// NewAlignedWriter binds a writer to fd with a block size of 1<<log2BlockSize
// bytes. It mirrors aligned_writer_init: allocate the single bounce buffer
// up front and fail immediately if that allocation cannot be satisfied.
func NewAlignedWriter(fd Pwriter, log2BlockSize int) (*AlignedWriter, error) {
	if log2BlockSize < MinBlockSizeLog2 || log2BlockSize > MaxBlockSizeLog2 {
		return nil, errors.Errorf("device: invalid block size exponent %d", log2BlockSize)
	}

	blockSize := int64(1) << uint(log2BlockSize)

	buf, err := allocBuffer(blockSize)
	if err != nil {
		return nil, errors.Wrap(err, "device: out of memory allocating bounce buffer")
	}

	return &AlignedWriter{
		fd:        fd,
		blockSize: blockSize,
		mask:      blockSize - 1,
		buffer:    buf,
	}, nil
}

// allocBuffer is split out so tests can force an allocation failure without
// needing to exhaust real memory.
var allocBuffer = func(blockSize int64) ([]byte, error) {
	return make([]byte, blockSize), nil
}

func (w *AlignedWriter) blockOf(offset int64) int64 {
	return offset &^ w.mask
}

// Pwrite writes count bytes from buf at absolute offset, returning the
// number of bytes accepted. Callers never see partial acceptance on
// success; a negative-equivalent error is returned instead. Pwrite does not
// advance any cursor -- offsets are always supplied by the caller, matching
// the raw pwrite() semantics of the original.
func (w *AlignedWriter) Pwrite(buf []byte, offset int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(buf) == 0 {
		return 0, nil
	}

	// Rule 4: a non-contiguous write landing in a different block than
	// the pending buffer flushes the pending block first.
	if w.bufferCount > 0 &&
		offset != w.bufferOffset+w.bufferCount {
		if err := w.flushPending(); err != nil {
			return 0, err
		}
	}

	// Rule 2: contiguous append into the block already being buffered.
	if w.bufferCount > 0 && offset == w.bufferOffset+w.bufferCount {
		n := w.blockSize - w.bufferCount
		if int64(len(buf)) < n {
			n = int64(len(buf))
		}
		copy(w.buffer[w.bufferCount:], buf[:n])
		w.bufferCount += n

		if w.bufferCount == w.blockSize {
			if err := w.flushPending(); err != nil {
				return 0, err
			}
		}

		if n == int64(len(buf)) {
			return int(n), nil
		}

		rest, err := w.writeAligned(buf[n:], offset+n)
		return int(n) + rest, err
	}

	return w.writeAligned(buf, offset)
}

// writeAligned handles the case where there is no pending buffer overlapping
// offset: split buf into a head (if offset isn't block-aligned), a run of
// whole blocks written straight through, and a tail (residual, buffered).
func (w *AlignedWriter) writeAligned(buf []byte, offset int64) (int, error) {
	total := len(buf)
	pos := 0

	if offset&w.mask != 0 {
		// Head: buffer up to the end of this block. The pending
		// buffer is known empty here (callers only reach writeAligned
		// with an empty buffer, or after flushing it above). Clear it
		// first: the bytes short of "skip" are not part of this
		// write, and must not leak stale content from a previous
		// block's bounce buffer into a later flush.
		blockStart := w.blockOf(offset)
		skip := offset - blockStart
		n := w.blockSize - skip
		if int64(total-pos) < n {
			n = int64(total - pos)
		}

		clear(w.buffer)
		w.bufferOffset = blockStart
		w.bufferCount = skip + n
		copy(w.buffer[skip:], buf[pos:pos+int(n)])
		pos += int(n)

		if w.bufferCount == w.blockSize {
			if err := w.flushPending(); err != nil {
				return pos, err
			}
		}

		if pos == total {
			return pos, nil
		}
		offset += n
	}

	// Rule 3: offset is now block-aligned (or we've returned already).
	// Write as many whole blocks as possible directly from buf.
	remaining := int64(total - pos)
	wholeBlocks := remaining / w.blockSize
	if wholeBlocks > 0 {
		n := wholeBlocks * w.blockSize
		if err := w.writeDirect(buf[pos:pos+int(n)], offset); err != nil {
			return pos, err
		}
		pos += int(n)
		offset += n
	}

	// Tail: shorter than a block, buffered and deferred.
	if pos < total {
		w.bufferOffset = w.blockOf(offset)
		w.bufferCount = int64(total - pos)
		copy(w.buffer, buf[pos:total])
		pos = total
	}

	return pos, nil
}

// writeDirect issues one or more full-block writes straight from buf,
// bypassing the bounce buffer entirely.
func (w *AlignedWriter) writeDirect(buf []byte, offset int64) error {
	n, err := w.fd.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrap(err, "device: write failed")
	}
	if n != len(buf) {
		return errors.Errorf("device: short write at offset %d: wrote %d of %d bytes", offset, n, len(buf))
	}
	return nil
}

// flushPending writes out the buffered block (full or partial) and resets
// the buffer. It is always called with w.mu held.
func (w *AlignedWriter) flushPending() error {
	if w.bufferCount == 0 {
		return nil
	}

	offset := w.bufferOffset
	count := w.bufferCount

	n, err := w.fd.WriteAt(w.buffer[:count], offset)
	w.bufferOffset = 0
	w.bufferCount = 0
	if err != nil {
		return errors.Wrap(err, "device: flush failed")
	}
	if int64(n) != count {
		return errors.Errorf("device: short flush at offset %d: wrote %d of %d bytes", offset, n, count)
	}
	return nil
}

// Free flushes any pending block and releases the bounce buffer. It must be
// called exactly once, and its return value must be checked: a short final
// flush is the only durability signal this writer gives.
func (w *AlignedWriter) Free() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.flushPending()
	w.buffer = nil
	return err
}
