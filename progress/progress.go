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

// Package progress implements fwup's mode-driven progress reporter: a
// translator from unit-count increments into one of four output
// disciplines, plus elapsed-time accounting in the interactive discipline.
// It mirrors the structure of mendersoftware/mender's own progress
// utilities (utils.ProgressBar / the vendored mendersoftware/progressbar
// package): an overwrite-in-place "\r" renderer and a suppression rule
// that only emits on a changed integer percent.
package progress

import (
	"fmt"
	"io"
	"time"
)

// Mode selects one of the four output disciplines.
type Mode int

const (
	// Off emits nothing.
	Off Mode = iota
	// Numeric emits one integer percent per line, only on change.
	Numeric
	// Normal overwrites a "N%" field in place and prints elapsed time on
	// completion.
	Normal
	// Framing emits a typed frame per update, for a supervising process.
	Framing
)

// FrameType identifies the kind of frame written in Framing mode.
type FrameType int

// FrameTypeProgress is the only frame type this reporter emits.
const FrameTypeProgress FrameType = 1

// FrameWriter is the host's framing collaborator: it owns the wire format
// used to talk to a supervising process. This package only needs the
// capability to hand it a frame, not the format itself.
type FrameWriter interface {
	WriteFrame(frameType FrameType, value int, payload string) error
}

// Reporter tracks reported progress for one operation and renders it
// according to Mode.
type Reporter struct {
	mode Mode
	out  io.Writer
	fw   FrameWriter

	lastReported int
	totalUnits   int64
	currentUnits int64
	startTime    time.Time
}

// NewReporter creates a reporter for an operation of totalUnits units,
// outputting according to mode, and emits the initial 0% at once. Passing a
// nil fw with mode == Framing is a programmer error and panics inside
// NewReporter on that initial emission, the same way a nil out does for
// Numeric and Normal.
func NewReporter(mode Mode, out io.Writer, fw FrameWriter, totalUnits int64) *Reporter {
	r := &Reporter{
		mode:         mode,
		out:          out,
		fw:           fw,
		lastReported: -1,
		totalUnits:   totalUnits,
	}
	r.output(0)
	return r
}

// Report adds units to the current count and renders the new percent,
// clamped to 99 until Complete is called. In Normal mode, the first report
// call that actually advances the clock (total > 0) starts the elapsed-time
// timer.
func (r *Reporter) Report(units int64) {
	if r.mode == Normal && r.startTime.IsZero() && r.totalUnits > 0 {
		r.startTime = time.Now()
	}

	r.currentUnits += units
	if r.currentUnits > r.totalUnits {
		// Defensive clamp: a caller miscounting units must not panic
		// the reporter, but this should never happen in practice.
		r.currentUnits = r.totalUnits
	}

	var percent int
	if r.totalUnits > 0 {
		percent = int(r.currentUnits * 100 / r.totalUnits)
		if percent > 99 {
			percent = 99
		}
	}

	r.output(percent)
}

// Complete emits 100% and, in Normal mode, the elapsed wall-clock time.
func (r *Reporter) Complete() {
	r.output(100)

	if r.mode == Normal && !r.startTime.IsZero() {
		elapsed := time.Since(r.startTime)
		ms := elapsed.Milliseconds()
		fmt.Fprintf(r.out, "\nElapsed time: %d.%03ds\n", ms/1000, ms%1000)
	}
}

// output applies the suppression rule and renders percent in the
// configured mode.
func (r *Reporter) output(percent int) {
	if percent == r.lastReported {
		return
	}
	r.lastReported = percent

	switch r.mode {
	case Numeric:
		fmt.Fprintf(r.out, "%d\n", percent)
	case Normal:
		fmt.Fprintf(r.out, "\r%3d%%", percent)
		if f, ok := r.out.(interface{ Sync() error }); ok {
			_ = f.Sync()
		} else if flusher, ok := r.out.(interface{ Flush() error }); ok {
			_ = flusher.Flush()
		}
	case Framing:
		_ = r.fw.WriteFrame(FrameTypeProgress, percent, "")
	case Off:
		// no output
	}
}
