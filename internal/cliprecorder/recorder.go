// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cliprecorder keeps a rolling pre-event buffer of recent
// camera frames and, on a confirmed detection, flushes it to disk as
// the clip artifact referenced by an Event row. No video codec appears
// anywhere in the example pack this firmware is grounded on, so the
// clip is the ring-buffered raw frames themselves rather than an
// encoded container; see DESIGN.md for why.
package cliprecorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/motion"
)

// RingFrames bounds the pre-event buffer. At the device's ~9-10 fps
// frame rate this covers a few seconds of lead-in.
const RingFrames = 30

// Recorder accumulates the last RingFrames frames, overwriting the
// oldest once full.
type Recorder struct {
	mu     sync.Mutex
	frames []motion.Frame
	next   int
	full   bool
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{frames: make([]motion.Frame, RingFrames)}
}

// Observe copies frame into the ring buffer. Observe must be called
// once per pipeline tick regardless of whether a detection fired, so
// the buffer always holds genuine lead-in context.
func (r *Recorder) Observe(frame motion.Frame) {
	cp := motion.Frame{Width: frame.Width, Height: frame.Height, Pix: append([]uint8(nil), frame.Pix...)}
	r.mu.Lock()
	r.frames[r.next] = cp
	r.next = (r.next + 1) % RingFrames
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Save writes the current buffer contents, oldest frame first, to
// dir/<id>.clip and fsyncs before returning, per the ordering
// invariant that a clip file exists on disk before the event row
// referencing it is committed.
func (r *Recorder) Save(dir string, id int64) (string, error) {
	const op = "cliprecorder.Save"
	r.mu.Lock()
	ordered := r.orderedLocked()
	r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.clip", id))
	f, err := os.Create(path)
	if err != nil {
		return "", apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	w := bufio.NewWriter(f)
	var hdrErr error
	for _, fr := range ordered {
		if hdrErr = binary.Write(w, binary.LittleEndian, int32(fr.Width)); hdrErr != nil {
			break
		}
		if hdrErr = binary.Write(w, binary.LittleEndian, int32(fr.Height)); hdrErr != nil {
			break
		}
		if _, hdrErr = w.Write(fr.Pix); hdrErr != nil {
			break
		}
	}
	if hdrErr == nil {
		hdrErr = w.Flush()
	}
	if hdrErr == nil {
		hdrErr = f.Sync()
	}
	closeErr := f.Close()
	if hdrErr != nil {
		os.Remove(path)
		return "", apiscommon.Wrap(apiscommon.KindIOTransient, op, hdrErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", apiscommon.Wrap(apiscommon.KindIOTransient, op, closeErr)
	}
	return path, nil
}

// orderedLocked returns the buffered frames oldest-first. Caller must
// hold r.mu.
func (r *Recorder) orderedLocked() []motion.Frame {
	if !r.full {
		return append([]motion.Frame(nil), r.frames[:r.next]...)
	}
	out := make([]motion.Frame, 0, RingFrames)
	out = append(out, r.frames[r.next:]...)
	out = append(out, r.frames[:r.next]...)
	return out
}
