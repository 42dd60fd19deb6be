// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

import (
	"log"
	"sort"
	"time"
)

// MaxRegionsPerFrame bounds the number of regions Detect returns. When
// more candidates pass filtering, the largest are kept, ties broken by
// earliest discovery order, so a frame full of noise never grows the
// downstream tracker's workload unboundedly.
const MaxRegionsPerFrame = 32

// maxComponentPixels bounds the explicit-stack flood fill per component.
// A component that would exceed this is truncated rather than risking an
// unbounded walk; a rate-limited warning is logged when this fires.
const maxComponentPixels = 64 * 1024

// Config tunes Detect's background model and the size/shape filter
// applied to candidate regions. Fields mirror config.Detection.
type Config struct {
	LearningRate   float64 // background model alpha, in (0, 1]
	Threshold      uint8   // |current - background| > Threshold marks foreground
	MinArea        int
	MinSizePx      int
	MaxSizePx      int
	MinAspectRatio float64
	MaxAspectRatio float64
	DetectShadows  bool // accepted and logged, never implemented (spec Non-goal)
}

// Detector holds the per-pixel running-average background model. It is
// sized once, at the first Detect call, to avoid per-frame allocation on
// a memory-constrained device.
type Detector struct {
	cfg Config

	width, height int
	background    []float64 // per-pixel running average, sized width*height
	mask          []uint8   // scratch foreground mask, reused every frame
	eroded        []uint8
	visited       []bool // scratch visited bitmap for flood fill
	stack         []int  // scratch explicit stack for flood fill

	shadowsWarned      bool
	lastTruncationWarn time.Time
}

// New returns a Detector configured per cfg. The background model is
// seeded lazily from the first frame passed to Detect.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) ensureSized(w, h int) {
	if d.width == w && d.height == h {
		return
	}
	d.width, d.height = w, h
	n := w * h
	d.background = make([]float64, n)
	d.mask = make([]uint8, n)
	d.eroded = make([]uint8, n)
	d.visited = make([]bool, n)
	d.stack = make([]int, 0, n)
}

// Detect runs background subtraction, morphological opening, and
// connected-component extraction on frame, returning the regions that
// pass the configured size/area/aspect filters. Detect retains no
// reference to frame.Pix after returning.
func (d *Detector) Detect(frame Frame, timestamp time.Time) []Region {
	if d.cfg.DetectShadows {
		// Non-goal: shadow detection is accepted in config and logged once,
		// never implemented.
		if !d.shadowsWarned {
			log.Printf("motion: detect_shadows is set but not implemented; ignoring")
			d.shadowsWarned = true
		}
	}
	d.ensureSized(frame.Width, frame.Height)
	d.updateBackgroundAndMask(frame)
	erode3x3(d.mask, d.eroded, d.width, d.height)
	dilate3x3(d.eroded, d.mask, d.width, d.height) // opening: erode then dilate, reuse d.mask as output

	regions := d.connectedComponents(d.mask)
	return d.filterAndCap(regions)
}

func (d *Detector) updateBackgroundAndMask(frame Frame) {
	alpha := d.cfg.LearningRate
	if alpha <= 0 {
		alpha = 0.001
	}
	thresh := float64(d.cfg.Threshold)
	if thresh == 0 {
		thresh = 25
	}
	for i, cur := range frame.Pix {
		bg := d.background[i]
		if bg == 0 {
			bg = float64(cur)
		}
		diff := float64(cur) - bg
		if diff < 0 {
			diff = -diff
		}
		if diff > thresh {
			d.mask[i] = 1
		} else {
			d.mask[i] = 0
		}
		d.background[i] = (1-alpha)*bg + alpha*float64(cur)
	}
}

func (d *Detector) filterAndCap(regions []Region) []Region {
	cfg := d.cfg
	kept := regions[:0]
	for _, r := range regions {
		if r.Area < cfg.MinArea {
			continue
		}
		minSize := cfg.MinSizePx
		maxSize := cfg.MaxSizePx
		if maxSize == 0 {
			maxSize = 1 << 30
		}
		if r.minSide() < minSize || r.maxSide() > maxSize {
			continue
		}
		ar := r.aspectRatio()
		minAR, maxAR := cfg.MinAspectRatio, cfg.MaxAspectRatio
		if minAR == 0 {
			minAR = 0
		}
		if maxAR == 0 {
			maxAR = 1 << 30
		}
		if ar < minAR || ar > maxAR {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) <= MaxRegionsPerFrame {
		return kept
	}
	// Oldest-larger-first retained: stable sort by area descending keeps
	// the largest regions, and a stable sort preserves discovery order
	// among ties so the earliest-found of equal-area regions wins.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Area > kept[j].Area })
	return kept[:MaxRegionsPerFrame]
}
