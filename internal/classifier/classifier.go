// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package classifier turns tracked regions into confidence-tagged
// detections: a size tag, a hover flag, and the resulting confidence
// level that gates actuation and event logging.
package classifier

import "github.com/hivewarden/apis-edge-sub017/internal/tracker"

// SizeTag classifies a region by its pixel dimensions.
type SizeTag int

const (
	TooSmall SizeTag = iota
	Unknown
	Hornet
	TooLarge
)

func (s SizeTag) String() string {
	switch s {
	case TooSmall:
		return "TOO_SMALL"
	case Hornet:
		return "HORNET"
	case TooLarge:
		return "TOO_LARGE"
	default:
		return "UNKNOWN"
	}
}

// Confidence is the classifier's confidence that a track is a hornet.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return "LOW"
	}
}

// Config tunes size thresholds and the hover window. Fields mirror
// config.Detection.
type Config struct {
	MinSizePx       int
	HornetMinSizePx int
	HornetMaxSizePx int
	HoverRadiusPx   float64
	HoverTimeMs     uint32
}

// Detection is a TrackedRegion plus its classification.
type Detection struct {
	tracker.TrackedRegion
	Size        SizeTag
	Confidence  Confidence
	IsHovering  bool
	TrackAgeMS  uint32
}

// Classifier classifies tracked regions against its configured
// thresholds. It holds no per-track state; all state lives in the
// TrackedRegion's own history.
type Classifier struct {
	cfg Config
}

// New returns a Classifier configured per cfg.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify tags every tracked region with a size classification, hover
// flag, and confidence, evaluated as of nowMS.
func (c *Classifier) Classify(tracks []tracker.TrackedRegion, nowMS uint32) []Detection {
	out := make([]Detection, len(tracks))
	for i, t := range tracks {
		out[i] = c.classifyOne(t, nowMS)
	}
	return out
}

func (c *Classifier) classifyOne(t tracker.TrackedRegion, nowMS uint32) Detection {
	size := c.sizeTag(t)
	hovering := c.isHovering(t)

	var conf Confidence
	switch {
	case size == Hornet && hovering:
		conf = High
	case size == Hornet:
		conf = Medium
	default:
		conf = Low
	}

	return Detection{
		TrackedRegion: t,
		Size:          size,
		Confidence:    conf,
		IsHovering:    hovering,
		TrackAgeMS:    t.AgeMS(nowMS),
	}
}

func (c *Classifier) sizeTag(t tracker.TrackedRegion) SizeTag {
	minSide := t.W
	if t.H < minSide {
		minSide = t.H
	}
	maxSide := t.W
	if t.H > maxSide {
		maxSide = t.H
	}
	switch {
	case minSide < c.cfg.MinSizePx:
		return TooSmall
	case minSide >= c.cfg.HornetMinSizePx && maxSide <= c.cfg.HornetMaxSizePx:
		return Hornet
	case maxSide > c.cfg.HornetMaxSizePx:
		return TooLarge
	default:
		return Unknown
	}
}

func (c *Classifier) isHovering(t tracker.TrackedRegion) bool {
	if t.HistoryWindowMS() < c.cfg.HoverTimeMs {
		return false
	}
	return t.HistoryMaxPairwiseDistance() <= c.cfg.HoverRadiusPx
}
