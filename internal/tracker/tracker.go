// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tracker assigns frame-to-frame identity to Motion's regions
// via greedy nearest-centroid association, the same gating shape
// banshee-data-velocity.report's lidar pipeline uses for 3-D point
// tracks, adapted here to 2-D pixel centroids.
package tracker

import (
	"math"
	"sort"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/motion"
)

// Config tunes association and track lifetime.
type Config struct {
	MaxMatchDistance float64 // pixels; a region farther than this from a track is not a candidate match
	MaxLostFrames    int     // a track unmatched for more than this many frames is retired
	HistoryCapacity  int     // centroid ring buffer size, sized to cover hover_time_ms at the expected frame rate
}

// TrackedRegion is a Region plus the tracking state the spec requires:
// a stable id, creation/last-seen timestamps, and a bounded centroid
// history sufficient to compute hover over the configured window.
type TrackedRegion struct {
	motion.Region
	TrackID       uint64
	CreatedAtMS   uint32
	LastSeenAtMS  uint32
	History       []centroidSample
	framesSinceHit int
}

type centroidSample struct {
	tMS    uint32
	cx, cy float64
}

// AgeMS returns the wrap-safe age of the track at "nowMS", i.e. the
// elapsed time since CreatedAtMS.
func (t TrackedRegion) AgeMS(nowMS uint32) uint32 {
	return apiscommon.ElapsedMS32(t.CreatedAtMS, nowMS)
}

// Tracker holds the set of live tracks across calls to Update.
type Tracker struct {
	cfg    Config
	tracks []*TrackedRegion
	nextID uint64
}

// New returns a Tracker configured per cfg.
func New(cfg Config) *Tracker {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 32
	}
	return &Tracker{cfg: cfg}
}

// Update associates regions (produced by Motion at timestampMS) against
// the live track set, retires stale tracks, and returns every currently
// live TrackedRegion, matched or not, reflecting the state after this
// call.
func (tr *Tracker) Update(regions []motion.Region, timestampMS uint32) []TrackedRegion {
	matchedTrack := make([]bool, len(tr.tracks))
	matchedRegion := make([]bool, len(regions))

	type candidate struct {
		trackIdx, regionIdx int
		dist                float64
	}
	var candidates []candidate
	for ti, t := range tr.tracks {
		for ri, r := range regions {
			d := centroidDistance(t.CX, t.CY, r.CX, r.CY)
			if d <= tr.cfg.MaxMatchDistance {
				candidates = append(candidates, candidate{ti, ri, d})
			}
		}
	}
	// Greedy: smallest distance first; ties broken by smaller region
	// index, which the stable sort plus secondary key preserves.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].regionIdx < candidates[j].regionIdx
	})
	for _, c := range candidates {
		if matchedTrack[c.trackIdx] || matchedRegion[c.regionIdx] {
			continue
		}
		matchedTrack[c.trackIdx] = true
		matchedRegion[c.regionIdx] = true
		t := tr.tracks[c.trackIdx]
		t.Region = regions[c.regionIdx]
		t.LastSeenAtMS = timestampMS
		t.framesSinceHit = 0
		t.pushHistory(timestampMS, tr.cfg.HistoryCapacity)
	}

	// Unmatched regions start new tracks.
	for ri, r := range regions {
		if matchedRegion[ri] {
			continue
		}
		tr.nextID++
		nt := &TrackedRegion{
			Region:       r,
			TrackID:      tr.nextID,
			CreatedAtMS:  timestampMS,
			LastSeenAtMS: timestampMS,
		}
		nt.pushHistory(timestampMS, tr.cfg.HistoryCapacity)
		tr.tracks = append(tr.tracks, nt)
	}

	// Age and retire unmatched tracks.
	live := tr.tracks[:0]
	for ti, t := range tr.tracks {
		if !matchedTrack[ti] && t.CreatedAtMS != timestampMS {
			t.framesSinceHit++
		}
		if t.framesSinceHit > tr.cfg.MaxLostFrames {
			continue
		}
		live = append(live, t)
	}
	tr.tracks = live

	out := make([]TrackedRegion, len(tr.tracks))
	for i, t := range tr.tracks {
		out[i] = *t
	}
	return out
}

func (t *TrackedRegion) pushHistory(tMS uint32, capacity int) {
	t.History = append(t.History, centroidSample{tMS: tMS, cx: t.CX, cy: t.CY})
	if len(t.History) > capacity {
		t.History = t.History[len(t.History)-capacity:]
	}
}

func centroidDistance(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

// HistoryMaxPairwiseDistance returns the maximum pairwise Euclidean
// distance among the track's retained centroid samples, used by the
// classifier to decide hovering.
func (t TrackedRegion) HistoryMaxPairwiseDistance() float64 {
	max := 0.0
	for i := range t.History {
		for j := i + 1; j < len(t.History); j++ {
			d := centroidDistance(t.History[i].cx, t.History[i].cy, t.History[j].cx, t.History[j].cy)
			if d > max {
				max = d
			}
		}
	}
	return max
}

// HistoryWindowMS returns the wrap-safe duration spanned by the track's
// retained centroid history.
func (t TrackedRegion) HistoryWindowMS() uint32 {
	if len(t.History) < 2 {
		return 0
	}
	return apiscommon.ElapsedMS32(t.History[0].tMS, t.History[len(t.History)-1].tMS)
}
