// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

import (
	"log"
	"time"
)

// connectedComponents extracts 4-connected components from mask (a
// width*height 0/1 plane) using a bounded explicit stack: no recursion,
// so stack depth never depends on component shape. If a component would
// exceed maxComponentPixels, the walk stops early, the component is
// reported using only the pixels visited so far, and a rate-limited
// warning is logged.
func (d *Detector) connectedComponents(mask []uint8) []Region {
	w, h := d.width, d.height
	for i := range d.visited {
		d.visited[i] = false
	}
	var regions []Region
	for start := 0; start < len(mask); start++ {
		if mask[start] == 0 || d.visited[start] {
			continue
		}
		region, truncated := d.floodFill(mask, start, w, h)
		if truncated {
			d.warnTruncated()
		}
		regions = append(regions, region)
	}
	return regions
}

func (d *Detector) floodFill(mask []uint8, start, w, h int) (Region, bool) {
	d.stack = d.stack[:0]
	d.stack = append(d.stack, start)
	d.visited[start] = true

	minX, minY := w, h
	maxX, maxY := -1, -1
	area := 0
	var sumX, sumY float64
	truncated := false

	for len(d.stack) > 0 {
		if area >= maxComponentPixels {
			truncated = true
			break
		}
		top := len(d.stack) - 1
		i := d.stack[top]
		d.stack = d.stack[:top]

		x, y := i%w, i/w
		area++
		sumX += float64(x)
		sumY += float64(y)
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		// 4-connectivity: left, right, up, down.
		if x > 0 {
			d.tryPush(mask, i-1)
		}
		if x < w-1 {
			d.tryPush(mask, i+1)
		}
		if y > 0 {
			d.tryPush(mask, i-w)
		}
		if y < h-1 {
			d.tryPush(mask, i+w)
		}
	}

	r := Region{
		X: minX, Y: minY,
		W: maxX - minX + 1,
		H: maxY - minY + 1,
		Area: area,
	}
	if area > 0 {
		r.CX = sumX / float64(area)
		r.CY = sumY / float64(area)
	}
	return r, truncated
}

func (d *Detector) tryPush(mask []uint8, i int) {
	if mask[i] != 0 && !d.visited[i] {
		d.visited[i] = true
		d.stack = append(d.stack, i)
	}
}

func (d *Detector) warnTruncated() {
	now := time.Now()
	if now.Sub(d.lastTruncationWarn) < time.Second {
		return
	}
	d.lastTruncationWarn = now
	log.Printf("motion: component flood fill truncated at %d pixels", maxComponentPixels)
}
