// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

// erode3x3 writes to dst the 3x3 erosion of src: a pixel survives only
// if every pixel in its 3x3 neighborhood (clamped at the border, which
// counts as background) is set. Border pixels therefore always erode
// away, which is the simplest bound-safe policy.
func erode3x3(src, dst []uint8, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				dst[i] = 0
				continue
			}
			all := uint8(1)
			for dy := -1; dy <= 1 && all == 1; dy++ {
				row := (y + dy) * w
				for dx := -1; dx <= 1; dx++ {
					if src[row+x+dx] == 0 {
						all = 0
						break
					}
				}
			}
			dst[i] = all
		}
	}
}

// dilate3x3 writes to dst the 3x3 dilation of src: a pixel is set if any
// pixel in its 3x3 neighborhood (clamped at the border) is set.
func dilate3x3(src, dst []uint8, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			any := uint8(0)
			for dy := -1; dy <= 1 && any == 0; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				row := ny * w
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					if src[row+nx] != 0 {
						any = 1
						break
					}
				}
			}
			dst[i] = any
		}
	}
}
