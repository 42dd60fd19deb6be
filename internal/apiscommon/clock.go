// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package apiscommon

// ElapsedMS32 returns the wrap-safe duration in milliseconds between a
// uint32 millisecond counter reading "from" and a later reading "to".
//
// Never subtract two uint32 millisecond timestamps after converting to a
// signed type, and never branch on "to < from" to detect wraparound: both
// silently produce the wrong answer across a rollover. Unsigned
// subtraction wraps modulo 2^32, which is exactly the duration that
// elapsed whether or not the counter rolled over in between.
func ElapsedMS32(from, to uint32) uint32 {
	return to - from
}
