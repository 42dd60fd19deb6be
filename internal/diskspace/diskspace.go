// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package diskspace reports free/total space on the filesystem backing
// a path, the one piece of platform-specific plumbing eventlog.Open
// needs injected rather than importing directly.
package diskspace

import "golang.org/x/sys/unix"

// Stat returns free and total space, in megabytes, for the filesystem
// containing path.
func Stat(path string) (freeMB, totalMB int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	const mb = 1024 * 1024
	block := int64(st.Bsize)
	freeMB = int64(st.Bavail) * block / mb
	totalMB = int64(st.Blocks) * block / mb
	return freeMB, totalMB, nil
}
