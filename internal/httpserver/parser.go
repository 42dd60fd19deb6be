// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpserver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// MaxRequestLineBytes bounds the request line (method + path + proto),
// reproducing the firmware's fixed-size request-parsing buffer. A path
// whose encoded length would exceed this is an error, never a silent
// truncation.
const MaxRequestLineBytes = 2048

// MaxHeaderBytes bounds the header block read ahead of the request line.
const MaxHeaderBytes = 8192

// ParseRequestLine splits a raw HTTP request line ("METHOD /path
// HTTP/1.1") into its three fields. It rejects a line whose length
// exceeds maxLen with a Kind=TRUNCATION error rather than parsing a
// truncated path silently.
func ParseRequestLine(line string, maxLen int) (method, path, proto string, err error) {
	const op = "httpserver.ParseRequestLine"
	line = strings.TrimRight(line, "\r\n")
	if len(line) > maxLen {
		return "", "", "", apiscommon.Wrap(apiscommon.KindTruncation, op, fmt.Errorf("request line of %d bytes exceeds buffer of %d", len(line), maxLen))
	}
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", "", "", apiscommon.Wrap(apiscommon.KindInvalidInput, op, fmt.Errorf("malformed request line %q", line))
	}
	return parts[0], parts[1], parts[2], nil
}

// ParseContentLength validates the raw value of a Content-Length header.
// A non-numeric value or one that overflows int64 is Kind=INVALID_INPUT.
// A numeric value exceeding maxBody is Kind=RESOURCE_EXHAUSTED (maps to
// HTTP 413 at the handler boundary).
func ParseContentLength(raw string, maxBody int64) (int64, error) {
	const op = "httpserver.ParseContentLength"
	raw = strings.TrimSpace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindInvalidInput, op, fmt.Errorf("non-numeric Content-Length %q", raw))
	}
	if n < 0 {
		return 0, apiscommon.Wrap(apiscommon.KindInvalidInput, op, fmt.Errorf("negative Content-Length %q", raw))
	}
	if n > maxBody {
		return 0, apiscommon.Wrap(apiscommon.KindResourceExhausted, op, fmt.Errorf("Content-Length %d exceeds body buffer of %d", n, maxBody))
	}
	return n, nil
}

// sanitizePath replaces any non-printable-ASCII byte in p with '?', for
// safe inclusion in a 404 response body.
func sanitizePath(p string) string {
	b := []byte(p)
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}
