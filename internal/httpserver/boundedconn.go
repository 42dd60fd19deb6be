// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpserver

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// MaxBodyBytes bounds the request body size accepted from a Content-Length
// header; a larger declared size fails fast with 413, before any body
// bytes are read off the wire.
const MaxBodyBytes = 16 << 20

// boundedListener wraps a net.Listener so every accepted connection is
// peeked and validated against the bounded-buffer parser contract before
// net/http's own request parser ever sees it. This is the one part of
// LocalHttpServer built directly on bufio.Reader rather than a
// third-party HTTP library — see DESIGN.md for why.
type boundedListener struct {
	net.Listener
}

func newBoundedListener(l net.Listener) *boundedListener {
	return &boundedListener{Listener: l}
}

func (b *boundedListener) Accept() (net.Conn, error) {
	c, err := b.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &boundedConn{Conn: c, br: bufio.NewReaderSize(c, MaxRequestLineBytes+MaxHeaderBytes)}, nil
}

// boundedConn performs one validation pass, on the first Read, over the
// request line and headers peeked from the underlying connection. A
// violation writes the appropriate 4xx response directly and reports
// io.EOF to net/http so the connection closes without a second response
// being written. A clean request is left untouched in the buffered
// reader for net/http's own parser to read normally.
type boundedConn struct {
	net.Conn
	br   *bufio.Reader
	once sync.Once
	err  error
}

func (b *boundedConn) Read(p []byte) (int, error) {
	b.once.Do(func() { b.err = b.validate() })
	if b.err != nil {
		return 0, b.err
	}
	return b.br.Read(p)
}

func (b *boundedConn) validate() error {
	peeked, _ := b.br.Peek(MaxRequestLineBytes + MaxHeaderBytes)
	if len(peeked) == 0 {
		return nil
	}
	lineEnd := bytes.IndexByte(peeked, '\n')
	if lineEnd < 0 {
		if len(peeked) >= MaxRequestLineBytes {
			writeRawStatus(b.Conn, 400, "request line too long")
			return io.EOF
		}
		return nil
	}
	line := string(bytes.TrimRight(peeked[:lineEnd], "\r\n"))
	if len(line) > MaxRequestLineBytes {
		writeRawStatus(b.Conn, 400, "request line too long")
		return io.EOF
	}
	fields := strings.Fields(line)
	if len(fields) == 3 {
		if _, _, _, err := ParseRequestLine(line, MaxRequestLineBytes); err != nil {
			writeRawStatus(b.Conn, 400, "malformed request line")
			return io.EOF
		}
	}

	headerBlock := peeked[lineEnd+1:]
	end := bytes.Index(headerBlock, []byte("\r\n\r\n"))
	if end < 0 {
		end = len(headerBlock)
	}
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(headerBlock[:end])))
	header, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if _, err := ParseContentLength(cl, MaxBodyBytes); err != nil {
			// A value that fails to parse at all (empty, non-numeric, or
			// overflowing int64) is 400: the header itself is malformed.
			// A value that parses fine but declares more than MaxBodyBytes
			// is 413: the request is well-formed, just too large to buffer.
			// A huge-but-in-range digit string like all-nines falls in the
			// second bucket, not the first, even though it looks like an
			// overflow at a glance.
			if apiscommon.KindOf(err) == apiscommon.KindResourceExhausted {
				writeRawStatus(b.Conn, 413, "request body too large")
			} else {
				writeRawStatus(b.Conn, 400, "invalid Content-Length")
			}
			return io.EOF
		}
	}
	return nil
}

func writeRawStatus(w io.Writer, status int, msg string) {
	text := map[int]string{400: "Bad Request", 413: "Request Entity Too Large"}[status]
	body := msg + "\n"
	resp := "HTTP/1.1 " + strconv.Itoa(status) + " " + text + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body
	io.WriteString(w, resp)
}
