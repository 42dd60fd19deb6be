// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package servercomm implements the device's outbound HTTP surface: a
// heartbeat POST and a clip upload POST to the companion server,
// grounded on the teacher's cmd/lepton seed.go/main.go sendImages/
// sendImgs pattern but generalized from "POST a batch of PNGs" to
// "POST a JSON heartbeat" / "POST a multipart clip", and actually
// reading and classifying the response instead of leaving it as a
// TODO as the teacher's own comment does.
package servercomm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// HeartbeatBufferSize bounds the formatted heartbeat request, matching
// the embedded firmware's fixed 4096-byte request-formatting buffer: a
// device this resource-constrained builds the whole request up front and
// refuses to send a truncated one rather than silently dropping fields.
const HeartbeatBufferSize = 4096

// MaxUploadRequestBytes bounds the formatted multipart clip-upload
// request. The spec leaves the exact cap implementation-defined; a short
// deterrent clip is a few hundred KB to a few MB at most, so 32 MiB
// gives ample headroom while still catching a runaway or corrupt file
// before it is ever sent.
const MaxUploadRequestBytes = 32 << 20

// HeartbeatStatus is the JSON body of the outbound heartbeat POST.
type HeartbeatStatus struct {
	DeviceID        string `json:"device_id"`
	Timestamp       string `json:"timestamp"`
	Armed           bool   `json:"armed"`
	LED             string `json:"led"`
	DetectionsToday int    `json:"detections_today"`
	PendingClips    int    `json:"pending_clips"`
	StorageFreeMB   int64  `json:"storage_free_mb"`
}

// ClipMetadata is the "meta" multipart field of the clip upload.
type ClipMetadata struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Confidence string `json:"confidence"`
}

// Config configures a Comm.
type Config struct {
	ServerURL string // e.g. "http://server.example/api"; empty disables ServerComm entirely
	APIKey    string
	Client    *http.Client // defaults to a Client with Timeout if nil
}

// Comm sends heartbeats and clip uploads to the configured server over
// plain HTTP/1.1 with Connection: close, per spec — the device never
// downgrades an https:// URL to cleartext; it refuses with a clear error
// instead, since this implementation does not support TLS.
type Comm struct {
	cfg Config

	mu                 sync.Mutex
	lastHeartbeatAt    time.Time
	heartbeatFailures  int
	heartbeatAttempted bool
}

// New returns a Comm. An empty ServerURL is valid: every heartbeat call
// becomes a no-op success, per spec ("a missing server configuration
// makes heartbeat a no-op, never an error").
func New(cfg Config) *Comm {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Comm{cfg: cfg}
}

// Configured reports whether a server URL has been set.
func (c *Comm) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ServerURL != ""
}

// SecondsSinceLastHeartbeat returns the time since the last heartbeat
// attempt (success or failure), or -1 if none has been attempted yet.
func (c *Comm) SecondsSinceLastHeartbeat() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.heartbeatAttempted {
		return -1
	}
	return time.Since(c.lastHeartbeatAt).Seconds()
}

// ConsecutiveHeartbeatFailures returns the current run length of
// heartbeat failures, reset to 0 on the next success.
func (c *Comm) ConsecutiveHeartbeatFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeatFailures
}

// SendHeartbeat posts status to {server_url}/heartbeat. A missing server
// configuration is a no-op success. Heartbeat failure never panics and
// is always recoverable on the next call; it only increments a counter.
func (c *Comm) SendHeartbeat(status HeartbeatStatus) error {
	c.mu.Lock()
	url := c.cfg.ServerURL
	c.mu.Unlock()
	if url == "" {
		return nil
	}
	if err := refuseTLSDowngrade(url); err != nil {
		return err
	}

	body, err := formatBounded(status, HeartbeatBufferSize)
	c.mu.Lock()
	c.lastHeartbeatAt = time.Now()
	c.heartbeatAttempted = true
	c.mu.Unlock()
	if err != nil {
		c.bumpFailure()
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(url, "/")+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		c.bumpFailure()
		return apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.SendHeartbeat", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Connection", "close")
	req.ContentLength = int64(len(body))

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		c.bumpFailure()
		return apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.SendHeartbeat", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.mu.Lock()
		c.heartbeatFailures = 0
		c.mu.Unlock()
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.bumpFailure()
		return apiscommon.Wrap(apiscommon.KindIOPermanent, "servercomm.SendHeartbeat", fmt.Errorf("auth failure (401)"))
	default:
		c.bumpFailure()
		return apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.SendHeartbeat", fmt.Errorf("server status %d", resp.StatusCode))
	}
}

func (c *Comm) bumpFailure() {
	c.mu.Lock()
	c.heartbeatFailures++
	c.mu.Unlock()
}

// UploadClip posts the clip at filePath plus meta as
// multipart/form-data to {server_url}/clips. It returns the HTTP status
// code on a completed round trip, or an error classified as
// apiscommon.Kind for the caller (ClipUploader) to map to its retry
// policy. A request that would exceed MaxUploadRequestBytes never
// reaches the network: it fails fast with KindTruncation.
func (c *Comm) UploadClip(filePath string, meta ClipMetadata) (int, error) {
	c.mu.Lock()
	url := c.cfg.ServerURL
	c.mu.Unlock()
	if url == "" {
		return 0, apiscommon.Wrap(apiscommon.KindInvalidInput, "servercomm.UploadClip", fmt.Errorf("no server configured"))
	}
	if err := refuseTLSDowngrade(url); err != nil {
		return 0, err
	}

	fi, err := os.Stat(filePath)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOPermanent, "servercomm.UploadClip", err)
	}
	if fi.Size() > MaxUploadRequestBytes {
		return 0, apiscommon.Wrap(apiscommon.KindTruncation, "servercomm.UploadClip", fmt.Errorf("clip %d bytes exceeds request buffer of %d", fi.Size(), MaxUploadRequestBytes))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindInvalidInput, "servercomm.UploadClip", err)
	}
	if err := mw.WriteField("meta", string(metaJSON)); err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	fw, err := mw.CreateFormFile("file", filePath)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOPermanent, "servercomm.UploadClip", err)
	}
	defer f.Close()
	if _, err := io.Copy(fw, io.LimitReader(f, MaxUploadRequestBytes+1)); err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	if err := mw.Close(); err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	if buf.Len() > MaxUploadRequestBytes {
		return 0, apiscommon.Wrap(apiscommon.KindTruncation, "servercomm.UploadClip", fmt.Errorf("formatted request %d bytes exceeds buffer of %d", buf.Len(), MaxUploadRequestBytes))
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(url, "/")+"/clips", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Connection", "close")
	req.ContentLength = int64(buf.Len())

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "servercomm.UploadClip", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// refuseTLSDowngrade rejects an https:// server URL outright: this
// implementation has no TLS client, and the operator documentation
// states explicitly that there is no TLS on the device, so silently
// downgrading to cleartext is not an option.
func refuseTLSDowngrade(rawURL string) error {
	if strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return apiscommon.Wrap(apiscommon.KindInvalidInput, "servercomm", fmt.Errorf("TLS is not supported on this device; configure a plain http:// server_url"))
	}
	return nil
}

// formatBounded marshals v to JSON and fails with KindTruncation if the
// result would not fit in a buffer of size n, the same snprintf
// return-value discipline the spec requires of the firmware's
// hand-rolled formatter.
func formatBounded(v interface{}, n int) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindInvalidInput, "servercomm.formatBounded", err)
	}
	if len(data) > n {
		return nil, apiscommon.Wrap(apiscommon.KindTruncation, "servercomm.formatBounded", fmt.Errorf("formatted size %d exceeds buffer %d", len(data), n))
	}
	return data, nil
}
