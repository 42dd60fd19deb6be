// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/config"
	"github.com/hivewarden/apis-edge-sub017/internal/eventlog"
)

func ample() (int64, int64, error) { return 5000, 10000, nil }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Open(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	events, err := eventlog.Open(filepath.Join(dir, "events.db"), 100, 30, ample)
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	srv := New(cfg, events, nil, nil, nil, "")
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestStatus_ReturnsDeviceSnapshot(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "device_id")
	assert.Contains(t, body, "armed")
	assert.Contains(t, body, "needs_setup")
}

func TestArmDisarm_RoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/arm", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statusResp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	var body map[string]interface{}
	json.NewDecoder(statusResp.Body).Decode(&body)
	statusResp.Body.Close()
	assert.Equal(t, true, body["armed"])

	resp, err = http.Post(ts.URL+"/disarm", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfig_GetMasksAPIKey(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.cfg.Update(config.Update{DeviceAPIKey: strPtr("supersecretvalue")})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	network := body["network"].(map[string]interface{})
	assert.Equal(t, "supe…alue", network["device_api_key"])
}

func TestConfig_Post_InvalidRejectedAndPriorPersists(t *testing.T) {
	_, ts := newTestServer(t)
	payload := []byte(`{"heartbeat_interval_s": 99999}`)
	resp, err := http.Post(ts.URL+"/config", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var body map[string]interface{}
	json.NewDecoder(getResp.Body).Decode(&body)
	network := body["network"].(map[string]interface{})
	assert.EqualValues(t, 30, network["heartbeat_interval_s"])
}

func TestNotFound_UnknownPathIs404(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestParseRequestLine_PathTooLongIsTruncationError(t *testing.T) {
	longPath := "/" + string(make([]byte, MaxRequestLineBytes))
	line := "GET " + longPath + " HTTP/1.1"
	_, _, _, err := ParseRequestLine(line, MaxRequestLineBytes)
	require.Error(t, err)
	assert.Equal(t, apiscommon.KindTruncation, apiscommon.KindOf(err))
}

func TestParseRequestLine_WellFormedSucceeds(t *testing.T) {
	method, path, proto, err := ParseRequestLine("GET /status HTTP/1.1", MaxRequestLineBytes)
	require.NoError(t, err)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/status", path)
	assert.Equal(t, "HTTP/1.1", proto)
}

func TestParseContentLength_OverflowIsRejected(t *testing.T) {
	_, err := ParseContentLength("99999999999999999999", MaxBodyBytes)
	require.Error(t, err)
}

func TestParseContentLength_NonNumericIsRejected(t *testing.T) {
	_, err := ParseContentLength("abc", MaxBodyBytes)
	require.Error(t, err)
}

func TestParseContentLength_TooLargeIsResourceExhausted(t *testing.T) {
	_, err := ParseContentLength("999999999", 1024)
	require.Error(t, err)
	assert.Equal(t, apiscommon.KindResourceExhausted, apiscommon.KindOf(err))
}

func TestSanitizePath_ReplacesNonPrintable(t *testing.T) {
	assert.Equal(t, "/a?b", sanitizePath("/a\x01b"))
}

func strPtr(s string) *string { return &s }
