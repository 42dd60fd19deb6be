// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package servercomm

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendHeartbeat_NoServerIsNoopSuccess(t *testing.T) {
	c := New(Config{})
	err := c.SendHeartbeat(HeartbeatStatus{DeviceID: "x"})
	assert.NoError(t, err)
}

func TestSendHeartbeat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/heartbeat", r.URL.Path)
		assert.Equal(t, "secret123", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{ServerURL: srv.URL, APIKey: "secret123"})
	err := c.SendHeartbeat(HeartbeatStatus{DeviceID: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, c.ConsecutiveHeartbeatFailures())
}

func TestSendHeartbeat_401IsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{ServerURL: srv.URL, APIKey: "bad"})
	err := c.SendHeartbeat(HeartbeatStatus{DeviceID: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, c.ConsecutiveHeartbeatFailures())
}

func TestSendHeartbeat_HTTPSRefusesSilentDowngrade(t *testing.T) {
	c := New(Config{ServerURL: "https://server.example/api", APIKey: "k"})
	err := c.SendHeartbeat(HeartbeatStatus{DeviceID: "x"})
	require.Error(t, err)
}

func TestUploadClip_SuccessReturns2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clips", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	clip := filepath.Join(dir, "1.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("fake video bytes"), 0600))

	c := New(Config{ServerURL: srv.URL, APIKey: "k"})
	status, err := c.UploadClip(clip, ClipMetadata{ID: 1, Timestamp: "now", Confidence: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestUploadClip_OversizeFailsFastWithoutNetwork(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "huge.mp4")
	f, err := os.Create(clip)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(MaxUploadRequestBytes+1))
	f.Close()

	c := New(Config{ServerURL: "http://127.0.0.1:1", APIKey: "k"})
	_, err = c.UploadClip(clip, ClipMetadata{ID: 1})
	require.Error(t, err)
}
