// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MissingFileSynthesizesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s, err := Open(path)
	require.NoError(t, err)
	cfg := s.Get()
	assert.True(t, cfg.NeedsSetup)
	assert.NotEmpty(t, cfg.DeviceID)
	assert.FileExists(t, path)
}

func TestOpen_CorruptFileIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := Open(path)
	require.Error(t, err)
	assert.Equal(t, "CORRUPTION", errKind(err))

	raw, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "{not json", string(raw))

	cfg := s.Get()
	assert.True(t, cfg.NeedsSetup)
}

func TestUpdate_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	want := 45
	_, err = s.Update(Update{HeartbeatIntervalS: &want})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, want, reopened.Get().Network.HeartbeatIntervalS)
	assert.Equal(t, s.Get(), reopened.Get())
}

func TestUpdate_InvalidLeavesFileUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	bad := 99999
	_, err = s.Update(Update{HeartbeatIntervalS: &bad})
	require.Error(t, err)
	assert.Equal(t, "INVALID_INPUT", errKind(err))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NotEqual(t, bad, s.Get().Network.HeartbeatIntervalS)
}

func TestMasked_KeyNeverLeaksFully(t *testing.T) {
	cfg := Default()
	cfg.Network.DeviceAPIKey = "abcd1234wxyz"
	m := cfg.Masked()
	assert.Equal(t, "abcd…wxyz", m.Network.DeviceAPIKey)
}

func TestSetArmed_Persists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetArmed(true))
	reopened, err := Open(path)
	require.NoError(t, err)
	assert.True(t, reopened.Get().Armed)
}

func errKind(err error) string {
	return apiscommon.KindOf(err).String()
}
