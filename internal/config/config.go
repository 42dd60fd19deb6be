// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config implements the device's single process-wide
// configuration record: typed, validated, and atomically persisted to
// config.json.
package config

import (
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// SchemaVersion is the current on-disk schema number. Bump this and add
// a migration step in load() whenever a field is added or renamed.
const SchemaVersion = 1

// Network holds connectivity and server settings.
type Network struct {
	WiFiSSID            string `json:"wifi_ssid"`
	WiFiPassword        string `json:"wifi_password"`
	ServerURL           string `json:"server_url"`
	DeviceAPIKey        string `json:"device_api_key"`
	HeartbeatIntervalS  int    `json:"heartbeat_interval_s"`
}

// Detection holds motion/classifier tuning.
type Detection struct {
	MinSizePx       int     `json:"min_size_px"`
	HornetMinSizePx int     `json:"hornet_min_size_px"`
	HornetMaxSizePx int     `json:"hornet_max_size_px"`
	HoverTimeMs     int     `json:"hover_time_ms"`
	HoverRadiusPx   int     `json:"hover_radius_px"`
	LearningRate    float64 `json:"learning_rate"`
	MinArea         int     `json:"min_area"`
	MinAspectRatio  float64 `json:"min_aspect_ratio"`
	MaxAspectRatio  float64 `json:"max_aspect_ratio"`
	DetectShadows   bool    `json:"detect_shadows"`
}

// Actuator holds servo/laser enablement and limits.
type Actuator struct {
	ServoEnable     bool `json:"servo_enable"`
	ServoPanMinDeg  int  `json:"servo_pan_min_deg"`
	ServoPanMaxDeg  int  `json:"servo_pan_max_deg"`
	ServoTiltMinDeg int  `json:"servo_tilt_min_deg"`
	ServoTiltMaxDeg int  `json:"servo_tilt_max_deg"`
	LaserEnable     bool `json:"laser_enable"`
	LaserSafetyMs   int  `json:"laser_safety_timeout_ms"`
}

// Retention holds event/clip storage housekeeping tuning.
type Retention struct {
	PruneDays int `json:"prune_days"`
	MinFreeMB int `json:"min_free_mb"`
}

// Config is the complete, versioned configuration record.
type Config struct {
	SchemaVersion int    `json:"schema_version"`
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`

	Network   Network   `json:"network"`
	Detection Detection `json:"detection"`
	Actuator  Actuator  `json:"actuator"`
	Retention Retention `json:"retention"`

	Armed      bool `json:"armed"`
	NeedsSetup bool `json:"needs_setup"`
}

// Clone returns a deep copy, safe for the caller to retain or mutate.
func (c Config) Clone() Config {
	return c
}

// Masked returns a copy of c with the API key reduced to its first four
// and last four characters, for any serialization that leaves the
// process (the /config HTTP endpoint).
func (c Config) Masked() Config {
	cp := c.Clone()
	cp.Network.DeviceAPIKey = maskKey(cp.Network.DeviceAPIKey)
	return cp
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "…"
	}
	return key[:4] + "…" + key[len(key)-4:]
}

// Default returns a fresh configuration with conservative defaults and
// needs_setup set, the record synthesized when no config.json exists yet.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Network: Network{
			HeartbeatIntervalS: 30,
		},
		Detection: Detection{
			MinSizePx:       4,
			HornetMinSizePx: 15,
			HornetMaxSizePx: 45,
			HoverTimeMs:     800,
			HoverRadiusPx:   6,
			LearningRate:    0.001,
			MinArea:         9,
			MinAspectRatio:  0.3,
			MaxAspectRatio:  3.0,
		},
		Actuator: Actuator{
			ServoEnable:     true,
			ServoPanMinDeg:  -90,
			ServoPanMaxDeg:  90,
			ServoTiltMinDeg: -30,
			ServoTiltMaxDeg: 60,
			LaserEnable:     true,
			LaserSafetyMs:   2000,
		},
		Retention: Retention{
			PruneDays: 30,
			MinFreeMB: 200,
		},
		NeedsSetup: true,
	}
}

// Validate returns a non-nil *apiscommon.Error (Kind ==
// apiscommon.KindInvalidInput) describing the first out-of-range field
// found, or nil if every field is within bounds. Validation is total:
// every field that can be out of range is checked here, and only here,
// so callers never need a second pass.
func (c Config) Validate() error {
	const op = "config.Validate"
	n := c.Network
	if n.HeartbeatIntervalS < 10 || n.HeartbeatIntervalS > 3600 {
		return invalid(op, "heartbeat_interval_s must be in [10, 3600]")
	}
	d := c.Detection
	if d.MinSizePx < 1 || d.MinSizePx > 200 {
		return invalid(op, "min_size_px must be in [1, 200]")
	}
	if d.HornetMinSizePx < 1 || d.HornetMinSizePx > 200 {
		return invalid(op, "hornet_min_size_px must be in [1, 200]")
	}
	if d.HornetMaxSizePx < 1 || d.HornetMaxSizePx > 200 {
		return invalid(op, "hornet_max_size_px must be in [1, 200]")
	}
	if d.HornetMaxSizePx < d.HornetMinSizePx {
		return invalid(op, "hornet_max_size_px must be >= hornet_min_size_px")
	}
	if d.HoverTimeMs < 0 || d.HoverTimeMs > 10000 {
		return invalid(op, "hover_time_ms must be in [0, 10000]")
	}
	if d.HoverRadiusPx < 0 {
		return invalid(op, "hover_radius_px must be >= 0")
	}
	if d.LearningRate <= 0.0 || d.LearningRate > 1.0 {
		return invalid(op, "learning_rate must be in (0.0, 1.0]")
	}
	if d.MinArea < 0 {
		return invalid(op, "min_area must be >= 0")
	}
	if d.MinAspectRatio <= 0 || d.MinAspectRatio > d.MaxAspectRatio {
		return invalid(op, "min_aspect_ratio must be > 0 and <= max_aspect_ratio")
	}
	a := c.Actuator
	if a.ServoPanMinDeg > a.ServoPanMaxDeg {
		return invalid(op, "servo_pan_min_deg must be <= servo_pan_max_deg")
	}
	if a.ServoTiltMinDeg > a.ServoTiltMaxDeg {
		return invalid(op, "servo_tilt_min_deg must be <= servo_tilt_max_deg")
	}
	if a.LaserSafetyMs < 0 {
		return invalid(op, "laser_safety_timeout_ms must be >= 0")
	}
	r := c.Retention
	if r.PruneDays < 1 || r.PruneDays > 365 {
		return invalid(op, "prune_days must be in [1, 365]")
	}
	if r.MinFreeMB < 10 || r.MinFreeMB > 10000 {
		return invalid(op, "min_free_mb must be in [10, 10000]")
	}
	return nil
}

func invalid(op, msg string) error {
	return apiscommon.Wrap(apiscommon.KindInvalidInput, op, errString(msg))
}

type errString string

func (e errString) Error() string { return string(e) }

// Update is a partial configuration change: every field left at its zero
// value (nil for pointers) keeps the prior value. Unset means "do not
// touch"; an explicit pointer to a zero value ("" or 0 or false) is a
// real change.
type Update struct {
	DeviceName *string `json:"device_name,omitempty"`

	WiFiSSID           *string `json:"wifi_ssid,omitempty"`
	WiFiPassword       *string `json:"wifi_password,omitempty"`
	ServerURL          *string `json:"server_url,omitempty"`
	DeviceAPIKey       *string `json:"device_api_key,omitempty"`
	HeartbeatIntervalS *int    `json:"heartbeat_interval_s,omitempty"`

	MinSizePx       *int     `json:"min_size_px,omitempty"`
	HornetMinSizePx *int     `json:"hornet_min_size_px,omitempty"`
	HornetMaxSizePx *int     `json:"hornet_max_size_px,omitempty"`
	HoverTimeMs     *int     `json:"hover_time_ms,omitempty"`
	HoverRadiusPx   *int     `json:"hover_radius_px,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	MinArea         *int     `json:"min_area,omitempty"`
	MinAspectRatio  *float64 `json:"min_aspect_ratio,omitempty"`
	MaxAspectRatio  *float64 `json:"max_aspect_ratio,omitempty"`
	DetectShadows   *bool    `json:"detect_shadows,omitempty"`

	ServoEnable     *bool `json:"servo_enable,omitempty"`
	ServoPanMinDeg  *int  `json:"servo_pan_min_deg,omitempty"`
	ServoPanMaxDeg  *int  `json:"servo_pan_max_deg,omitempty"`
	ServoTiltMinDeg *int  `json:"servo_tilt_min_deg,omitempty"`
	ServoTiltMaxDeg *int  `json:"servo_tilt_max_deg,omitempty"`
	LaserEnable     *bool `json:"laser_enable,omitempty"`
	LaserSafetyMs   *int  `json:"laser_safety_timeout_ms,omitempty"`

	PruneDays *int `json:"prune_days,omitempty"`
	MinFreeMB *int `json:"min_free_mb,omitempty"`
}

// Apply merges u into c and returns the result, leaving c untouched.
func (c Config) Apply(u Update) Config {
	out := c.Clone()
	if u.DeviceName != nil {
		out.DeviceName = *u.DeviceName
	}
	if u.WiFiSSID != nil {
		out.Network.WiFiSSID = *u.WiFiSSID
	}
	if u.WiFiPassword != nil {
		out.Network.WiFiPassword = *u.WiFiPassword
	}
	if u.ServerURL != nil {
		out.Network.ServerURL = *u.ServerURL
	}
	if u.DeviceAPIKey != nil {
		out.Network.DeviceAPIKey = *u.DeviceAPIKey
	}
	if u.HeartbeatIntervalS != nil {
		out.Network.HeartbeatIntervalS = *u.HeartbeatIntervalS
	}
	if u.MinSizePx != nil {
		out.Detection.MinSizePx = *u.MinSizePx
	}
	if u.HornetMinSizePx != nil {
		out.Detection.HornetMinSizePx = *u.HornetMinSizePx
	}
	if u.HornetMaxSizePx != nil {
		out.Detection.HornetMaxSizePx = *u.HornetMaxSizePx
	}
	if u.HoverTimeMs != nil {
		out.Detection.HoverTimeMs = *u.HoverTimeMs
	}
	if u.HoverRadiusPx != nil {
		out.Detection.HoverRadiusPx = *u.HoverRadiusPx
	}
	if u.LearningRate != nil {
		out.Detection.LearningRate = *u.LearningRate
	}
	if u.MinArea != nil {
		out.Detection.MinArea = *u.MinArea
	}
	if u.MinAspectRatio != nil {
		out.Detection.MinAspectRatio = *u.MinAspectRatio
	}
	if u.MaxAspectRatio != nil {
		out.Detection.MaxAspectRatio = *u.MaxAspectRatio
	}
	if u.DetectShadows != nil {
		out.Detection.DetectShadows = *u.DetectShadows
	}
	if u.ServoEnable != nil {
		out.Actuator.ServoEnable = *u.ServoEnable
	}
	if u.ServoPanMinDeg != nil {
		out.Actuator.ServoPanMinDeg = *u.ServoPanMinDeg
	}
	if u.ServoPanMaxDeg != nil {
		out.Actuator.ServoPanMaxDeg = *u.ServoPanMaxDeg
	}
	if u.ServoTiltMinDeg != nil {
		out.Actuator.ServoTiltMinDeg = *u.ServoTiltMinDeg
	}
	if u.ServoTiltMaxDeg != nil {
		out.Actuator.ServoTiltMaxDeg = *u.ServoTiltMaxDeg
	}
	if u.LaserEnable != nil {
		out.Actuator.LaserEnable = *u.LaserEnable
	}
	if u.LaserSafetyMs != nil {
		out.Actuator.LaserSafetyMs = *u.LaserSafetyMs
	}
	if u.PruneDays != nil {
		out.Retention.PruneDays = *u.PruneDays
	}
	if u.MinFreeMB != nil {
		out.Retention.MinFreeMB = *u.MinFreeMB
	}
	return out
}

// HeartbeatInterval returns the configured heartbeat interval as a
// time.Duration, for the heartbeat loop in cmd/apis-edge.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Network.HeartbeatIntervalS) * time.Second
}
