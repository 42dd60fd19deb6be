// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pipeline wires Motion, Tracker, Classifier, EventLogger,
// ClipUploader, and the actuator/LED side effects into the single
// per-frame chain the device runs: Camera frames -> Motion -> Tracker
// -> Classifier -> EventLogger -> ClipUploader, with actuation fired
// in program order ahead of logging, per spec ordering guarantees.
package pipeline

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/classifier"
	"github.com/hivewarden/apis-edge-sub017/internal/cliprecorder"
	"github.com/hivewarden/apis-edge-sub017/internal/clipqueue"
	"github.com/hivewarden/apis-edge-sub017/internal/config"
	"github.com/hivewarden/apis-edge-sub017/internal/eventlog"
	"github.com/hivewarden/apis-edge-sub017/internal/led"
	"github.com/hivewarden/apis-edge-sub017/internal/motion"
	"github.com/hivewarden/apis-edge-sub017/internal/platform"
	"github.com/hivewarden/apis-edge-sub017/internal/tracker"
)

// defaultMaxMatchDistance and defaultMaxLostFrames are not
// operator-tunable fields in config.Detection; the spec leaves
// association geometry as an implementation detail of Tracker, so these
// are fixed constants rather than config fields.
const (
	defaultMaxMatchDistance = 40.0
	defaultMaxLostFrames    = 10
	expectedFrameRateHz     = 9
)

// Pipeline runs the detection chain against a platform.FrameSource until
// Stop is called.
type Pipeline struct {
	cfg      *config.Store
	frames   platform.FrameSource
	actuator platform.Actuator
	events   *eventlog.Store
	queue    *clipqueue.Queue
	leds     *led.Controller
	clipsDir string

	detector   *motion.Detector
	tracker    *tracker.Tracker
	classifier *classifier.Classifier
	recorder   *cliprecorder.Recorder

	nextClipSeq int64
	startMS     uint32

	stop chan struct{}
	done chan struct{}
}

// New builds a Pipeline. clipsDir is where recorded clip artifacts are
// written before being handed to queue.
func New(cfg *config.Store, frames platform.FrameSource, actuator platform.Actuator, events *eventlog.Store, queue *clipqueue.Queue, leds *led.Controller, clipsDir string) *Pipeline {
	d := cfg.Get().Detection
	historyCapacity := int(d.HoverTimeMs/1000*expectedFrameRateHz) + expectedFrameRateHz
	if historyCapacity < 8 {
		historyCapacity = 8
	}
	return &Pipeline{
		cfg:      cfg,
		frames:   frames,
		actuator: actuator,
		events:   events,
		queue:    queue,
		leds:     leds,
		clipsDir: clipsDir,
		detector: motion.New(motion.Config{
			LearningRate:   d.LearningRate,
			Threshold:      25,
			MinArea:        d.MinArea,
			MinSizePx:      d.MinSizePx,
			MaxSizePx:      d.HornetMaxSizePx * 3,
			MinAspectRatio: d.MinAspectRatio,
			MaxAspectRatio: d.MaxAspectRatio,
			DetectShadows:  d.DetectShadows,
		}),
		tracker: tracker.New(tracker.Config{
			MaxMatchDistance: defaultMaxMatchDistance,
			MaxLostFrames:    defaultMaxLostFrames,
			HistoryCapacity:  historyCapacity,
		}),
		classifier: classifier.New(classifier.Config{
			MinSizePx:       d.MinSizePx,
			HornetMinSizePx: d.HornetMinSizePx,
			HornetMaxSizePx: d.HornetMaxSizePx,
			HoverRadiusPx:   float64(d.HoverRadiusPx),
			HoverTimeMs:     uint32(d.HoverTimeMs),
		}),
		recorder: cliprecorder.New(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the pipeline loop in a goroutine until Stop is called.
func (p *Pipeline) Start() {
	go p.run()
}

// Stop signals the loop to exit and waits for it to do so.
func (p *Pipeline) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	p.startMS = uint32(time.Now().UnixMilli())
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		frame, err := p.frames.NextFrame()
		if err != nil {
			log.Printf("pipeline: NextFrame: %v", err)
			continue
		}
		p.recorder.Observe(*frame)

		nowMS := uint32(time.Now().UnixMilli())
		regions := p.detector.Detect(*frame, time.Now())
		tracks := p.tracker.Update(regions, nowMS)
		detections := p.classifier.Classify(tracks, nowMS)

		for _, det := range detections {
			p.handleDetection(det)
		}
	}
}

func (p *Pipeline) handleDetection(det classifier.Detection) {
	if det.Confidence != classifier.High {
		return
	}
	cfg := p.cfg.Get()
	p.leds.FlashDetection()

	laserFired := false
	if cfg.Armed && cfg.Actuator.ServoEnable {
		pan := clampDeg(det.CX, cfg.Actuator.ServoPanMinDeg, cfg.Actuator.ServoPanMaxDeg)
		tilt := clampDeg(det.CY, cfg.Actuator.ServoTiltMinDeg, cfg.Actuator.ServoTiltMaxDeg)
		if err := p.actuator.SetAim(pan, tilt); err != nil {
			log.Printf("pipeline: SetAim: %v", err)
		}
		if cfg.Actuator.LaserEnable {
			if err := p.actuator.FireLaser(time.Duration(cfg.Actuator.LaserSafetyMs) * time.Millisecond); err != nil {
				log.Printf("pipeline: FireLaser: %v", err)
			} else {
				laserFired = true
			}
		}
	}

	seq := atomic.AddInt64(&p.nextClipSeq, 1)
	clipPath, err := p.recorder.Save(p.clipsDir, seq)
	if err != nil {
		log.Printf("pipeline: clip Save: %v", err)
		clipPath = ""
	}

	event := eventlog.Event{
		Timestamp:       time.Now(),
		Confidence:      det.Confidence.String(),
		X:               det.X,
		Y:               det.Y,
		W:               det.W,
		H:               det.H,
		Area:            det.Area,
		HoverDurationMs: hoverDurationMS(det),
		LaserFired:      laserFired,
		ClipFile:        clipPath,
	}
	if _, err := p.events.Log(event); err != nil {
		log.Printf("pipeline: Log: %v", err)
		return
	}
	if clipPath != "" {
		p.queue.Enqueue(clipPath, cfg.Network.ServerURL, det.Confidence.String(), event.Timestamp.UTC().Format(time.RFC3339))
	}
}

func hoverDurationMS(det classifier.Detection) int {
	if !det.IsHovering {
		return 0
	}
	if det.TrackAgeMS > 1<<31-1 {
		return 1<<31 - 1
	}
	return int(det.TrackAgeMS)
}

// clampDeg maps a pixel coordinate into a degree value clamped to
// [min, max]. This is a placeholder aim mapping; a real lens/servo
// calibration belongs to the out-of-scope actuator hardware driver.
func clampDeg(px float64, min, max int) int {
	deg := int(px/4) + min
	if deg < min {
		return min
	}
	if deg > max {
		return max
	}
	return deg
}
