// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command apis-edge is the beehive hornet-deterrent device firmware:
// the composition root wiring ConfigStore, the detection pipeline,
// EventLogger, ClipUploader, ServerComm, LocalHttpServer, and
// LedController, grounded on the teacher's cmd/lepton/main.go
// mainImpl/interrupt.HandleCtrlC shutdown shape.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/interrupt"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/clipqueue"
	"github.com/hivewarden/apis-edge-sub017/internal/config"
	"github.com/hivewarden/apis-edge-sub017/internal/diskspace"
	"github.com/hivewarden/apis-edge-sub017/internal/eventlog"
	"github.com/hivewarden/apis-edge-sub017/internal/httpserver"
	"github.com/hivewarden/apis-edge-sub017/internal/led"
	ledfake "github.com/hivewarden/apis-edge-sub017/internal/led/fake"
	"github.com/hivewarden/apis-edge-sub017/internal/pipeline"
	"github.com/hivewarden/apis-edge-sub017/internal/platform"
	platformfake "github.com/hivewarden/apis-edge-sub017/internal/platform/fake"
	"github.com/hivewarden/apis-edge-sub017/internal/servercomm"
)

// uploadAdapter narrows servercomm.Comm to clipqueue.Uploader: the two
// packages each define their own small metadata struct rather than
// sharing one, per the spec's "components know only paths, not each
// other" rule, so this is the one place the field names line up.
type uploadAdapter struct {
	comm *servercomm.Comm
}

func (a uploadAdapter) UploadClip(path string, meta clipqueue.ClipMeta) (int, error) {
	return a.comm.UploadClip(path, servercomm.ClipMetadata{
		ID:         meta.ID,
		Timestamp:  meta.Timestamp,
		Confidence: meta.Confidence,
	})
}

func mainImpl() error {
	configPath := flag.String("config", "config.json", "path to the device configuration record")
	dbPath := flag.String("db", "events.db", "path to the event store")
	queuePath := flag.String("queue", "queue.json", "path to the persisted upload queue")
	clipsDir := flag.String("clips", "clips", "directory recorded clip artifacts are written to")
	addr := flag.String("addr", ":8080", "local HTTP server listen address")
	staticDir := flag.String("static", "", "commissioning dashboard static asset directory, empty to disable")
	hardware := flag.Bool("hardware", false, "drive real GPIO/SPI/I2C instead of the host-test fakes")
	cameraSPI := flag.String("camera-spi", "SPI0.0", "SPI port name for the camera, when -hardware is set")
	cameraWidth := flag.Int("camera-width", 80, "camera frame width in pixels")
	cameraHeight := flag.Int("camera-height", 60, "camera frame height in pixels")
	panPin := flag.String("pan-pin", "GPIO17", "servo pan GPIO pin name, when -hardware is set")
	tiltPin := flag.String("tilt-pin", "GPIO27", "servo tilt GPIO pin name, when -hardware is set")
	laserPin := flag.String("laser-pin", "GPIO22", "laser enable GPIO pin name, when -hardware is set")
	ledRPin := flag.String("led-r-pin", "GPIO5", "status LED red channel GPIO pin name, when -hardware is set")
	ledGPin := flag.String("led-g-pin", "GPIO6", "status LED green channel GPIO pin name, when -hardware is set")
	ledBPin := flag.String("led-b-pin", "GPIO13", "status LED blue channel GPIO pin name, when -hardware is set")
	flag.Parse()
	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args()[0])
	}

	interrupt.HandleCtrlC()

	cfgStore, err := config.Open(*configPath)
	if err != nil {
		log.Printf("apis-edge: config.Open: %v (continuing with in-memory defaults)", err)
	}
	if err := cfgStore.WatchForExternalEdits(); err != nil {
		log.Printf("apis-edge: WatchForExternalEdits: %v", err)
	}
	defer cfgStore.Close()

	cfg := cfgStore.Get()

	dbDir := filepath.Dir(*dbPath)
	freeSpace := func() (int64, int64, error) { return diskspace.Stat(dbDir) }
	events, err := eventlog.Open(*dbPath, cfg.Retention.MinFreeMB, cfg.Retention.PruneDays, freeSpace)
	if err != nil {
		return fmt.Errorf("eventlog.Open: %w", err)
	}
	defer events.Close()

	if err := os.MkdirAll(*clipsDir, 0o755); err != nil {
		return fmt.Errorf("creating clips directory: %w", err)
	}

	queue := clipqueue.New(*queuePath)

	comm := servercomm.New(servercomm.Config{
		ServerURL: cfg.Network.ServerURL,
		APIKey:    cfg.Network.DeviceAPIKey,
	})

	worker := clipqueue.NewWorker(queue, uploadAdapter{comm}, events)
	worker.Start()
	defer worker.Stop()

	ledCtrl := led.New()
	ledCtrl.SetState(led.StateBoot, true)
	ledDriver, err := openLedDriver(*hardware, *ledRPin, *ledGPin, *ledBPin)
	if err != nil {
		return fmt.Errorf("opening LED driver: %w", err)
	}
	ledPattern := led.NewPattern(ledCtrl, ledDriver)
	ledPattern.Start()
	defer ledPattern.Stop()

	frames, actuator, err := openPlatform(*hardware, *cameraSPI, *cameraWidth, *cameraHeight, *panPin, *tiltPin, *laserPin)
	if err != nil {
		return fmt.Errorf("opening platform: %w", err)
	}
	defer frames.Close()
	defer actuator.Close()

	srv := httpserver.New(cfgStore, events, queue, comm, ledCtrl, *staticDir)
	if err := srv.Start(*addr); err != nil {
		return fmt.Errorf("httpserver.Start: %w", err)
	}
	defer srv.Stop()

	pl := pipeline.New(cfgStore, frames, actuator, events, queue, ledCtrl, *clipsDir)
	pl.Start()
	defer pl.Stop()

	ledCtrl.SetState(led.StateBoot, false)
	if cfgStore.Get().Armed {
		ledCtrl.SetState(led.StateArmed, true)
	} else {
		ledCtrl.SetState(led.StateDisarmed, true)
	}

	log.Printf("apis-edge: listening on %s", *addr)
	go heartbeatLoop(cfgStore, events, queue, comm, ledCtrl)

	<-interrupt.Channel
	log.Print("apis-edge: shutting down")
	return nil
}

// heartbeatLoop posts status to the configured server on the
// operator-tunable interval until the process is interrupted. It also
// drives the LED's aggregate operational overlays: two or more
// consecutive heartbeat failures light StateOffline, and three
// consecutive cycles where the event store reports NOT_READY or
// CORRUPTION light StateError; either clears as soon as a cycle comes
// back clean.
func heartbeatLoop(cfgStore *config.Store, events *eventlog.Store, queue *clipqueue.Queue, comm *servercomm.Comm, ledCtrl *led.Controller) {
	degradedCycles := 0
	for {
		cfg := cfgStore.Get()
		interval := cfg.HeartbeatInterval()
		select {
		case <-interrupt.Channel:
			return
		case <-time.After(interval):
		}

		degraded := false

		detectionsToday := 0
		todayStart := time.Now().Truncate(24 * time.Hour)
		evs, err := events.GetEvents(&todayStart, nil, eventlog.MaxPerQuery)
		if err != nil {
			if isDegradedKind(err) {
				degraded = true
			}
		} else {
			detectionsToday = len(evs)
		}

		var freeMB int64
		st, err := events.GetStatus()
		if err != nil {
			if isDegradedKind(err) {
				degraded = true
			}
		} else {
			freeMB = st.FreeMB
		}

		if degraded {
			degradedCycles++
		} else {
			degradedCycles = 0
		}
		ledCtrl.SetState(led.StateError, degradedCycles >= 3)

		status := servercomm.HeartbeatStatus{
			DeviceID:        cfg.DeviceID,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			Armed:           cfg.Armed,
			LED:             ledCtrl.State(),
			DetectionsToday: detectionsToday,
			PendingClips:    queue.GetStats().Pending,
			StorageFreeMB:   freeMB,
		}
		if err := comm.SendHeartbeat(status); err != nil {
			log.Printf("apis-edge: heartbeat: %v", err)
		}
		ledCtrl.SetState(led.StateOffline, comm.ConsecutiveHeartbeatFailures() >= 2)
	}
}

// isDegradedKind reports whether err's Kind counts toward the
// consecutive-cycle run that escalates to StateError.
func isDegradedKind(err error) bool {
	switch apiscommon.KindOf(err) {
	case apiscommon.KindCorruption, apiscommon.KindNotReady:
		return true
	default:
		return false
	}
}

func openLedDriver(hardware bool, rPin, gPin, bPin string) (led.Driver, error) {
	if !hardware {
		return &ledfake.Driver{}, nil
	}
	return led.NewGPIODriver(rPin, gPin, bPin)
}

func openPlatform(hardware bool, spiName string, width, height int, panPin, tiltPin, laserPin string) (platform.FrameSource, platform.Actuator, error) {
	if !hardware {
		return platformfake.NewFrameSource(width, height, 1), platformfake.NewActuator(2 * time.Second), nil
	}
	cam, err := platform.OpenCameraSource(spiName, width, height)
	if err != nil {
		return nil, nil, err
	}
	act, err := platform.OpenServoLaserActuator(panPin, tiltPin, laserPin, "", 2*time.Second)
	if err != nil {
		cam.Close()
		return nil, nil, err
	}
	return cam, act, nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "apis-edge: %s\n", err)
		os.Exit(1)
	}
}

