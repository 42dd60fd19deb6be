// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package httpserver implements LocalHttpServer: the commissioning and
// observability HTTP surface, grounded on the teacher's cmd/lepton
// WebServer (http.NewServeMux, loggingHandler, a sync.Cond broadcast
// fan-out for a streaming endpoint) generalized from a thermal-camera
// viewer to the device's /status, /arm, /disarm, /config and /stream
// routes.
package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/maruel/serve-dir/dirhttp"
	"golang.org/x/net/websocket"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/clipqueue"
	"github.com/hivewarden/apis-edge-sub017/internal/config"
	"github.com/hivewarden/apis-edge-sub017/internal/eventlog"
)

// frameRingSize is how many recent JPEG frames are retained for
// newly-connecting /stream clients to catch up from. 10 is plenty for
// an MJPEG viewer that only ever wants the latest frame.
const frameRingSize = 10

// HeartbeatSource is the narrow view into ServerComm the status
// endpoint needs.
type HeartbeatSource interface {
	SecondsSinceLastHeartbeat() float64
}

// LedSource is the narrow view into LedController the status endpoint
// needs.
type LedSource interface {
	State() string
}

// Server is LocalHttpServer: it owns the listener, the route table, and
// the broadcast ring buffer MJPEG clients read from.
type Server struct {
	cfg    *config.Store
	events *eventlog.Store
	queue  *clipqueue.Queue
	comm   HeartbeatSource
	led    LedSource

	startedAt time.Time

	cond      sync.Cond
	frames    [frameRingSize][]byte
	lastIndex int
	stopped   bool

	httpSrv *http.Server
	ln      net.Listener
	done    chan struct{}
}

// New builds a Server. staticDir, if non-empty, is served at "/" via
// github.com/maruel/serve-dir's directory handler for the commissioning
// dashboard assets.
func New(cfg *config.Store, events *eventlog.Store, queue *clipqueue.Queue, comm HeartbeatSource, led LedSource, staticDir string) *Server {
	s := &Server{
		cfg:       cfg,
		events:    events,
		queue:     queue,
		comm:      comm,
		led:       led,
		startedAt: time.Now(),
		cond:      *sync.NewCond(&sync.Mutex{}),
		lastIndex: -1,
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/arm", s.handleArm)
	mux.HandleFunc("/disarm", s.handleDisarm)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/stream", s.handleStream)
	mux.Handle("/stream.ws", websocket.Handler(s.streamWS))
	if staticDir != "" {
		mux.Handle("/", dirhttp.New(staticDir))
	} else {
		mux.HandleFunc("/", s.handleNotFound)
	}

	s.httpSrv = &http.Server{Handler: loggingHandler{mux}}
	return s
}

// Start opens addr and serves in a background goroutine until Stop is
// called. Every accepted connection is wrapped by boundedListener so
// the bounded-buffer parser contract runs ahead of net/http's own
// parser on each connection.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, "httpserver.Start", err)
	}
	s.ln = newBoundedListener(ln)
	go func() {
		defer close(s.done)
		if err := s.httpSrv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			log.Printf("httpserver: Serve: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener, unblocks any waiting /stream clients, and
// waits for the accept loop to exit, within a bounded grace period.
func (s *Server) Stop() {
	s.cond.L.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.cond.L.Unlock()

	_ = s.httpSrv.Close()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		log.Printf("httpserver: accept loop did not exit within grace period")
	}
}

// AddFrame pushes a freshly rendered JPEG frame and wakes every blocked
// /stream writer, mirroring the teacher's WebServer.AddImg.
func (s *Server) AddFrame(jpeg []byte) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.lastIndex = (s.lastIndex + 1) % frameRingSize
	s.frames[s.lastIndex] = jpeg
	s.cond.Broadcast()
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeNotFound(w, r.URL.Path)
}

func writeNotFound(w http.ResponseWriter, path string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "404 not found: %s\n", sanitizePath(path))
}

type statusResponse struct {
	DeviceID          string `json:"device_id"`
	Armed             bool   `json:"armed"`
	NeedsSetup        bool   `json:"needs_setup"`
	DetectionsToday   int    `json:"detections_today"`
	PendingClips      int    `json:"pending_clips"`
	StorageFreeMB     int64  `json:"storage_free_mb"`
	LED               string `json:"led"`
	LastHeartbeatAgeS int64  `json:"last_heartbeat_age_s"`
	UptimeS           int64  `json:"uptime_s"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	cfg := s.cfg.Get()

	todayStart := time.Now().Truncate(24 * time.Hour)
	detectionsToday := 0
	if s.events != nil {
		if evs, err := s.events.GetEvents(&todayStart, nil, eventlog.MaxPerQuery); err == nil {
			detectionsToday = len(evs)
		}
	}
	pending := 0
	var freeMB int64
	if s.queue != nil {
		pending = s.queue.GetStats().Pending
	}
	if s.events != nil {
		if st, err := s.events.GetStatus(); err == nil {
			freeMB = st.FreeMB
		}
	}
	ledState := "OFF"
	if s.led != nil {
		ledState = s.led.State()
	}
	lastHeartbeatAge := int64(-1)
	if s.comm != nil {
		if sec := s.comm.SecondsSinceLastHeartbeat(); sec >= 0 {
			lastHeartbeatAge = int64(sec)
		}
	}

	resp := statusResponse{
		DeviceID:          cfg.DeviceID,
		Armed:             cfg.Armed,
		NeedsSetup:        cfg.NeedsSetup,
		DetectionsToday:   detectionsToday,
		PendingClips:      pending,
		StorageFreeMB:     freeMB,
		LED:               ledState,
		LastHeartbeatAgeS: lastHeartbeatAge,
		UptimeS:           int64(time.Since(s.startedAt).Seconds()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.cfg.SetArmed(true); err != nil {
		writeErrByKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"armed": true})
}

func (s *Server) handleDisarm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.cfg.SetArmed(false); err != nil {
		writeErrByKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"armed": false})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Get().Masked())
	case http.MethodPost:
		var u config.Update
		dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
		if err := dec.Decode(&u); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		next, err := s.cfg.Update(u)
		if err != nil {
			writeErrByKind(w, err)
			return
		}
		writeJSON(w, http.StatusOK, next.Masked())
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

// handleStream serves multipart/x-mixed-replace MJPEG: the teacher's
// sync.Cond broadcast fan-out, generalized from a single websocket
// stream to any number of concurrent MJPEG pollers.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	const boundary = "apisedgeframe"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	lastSent := -1
	for !s.stopped {
		for lastSent != s.lastIndex {
			lastSent = (lastSent + 1) % frameRingSize
			frame := s.frames[lastSent]
			if frame == nil {
				continue
			}
			s.cond.L.Unlock()
			if err := writeMJPEGPart(w, boundary, frame); err != nil {
				s.cond.L.Lock()
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			s.cond.L.Lock()
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
		s.cond.Wait()
	}
}

// streamWS serves the same frame ring over a websocket, the teacher's
// original /stream transport, kept alongside MJPEG as a secondary feed
// for clients that prefer a persistent socket over HTTP chunking.
func (s *Server) streamWS(ws *websocket.Conn) {
	defer ws.Close()
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	lastSent := s.lastIndex
	var err error
	for err == nil && !s.stopped {
		s.cond.Wait()
		for lastSent != s.lastIndex && err == nil {
			lastSent = (lastSent + 1) % frameRingSize
			frame := s.frames[lastSent]
			if frame == nil {
				continue
			}
			s.cond.L.Unlock()
			_, err = ws.Write(frame)
			s.cond.L.Lock()
		}
	}
}

func writeMJPEGPart(w http.ResponseWriter, boundary string, jpeg []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
	buf.Write(jpeg)
	buf.WriteString("\r\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpserver: encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// writeErrByKind maps an apiscommon-kinded error to the HTTP status per
// the error handling design's boundary table.
func writeErrByKind(w http.ResponseWriter, err error) {
	switch apiscommon.KindOf(err) {
	case apiscommon.KindInvalidInput:
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case apiscommon.KindResourceExhausted:
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case apiscommon.KindNotReady:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// loggingHandler logs method/path/status/size per request, identical in
// shape to the teacher's cmd/lepton/server.go loggingHandler.
type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (int, error) {
	n, err := l.ResponseWriter.Write(data)
	l.length += n
	return n, err
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

func (l *loggingResponseWriter) Flush() {
	if f, ok := l.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI)
}
