// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package clipqueue implements the bounded retry queue for clip
// uploads: the hardest component in the device, grounded on the
// teacher's cmd/lepton/seed.go Seeder (a queue-draining worker posting
// batches over net/http with its own Stats counters), generalized from
// "never lose a frame batch" to the spec's full enqueue/backoff/
// FIFO/overflow contract.
package clipqueue

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// MaxQueueSize bounds the queue; the oldest PENDING entry is dropped on
// overflow.
const MaxQueueSize = 50

// MaxPersistBytes bounds a read-back of the persisted queue file; an
// unreadable or oversize file is discarded with a warning, never causes
// startup failure.
const MaxPersistBytes = 1 << 20

// MaxRetries is the cap on consecutive transient failures before a clip
// moves to FAILED_PERMANENT. See SPEC_FULL.md §4.F for the rationale
// (Open Question iii).
const MaxRetries = 10

// MinSuccessIntervalSeconds enforces a minimum gap between successful
// uploads, so a backlog drain never produces a request storm.
const MinSuccessIntervalSeconds = 30

// WorkerTick is how often the worker wakes to scan for eligible clips.
const WorkerTick = 5 * time.Second

// Status is the lifecycle state of a QueuedClip.
type Status int

const (
	Pending Status = iota
	Uploading
	Done
	FailedPermanent
)

func (s Status) String() string {
	switch s {
	case Uploading:
		return "UPLOADING"
	case Done:
		return "DONE"
	case FailedPermanent:
		return "FAILED_PERMANENT"
	default:
		return "PENDING"
	}
}

// QueuedClip is one entry in the upload queue.
type QueuedClip struct {
	ID              int64     `json:"id"`
	Path            string    `json:"path"`
	TargetURL       string    `json:"target_url"`
	Confidence      string    `json:"confidence"`
	Timestamp       string    `json:"timestamp"`
	RetryCount      int       `json:"retry_count"`
	NextAttemptTime time.Time `json:"next_attempt_time"`
	Status          Status    `json:"status"`
}

// Stats are monotonic counters plus current gauges, exposed via
// GetStats. Of these, only the Pending gauge is carried in heartbeats
// (as pending_clips); the counters are not sent.
type Stats struct {
	Enqueued        int64
	DroppedOverflow int64
	Uploaded        int64
	Retried         int64
	FailedPermanent int64
	Pending         int
	NextAttemptETA  time.Time
}

// Queue holds the FIFO of QueuedClips, guarded by one exclusive lock.
// The worker never holds this lock during network I/O: it takes the
// lock, picks the next eligible entry, clones it, releases, performs
// I/O, then re-takes the lock to record the result.
type Queue struct {
	mu         sync.Mutex
	items      []*QueuedClip
	nextID     int64
	stats      Stats
	lastUpload time.Time

	persistPath string
}

// New returns an empty Queue. If persistPath is non-empty, the queue
// attempts to load prior state from it (see Load).
func New(persistPath string) *Queue {
	q := &Queue{persistPath: persistPath}
	if persistPath != "" {
		if err := q.Load(persistPath); err != nil && !os.IsNotExist(err) {
			log.Printf("clipqueue: discarding unreadable persisted queue %s: %v", persistPath, err)
		}
	}
	return q
}

// Enqueue adds a clip to the back of the queue. Enqueuing an
// already-queued path (matched by absolute path) is a no-op. On
// overflow, the oldest PENDING entry is dropped and DroppedOverflow is
// incremented.
func (q *Queue) Enqueue(path, targetURL, confidence, timestamp string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.Path == path {
			return
		}
	}

	q.nextID++
	q.items = append(q.items, &QueuedClip{
		ID:         q.nextID,
		Path:       path,
		TargetURL:  targetURL,
		Confidence: confidence,
		Timestamp:  timestamp,
		Status:     Pending,
	})
	q.stats.Enqueued++

	if len(q.items) > MaxQueueSize {
		for i, it := range q.items {
			if it.Status == Pending {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.stats.DroppedOverflow++
				break
			}
		}
	}
	q.persistLocked()
}

// GetStats returns a snapshot of the queue's statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stats
	st.Pending = q.pendingCountLocked()
	st.NextAttemptETA = q.nextAttemptLocked()
	return st
}

func (q *Queue) pendingCountLocked() int {
	n := 0
	for _, it := range q.items {
		if it.Status == Pending || it.Status == Uploading {
			n++
		}
	}
	return n
}

func (q *Queue) nextAttemptLocked() time.Time {
	var best time.Time
	for _, it := range q.items {
		if it.Status != Pending {
			continue
		}
		if best.IsZero() || it.NextAttemptTime.Before(best) {
			best = it.NextAttemptTime
		}
	}
	return best
}

// persistLocked serializes the queue as JSON. Assumes q.mu held.
func (q *Queue) persistLocked() {
	if q.persistPath == "" {
		return
	}
	data, err := json.Marshal(q.items)
	if err != nil {
		return
	}
	_ = os.WriteFile(q.persistPath, data, 0600)
}

// Load reads a previously persisted queue from path. An unreadable or
// oversize file is discarded with the error returned (never fatal to
// the caller); the queue starts empty in that case.
func (q *Queue) Load(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() > MaxPersistBytes {
		return errOversizeQueueFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var items []*QueuedClip
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = items
	for _, it := range items {
		if it.ID > q.nextID {
			q.nextID = it.ID
		}
	}
	return nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errOversizeQueueFile = sentinelErr("persisted queue file exceeds MaxPersistBytes")
