package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AsyncUploader pushes vault writes to the object store in the background.
// Files are already on local disk before being enqueued here.
type AsyncUploader struct {
	store   ObjectStore
	ch      chan uploadJob
	workers int
	log     zerolog.Logger
	mu      sync.RWMutex // guards stopped against close(ch)
	stopped bool
	wg      sync.WaitGroup

	uploaded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// UploadStats counts uploader outcomes since start.
type UploadStats struct {
	Uploaded int64 `json:"uploaded"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
	Queued   int   `json:"queued"`
}

// NewAsyncUploader creates an uploader with the given queue size and worker count.
func NewAsyncUploader(store ObjectStore, queue, workers int, log zerolog.Logger) *AsyncUploader {
	if queue <= 0 {
		queue = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &AsyncUploader{
		store:   store,
		ch:      make(chan uploadJob, queue),
		workers: workers,
		log:     log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an upload job. Non-blocking: drops with a warning if the
// queue is full or the uploader is stopped. The reconciler picks up drops.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.stopped {
		u.dropped.Add(1)
		return
	}
	job := uploadJob{key: key, data: data, contentType: contentType}
	select {
	case u.ch <- job:
	default:
		u.dropped.Add(1)
		u.log.Warn().Str("key", key).Msg("upload queue full, skipping (file safe in vault)")
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start() {
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", u.workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop closes the queue and waits for workers to drain it.
func (u *AsyncUploader) Stop() {
	u.mu.Lock()
	if !u.stopped {
		u.stopped = true
		close(u.ch)
	}
	u.mu.Unlock()
	u.wg.Wait()
}

// Stats returns a snapshot of upload counters.
func (u *AsyncUploader) Stats() UploadStats {
	return UploadStats{
		Uploaded: u.uploaded.Load(),
		Failed:   u.failed.Load(),
		Dropped:  u.dropped.Load(),
		Queued:   len(u.ch),
	}
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.store.Put(ctx, job.key, job.data, job.contentType); err != nil {
			u.failed.Add(1)
			u.log.Error().Err(err).Str("key", job.key).Msg("async upload failed (file safe in vault)")
		} else {
			u.uploaded.Add(1)
		}
		cancel()
	}
}

// QueueDepth and the counters below satisfy metrics.BackupStats.
func (u *AsyncUploader) QueueDepth() int { return len(u.ch) }
func (u *AsyncUploader) Uploaded() int64 { return u.uploaded.Load() }
func (u *AsyncUploader) Failed() int64   { return u.failed.Load() }
func (u *AsyncUploader) Dropped() int64  { return u.dropped.Load() }
