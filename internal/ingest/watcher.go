package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/storage"
)

const (
	ProcessedDir    = "processed"
	FailedDir       = "failed"
	DefaultDebounce = 2 * time.Second
)

var audioExtensions = map[string]bool{
	".webm": true,
	".m4a":  true,
	".mp4":  true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
}

// Importer runs imported audio through the pipeline.
type Importer interface {
	Import(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error)
}

type Options struct {
	Dir      string
	Importer Importer
	// Debounce is how long a file must be quiet before it is imported.
	Debounce time.Duration
	Log      zerolog.Logger
}

// Watcher imports audio files dropped into an inbox directory. Files that
// import cleanly move to processed/, the rest to failed/.
type Watcher struct {
	dir      string
	importer Importer
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	queue   chan string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
}

func NewWatcher(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	for _, d := range []string{opts.Dir, filepath.Join(opts.Dir, ProcessedDir), filepath.Join(opts.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox %s: %w", d, err)
		}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:            opts.Dir,
		importer:       opts.Importer,
		debounce:       opts.Debounce,
		log:            opts.Log.With().Str("component", "inbox").Logger(),
		queue:          make(chan string, 64),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Start watches the inbox and queues any audio already sitting in it,
// oldest first.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	existing, err := PendingFiles(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("scan inbox failed")
	}
	w.log.Info().
		Str("dir", w.dir).
		Int("pending", len(existing)).
		Msg("inbox watcher started")

	w.wg.Add(2)
	go w.watchLoop()
	go w.worker()

	for _, p := range existing {
		w.scheduleProcess(p)
	}
	return nil
}

// Stop closes the fsnotify watcher and waits for the in-flight import.
func (w *Watcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.debounceMu.Lock()
	for p, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, p)
	}
	w.debounceMu.Unlock()
	w.wg.Wait()
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_failed", w.filesFailed.Load()).
		Msg("inbox watcher stopped")
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !IsAudioFile(event.Name) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits for the file to go quiet so partially copied audio
// is never imported.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(w.debounce)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		select {
		case w.queue <- path:
		case <-w.ctx.Done():
		}
	})
}

// worker imports one file at a time.
func (w *Watcher) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case p := <-w.queue:
			w.ProcessFile(w.ctx, p)
		}
	}
}

// ProcessFile imports path and files it under processed/ or failed/.
// Missing or non-audio files are ignored.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || !IsAudioFile(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read inbox file")
		return err
	}

	name := filepath.Base(path)
	job := pipeline.Job{
		Audio:     data,
		MimeType:  storage.ContentTypeFor(name),
		Filename:  name,
		StartedAt: info.ModTime(),
		EndedAt:   info.ModTime(),
	}

	log := w.log.With().Str("file", name).Int("bytes", len(data)).Logger()
	out, importErr := w.importer.Import(ctx, job)

	destDir := ProcessedDir
	if importErr != nil {
		destDir = FailedDir
		w.filesFailed.Add(1)
		metrics.InboxFilesTotal.WithLabelValues("failed").Inc()
		log.Error().Err(importErr).Msg("inbox import failed")
	} else {
		w.filesProcessed.Add(1)
		metrics.InboxFilesTotal.WithLabelValues("processed").Inc()
		log.Info().Str("note", out.Note.NotePath).Msg("inbox file imported")
	}

	dest := UniqueTarget(filepath.Join(w.dir, destDir), name)
	if err := os.Rename(path, dest); err != nil {
		log.Error().Err(err).Str("dest", dest).Msg("failed to move inbox file")
		if importErr == nil {
			return err
		}
	}
	return importErr
}

// Stats returns processed and failed file counts.
func (w *Watcher) Stats() (processed, failed int64) {
	return w.filesProcessed.Load(), w.filesFailed.Load()
}

// IsAudioFile reports whether name has a supported audio extension and is
// not hidden.
func IsAudioFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(base))]
}

// PendingFiles lists audio files directly inside dir, oldest first.
func PendingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type pending struct {
		path string
		mod  time.Time
	}
	var files []pending
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, pending{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].mod.Before(files[j].mod)
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// UniqueTarget returns dir/name, or dir/name-N.ext when that already exists.
func UniqueTarget(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		target = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
	}
}
