package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler walks the local vault for files missing from the object store
// and uploads them. Covers dropped async uploads, crashes, and files that
// predate enabling S3.
type Reconciler struct {
	vault    *LocalVault
	store    ObjectStore
	delay    time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewReconciler creates a reconciler that checks for missing uploads.
func NewReconciler(vault *LocalVault, store ObjectStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		vault:    vault,
		store:    store,
		delay:    2 * time.Minute,
		interval: 15 * time.Minute,
		log:      log.With().Str("component", "vault-reconciler").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reconciler) Start() { go r.loop() }

func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)
	// Delay first run to let startup uploads settle
	select {
	case <-time.After(r.delay):
	case <-r.stop:
		return
	}

	r.Reconcile(context.Background())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Reconcile(context.Background())
		case <-r.stop:
			return
		}
	}
}

// ReconcileResult summarizes one pass.
type ReconcileResult struct {
	Checked  int
	Uploaded int
	Failed   int
}

// Reconcile runs a single pass over the vault.
func (r *Reconciler) Reconcile(ctx context.Context) ReconcileResult {
	var res ReconcileResult

	err := r.vault.Walk(func(p string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if hidden(p) {
			return nil
		}
		res.Checked++

		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		exists, err := r.store.Exists(hctx, p)
		cancel()
		if err != nil {
			r.log.Debug().Err(err).Str("path", p).Msg("exists check failed, skipping")
			return nil
		}
		if exists {
			return nil
		}

		data, err := r.vault.ReadFile(p)
		if err != nil {
			return nil
		}
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := r.store.Put(pctx, p, data, ContentTypeFor(p)); err != nil {
			r.log.Warn().Err(err).Str("path", p).Msg("reconcile upload failed")
			res.Failed++
		} else {
			res.Uploaded++
		}
		return nil
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("vault walk aborted")
	}

	if res.Uploaded > 0 || res.Failed > 0 {
		r.log.Info().
			Int("uploaded", res.Uploaded).
			Int("failed", res.Failed).
			Int("checked", res.Checked).
			Msg("reconcile complete")
	}
	return res
}

// hidden skips dotfiles and dot-directories such as .obsidian and .git.
func hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// ContentTypeFor returns the MIME type for a vault file by extension.
func ContentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".webm":
		return "audio/webm"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
