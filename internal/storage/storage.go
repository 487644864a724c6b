package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
)

var (
	// ErrExists is returned when creating a file that is already present.
	ErrExists = errors.New("file already exists")
	// ErrNotFound is returned when reading a file that does not exist.
	ErrNotFound = errors.New("file not found")
)

// Vault is the note store transcriptions are written into. Paths are
// slash-separated and relative to the vault root.
type Vault interface {
	FolderExists(ctx context.Context, path string) (bool, error)
	// CreateFolder creates path and any missing parents.
	CreateFolder(ctx context.Context, path string) error

	FileExists(ctx context.Context, path string) (bool, error)
	// CreateBinaryFile and CreateTextFile fail with ErrExists if path is taken.
	CreateBinaryFile(ctx context.Context, path string, data []byte) error
	CreateTextFile(ctx context.Context, path, content string) error
	ReadTextFile(ctx context.Context, path string) (string, error)
	OverwriteTextFile(ctx context.Context, path, content string) error

	// Type returns "local" or "tiered".
	Type() string
}

// ObjectStore is the remote side of a tiered vault.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// New creates a Vault rooted at vaultDir. With S3 configured the vault is
// tiered and the returned background services (uploader, reconciler) must be
// started and stopped by the caller. Returns an error if S3 is configured but
// unreachable.
func New(cfg config.S3Config, vaultDir string, log zerolog.Logger) (Vault, []BackgroundService, error) {
	local, err := NewLocalVault(vaultDir)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled() {
		return local, nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	uploader := NewAsyncUploader(s3store, cfg.UploadQueue, cfg.UploadWorkers, log)
	tiered := NewTieredVault(local, uploader, log)
	reconciler := NewReconciler(local, s3store, log)

	return tiered, []BackgroundService{uploader, reconciler}, nil
}
