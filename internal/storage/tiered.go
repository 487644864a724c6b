package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// TieredVault keeps the local vault as the source of truth and mirrors every
// successful write to the object store in the background. Reads never touch
// the object store.
type TieredVault struct {
	local    *LocalVault
	uploader *AsyncUploader
	log      zerolog.Logger
}

// NewTieredVault creates a local-primary vault with an async remote mirror.
func NewTieredVault(local *LocalVault, uploader *AsyncUploader, log zerolog.Logger) *TieredVault {
	return &TieredVault{
		local:    local,
		uploader: uploader,
		log:      log.With().Str("component", "tiered-vault").Logger(),
	}
}

func (v *TieredVault) FolderExists(ctx context.Context, p string) (bool, error) {
	return v.local.FolderExists(ctx, p)
}

func (v *TieredVault) CreateFolder(ctx context.Context, p string) error {
	return v.local.CreateFolder(ctx, p)
}

func (v *TieredVault) FileExists(ctx context.Context, p string) (bool, error) {
	return v.local.FileExists(ctx, p)
}

func (v *TieredVault) CreateBinaryFile(ctx context.Context, p string, data []byte) error {
	if err := v.local.CreateBinaryFile(ctx, p, data); err != nil {
		return err
	}
	v.mirror(p, data)
	return nil
}

func (v *TieredVault) CreateTextFile(ctx context.Context, p, content string) error {
	if err := v.local.CreateTextFile(ctx, p, content); err != nil {
		return err
	}
	v.mirror(p, []byte(content))
	return nil
}

func (v *TieredVault) ReadTextFile(ctx context.Context, p string) (string, error) {
	return v.local.ReadTextFile(ctx, p)
}

func (v *TieredVault) OverwriteTextFile(ctx context.Context, p, content string) error {
	if err := v.local.OverwriteTextFile(ctx, p, content); err != nil {
		return err
	}
	v.mirror(p, []byte(content))
	return nil
}

func (v *TieredVault) Type() string { return "tiered" }

// Uploader exposes the mirror queue for stats.
func (v *TieredVault) Uploader() *AsyncUploader { return v.uploader }

func (v *TieredVault) mirror(p string, data []byte) {
	v.log.Debug().Str("path", p).Int("bytes", len(data)).Msg("queued for backup")
	v.uploader.Enqueue(p, data, ContentTypeFor(p))
}
