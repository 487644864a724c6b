package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
	headErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, ct string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = append([]byte(nil), data...)
	f.types[key] = ct
	return nil
}

func (f *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return false, f.headErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return string(b), ok
}

func TestTieredVaultMirrorsWrites(t *testing.T) {
	ctx := context.Background()
	local := newTestVault(t)
	remote := newFakeObjectStore()
	up := NewAsyncUploader(remote, 10, 1, zerolog.Nop())
	up.Start()
	v := NewTieredVault(local, up, zerolog.Nop())

	if err := v.CreateFolder(ctx, "scribed/m"); err != nil {
		t.Fatal(err)
	}
	if err := v.CreateBinaryFile(ctx, "scribed/m/recording.webm", []byte("audio")); err != nil {
		t.Fatal(err)
	}
	if err := v.CreateTextFile(ctx, "scribed/m/transcription.md", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := v.OverwriteTextFile(ctx, "scribed/m/transcription.md", "v2"); err != nil {
		t.Fatal(err)
	}
	up.Stop()

	if got, ok := remote.get("scribed/m/recording.webm"); !ok || got != "audio" {
		t.Errorf("remote audio = %q, %v", got, ok)
	}
	if remote.types["scribed/m/recording.webm"] != "audio/webm" {
		t.Errorf("content type = %q, want audio/webm", remote.types["scribed/m/recording.webm"])
	}
	if got, _ := remote.get("scribed/m/transcription.md"); got != "v2" {
		t.Errorf("remote note = %q, want v2", got)
	}
	if s := up.Stats(); s.Uploaded != 3 || s.Failed != 0 {
		t.Errorf("stats = %+v, want 3 uploaded", s)
	}
}

func TestTieredVaultLocalFailureSkipsMirror(t *testing.T) {
	ctx := context.Background()
	local := newTestVault(t)
	remote := newFakeObjectStore()
	up := NewAsyncUploader(remote, 10, 1, zerolog.Nop())
	up.Start()
	v := NewTieredVault(local, up, zerolog.Nop())

	v.CreateTextFile(ctx, "a.md", "one")
	if err := v.CreateTextFile(ctx, "a.md", "two"); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
	up.Stop()
	if got, _ := remote.get("a.md"); got != "one" {
		t.Errorf("remote = %q, want one", got)
	}
}

func TestAsyncUploaderDropsAfterStop(t *testing.T) {
	up := NewAsyncUploader(newFakeObjectStore(), 1, 1, zerolog.Nop())
	up.Start()
	up.Stop()
	up.Stop()
	up.Enqueue("late.md", []byte("x"), "text/markdown")
	if s := up.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
}

func TestAsyncUploaderCountsFailures(t *testing.T) {
	remote := newFakeObjectStore()
	remote.putErr = errors.New("503 slow down")
	up := NewAsyncUploader(remote, 4, 1, zerolog.Nop())
	up.Start()
	up.Enqueue("a.md", []byte("x"), "text/markdown")
	up.Stop()
	if s := up.Stats(); s.Failed != 1 || s.Uploaded != 0 {
		t.Errorf("stats = %+v, want 1 failed", s)
	}
}

func TestReconcile(t *testing.T) {
	local := newTestVault(t)
	root := local.Root()
	os.MkdirAll(filepath.Join(root, "scribed", "m"), 0o755)
	os.MkdirAll(filepath.Join(root, ".obsidian"), 0o755)
	os.WriteFile(filepath.Join(root, "scribed", "m", "transcription.md"), []byte("note"), 0o644)
	os.WriteFile(filepath.Join(root, "scribed", "m", "recording.webm"), []byte("audio"), 0o644)
	os.WriteFile(filepath.Join(root, ".obsidian", "app.json"), []byte("{}"), 0o644)

	remote := newFakeObjectStore()
	remote.objects["scribed/m/recording.webm"] = []byte("audio")

	r := NewReconciler(local, remote, zerolog.Nop())
	res := r.Reconcile(context.Background())

	if res.Checked != 2 || res.Uploaded != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want checked=2 uploaded=1", res)
	}
	if got, _ := remote.get("scribed/m/transcription.md"); got != "note" {
		t.Errorf("remote note = %q, want note", got)
	}
	if _, ok := remote.get(".obsidian/app.json"); ok {
		t.Error("hidden config was uploaded")
	}
}

func TestReconcileSkipsOnLookupError(t *testing.T) {
	local := newTestVault(t)
	os.WriteFile(filepath.Join(local.Root(), "a.md"), []byte("x"), 0o644)

	remote := newFakeObjectStore()
	remote.headErr = errors.New("timeout")

	res := NewReconciler(local, remote, zerolog.Nop()).Reconcile(context.Background())
	if res.Uploaded != 0 || res.Checked != 1 {
		t.Errorf("result = %+v, want nothing uploaded", res)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a/transcription.md": "text/markdown; charset=utf-8",
		"a/recording.webm":   "audio/webm",
		"x.MP3":              "audio/mpeg",
		"x.m4a":              "audio/mp4",
		"x.bin":              "application/octet-stream",
	}
	for in, want := range tests {
		if got := ContentTypeFor(in); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	if got := objectKey("", "a/b.md"); got != "vault/a/b.md" {
		t.Errorf("objectKey no prefix = %q", got)
	}
	if got := objectKey("backups", "a/b.md"); got != "backups/vault/a/b.md" {
		t.Errorf("objectKey prefix = %q", got)
	}
}
