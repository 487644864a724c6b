package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestVault(t *testing.T) *LocalVault {
	t.Helper()
	v, err := NewLocalVault(filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("NewLocalVault: %v", err)
	}
	return v
}

func TestLocalVaultFolders(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	ok, err := v.FolderExists(ctx, "scribed/2025-03-14 0930")
	if err != nil || ok {
		t.Fatalf("FolderExists before create = %v, %v; want false, nil", ok, err)
	}
	if err := v.CreateFolder(ctx, "scribed/2025-03-14 0930"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if err := v.CreateFolder(ctx, "scribed/2025-03-14 0930"); err != nil {
		t.Fatalf("CreateFolder twice: %v", err)
	}
	ok, err = v.FolderExists(ctx, "scribed/2025-03-14 0930")
	if err != nil || !ok {
		t.Fatalf("FolderExists after create = %v, %v; want true, nil", ok, err)
	}
	// A folder is not a file.
	if ok, _ := v.FileExists(ctx, "scribed"); ok {
		t.Error("FileExists(folder) = true, want false")
	}
}

func TestLocalVaultCreateIsExclusive(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	if err := v.CreateTextFile(ctx, "note.md", "first"); err != nil {
		t.Fatalf("CreateTextFile: %v", err)
	}
	err := v.CreateTextFile(ctx, "note.md", "second")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second create err = %v, want ErrExists", err)
	}
	got, err := v.ReadTextFile(ctx, "note.md")
	if err != nil {
		t.Fatalf("ReadTextFile: %v", err)
	}
	if got != "first" {
		t.Errorf("content = %q, want first", got)
	}

	entries, _ := os.ReadDir(v.Root())
	for _, e := range entries {
		if e.Name() != "note.md" {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}

func TestLocalVaultBinaryAndOverwrite(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	if err := v.CreateFolder(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	audio := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00}
	if err := v.CreateBinaryFile(ctx, "a/recording.webm", audio); err != nil {
		t.Fatalf("CreateBinaryFile: %v", err)
	}
	data, err := v.ReadFile("a/recording.webm")
	if err != nil || string(data) != string(audio) {
		t.Fatalf("ReadFile = %v, %v", data, err)
	}

	if err := v.CreateTextFile(ctx, "daily.md", "old"); err != nil {
		t.Fatal(err)
	}
	if err := v.OverwriteTextFile(ctx, "daily.md", "new"); err != nil {
		t.Fatalf("OverwriteTextFile: %v", err)
	}
	got, _ := v.ReadTextFile(ctx, "daily.md")
	if got != "new" {
		t.Errorf("content = %q, want new", got)
	}
}

func TestLocalVaultReadMissing(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ReadTextFile(context.Background(), "missing.md")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalVaultResolve(t *testing.T) {
	v := newTestVault(t)
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"scribed/x/transcription.md", filepath.Join(v.Root(), "scribed", "x", "transcription.md"), false},
		{"/2025-03-14.md", filepath.Join(v.Root(), "2025-03-14.md"), false},
		{".", v.Root(), false},
		{"../outside.md", "", true},
		{"a/../../b", "", true},
	}
	for _, tt := range tests {
		got, err := v.Resolve(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalVaultWalkSkipsTemp(t *testing.T) {
	v := newTestVault(t)
	os.WriteFile(filepath.Join(v.Root(), "keep.md"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(v.Root(), tempPrefix+"123.tmp"), []byte("x"), 0o644)

	var seen []string
	if err := v.Walk(func(p string) error {
		seen = append(seen, p)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "keep.md" {
		t.Errorf("Walk saw %v, want [keep.md]", seen)
	}
}
