package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PublishFile copies src to dst so that readers never observe a partial
// file. Data goes to a hidden sibling of dst, which is read back and compared
// by SHA-256 against what was read from src before being synced and renamed
// over dst. Returns the number of bytes published.
func PublishFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("ensure destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-ops once the rename succeeded.
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	want := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(in, want))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	got := sha256.New()
	if _, err := io.Copy(got, tmp); err != nil {
		return 0, fmt.Errorf("verify temp file: %w", err)
	}
	if !bytes.Equal(want.Sum(nil), got.Sum(nil)) {
		return 0, fmt.Errorf("publish %s: written data does not match source", dst)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	syncDir(dir)
	return written, nil
}

// syncDir flushes the directory entry for a rename. Some filesystems reject
// fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
