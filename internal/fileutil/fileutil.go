package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by StreamToFile when the source exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial file. Existing files are replaced.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// StreamToFile copies r into dst while hashing it, refusing sources larger
// than limit bytes (limit <= 0 disables the check). dst is removed on any
// failure. Returns the byte count and hex SHA256 of what was written.
func StreamToFile(dst string, r io.Reader, limit int64) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, "", fmt.Errorf("create directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = out.Close()
	}()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), src)
	if err != nil {
		_ = os.Remove(dst)
		return 0, "", err
	}
	if limit > 0 && written > limit {
		_ = os.Remove(dst)
		return 0, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return 0, "", err
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}
