package spool

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"smugdups/internal/dups"
)

// fsStore keeps spooled content as files named by checksum.
//
// Directory structure:
//
//	<spool_dir>/
//	  files/
//	    <md5>          (spooled content)
//	  tmp/             (downloads in progress)
type fsStore struct {
	filesDir string
	tmpDir   string
}

// NewFileSystemSpool creates a spool under spoolDir holding at most maxSize
// bytes. Leftovers from an interrupted run are cleared.
func NewFileSystemSpool(spoolDir string, maxSize int64) (dups.Spool, error) {
	filesDir := filepath.Join(spoolDir, "files")
	tmpDir := filepath.Join(spoolDir, "tmp")

	for _, dir := range []string{filesDir, tmpDir} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear spool directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
	}

	return newSpool(&fsStore{filesDir: filesDir, tmpDir: tmpDir}, maxSize), nil
}

func (f *fsStore) StoreContent(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(f.tmpDir, "download-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}

	checksum := hex.EncodeToString(h.Sum(nil))
	dst := filepath.Join(f.filesDir, checksum)
	if _, err := os.Stat(dst); err == nil {
		return checksum, size, nil
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", 0, fmt.Errorf("moving spooled content into place: %w", err)
	}
	return checksum, size, nil
}

func (f *fsStore) RemoveContent(checksum string) {
	os.Remove(filepath.Join(f.filesDir, checksum))
}

func (f *fsStore) OpenContent(checksum string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(f.filesDir, checksum))
	if err != nil {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return file, nil
}

func (f *fsStore) ContentSize() (int64, error) {
	entries, err := os.ReadDir(f.filesDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
