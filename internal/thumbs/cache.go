// Package thumbs keeps preview thumbnails in a temporary directory for the
// lifetime of a process.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"smugdups/internal/dups"
)

// Cache downloads thumbnails on first use and serves them from disk after.
// Concurrent requests for the same image share one download.
//
// Directory structure:
//
//	<tmp>/smugdups-thumbs-*/
//	  <image id><ext>
type Cache struct {
	host   dups.PhotoHost
	dir    string
	logger dups.Logger
	group  singleflight.Group
}

// New creates a Cache in a fresh temporary directory under parent (the
// system temp dir when empty).
func New(host dups.PhotoHost, parent string, logger dups.Logger) (*Cache, error) {
	dir, err := os.MkdirTemp(parent, "smugdups-thumbs-*")
	if err != nil {
		return nil, fmt.Errorf("creating thumbnail directory: %w", err)
	}
	return &Cache{host: host, dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the local path of img's thumbnail, downloading it if needed.
func (c *Cache) Path(ctx context.Context, img *dups.Image) (string, error) {
	if img.ThumbnailURL == "" {
		return "", fmt.Errorf("image %s has no thumbnail: %w", img.ID, dups.ErrNotFound)
	}
	name, err := fileName(img)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(c.dir, name)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	// The shared download outlives any single caller; each caller only
	// stops waiting when its own ctx ends.
	ch := c.group.DoChan(name, func() (any, error) {
		if _, err := os.Stat(dst); err == nil {
			return nil, nil
		}
		return nil, c.download(context.WithoutCancel(ctx), img, dst)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return dst, nil
	}
}

func (c *Cache) download(ctx context.Context, img *dups.Image, dst string) error {
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("creating thumbnail file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := c.host.Download(ctx, img.ThumbnailURL, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloading thumbnail of %s: %w", img.ID, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("storing thumbnail of %s: %w", img.ID, err)
	}
	c.logger.Debug("thumbnail cached", "image", img.ID, "bytes", n)
	return nil
}

// Close removes the cache directory and everything in it.
func (c *Cache) Close() error {
	return os.RemoveAll(c.dir)
}

func fileName(img *dups.Image) (string, error) {
	if img.ID == "" || strings.ContainsAny(img.ID, `/\`) || img.ID == "." || img.ID == ".." {
		return "", errors.New("invalid image id for thumbnail")
	}
	ext := strings.ToLower(path.Ext(strings.SplitN(img.ThumbnailURL, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		ext = ".jpg"
	}
	return img.ID + ext, nil
}
