package dups

import (
	"context"
	"io"
)

// PhotoHost is the remote photo service. The host is the sole source of
// truth; nothing read from it is cached between scans.
type PhotoHost interface {
	// AuthUser returns the account the credentials belong to. It fails with
	// ErrAuth when the credentials are rejected.
	AuthUser(ctx context.Context) (*User, error)

	// ListAlbums returns every album of the configured account.
	ListAlbums(ctx context.Context) ([]*Album, error)

	// ListAlbumImages returns every image currently in an album, with hash,
	// size, dates, URIs and GPS fields populated where the host has them.
	ListAlbumImages(ctx context.Context, albumID string) ([]*Image, error)

	// MoveImages moves images from their source albums into targetAlbumID in
	// a single request.
	MoveImages(ctx context.Context, targetAlbumID string, images []*Image) error

	// CreateAlbum creates a new album.
	CreateAlbum(ctx context.Context, spec AlbumSpec) (*Album, error)

	// DeleteImage permanently deletes an image.
	DeleteImage(ctx context.Context, img *Image) error

	// Download streams the resource at rawURL (an archived original or a
	// thumbnail) to w and returns the number of bytes written.
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}
