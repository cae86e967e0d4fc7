package smugmug

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"smugdups/internal/dups"
)

// MoveImages moves images into targetAlbumID with one moveimages request.
// Each image is addressed by its source-album-relative URI.
func (c *Client) MoveImages(ctx context.Context, targetAlbumID string, images []*dups.Image) error {
	if len(images) == 0 {
		return nil
	}
	uris := make([]string, 0, len(images))
	for _, img := range images {
		if img.AlbumID == "" {
			return fmt.Errorf("move image %s: source album unknown", img.ID)
		}
		uris = append(uris, "/api/v2/"+img.AlbumImageURI())
	}
	body, err := jsonBody(moveImagesRequest{MoveUris: strings.Join(uris, ",")})
	if err != nil {
		return err
	}
	return c.call(ctx, request{
		op:       "move images",
		resource: targetAlbumID,
		method:   http.MethodPost,
		url:      c.endpoint("album/"+targetAlbumID+"!moveimages", nil),
		body:     body,
	}, nil)
}

// DeleteImage permanently deletes an image.
func (c *Client) DeleteImage(ctx context.Context, img *dups.Image) error {
	return c.call(ctx, request{
		op:       "delete image",
		resource: img.ID,
		method:   http.MethodDelete,
		url:      c.endpoint("image/"+img.ID, nil),
	}, nil)
}

// Download streams the resource at rawURL to w. Relative URLs resolve
// against the API base.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return 0, &dups.APIError{Op: "download", Resource: rawURL, Message: "parse url", Err: err}
	}
	resp, err := c.send(ctx, request{
		op:       "download",
		resource: rawURL,
		method:   http.MethodGet,
		url:      c.baseURL.ResolveReference(ref),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, err
		}
		return n, &dups.APIError{Kind: dups.ErrNetwork, Op: "download", Resource: rawURL, Err: err}
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, &dups.APIError{Kind: dups.ErrNetwork, Op: "download", Resource: rawURL,
			Message: fmt.Sprintf("short body: %d of %d bytes", n, resp.ContentLength)}
	}
	return n, nil
}
