package smugmug

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"smugdups/internal/dups"
)

const (
	albumFields = "AlbumKey,Name,Title,UrlName,UrlPath,ImageCount,WebUri,NodeID,Privacy"
	imageFields = "ImageKey,FileName,ArchivedMD5,ArchivedSize,Date,DateTimeOriginal,WebUri,ThumbnailUrl," +
		"ArchivedUri,Latitude,Longitude,Altitude,OriginalWidth,OriginalHeight,Uri"
)

// userCache remembers the account name once known.
type userCache struct {
	mu   sync.Mutex
	name string
}

// AuthUser returns the account the credentials belong to.
func (c *Client) AuthUser(ctx context.Context) (*dups.User, error) {
	var out userResponse
	err := c.call(ctx, request{
		op:     "auth user",
		method: http.MethodGet,
		url:    c.endpoint("!authuser", nil),
	}, &out)
	if err != nil {
		return nil, err
	}
	c.user.mu.Lock()
	if c.user.name == "" {
		c.user.name = out.User.Name
	}
	c.user.mu.Unlock()
	return &dups.User{Name: out.User.Name, NickName: out.User.NickName}, nil
}

func (c *Client) userName(ctx context.Context) (string, error) {
	c.user.mu.Lock()
	name := c.user.name
	c.user.mu.Unlock()
	if name != "" {
		return name, nil
	}
	u, err := c.AuthUser(ctx)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

// ListAlbums returns every album of the account, following pagination.
func (c *Client) ListAlbums(ctx context.Context) ([]*dups.Album, error) {
	user, err := c.userName(ctx)
	if err != nil {
		return nil, err
	}
	var albums []*dups.Album
	err = c.paginate(ctx, "list albums", user, "user/"+user+"!albums", albumFields, func(raw []byte) (int, *pages, error) {
		var page albumsResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, nil, err
		}
		for _, a := range page.Album {
			albums = append(albums, a.toAlbum())
		}
		return len(page.Album), page.Pages, nil
	})
	if err != nil {
		return nil, err
	}
	return albums, nil
}

// GetAlbum returns one album.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (*dups.Album, error) {
	var out albumResponse
	err := c.call(ctx, request{
		op:       "get album",
		resource: albumID,
		method:   http.MethodGet,
		url:      c.endpoint("album/"+albumID, url.Values{"_filter": {albumFields}}),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Album.toAlbum(), nil
}

// ListAlbumImages returns every image in an album, following pagination.
func (c *Client) ListAlbumImages(ctx context.Context, albumID string) ([]*dups.Image, error) {
	var images []*dups.Image
	err := c.paginate(ctx, "list album images", albumID, "album/"+albumID+"!images", imageFields, func(raw []byte) (int, *pages, error) {
		var page albumImagesResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, nil, err
		}
		for _, w := range page.AlbumImage {
			if w.ImageKey == "" {
				continue
			}
			images = append(images, w.toImage(albumID))
		}
		return len(page.AlbumImage), page.Pages, nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// CreateAlbum creates an album at the root of the account.
func (c *Client) CreateAlbum(ctx context.Context, spec dups.AlbumSpec) (*dups.Album, error) {
	user, err := c.userName(ctx)
	if err != nil {
		return nil, err
	}
	privacy := spec.Privacy
	if privacy == "" {
		privacy = "Unlisted"
	}
	body, err := jsonBody(createAlbumRequest{
		Name:          spec.Name,
		URLName:       spec.URLName,
		Privacy:       privacy,
		Description:   spec.Description,
		Keywords:      strings.Join(spec.Keywords, ","),
		SortMethod:    "Date Uploaded",
		SortDirection: "Descending",
	})
	if err != nil {
		return nil, err
	}

	var out albumResponse
	err = c.call(ctx, request{
		op:       "create album",
		resource: spec.Name,
		method:   http.MethodPost,
		url:      c.endpoint("folder/user/"+user+"!albums", nil),
		body:     body,
	}, &out)
	if err != nil {
		return nil, err
	}
	album := out.Album.toAlbum()
	if album.Name == "" {
		album.Name = spec.Name
	}
	if album.URLName == "" {
		album.URLName = spec.URLName
	}
	return album, nil
}

// paginate fetches path page by page until a page carries no NextPage. A
// page that does not move past the previous start is an error. handle
// decodes one Response and returns the number of items it held and the page
// info.
func (c *Client) paginate(ctx context.Context, op, resource, path, fields string, handle func(raw []byte) (int, *pages, error)) error {
	start := 1
	for {
		query := url.Values{
			"start":   {strconv.Itoa(start)},
			"count":   {strconv.Itoa(c.cfg.PageSize)},
			"_filter": {fields},
		}
		var raw json.RawMessage
		err := c.call(ctx, request{
			op:       op,
			resource: resource,
			method:   http.MethodGet,
			url:      c.endpoint(path, query),
		}, &raw)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		n, pg, err := handle(raw)
		if err != nil {
			return &dups.APIError{Op: op, Resource: resource, Message: "decode response", Err: err}
		}
		if n == 0 || pg == nil || pg.NextPage == "" {
			return nil
		}
		next := start + n
		if pg.Start > 0 {
			next = pg.Start + n
		}
		if next <= start {
			return &dups.APIError{Op: op, Resource: resource, Message: fmt.Sprintf("page at start %d did not advance", start)}
		}
		start = next
	}
}
