package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"smugdups/internal/dups"
)

// Operation names accepted by MockPhotoHost.FailOn.
const (
	OpAuthUser        = "AuthUser"
	OpListAlbums      = "ListAlbums"
	OpListAlbumImages = "ListAlbumImages"
	OpMoveImages      = "MoveImages"
	OpCreateAlbum     = "CreateAlbum"
	OpDeleteImage     = "DeleteImage"
	OpDownload        = "Download"
)

type failure struct {
	op  string
	key string
	err error
}

// MockPhotoHost is an in-memory photo host for testing. Albums and images
// behave like the real service: moves relocate images, deletes remove them
// and listings reflect the current state. Failures can be injected per
// operation and key.
type MockPhotoHost struct {
	mu       sync.Mutex
	user     *dups.User
	albums   []*dups.Album
	images   map[string][]*dups.Image // album ID -> images
	content  map[string][]byte        // URL -> bytes
	failures []failure
	ignored  map[string]bool // op/imageID pairs that report success without effect
	calls    []string
	nextID   int

	// BeforeCall, when set, runs at the start of every call with the
	// operation name and its key (album or image ID, or URL).
	BeforeCall func(op, key string)
}

// NewMockPhotoHost creates an empty host for user "tester".
func NewMockPhotoHost() *MockPhotoHost {
	return &MockPhotoHost{
		user:    &dups.User{Name: "tester", NickName: "tester"},
		images:  make(map[string][]*dups.Image),
		content: make(map[string][]byte),
		ignored: make(map[string]bool),
	}
}

// AddAlbum adds an album and returns it.
func (m *MockPhotoHost) AddAlbum(id, name string) *dups.Album {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &dups.Album{ID: id, Name: name, URLName: name, URLPath: "/" + name}
	m.albums = append(m.albums, a)
	return a
}

// AddImage places a copy of img in albumID. When content is given it is
// served as the image's original and img.Hash and img.Size are derived from it.
func (m *MockPhotoHost) AddImage(albumID string, img *dups.Image, content []byte) *dups.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *img
	c.AlbumID = albumID
	if content != nil {
		c.Hash = MD5Hex(content)
		c.Size = int64(len(content))
		c.ArchivedURI = "mock://originals/" + c.ID
		m.content[c.ArchivedURI] = content
	}
	m.images[albumID] = append(m.images[albumID], &c)
	return &c
}

// SetContent serves data at url through Download.
func (m *MockPhotoHost) SetContent(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[url] = data
}

// FailOn makes every call of op with the given key return err. An empty key
// matches any call of op.
func (m *MockPhotoHost) FailOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{op: op, key: key, err: err})
}

// ClearFailures removes every injected failure.
func (m *MockPhotoHost) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// IgnoreMove makes moves of imageID report success without moving it.
func (m *MockPhotoHost) IgnoreMove(imageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[OpMoveImages+"/"+imageID] = true
}

// IgnoreDelete makes deletes of imageID report success without deleting it.
func (m *MockPhotoHost) IgnoreDelete(imageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[OpDeleteImage+"/"+imageID] = true
}

// Calls returns the calls made so far as "Op key" strings.
func (m *MockPhotoHost) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times op was called.
func (m *MockPhotoHost) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if len(c) >= len(op) && c[:len(op)] == op && (len(c) == len(op) || c[len(op)] == ' ') {
			n++
		}
	}
	return n
}

// AlbumImageIDs returns the IDs currently in albumID.
func (m *MockPhotoHost) AlbumImageIDs(albumID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, img := range m.images[albumID] {
		ids = append(ids, img.ID)
	}
	return ids
}

// Albums returns the current albums.
func (m *MockPhotoHost) Albums() []*dups.Album {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*dups.Album(nil), m.albums...)
}

func (m *MockPhotoHost) enter(op, key string) error {
	m.mu.Lock()
	m.calls = append(m.calls, op+" "+key)
	hook := m.BeforeCall
	var err error
	for _, f := range m.failures {
		if f.op == op && (f.key == "" || f.key == key) {
			err = f.err
			break
		}
	}
	m.mu.Unlock()

	if hook != nil {
		hook(op, key)
	}
	return err
}

func notFound(op, key string) error {
	return &dups.APIError{Kind: dups.ErrNotFound, Op: op, Resource: key, Status: 404, Message: "Not Found"}
}

func (m *MockPhotoHost) AuthUser(ctx context.Context) (*dups.User, error) {
	if err := m.enter(OpAuthUser, ""); err != nil {
		return nil, err
	}
	u := *m.user
	return &u, nil
}

func (m *MockPhotoHost) ListAlbums(ctx context.Context) ([]*dups.Album, error) {
	if err := m.enter(OpListAlbums, ""); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*dups.Album, 0, len(m.albums))
	for _, a := range m.albums {
		c := *a
		c.ImageCount = len(m.images[a.ID])
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockPhotoHost) ListAlbumImages(ctx context.Context, albumID string) ([]*dups.Image, error) {
	if err := m.enter(OpListAlbumImages, albumID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.album(albumID) == nil {
		return nil, notFound("list album images", albumID)
	}
	out := make([]*dups.Image, 0, len(m.images[albumID]))
	for _, img := range m.images[albumID] {
		c := *img
		c.AlbumName = ""
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockPhotoHost) MoveImages(ctx context.Context, targetAlbumID string, images []*dups.Image) error {
	if err := m.enter(OpMoveImages, targetAlbumID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.album(targetAlbumID) == nil {
		return notFound("move images", targetAlbumID)
	}
	for _, img := range images {
		for _, f := range m.failures {
			if f.op == OpMoveImages && f.key == img.ID {
				return f.err
			}
		}
		if m.ignored[OpMoveImages+"/"+img.ID] {
			continue
		}
		moved, ok := m.take(img.AlbumID, img.ID)
		if !ok {
			return notFound("move images", img.AlbumImageURI())
		}
		moved.AlbumID = targetAlbumID
		m.images[targetAlbumID] = append(m.images[targetAlbumID], moved)
	}
	return nil
}

func (m *MockPhotoHost) CreateAlbum(ctx context.Context, spec dups.AlbumSpec) (*dups.Album, error) {
	if err := m.enter(OpCreateAlbum, spec.Name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a := &dups.Album{
		ID:      fmt.Sprintf("created-%d", m.nextID),
		Name:    spec.Name,
		URLName: spec.URLName,
		URLPath: "/" + spec.URLName,
		Privacy: spec.Privacy,
	}
	m.albums = append(m.albums, a)
	c := *a
	return &c, nil
}

func (m *MockPhotoHost) DeleteImage(ctx context.Context, img *dups.Image) error {
	if err := m.enter(OpDeleteImage, img.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignored[OpDeleteImage+"/"+img.ID] {
		return nil
	}
	if _, ok := m.take(img.AlbumID, img.ID); !ok {
		return notFound("delete image", img.ID)
	}
	return nil
}

func (m *MockPhotoHost) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	if err := m.enter(OpDownload, rawURL); err != nil {
		return 0, err
	}
	m.mu.Lock()
	data, ok := m.content[rawURL]
	m.mu.Unlock()
	if !ok {
		return 0, notFound("download", rawURL)
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (m *MockPhotoHost) album(id string) *dups.Album {
	for _, a := range m.albums {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *MockPhotoHost) take(albumID, imageID string) (*dups.Image, bool) {
	list := m.images[albumID]
	for i, img := range list {
		if img.ID == imageID {
			m.images[albumID] = append(list[:i:i], list[i+1:]...)
			return img, true
		}
	}
	return nil, false
}
