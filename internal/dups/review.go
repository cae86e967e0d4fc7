package dups

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Default review album naming.
const (
	DefaultReviewPrefix    = "SmugDups Review"
	DefaultReviewURLPrefix = "SmugDups-review"
)

// ReviewNaming derives review album names from a date.
type ReviewNaming struct {
	Prefix    string // display name prefix
	URLPrefix string // URL name prefix; the host requires an upper-case first letter
}

// DefaultReviewNaming returns the built-in naming.
func DefaultReviewNaming() ReviewNaming {
	return ReviewNaming{Prefix: DefaultReviewPrefix, URLPrefix: DefaultReviewURLPrefix}
}

// Name returns the display name for t's date, e.g. "SmugDups Review 20240115".
func (n ReviewNaming) Name(t time.Time) string {
	return fmt.Sprintf("%s %s", n.Prefix, t.Format("20060102"))
}

// URLName returns the URL name for t's date, e.g. "SmugDups-review-20240115".
func (n ReviewNaming) URLName(t time.Time) string {
	return fmt.Sprintf("%s-%s", n.URLPrefix, t.Format("20060102"))
}

// IsReviewAlbum reports whether the album carries a review album name of any date.
func (n ReviewNaming) IsReviewAlbum(a *Album) bool {
	return strings.HasPrefix(fold(a.Name), fold(n.Prefix+" "))
}

// ReviewAlbums hands out the dated review album for a run. It creates at
// most one album per date, reusing an existing album of the same name.
type ReviewAlbums struct {
	host   PhotoHost
	naming ReviewNaming
	clock  Clock
	logger Logger

	mu     sync.Mutex
	byName map[string]*Album
}

// NewReviewAlbums creates a ReviewAlbums for one run.
func NewReviewAlbums(host PhotoHost, naming ReviewNaming, clock Clock, logger Logger) *ReviewAlbums {
	return &ReviewAlbums{
		host:   host,
		naming: naming,
		clock:  clock,
		logger: logger,
		byName: make(map[string]*Album),
	}
}

// Naming returns the naming scheme in use.
func (r *ReviewAlbums) Naming() ReviewNaming {
	return r.naming
}

// Ensure returns today's review album, looking it up or creating it on
// first use.
func (r *ReviewAlbums) Ensure(ctx context.Context) (*Album, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	name := r.naming.Name(now)
	if album, ok := r.byName[name]; ok {
		return album, nil
	}

	albums, err := r.host.ListAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up review album: %w", err)
	}
	want := fold(name)
	for _, a := range albums {
		if fold(a.Name) == want {
			r.logger.Info("reusing review album", "album", a.ID, "name", a.Name)
			r.byName[name] = a
			return a, nil
		}
	}

	album, err := r.host.CreateAlbum(ctx, AlbumSpec{
		Name:        name,
		URLName:     r.naming.URLName(now),
		Privacy:     "Unlisted",
		Description: fmt.Sprintf("Duplicate review album created %s", now.Format("2006-01-02 15:04")),
		Keywords:    []string{"SmugDups", "Duplicates", "Review"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating review album %q: %w", name, err)
	}
	r.logger.Info("created review album", "album", album.ID, "name", album.Name)
	r.byName[name] = album
	return album, nil
}

// Reset forgets looked-up albums so the next Ensure reads the host again.
func (r *ReviewAlbums) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*Album)
}
