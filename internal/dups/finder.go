package dups

import (
	"context"
	"errors"
	"fmt"
)

// AlbumFailure records an album whose images could not be fetched.
type AlbumFailure struct {
	AlbumID string
	Op      string
	Err     error
}

// ScanResult is the outcome of a scan. When Cancelled is set, Groups holds
// exactly the groups computable from AlbumsScanned.
type ScanResult struct {
	Groups        []*DuplicateGroup
	AlbumsScanned []string
	Excluded      []string
	ImagesScanned int
	Failures      []AlbumFailure
	Cancelled     bool
}

// ScanRequest selects the albums to scan.
type ScanRequest struct {
	AlbumIDs []string
	Progress ProgressFunc
	Stop     StopFunc
}

// Finder fetches image metadata for albums and groups duplicates.
type Finder struct {
	host   PhotoHost
	scorer *Scorer
	filter *AlbumFilter
	naming ReviewNaming
	logger Logger
}

// NewFinder creates a Finder. filter may be nil. Review albums named by
// naming are never scanned.
func NewFinder(host PhotoHost, scorer *Scorer, filter *AlbumFilter, naming ReviewNaming, logger Logger) *Finder {
	if scorer == nil {
		scorer = NewScorer()
	}
	return &Finder{
		host:   host,
		scorer: scorer,
		filter: filter,
		naming: naming,
		logger: logger,
	}
}

// Scan fetches every image of the requested albums and groups them by
// content hash. A failure on one album is recorded and the scan moves on;
// an authentication failure aborts the scan.
func (f *Finder) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	ids := uniqueIDs(req.AlbumIDs)
	res := &ScanResult{}

	known, err := f.albumIndex(ctx)
	if err != nil {
		return nil, err
	}

	var images []*Image
	for i, id := range ids {
		if stopRequested(ctx, req.Stop) {
			res.Cancelled = true
			break
		}
		reportProgress(req.Progress, Progress{
			Phase:   PhaseScan,
			Done:    i,
			Total:   len(ids),
			Message: fmt.Sprintf("Scanning album %d of %d", i+1, len(ids)),
		})

		album := known[id]
		if known != nil && album == nil {
			res.Failures = append(res.Failures, AlbumFailure{
				AlbumID: id,
				Op:      "resolve album",
				Err:     fmt.Errorf("album %s: %w", id, ErrNotFound),
			})
			continue
		}
		if album != nil && (f.naming.IsReviewAlbum(album) || f.filter.Match(album)) {
			f.logger.Debug("album excluded", "album", id, "name", album.Name)
			res.Excluded = append(res.Excluded, id)
			continue
		}

		albumImages, err := f.host.ListAlbumImages(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			if errors.Is(err, ErrAuth) {
				return nil, fmt.Errorf("scanning album %s: %w", id, err)
			}
			f.logger.Warn("album scan failed", "album", id, "error", err)
			res.Failures = append(res.Failures, AlbumFailure{AlbumID: id, Op: "list album images", Err: err})
			continue
		}

		for _, img := range albumImages {
			if img.AlbumID == "" {
				img.AlbumID = id
			}
			if album != nil && img.AlbumName == "" {
				img.AlbumName = album.Name
			}
		}
		images = append(images, albumImages...)
		res.AlbumsScanned = append(res.AlbumsScanned, id)
		res.ImagesScanned += len(albumImages)
		f.logger.Debug("album scanned", "album", id, "images", len(albumImages))
	}

	reportProgress(req.Progress, Progress{Phase: PhaseGroup, Done: len(res.AlbumsScanned), Total: len(ids), Message: "Analyzing duplicates"})
	res.Groups = GroupImages(images, f.scorer)

	f.logger.Info("scan complete",
		"albums", len(res.AlbumsScanned),
		"images", res.ImagesScanned,
		"groups", len(res.Groups),
		"failures", len(res.Failures),
		"cancelled", res.Cancelled,
	)
	reportProgress(req.Progress, Progress{
		Phase:   PhaseDone,
		Done:    len(ids),
		Total:   len(ids),
		Message: fmt.Sprintf("Found %d duplicate groups", len(res.Groups)),
	})
	return res, nil
}

// albumIndex lists the account's albums keyed by ID. It returns a nil map
// (and no error) when the listing fails for a reason other than
// authentication, so the scan can still proceed by ID.
func (f *Finder) albumIndex(ctx context.Context) (map[string]*Album, error) {
	albums, err := f.host.ListAlbums(ctx)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, fmt.Errorf("listing albums: %w", err)
		}
		f.logger.Warn("album listing failed, scanning without names", "error", err)
		return nil, nil
	}
	index := make(map[string]*Album, len(albums))
	for _, a := range albums {
		index[a.ID] = a
	}
	return index, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
