package dups

import (
	"fmt"
	"time"
)

// GPS holds the coordinates the host recorded for an image.
type GPS struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Image is a snapshot of one image's metadata as listed in one album.
// Snapshots are taken per scan and never persisted.
type Image struct {
	ID           string
	Revision     int
	FileName     string
	Hash         string // lower-case hex MD5 of the original bytes
	Size         int64
	Date         time.Time
	WebURI       string
	ThumbnailURL string
	ArchivedURI  string
	Width        int
	Height       int
	GPS          *GPS
	AlbumID      string
	AlbumName    string
}

// HasGPS reports whether the image carries coordinates.
func (img *Image) HasGPS() bool {
	return img.GPS != nil && (img.GPS.Latitude != 0 || img.GPS.Longitude != 0)
}

// Pixels returns the original resolution in pixels, or 0 if unknown.
func (img *Image) Pixels() int64 {
	return int64(img.Width) * int64(img.Height)
}

// AlbumImageURI returns the source-album-relative URI the move endpoint expects.
func (img *Image) AlbumImageURI() string {
	return fmt.Sprintf("album/%s/image/%s-%d", img.AlbumID, img.ID, img.Revision)
}

func (img *Image) String() string {
	return fmt.Sprintf("%s (%s in %s)", img.FileName, img.ID, img.AlbumID)
}

// Album describes a container of images on the host.
type Album struct {
	ID         string
	Name       string
	URLName    string
	URLPath    string
	ImageCount int
	WebURI     string
	NodeID     string
	Privacy    string
}

// AlbumSpec describes an album to be created.
type AlbumSpec struct {
	Name        string
	URLName     string
	Privacy     string
	Description string
	Keywords    []string
}

// User is the account the credentials belong to.
type User struct {
	Name     string
	NickName string
}
