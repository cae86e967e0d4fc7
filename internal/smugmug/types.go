package smugmug

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"smugdups/internal/dups"
)

// envelope is the wrapper around every API response.
type envelope struct {
	Code     int             `json:"Code"`
	Message  string          `json:"Message"`
	Response json.RawMessage `json:"Response"`
}

type pages struct {
	Total          int    `json:"Total"`
	Start          int    `json:"Start"`
	Count          int    `json:"Count"`
	RequestedCount int    `json:"RequestedCount"`
	NextPage       string `json:"NextPage"`
}

type userResponse struct {
	User wireUser `json:"User"`
}

type wireUser struct {
	Name     string `json:"Name"`
	NickName string `json:"NickName"`
}

type albumsResponse struct {
	Album []wireAlbum `json:"Album"`
	Pages *pages      `json:"Pages"`
}

type albumResponse struct {
	Album wireAlbum `json:"Album"`
}

type wireAlbum struct {
	AlbumKey   string `json:"AlbumKey"`
	Name       string `json:"Name"`
	Title      string `json:"Title"`
	URLName    string `json:"UrlName"`
	URLPath    string `json:"UrlPath"`
	ImageCount int    `json:"ImageCount"`
	WebURI     string `json:"WebUri"`
	NodeID     string `json:"NodeID"`
	Privacy    string `json:"Privacy"`
}

func (a wireAlbum) toAlbum() *dups.Album {
	name := a.Name
	if name == "" {
		name = a.Title
	}
	return &dups.Album{
		ID:         a.AlbumKey,
		Name:       name,
		URLName:    a.URLName,
		URLPath:    a.URLPath,
		ImageCount: a.ImageCount,
		WebURI:     a.WebURI,
		NodeID:     a.NodeID,
		Privacy:    a.Privacy,
	}
}

type albumImagesResponse struct {
	AlbumImage []wireImage `json:"AlbumImage"`
	Pages      *pages      `json:"Pages"`
}

type wireImage struct {
	ImageKey         string    `json:"ImageKey"`
	FileName         string    `json:"FileName"`
	ArchivedMD5      string    `json:"ArchivedMD5"`
	ArchivedSize     int64     `json:"ArchivedSize"`
	Date             string    `json:"Date"`
	DateTimeOriginal string    `json:"DateTimeOriginal"`
	WebURI           string    `json:"WebUri"`
	ThumbnailURL     string    `json:"ThumbnailUrl"`
	ArchivedURI      string    `json:"ArchivedUri"`
	URI              string    `json:"Uri"`
	Latitude         flexFloat `json:"Latitude"`
	Longitude        flexFloat `json:"Longitude"`
	Altitude         flexFloat `json:"Altitude"`
	OriginalWidth    int       `json:"OriginalWidth"`
	OriginalHeight   int       `json:"OriginalHeight"`
}

func (w wireImage) toImage(albumID string) *dups.Image {
	img := &dups.Image{
		ID:           w.ImageKey,
		Revision:     revision(w.URI),
		FileName:     w.FileName,
		Hash:         strings.ToLower(strings.TrimSpace(w.ArchivedMD5)),
		Size:         w.ArchivedSize,
		Date:         parseDate(w.DateTimeOriginal),
		WebURI:       w.WebURI,
		ThumbnailURL: w.ThumbnailURL,
		ArchivedURI:  w.ArchivedURI,
		Width:        w.OriginalWidth,
		Height:       w.OriginalHeight,
		AlbumID:      albumID,
	}
	if img.Date.IsZero() {
		img.Date = parseDate(w.Date)
	}
	if w.Latitude != 0 || w.Longitude != 0 {
		img.GPS = &dups.GPS{
			Latitude:  float64(w.Latitude),
			Longitude: float64(w.Longitude),
			Altitude:  float64(w.Altitude),
		}
	}
	return img
}

// revision extracts N from an AlbumImage URI ending in "<key>-N".
func revision(uri string) int {
	uri = strings.TrimSuffix(uri, "/")
	i := strings.LastIndex(uri, "-")
	if i < 0 || strings.LastIndex(uri, "/") > i {
		return 0
	}
	n, err := strconv.Atoi(uri[i+1:])
	if err != nil {
		return 0
	}
	return n
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// flexFloat accepts a JSON number, a numeric string or null. The API sends
// coordinates as strings and altitude as a number.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type moveImagesRequest struct {
	MoveUris string `json:"MoveUris"`
}

type createAlbumRequest struct {
	Name          string `json:"Name"`
	URLName       string `json:"UrlName"`
	Privacy       string `json:"Privacy"`
	Description   string `json:"Description,omitempty"`
	Keywords      string `json:"Keywords,omitempty"`
	SortMethod    string `json:"SortMethod"`
	SortDirection string `json:"SortDirection"`
}
