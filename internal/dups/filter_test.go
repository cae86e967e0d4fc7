package dups_test

import (
	"testing"

	"smugdups/internal/dups"
)

func TestAlbumFilter_Match(t *testing.T) {
	filter := dups.NewAlbumFilter([]string{
		"# comments are ignored",
		"",
		"Screenshots",
		"tmp-*",
		"/Family/2019/*",
		"[bad",
	})

	tests := []struct {
		name  string
		album *dups.Album
		want  bool
	}{
		{"exact name", &dups.Album{Name: "Screenshots"}, true},
		{"name ignores case", &dups.Album{Name: "SCREENSHOTS"}, true},
		{"name glob", &dups.Album{Name: "tmp-upload"}, true},
		{"path glob", &dups.Album{Name: "Beach", URLPath: "/Family/2019/Beach"}, true},
		{"path glob ignores case", &dups.Album{Name: "Beach", URLPath: "/family/2019/beach"}, true},
		{"path does not match name pattern", &dups.Album{Name: "Beach", URLPath: "/Screenshots"}, false},
		{"other year", &dups.Album{Name: "Beach", URLPath: "/Family/2020/Beach"}, false},
		{"unrelated", &dups.Album{Name: "Holidays"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Match(tt.album); got != tt.want {
				t.Errorf("Match(%+v) = %v, want %v", tt.album, got, tt.want)
			}
		})
	}
}

func TestAlbumFilter_Empty(t *testing.T) {
	var nilFilter *dups.AlbumFilter
	if nilFilter.Match(&dups.Album{Name: "x"}) {
		t.Error("nil filter matched")
	}
	if dups.NewAlbumFilter(nil).Match(&dups.Album{Name: "x"}) {
		t.Error("empty filter matched")
	}
}
