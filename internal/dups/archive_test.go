package dups_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"smugdups/internal/dups"
	"smugdups/internal/encryption"
	"smugdups/internal/testutil"
)

func TestArchiver_ArchiveAndRestore(t *testing.T) {
	ctx := context.Background()
	host := testutil.NewMockPhotoHost()
	host.AddAlbum("A", "Holidays")
	content := []byte("original image bytes")
	img := host.AddImage("A", &dups.Image{ID: "img1", FileName: "beach.jpg", AlbumName: "Holidays"}, content)

	archiver, v := newArchiver(host)

	hash, err := archiver.Archive(ctx, img)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if hash != testutil.MD5Hex(content) {
		t.Errorf("Archive() hash = %s, want %s", hash, testutil.MD5Hex(content))
	}

	var stored bytes.Buffer
	if err := v.GetContent(hash, &stored); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if bytes.Equal(stored.Bytes(), content) {
		t.Error("vault holds plaintext")
	}

	m, err := archiver.Manifest("img1")
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if m.FileName != "beach.jpg" || m.AlbumID != "A" || m.Hash != hash || m.Size != int64(len(content)) {
		t.Errorf("manifest = %+v", m)
	}
	if !m.ArchivedAt.Equal(testutil.FixedClock().Now()) {
		t.Errorf("ArchivedAt = %v", m.ArchivedAt)
	}

	var restored bytes.Buffer
	n, err := archiver.Restore(hash, &restored, &encryption.TestDecryptionContext{})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != int64(len(content)) || !bytes.Equal(restored.Bytes(), content) {
		t.Errorf("Restore() = %q, want %q", restored.Bytes(), content)
	}
}

func TestArchiver_SkipsDownloadWhenArchived(t *testing.T) {
	ctx := context.Background()
	host := testutil.NewMockPhotoHost()
	host.AddAlbum("A", "Holidays")
	host.AddAlbum("B", "Family")
	first := host.AddImage("A", &dups.Image{ID: "img1"}, []byte("same"))
	second := host.AddImage("B", &dups.Image{ID: "img2"}, []byte("same"))

	archiver, _ := newArchiver(host)
	if _, err := archiver.Archive(ctx, first); err != nil {
		t.Fatalf("Archive(first) error = %v", err)
	}
	if _, err := archiver.Archive(ctx, second); err != nil {
		t.Fatalf("Archive(second) error = %v", err)
	}
	if n := host.CallCount(testutil.OpDownload); n != 1 {
		t.Errorf("Download calls = %d, want 1", n)
	}
	if _, err := archiver.Manifest("img2"); err != nil {
		t.Errorf("Manifest(img2) error = %v", err)
	}
}

func TestArchiver_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("hash mismatch", func(t *testing.T) {
		host := testutil.NewMockPhotoHost()
		host.AddAlbum("A", "Holidays")
		img := host.AddImage("A", &dups.Image{ID: "img1"}, []byte("expected"))
		host.SetContent(img.ArchivedURI, []byte("something else"))
		archiver, v := newArchiver(host)

		_, err := archiver.Archive(ctx, img)
		if !errors.Is(err, dups.ErrHashMismatch) {
			t.Fatalf("Archive() error = %v, want ErrHashMismatch", err)
		}
		if has, _ := v.HasContent(img.Hash); has {
			t.Error("mismatched content stored")
		}
	})

	t.Run("download failure", func(t *testing.T) {
		host := testutil.NewMockPhotoHost()
		host.AddAlbum("A", "Holidays")
		img := host.AddImage("A", &dups.Image{ID: "img1"}, []byte("data"))
		host.FailOn(testutil.OpDownload, "", dups.ErrNetwork)
		archiver, _ := newArchiver(host)

		if _, err := archiver.Archive(ctx, img); !errors.Is(err, dups.ErrNetwork) {
			t.Errorf("Archive() error = %v, want ErrNetwork", err)
		}
	})

	t.Run("no download URL", func(t *testing.T) {
		host := testutil.NewMockPhotoHost()
		archiver, _ := newArchiver(host)
		if _, err := archiver.Archive(ctx, &dups.Image{ID: "img1", Hash: "abc"}); err == nil {
			t.Error("Archive() error = nil, want error")
		}
	})

	t.Run("restore of missing content", func(t *testing.T) {
		archiver, _ := newArchiver(testutil.NewMockPhotoHost())
		var out bytes.Buffer
		if _, err := archiver.Restore("0123456789abcdef0123456789abcdef", &out, &encryption.TestDecryptionContext{}); err == nil {
			t.Error("Restore() error = nil, want error")
		}
		if out.Len() != 0 {
			t.Error("Restore() wrote output on failure")
		}
	})
}
