package dups

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Manifest describes one archived original. It is stored next to the
// encrypted content as "images/<id>.json".
type Manifest struct {
	ImageID    string    `json:"image_id"`
	FileName   string    `json:"file_name"`
	AlbumID    string    `json:"album_id"`
	AlbumName  string    `json:"album_name"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	WebURI     string    `json:"web_uri,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ManifestName returns the metadata name of an image's manifest.
func ManifestName(imageID string) string {
	return "images/" + imageID + ".json"
}

// Archiver keeps an encrypted copy of an original before it is deleted.
type Archiver struct {
	host      PhotoHost
	spool     Spool
	encryptor Encryptor
	vault     Vault
	account   string
	clock     Clock
	logger    Logger
}

// NewArchiver creates an Archiver that stores content under account.
func NewArchiver(host PhotoHost, spool Spool, encryptor Encryptor, vault Vault, account string, clock Clock, logger Logger) *Archiver {
	return &Archiver{
		host:      host,
		spool:     spool,
		encryptor: encryptor,
		vault:     vault,
		account:   account,
		clock:     clock,
		logger:    logger,
	}
}

// Archive downloads img's original, checks it against img.Hash, encrypts it
// into the vault and writes its manifest. It returns the archived hash.
// Content already in the vault is not downloaded again.
func (a *Archiver) Archive(ctx context.Context, img *Image) (string, error) {
	if !a.encryptor.IsConfigured() {
		return "", errors.New("archive encryption is not set up, run 'smugdups archive init'")
	}
	want := strings.ToLower(img.Hash)

	has, err := a.vault.HasContent(want)
	if err != nil {
		return "", fmt.Errorf("checking vault for %s: %w", want, err)
	}
	if has {
		a.logger.Debug("original already archived", "image", img.ID, "hash", want)
		return want, a.putManifest(img, want, img.Size)
	}

	if img.ArchivedURI == "" {
		return "", fmt.Errorf("image %s has no original download URL", img.ID)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := a.host.Download(ctx, img.ArchivedURI, pw)
		pw.CloseWithError(err)
	}()
	checksum, size, err := a.spool.Store(pr)
	pr.Close()
	if err != nil {
		return "", fmt.Errorf("downloading image %s: %w", img.ID, err)
	}
	defer a.spool.Remove(checksum)

	if checksum != want {
		return "", fmt.Errorf("image %s: downloaded %s, expected %s: %w", img.ID, checksum, want, ErrHashMismatch)
	}

	rc, err := a.spool.Open(checksum)
	if err != nil {
		return "", fmt.Errorf("opening spooled image %s: %w", img.ID, err)
	}
	defer rc.Close()

	var encrypted bytes.Buffer
	if err := a.encryptor.Encrypt(rc, &encrypted); err != nil {
		return "", fmt.Errorf("encrypting image %s: %w", img.ID, err)
	}
	if err := a.vault.PutContent(checksum, &encrypted, int64(encrypted.Len())); err != nil {
		return "", fmt.Errorf("storing image %s: %w", img.ID, err)
	}
	if err := a.putManifest(img, checksum, size); err != nil {
		return "", err
	}

	a.logger.Info("original archived", "image", img.ID, "hash", checksum, "size", size)
	return checksum, nil
}

func (a *Archiver) putManifest(img *Image, hash string, size int64) error {
	data, err := json.MarshalIndent(Manifest{
		ImageID:    img.ID,
		FileName:   img.FileName,
		AlbumID:    img.AlbumID,
		AlbumName:  img.AlbumName,
		Hash:       hash,
		Size:       size,
		WebURI:     img.WebURI,
		ArchivedAt: a.clock.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest for %s: %w", img.ID, err)
	}
	if err := a.vault.PutMetadata(a.account, ManifestName(img.ID), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("storing manifest for %s: %w", img.ID, err)
	}
	return nil
}

// Manifest loads the manifest of an archived image.
func (a *Archiver) Manifest(imageID string) (*Manifest, error) {
	var buf bytes.Buffer
	if err := a.vault.GetMetadata(a.account, ManifestName(imageID), &buf); err != nil {
		return nil, fmt.Errorf("loading manifest for %s: %w", imageID, err)
	}
	var m Manifest
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", imageID, err)
	}
	return &m, nil
}

// Restore decrypts the archived original with the given hash and writes it
// to w. Nothing is written unless the decrypted bytes match the hash.
func (a *Archiver) Restore(hash string, w io.Writer, dctx DecryptionContext) (int64, error) {
	hash = strings.ToLower(hash)

	var encrypted bytes.Buffer
	if err := a.vault.GetContent(hash, &encrypted); err != nil {
		return 0, fmt.Errorf("reading archived %s: %w", hash, err)
	}

	var plain bytes.Buffer
	if err := dctx.Decrypt(&encrypted, &plain); err != nil {
		return 0, fmt.Errorf("decrypting archived %s: %w", hash, err)
	}

	sum := md5.Sum(plain.Bytes())
	if got := hex.EncodeToString(sum[:]); got != hash {
		return 0, fmt.Errorf("archived %s decrypted to %s: %w", hash, got, ErrHashMismatch)
	}

	n, err := plain.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("writing restored %s: %w", hash, err)
	}
	return n, nil
}
