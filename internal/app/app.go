package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"smugdups/internal/config"
	"smugdups/internal/database"
	"smugdups/internal/dups"
	"smugdups/internal/encryption"
	"smugdups/internal/server"
	"smugdups/internal/smugmug"
	"smugdups/internal/spool"
	"smugdups/internal/thumbs"
	"smugdups/internal/vault"
)

// ErrArchiveDisabled is returned by archive commands when archive.enabled is false.
var ErrArchiveDisabled = errors.New("archiving is not enabled in the config")

// Options adjusts how New builds an App.
type Options struct {
	// Operation names the CLI command in the log.
	Operation string
	// Exclusive takes the instance lock for the lifetime of the App.
	Exclusive bool
	// Host replaces the SmugMug client.
	Host dups.PhotoHost
	// Stderr mirrors the log; nil writes to the log file only.
	Stderr io.Writer
}

// App is the application layer between the CLI and the duplicate finder.
// It constructs all dependencies from config, exposes high-level operations
// and manages the journal lifecycle on Close.
type App struct {
	cfg       *config.Config
	account   string
	host      dups.PhotoHost
	journal   *database.SQLiteJournal
	vault     dups.Vault
	encryptor dups.Encryptor
	archiver  *dups.Archiver
	runner    *dups.Runner
	lock      *instanceLock
	logger    dups.Logger
	logFile   *os.File
	ran       bool
}

// New creates a fully wired App from the given config.
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{cfg: cfg, account: accountName(cfg)}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	var err error
	if opts.Exclusive {
		if a.lock, err = acquireLock(cfg.BaseDir); err != nil {
			return nil, err
		}
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	if opts.Operation != "" {
		opID += "-" + opts.Operation
	}
	slogger, logFile, err := newLogger(cfg.LogDir, opID, cfg.LogLevel, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logFile = logFile
	a.logger = &slogAdapter{l: slogger}

	a.host = opts.Host
	if a.host == nil {
		clientCfg, err := clientConfig(cfg)
		if err != nil {
			return nil, err
		}
		client, err := smugmug.New(clientCfg, smugmug.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.host = client
	}

	clock := dups.RealClock{}
	if a.journal, err = database.NewJournalFromConfig(cfg.Database, clock); err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	if cfg.Archive.Enabled {
		if a.vault, err = vault.NewVaultFromConfig(ctx, cfg.Archive.Vault); err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		if a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Archive.Encryption); err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		sp, err := spool.NewSpoolFromConfig(cfg.Archive.Spool)
		if err != nil {
			return nil, fmt.Errorf("creating spool: %w", err)
		}
		a.archiver = dups.NewArchiver(a.host, sp, a.encryptor, a.vault, a.account, clock, a.logger)
	}

	naming := reviewNaming(cfg.Review)
	finder := dups.NewFinder(a.host, dups.NewScorer(dups.DefaultRules(cfg.Scan.Weights)...),
		dups.NewAlbumFilter(cfg.Scan.ExcludeAlbums), naming, a.logger)
	reviews := dups.NewReviewAlbums(a.host, naming, clock, a.logger)
	orchestrator := dups.NewOrchestrator(a.host, reviews, a.archiver, a.journal, clock, a.logger)
	a.runner = dups.NewRunner(finder, orchestrator, a.journal, dups.UUIDGenerator{}, a.logger)

	ok = true
	return a, nil
}

func clientConfig(cfg *config.Config) (smugmug.Config, error) {
	api := cfg.API
	writeInterval, err := config.ParseDuration(api.WriteInterval, smugmug.DefaultWriteInterval)
	if err != nil {
		return smugmug.Config{}, err
	}
	initialBackoff, err := config.ParseDuration(api.InitialBackoff, smugmug.DefaultInitialBackoff)
	if err != nil {
		return smugmug.Config{}, err
	}
	maxBackoff, err := config.ParseDuration(api.MaxBackoff, smugmug.DefaultMaxBackoff)
	if err != nil {
		return smugmug.Config{}, err
	}
	return smugmug.Config{
		APIKey:         cfg.Credentials.APIKey,
		APISecret:      cfg.Credentials.APISecret,
		AccessToken:    cfg.Credentials.AccessToken,
		AccessSecret:   cfg.Credentials.AccessSecret,
		UserName:       cfg.Credentials.User,
		BaseURL:        api.BaseURL,
		PageSize:       api.PageSize,
		WriteInterval:  writeInterval,
		MaxRetries:     api.MaxRetries,
		MaxRateRetries: api.MaxRateRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}, nil
}

func reviewNaming(cfg config.ReviewConfig) dups.ReviewNaming {
	naming := dups.DefaultReviewNaming()
	if cfg.Prefix != "" {
		naming.Prefix = cfg.Prefix
	}
	if cfg.URLPrefix != "" {
		naming.URLPrefix = cfg.URLPrefix
	}
	return naming
}

// accountName names the account's area in the archive vault.
func accountName(cfg *config.Config) string {
	if u := strings.TrimSpace(cfg.Credentials.User); u != "" && !strings.ContainsAny(u, `/\`) {
		return u
	}
	return "default"
}

// Runner returns the job runner holding the current duplicate groups.
func (a *App) Runner() *dups.Runner {
	return a.runner
}

// Authenticate checks the credentials against the host.
func (a *App) Authenticate(ctx context.Context) (*dups.User, error) {
	user, err := a.host.AuthUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking credentials: %w", err)
	}
	a.logger.Info("authenticated", "user", user.Name)
	return user, nil
}

// Albums returns every album of the account.
func (a *App) Albums(ctx context.Context) ([]*dups.Album, error) {
	return a.host.ListAlbums(ctx)
}

// ResolveAlbums maps album IDs or names to album IDs. With no refs every
// album is returned.
func (a *App) ResolveAlbums(ctx context.Context, refs []string) ([]string, error) {
	albums, err := a.host.ListAlbums(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		ids := make([]string, 0, len(albums))
		for _, al := range albums {
			ids = append(ids, al.ID)
		}
		return ids, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := findAlbum(albums, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func findAlbum(albums []*dups.Album, ref string) (string, error) {
	for _, al := range albums {
		if al.ID == ref {
			return al.ID, nil
		}
	}
	var matches []string
	for _, al := range albums {
		if strings.EqualFold(al.Name, ref) {
			matches = append(matches, al.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("album %q: %w", ref, dups.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("album name %q is ambiguous (%s); use an album ID", ref, strings.Join(matches, ", "))
	}
}

// Scan checks credentials, then scans albumIDs and blocks until the scan
// finishes. progress may be nil.
func (a *App) Scan(ctx context.Context, albumIDs []string, progress dups.ProgressFunc) (*dups.ScanResult, error) {
	if _, err := a.Authenticate(ctx); err != nil {
		return nil, err
	}
	a.ran = true
	a.runner.OnProgress(progress)
	if _, err := a.runner.StartScan(ctx, albumIDs); err != nil {
		return nil, err
	}
	a.runner.Wait()
	return a.runner.LastScan(), a.runner.Err()
}

// Resolve applies decisions to the groups of the last scan and blocks until
// the batch finishes.
func (a *App) Resolve(ctx context.Context, decisions []dups.ResolveDecision, progress dups.ProgressFunc) (*dups.Report, error) {
	a.ran = true
	a.runner.OnProgress(progress)
	if _, err := a.runner.StartResolve(ctx, decisions); err != nil {
		return nil, err
	}
	a.runner.Wait()
	return a.runner.LastReport(), a.runner.Err()
}

// History returns the most recent journal runs.
func (a *App) History(limit int) ([]*dups.Run, error) {
	return a.journal.ListRuns(limit)
}

// RunImages returns the image outcomes recorded for a run.
func (a *App) RunImages(runID int64) ([]*dups.ImageRecord, error) {
	return a.journal.ListImageRecords(runID)
}

// InitArchive generates the archive key pair and checks the vault.
func (a *App) InitArchive(passphrase string) error {
	if a.archiver == nil {
		return ErrArchiveDisabled
	}
	if a.encryptor.IsConfigured() {
		return errors.New("archive keys already exist")
	}
	if err := a.vault.ValidateSetup(); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("generating archive keys: %w", err)
	}
	a.logger.Info("archive initialized")
	return nil
}

// ArchivedImages returns the journal entries of images archived with hash.
func (a *App) ArchivedImages(hash string) ([]*dups.ImageRecord, error) {
	return a.journal.FindArchivedImages(strings.ToLower(hash))
}

// Restore decrypts the archived original with hash into a new file at
// outPath. An existing file is never overwritten.
func (a *App) Restore(hash, outPath, passphrase string) (int64, error) {
	if a.archiver == nil {
		return 0, ErrArchiveDisabled
	}
	dctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking archive key: %w", err)
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", outPath, err)
	}
	n, err := a.archiver.Restore(hash, f, dctx)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return 0, err
	}
	a.logger.Info("restored archived original", "hash", hash, "path", outPath, "bytes", n)
	return n, nil
}

// Serve runs the control API on addr until ctx is cancelled.
func (a *App) Serve(ctx context.Context, addr string) error {
	if _, err := a.Authenticate(ctx); err != nil {
		return err
	}
	if addr == "" {
		addr = a.cfg.Server.Listen
	}
	cache, err := thumbs.New(a.host, "", a.logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	a.ran = true
	srv := server.New(ctx, a.runner, a.host, cache, a.logger)
	err = srv.Serve(ctx, addr)
	a.runner.Cancel()
	a.runner.Wait()
	return err
}

// Close closes all resources. When a job ran and archiving is enabled, a
// snapshot of the journal is uploaded to the vault first.
func (a *App) Close() error {
	var firstErr error
	if a.ran && a.vault != nil && a.journal != nil {
		if err := a.snapshotJournal(); err != nil {
			firstErr = err
		}
	}
	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeResources() error {
	var firstErr error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
		a.journal = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	if a.lock != nil {
		if err := a.lock.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.lock = nil
	}
	return firstErr
}

// snapshotJournal copies the journal to a temp file and uploads it to the
// vault as account metadata.
func (a *App) snapshotJournal() error {
	tmpFile, err := os.CreateTemp("", "smugdups-journal-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for journal snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.journal.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening journal snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal snapshot: %w", err)
	}
	if err := a.vault.PutMetadata(a.account, database.JournalFileName, f, info.Size()); err != nil {
		return fmt.Errorf("uploading journal snapshot: %w", err)
	}
	return nil
}
