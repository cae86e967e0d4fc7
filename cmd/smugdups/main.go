package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smugdups/internal/app"
	"smugdups/internal/config"
	"smugdups/internal/dups"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies credential overrides from
// the environment.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// exclusive takes the instance lock for commands that change the account.
func newApp(ctx context.Context, operation string, exclusive bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, app.Options{Operation: operation, Exclusive: exclusive})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// interruptible returns a context for a job. The first interrupt asks the
// runner to stop at the next album or group; the second cancels ctx.
func interruptible(a *app.App) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		count := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				count++
				if count == 1 && a.Runner().Cancel() {
					fmt.Fprintln(os.Stderr, "\nStopping after the current step; interrupt again to abort.")
					continue
				}
				cancel()
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

var rootCmd = &cobra.Command{
	Use:          "smugdups",
	Short:        "Find and clean up duplicate photos on SmugMug",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Add your API key and access token under [credentials], or set the SMUGDUPS_* environment variables.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		set := func(s string) string {
			if s == "" {
				return "(not set)"
			}
			return "(set)"
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Log Level:     %s\n", cfg.LogLevel)
		fmt.Printf("User:          %s\n", cfg.Credentials.User)
		fmt.Printf("API Key:       %s\n", set(cfg.Credentials.APIKey))
		fmt.Printf("Access Token:  %s\n", set(cfg.Credentials.AccessToken))
		fmt.Printf("API Base URL:  %s\n", cfg.API.BaseURL)
		fmt.Printf("Review Prefix: %s\n", cfg.Review.Prefix)
		fmt.Printf("Excluded:      %v\n", cfg.Scan.ExcludeAlbums)
		fmt.Printf("Archive:       %v (%s vault)\n", cfg.Archive.Enabled, cfg.Archive.Vault.Type)
		fmt.Printf("Listen:        %s\n", cfg.Server.Listen)
		return nil
	},
}

// albums command
var albumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "List albums",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "albums", false)
		if err != nil {
			return err
		}
		defer a.Close()

		albums, err := a.Albums(ctx)
		if err != nil {
			return err
		}
		if len(albums) == 0 {
			fmt.Println("No albums.")
			return nil
		}
		fmt.Println(renderAlbums(albums))
		return nil
	},
}

// scanAlbums resolves album arguments and runs a scan with progress output.
func scanAlbums(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) (*dups.ScanResult, error) {
	all, _ := cmd.Flags().GetBool("all")
	if len(args) == 0 && !all {
		return nil, errors.New("name one or more albums, or pass --all")
	}
	if len(args) > 0 && all {
		return nil, errors.New("--all cannot be combined with album arguments")
	}

	ids, err := a.ResolveAlbums(ctx, args)
	if err != nil {
		return nil, err
	}

	progress := newProgressPrinter(os.Stderr)
	res, err := a.Scan(ctx, ids, progress.update)
	progress.done()
	return res, err
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [ALBUM...]",
	Short: "Find duplicate images",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "scan", false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := interruptible(a)
		defer stop()

		res, err := scanAlbums(ctx, a, cmd, args)
		if err != nil {
			return err
		}
		renderScan(os.Stdout, res)
		return nil
	},
}

// dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe [ALBUM...]",
	Short: "Find duplicates and move or delete the extra copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		yes, _ := cmd.Flags().GetBool("yes")
		mode, err := parseMode(modeFlag)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "dedupe", true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := interruptible(a)
		defer stop()

		res, err := scanAlbums(ctx, a, cmd, args)
		if err != nil {
			return err
		}
		renderScan(os.Stdout, res)
		if res.Cancelled || len(res.Groups) == 0 {
			return nil
		}

		var decisions []dups.ResolveDecision
		switch mode {
		case modeMove:
			decisions = decideAll(res.Groups, dups.DecisionMove)
		case modeDelete:
			decisions = decideAll(res.Groups, dups.DecisionDelete)
		case modeAsk:
			if decisions, err = askDecisions(a); err != nil {
				return err
			}
		}

		if n := countDeletes(a.Runner().Groups(), decisions); n > 0 {
			ok := yes
			if !ok {
				if ok, err = confirm(fmt.Sprintf("Permanently delete %d image(s) from SmugMug?", n)); err != nil {
					return err
				}
			}
			if !ok {
				fmt.Println("Nothing deleted.")
				return nil
			}
			confirmDeletes(decisions)
		}
		if len(decisions) == 0 {
			fmt.Println("Nothing to do.")
			return nil
		}

		progress := newProgressPrinter(os.Stderr)
		report, err := a.Resolve(ctx, decisions, progress.update)
		progress.done()
		if report != nil {
			renderReport(os.Stdout, report)
		}
		return err
	},
}

// askDecisions prompts for each group. A member number makes that member the
// keeper and asks again.
func askDecisions(a *app.App) ([]dups.ResolveDecision, error) {
	groups := a.Runner().Groups()
	decisions := make([]dups.ResolveDecision, 0, len(groups))
	for i, g := range groups {
		for {
			fmt.Println(renderGroup(i+1, g))
			reply, err := readLine("[m]ove extras, [d]elete extras, [s]kip, or # to keep: ")
			if err != nil {
				return nil, err
			}
			ans, err := parseAnswer(reply, len(g.Images))
			if err != nil {
				fmt.Println(err)
				continue
			}
			if ans.keeper > 0 {
				id := g.Images[ans.keeper-1].ID
				if err := a.Runner().SetKeeper(g.Hash, id); err != nil {
					return nil, err
				}
				g, _ = a.Runner().Group(g.Hash)
				continue
			}
			decisions = append(decisions, dups.ResolveDecision{Hash: g.Hash, Decision: ans.decision})
			break
		}
	}
	return decisions, nil
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan and dedupe history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history", false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		fmt.Println(renderRuns(runs))
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the archive of deleted originals",
}

var archiveInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate archive keys and check the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "archive-init", true)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := newPassphrase()
		if err != nil {
			return err
		}
		if err := a.InitArchive(passphrase); err != nil {
			return err
		}
		fmt.Println("Archive initialized. Keep the passphrase safe; it is required to restore originals.")
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore HASH",
	Short: "Restore an archived original by its MD5",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return errors.New("--out is required")
		}

		a, err := newApp(cmd.Context(), "restore", false)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ArchivedImages(args[0])
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("Archived from %s (%s in album %s) on %s\n",
				r.FileName, r.ImageID, r.SourceAlbum, r.RecordedAt.Local().Format("2006-01-02 15:04"))
		}

		passphrase, err := readPassphrase("Archive passphrase: ")
		if err != nil {
			return err
		}
		n, err := a.Restore(args[0], out, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d bytes to %s\n", n, out)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")

		a, err := newApp(cmd.Context(), "serve", true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx, listen)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(albumsCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("all", false, "Scan every album")
	rootCmd.AddCommand(dedupeCmd)
	dedupeCmd.Flags().Bool("all", false, "Scan every album")
	dedupeCmd.Flags().String("mode", string(modeAsk), "How to resolve groups: move, delete or ask")
	dedupeCmd.Flags().Bool("yes", false, "Confirm permanent deletes without prompting")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().String("out", "", "Path of the restored file (must not exist)")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (default from config)")
}
