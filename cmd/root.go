// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/naka-gawa/github-trailer/internal/config"
	"github.com/naka-gawa/github-trailer/internal/events"
	"github.com/naka-gawa/github-trailer/internal/gateway"
	"github.com/naka-gawa/github-trailer/internal/logging"
	"github.com/naka-gawa/github-trailer/internal/notify"
	"github.com/naka-gawa/github-trailer/internal/ratelimit"
	"github.com/naka-gawa/github-trailer/internal/store"
	"github.com/naka-gawa/github-trailer/internal/usecase"
	"github.com/spf13/cobra"
)

const (
	defaultReachabilityAddress = "api.github.com:443"
	refreshLeaseTimeout        = 10 * time.Minute
)

var rootCmd = &cobra.Command{
	Use:   "github-trailer",
	Short: "Keeps a local mirror of the GitHub pull requests and issues you care about.",
	Long: `github-trailer periodically syncs pull requests and issues from the
configured GitHub repositories into a local database, sorts them into
sections (mine, participated, merged, closed, all) and tracks unread
comments, CI statuses and API quota.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default ~/.github-trailer/config.yaml)")
}

// app is the wired object graph shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	bus       *events.Bus
	prefs     *usecase.Preferences
	library   *usecase.Library
	refresher *usecase.Refresher
	closers   []io.Closer
}

// newApp loads the configuration and the persisted store, and builds one
// gateway per server that has a token.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger, logCloser, err := logging.Setup(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	db, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, db)
	a.store = store.New(db, logger)
	if err := a.store.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	remotes := make([]usecase.Remote, 0, len(cfg.Servers))
	servers := cfg.DomainServers()
	for i, sc := range cfg.Servers {
		server := servers[i]
		token, err := sc.Token()
		if err != nil {
			logger.Warn("server has no credentials, skipping", "server", sc.Label, "error", err)
			remotes = append(remotes, usecase.Remote{Server: server})
			continue
		}
		fetcher, err := gateway.NewGitHubGateway(token, gateway.Endpoints{APIURL: sc.APIURL, GraphQLURL: sc.GraphQLURL}, logger.With("server", sc.Label))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("server %q: %w", sc.Label, err)
		}
		remotes = append(remotes, usecase.Remote{Server: server, Fetcher: fetcher})
	}

	a.bus = events.NewBus()
	a.prefs = usecase.NewPreferences(cfg.DomainSettings(), a.bus)
	a.library = usecase.NewLibrary(a.store, a.prefs, a.bus)
	a.refresher = usecase.NewRefresher(usecase.Deps{
		Store:       a.store,
		Preferences: a.prefs,
		Remotes:     remotes,
		Repos:       cfg.DomainRepos(),
		Bus:         a.bus,
		Dispatcher:  notify.LogDispatcher{Logger: logger},
		Warner:      ratelimit.LogWarner{Logger: logger},
		Leaser:      usecase.TimedLeaser{Timeout: refreshLeaseTimeout, Logger: logger},
		Network:     usecase.DialCheck{Address: reachabilityAddress(cfg.Servers), Timeout: 5 * time.Second},
		Logger:      logger,
	})
	return a, nil
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultPath()
	}
	return path
}

// Close releases the database and the log file.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// reachabilityAddress picks the host of the first server with a custom API URL,
// falling back to github.com.
func reachabilityAddress(servers []config.ServerConfig) string {
	for _, s := range servers {
		if s.APIURL == "" {
			continue
		}
		u, err := url.Parse(s.APIURL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		port := u.Port()
		if port == "" {
			port = "443"
			if u.Scheme == "http" {
				port = "80"
			}
		}
		return net.JoinHostPort(u.Hostname(), port)
	}
	return defaultReachabilityAddress
}

// mustApp builds the app or exits, mirroring how the commands report errors.
func mustApp(ctx context.Context, cmd *cobra.Command) *app {
	a, err := newApp(ctx, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise: %v\n", err)
		os.Exit(1)
	}
	return a
}
