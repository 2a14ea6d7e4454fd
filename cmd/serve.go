package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/dotpost/internal/config"
	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/posts"
	"github.com/bryan-buckman/dotpost/internal/server"
	"github.com/bryan-buckman/dotpost/internal/syndication"
)

var (
	flagAddr string
	flagOPML string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Serve the /api/posts REST API.

When syndication is enabled, configured feeds are polled in the background
and can be refreshed on demand with POST /api/refresh.`,
	RunE: runServe,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import configured feeds once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, m, err := openBackend(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		feeds := configuredFeeds(cfg)
		if flagOPML != "" {
			f, err := os.Open(flagOPML)
			if err != nil {
				return fmt.Errorf("opening opml: %w", err)
			}
			defer f.Close()
			extra, err := syndication.ReadOPML(f)
			if err != nil {
				return err
			}
			feeds = append(feeds, extra...)
		}
		if len(feeds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No feeds configured.")
			return nil
		}
		results, err := newFetcher(cfg, feeds, db, m, logger).FetchAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("importing feeds: %w", err)
		}
		total := 0
		for _, n := range results {
			total += n
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d post(s) from %d feed(s).\n", total, len(results))
		return nil
	},
}

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Print the configured syndication feeds as OPML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		return syndication.WriteOPML(cmd.OutOrStdout(), "dotpost feeds", configuredFeeds(cfg))
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides server.addr)")
	importCmd.Flags().StringVar(&flagOPML, "opml", "", "also import every feed listed in this OPML file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}

	db, m, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := server.Options{Store: db, Mediator: m, Logger: logger}
	var poller *syndication.Poller
	if cfg.Syndication.Enabled {
		fetcher := newFetcher(cfg, configuredFeeds(cfg), db, m, logger)
		opts.Refresher = fetcher
		poller = syndication.NewPoller(fetcher, db, logger)
	}
	srv := server.New(opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Addr)
	})
	if poller != nil {
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}
	return g.Wait()
}

// openBackend opens the database and registers the post handlers.
func openBackend(cfg *config.Config, logger zerolog.Logger) (database.Store, *mediator.Mediator, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info().Str("database", db.DatabaseType()).Msg("database ready")

	m := mediator.New(mediator.Logging(logger))
	posts.NewHandlers(db, logger,
		posts.WithSearchPolicy(posts.SearchPolicy{
			Fields:        cfg.Search.Fields,
			CaseSensitive: cfg.Search.CaseSensitive,
		}),
		posts.WithPagingPolicy(posts.PagingPolicy{
			DefaultPageSize: cfg.Paging.DefaultSize,
			MaxPageSize:     cfg.Paging.MaxSize,
			Overflow:        cfg.OverflowPolicy(),
		}),
	).Register(m)
	return db, m, nil
}

func configuredFeeds(cfg *config.Config) []syndication.Feed {
	feeds := make([]syndication.Feed, 0, len(cfg.Syndication.Feeds))
	for _, f := range cfg.Syndication.Feeds {
		feeds = append(feeds, syndication.Feed{Name: f.Name, URL: f.URL})
	}
	return feeds
}

func newFetcher(cfg *config.Config, feeds []syndication.Feed, db database.Store, m *mediator.Mediator, logger zerolog.Logger) *syndication.Fetcher {
	return syndication.NewFetcher(m, syndication.FetcherOptions{
		Feeds:           feeds,
		Author:          cfg.Syndication.Author,
		HighConcurrency: db.SupportsHighConcurrency(),
		Logger:          logger,
	})
}
