// Command bookgraph loads Amazon book metadata and reviews into a Neo4j graph
// and inspects what was loaded.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/config"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/graphstore"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/loader"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/neopersist"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// app is what every subcommand shares once config is read.
type app struct {
	cfg *config.Config
	log *logger.Logger
	// openStore is replaced in tests.
	openStore func(ctx context.Context, cfg *config.Config, log *logger.Logger) (graphstore.Store, error)
}

func newRootCommand() *cobra.Command {
	a := &app{openStore: openNeo4j}
	var envFile string

	root := &cobra.Command{
		Use:           "bookgraph",
		Short:         "Load Amazon book metadata and reviews into Neo4j",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to read (default .env)")

	root.AddCommand(a.loadCommand(), a.countCommand(), a.showCommand(), a.recommendCommand(), versionCommand())
	return root
}

func (a *app) loadCommand() *cobra.Command {
	var meta, reviews string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Merge books, related-product edges and reviews into the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if meta == "" {
				meta = a.cfg.MetaFile
			}
			if reviews == "" {
				reviews = a.cfg.ReviewsFile
			}

			var store graphstore.Store
			if dryRun {
				store = graphstore.NewMemory()
			} else {
				s, err := a.openStore(ctx, a.cfg, a.log)
				if err != nil {
					return err
				}
				store = s
			}
			defer store.Close(context.WithoutCancel(ctx))

			summary, err := loader.Load(ctx, store, a.log, loader.Config{
				MetaPath:      meta,
				ReviewsPath:   reviews,
				ProgressEvery: a.cfg.ProgressEvery,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", "gzipped metadata file (default $BOOKGRAPH_META_FILE)")
	cmd.Flags().StringVar(&reviews, "reviews", "", "gzipped reviews file (default $BOOKGRAPH_REVIEWS_FILE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "load into memory instead of Neo4j")
	return cmd
}

func (a *app) countCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print node and edge counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer store.Close(context.WithoutCancel(ctx))

			counts, err := store.Counts(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), counts)
		},
	}
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ASIN",
		Short: "Print a book and its neighbours as graph JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer store.Close(context.WithoutCancel(ctx))

			graph, err := store.Neighborhood(ctx, args[0])
			if err != nil {
				return fmt.Errorf("book %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), graph)
		},
	}
}

func (a *app) recommendCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recommend USER_ID",
		Short: "Rank books one related-product hop from what a user reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer store.Close(context.WithoutCancel(ctx))

			recs, err := store.Recommend(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("recommend for %s: %w", args[0], err)
			}
			if recs == nil {
				recs = []models.Recommendation{}
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", graphstore.DefaultRecommendLimit, "maximum number of books to print")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func openNeo4j(ctx context.Context, cfg *config.Config, log *logger.Logger) (graphstore.Store, error) {
	if err := cfg.Neo4j.Validate(); err != nil {
		return nil, err
	}
	exec, err := neopersist.NewNeo4jExecutor(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database,
		neopersist.Options{ConnectTimeout: cfg.Neo4j.Timeout, MaxPoolSize: cfg.Neo4j.MaxPoolSize})
	if err != nil {
		return nil, err
	}
	if err := exec.Verify(ctx); err != nil {
		_ = exec.Close(ctx)
		return nil, fmt.Errorf("could not connect to database '%s': %w", cfg.Neo4j.Database, err)
	}
	log.Info("connected to neo4j", "uri", cfg.Neo4j.URI, "database", cfg.Neo4j.Database)

	store, err := graphstore.NewNeo4j(exec, log)
	if err != nil {
		_ = exec.Close(ctx)
		return nil, err
	}
	return store, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
