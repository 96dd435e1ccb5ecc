package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/shard"
	"github.com/bookscout/bookscout/internal/store"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Plan sharded batch work",
}

var prepareFetchCmd = &cobra.Command{
	Use:   "fetch-list",
	Short: "Discover a store's pages and emit a sharded crawl manifest",
	RunE:  runPrepareFetch,
}

var prepareRatingCmd = &cobra.Command{
	Use:   "rating-list",
	Short: "Emit a sharded rating manifest for all unrated rows",
	RunE:  runPrepareRating,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	prepareCmd.AddCommand(prepareFetchCmd)
	prepareCmd.AddCommand(prepareRatingCmd)

	ff := prepareFetchCmd.Flags()
	ff.String("store", "", "store name (required)")
	ff.String("out", "", "manifest output path (required)")
	ff.String("shard-dir", "shards", "directory referenced by shard database paths")
	_ = prepareFetchCmd.MarkFlagRequired("store")
	_ = prepareFetchCmd.MarkFlagRequired("out")

	rf := prepareRatingCmd.Flags()
	rf.String("db", "", "consolidated database path (required)")
	rf.String("out", "", "manifest output path (required)")
	rf.String("shard-dir", "ratings", "directory for shard databases and task files")
	_ = prepareRatingCmd.MarkFlagRequired("db")
	_ = prepareRatingCmd.MarkFlagRequired("out")
}

func runPrepareFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	storeName, _ := cmd.Flags().GetString("store")
	out, _ := cmd.Flags().GetString("out")
	shardDir, _ := cmd.Flags().GetString("shard-dir")

	extractor, err := newExtractor(cfg, storeName)
	if err != nil {
		logError("%v", err)
		return err
	}

	engine := fetch.NewEngine(cfg.FetchConfig())
	serveMetrics(cfg, engine)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session := engine.NewSession()
	urls, err := extractor.DiscoverUnitsOfWork(ctx, session)
	session.Close()
	if err != nil {
		logError("discovery: %v", err)
		return err
	}

	shards := shard.PlanFetch(storeName, urls, shardDir)
	if err := shard.WriteManifest(out, shards); err != nil {
		logError("%v", err)
		return err
	}
	logger.Info("fetch list ready", "store", storeName, "urls", len(urls), "shards", len(shards), "manifest", out)
	return nil
}

func runPrepareRating(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		logError("%v", err)
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	out, _ := cmd.Flags().GetString("out")
	shardDir, _ := cmd.Flags().GetString("shard-dir")

	st, err := store.Open(dbPath)
	if err != nil {
		logError("opening %s: %v", dbPath, err)
		return err
	}
	defer st.Close()

	tasks, err := st.FetchUnrated()
	if err != nil {
		logError("%v", err)
		return err
	}

	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		logError("%v", err)
		return err
	}
	shards, err := shard.PlanRating(tasks, shardDir)
	if err != nil {
		logError("%v", err)
		return err
	}
	if err := shard.WriteManifest(out, shards); err != nil {
		logError("%v", err)
		return err
	}
	logger.Info("rating list ready", "tasks", len(tasks), "shards", len(shards),
		"manifest", filepath.Clean(out))
	return nil
}
