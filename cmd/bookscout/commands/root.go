// Package commands implements the CLI commands for bookscout.
package commands

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/bookstore"
	"github.com/bookscout/bookscout/internal/config"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "bookscout",
	Short: "Crawl used-book stores and rank listings by Goodreads popularity",
	Long: `Bookscout scrapes Romanian used-book stores, resolves each title
against Goodreads, and consolidates everything into one SQLite dataset
ranked by popularity (average rating times ratings count).

The pipeline runs as separate phases so each can be sharded across
parallel jobs:

  # Plan a sharded crawl for one store
  bookscout prepare fetch-list --store targulcartii --out manifest.json

  # Scrape one shard into its own database
  bookscout crawl --store targulcartii --db shard-000.db --urls urls.json

  # Consolidate all shard databases
  bookscout merge --dir shards/ --out books.db

  # Plan and run the rating pass, then fold results back in
  bookscout prepare rating-list --db books.db --out ratings.json
  bookscout rate --tasks rating-tasks-000.json --db rating-000.db
  bookscout apply-rates --dir ratings/ --db books.db`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.Version = version.Full()

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.bookscout.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9090)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".bookscout")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BOOKSCOUT")
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig validates settings and initializes logging. Invalid
// configuration aborts the run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})
	return cfg, nil
}

// newExtractor resolves a store's extractor and swaps in the configured
// category table when category_map_file is set.
func newExtractor(cfg *config.Config, name string) (bookstore.Extractor, error) {
	ex, err := bookstore.New(name)
	if err != nil {
		return nil, err
	}
	if cfg.CategoryMapFile != "" {
		cc, ok := ex.(bookstore.CategoryConfigurable)
		if !ok {
			return nil, fmt.Errorf("store %q does not take a category map file", name)
		}
		mapper, err := books.LoadCategoryMapper(cfg.CategoryMapFile)
		if err != nil {
			return nil, err
		}
		cc.UseCategoryMapper(mapper)
	}
	return ex, nil
}

// serveMetrics exposes an engine's registry when an address is
// configured. Best effort: a busy port logs and moves on.
func serveMetrics(cfg *config.Config, engine *fetch.Engine) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(engine.Metrics().Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "addr", cfg.MetricsAddr, "error", err)
		}
	}()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
