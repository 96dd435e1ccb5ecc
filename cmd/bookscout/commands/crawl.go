package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bookscout/bookscout/internal/bookstore"
	_ "github.com/bookscout/bookscout/internal/bookstore/targulcartii"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/pool"
	"github.com/bookscout/bookscout/internal/shard"
	"github.com/bookscout/bookscout/internal/store"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Scrape one store into a database",
	Long: `Scrape a store's detail pages into a database file.

With --urls the crawl covers exactly the URLs in the given file (one
shard of a prepared fetch list). Without it, the store's listing pages
are walked first to discover every detail page, then all of them are
scraped in one run.`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	flags := crawlCmd.Flags()
	flags.String("store", "", "store name (required)")
	flags.String("db", "", "output database path (required)")
	flags.String("urls", "", "JSON file with detail-page URLs (or one fetch-shard object)")
	flags.Bool("browser", false, "fetch with a full browser session instead of direct HTTP")

	_ = crawlCmd.MarkFlagRequired("store")
	_ = crawlCmd.MarkFlagRequired("db")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	storeName, _ := cmd.Flags().GetString("store")
	dbPath, _ := cmd.Flags().GetString("db")
	urlsFile, _ := cmd.Flags().GetString("urls")
	useBrowser, _ := cmd.Flags().GetBool("browser")

	extractor, err := newExtractor(cfg, storeName)
	if err != nil {
		logError("%v", err)
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logError("opening %s: %v", dbPath, err)
		return err
	}
	defer st.Close()

	engine := fetch.NewEngine(cfg.FetchConfig())
	serveMetrics(cfg, engine)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var urls []string
	if urlsFile != "" {
		urls, err = shard.ReadURLList(urlsFile)
		if err != nil {
			logError("%v", err)
			return err
		}
	} else {
		session := engine.NewSession()
		urls, err = extractor.DiscoverUnitsOfWork(ctx, session)
		session.Close()
		if err != nil {
			logError("discovery: %v", err)
			return err
		}
	}
	logger.Info("crawling", "store", storeName, "urls", len(urls), "workers", cfg.Workers)

	opts := fetch.Options{}
	if useBrowser {
		opts.Strategy = fetch.StrategyBrowser
	}

	p := pool.New[string](cfg.Workers)
	p.Run(urls, func(items []string, worker int) {
		session := engine.NewSession()
		defer session.Close()

		for _, url := range items {
			crawlOne(ctx, session, extractor, st, url, opts)
			p.ItemDone()
		}
	})

	count, err := st.Count()
	if err != nil {
		return err
	}
	logger.Info("crawl complete", "store", storeName, "rows", count, "db", dbPath)
	return nil
}

// crawlOne processes a single detail page. Failures are logged and the
// item is skipped; nothing below this boundary stops the worker.
func crawlOne(ctx context.Context, session fetch.Session, extractor bookstore.Extractor, st *store.Store, url string, opts fetch.Options) {
	content := session.Fetch(ctx, url, opts)
	if content == "" {
		logger.Warn("skipping unreachable page", "url", url)
		return
	}

	records, err := extractor.ExtractRecords(content, url)
	if err != nil {
		logger.Warn("extraction failed", "url", url, "error", err)
		return
	}
	for _, book := range records {
		if err := st.AddBook(book); err != nil {
			logger.Warn("persist failed", "title", book.Title, "error", err)
		}
	}
}
