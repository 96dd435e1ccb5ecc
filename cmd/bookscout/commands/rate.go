package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/pool"
	"github.com/bookscout/bookscout/internal/rating"
	"github.com/bookscout/bookscout/internal/shard"
	"github.com/bookscout/bookscout/internal/store"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Resolve Goodreads ratings for one task file",
	Long: `Resolve popularity scores for the rating tasks in a JSON file,
writing results into the shard's own database. Results are folded back
into the consolidated store later with apply-rates.`,
	RunE: runRate,
}

func init() {
	rootCmd.AddCommand(rateCmd)

	flags := rateCmd.Flags()
	flags.String("tasks", "", "JSON rating-task file (required)")
	flags.String("db", "", "result database path (required)")

	_ = rateCmd.MarkFlagRequired("tasks")
	_ = rateCmd.MarkFlagRequired("db")
}

func runRate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	tasksFile, _ := cmd.Flags().GetString("tasks")
	dbPath, _ := cmd.Flags().GetString("db")

	tasks, err := shard.ReadTasks(tasksFile)
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
	sim := cfg.SimilarityEngine()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("rating", "tasks", len(tasks), "workers", cfg.Workers)

	p := pool.New[books.RatingTask](cfg.Workers)
	p.Run(tasks, func(slice []books.RatingTask, worker int) {
		session := engine.NewSession()
		defer session.Close()
		resolver := rating.New(session, sim)

		for _, task := range slice {
			if res := resolver.Resolve(ctx, task); res.Found {
				if err := st.AddRatingResult(task.RowID, res.Score, res.ReferenceURL); err != nil {
					logger.Warn("persist failed", "row", task.RowID, "error", err)
				}
			}
			p.ItemDone()
		}
	})

	logger.Info("rating complete", "db", dbPath)
	return nil
}
