package commands

import (
	"github.com/spf13/cobra"

	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/store"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Consolidate shard databases into one store",
	Long: `Union every *.db file in a directory, then collapse duplicate
listings by URL: first non-empty ISBN and author win, categories are
comma-joined in encounter order, the highest rating wins, the lowest
price wins. The consolidated store carries a unique index on url.`,
	RunE: runMerge,
}

var applyRatesCmd = &cobra.Command{
	Use:   "apply-rates",
	Short: "Fold rating shard results into the consolidated store",
	RunE:  runApplyRates,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().String("dir", "", "directory of shard databases (required)")
	mergeCmd.Flags().String("out", "", "consolidated database path (required)")
	_ = mergeCmd.MarkFlagRequired("dir")
	_ = mergeCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(applyRatesCmd)
	applyRatesCmd.Flags().String("dir", "", "directory of rating shard databases (required)")
	applyRatesCmd.Flags().String("db", "", "consolidated database path (required)")
	_ = applyRatesCmd.MarkFlagRequired("dir")
	_ = applyRatesCmd.MarkFlagRequired("db")
}

func runMerge(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		logError("%v", err)
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	out, _ := cmd.Flags().GetString("out")

	st, err := store.MergeDir(dir, out)
	if err != nil {
		logError("merge: %v", err)
		return err
	}
	defer st.Close()

	count, err := st.Count()
	if err != nil {
		return err
	}
	logger.Info("merge complete", "db", out, "rows", count)
	return nil
}

func runApplyRates(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		logError("%v", err)
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	dbPath, _ := cmd.Flags().GetString("db")

	st, err := store.Open(dbPath)
	if err != nil {
		logError("opening %s: %v", dbPath, err)
		return err
	}
	defer st.Close()

	if err := store.ApplyRatingShardsDir(st, dir); err != nil {
		logError("apply-rates: %v", err)
		return err
	}
	logger.Info("ratings applied", "db", dbPath)
	return nil
}
