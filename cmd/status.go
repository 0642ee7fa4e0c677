package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/logger"
	"github.com/mhall-io/jobscout/internal/state"
)

const topQueriesInStatus = 5

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, query, and network statistics",
	Run: func(_ *cobra.Command, _ []string) {
		status()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func status() {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ledger, err := state.OpenLedger(config.DataDir, logger)
	if err != nil {
		logger.Fatal("loading seen-job ledger", zap.Error(err))
	}
	tracker, err := state.OpenTracker(config.DataDir, logger)
	if err != nil {
		logger.Fatal("loading query tracker", zap.Error(err))
	}

	fmt.Printf("data dir: %s\n", config.DataDir)
	fmt.Printf("seen jobs: %d\n", ledger.Len())

	runs, found, passed := tracker.Totals()
	fmt.Printf("tracked queries: %d  runs: %d  found: %d  passed: %d\n",
		tracker.Len(), runs, found, passed)

	if matcher := buildMatcher(config.Network, logger); matcher != nil {
		connections, companies := matcher.Stats()
		fmt.Printf("network: %d connections across %d companies\n", connections, companies)
	}

	top := tracker.Top(topQueriesInStatus)
	if len(top) > 0 {
		fmt.Println("\ntop queries by yield:")
		for i, q := range top {
			fmt.Printf("%2d. %.2f  %s (%d found, %d passed)\n",
				i+1, q.Yield, q.Query, q.Stat.FoundTotal, q.Stat.PassedTotal)
		}
	}
}
