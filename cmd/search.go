package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/discovery"
	"github.com/mhall-io/jobscout/internal/logger"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a single ad-hoc web search query through triage without persisting state",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		search(args[0])
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

// search runs one query end to end minus scoring. The ledger and tracker
// are read for dedup but never flushed, so experiments leave no trace.
func search(query string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.Triage == nil {
		logger.Fatal("triage rules are required in the configuration file")
	}
	if config.Discovery == nil || config.Discovery.Search == nil {
		logger.Fatal("discovery.search configuration is required for ad-hoc search")
	}

	adhoc := *config
	// Scoring never runs here, so its configuration must not get in the way.
	adhoc.AI = nil

	env := openRunEnv(ctx, &adhoc, logger)

	// Only the one query runs: no board polling, no registry, no ranked
	// query list.
	sources := []discovery.Source{
		webSearchSource(config.Discovery.Search, []string{query}, logger),
	}
	postings := discovery.CollectAll(ctx, sources, logger)

	runState := env.pipe.Collect(postings)

	fmt.Printf("query: %s\n", query)
	fmt.Printf("discovered: %d  duplicates: %d  triaged out: %d  passed: %d\n",
		runState.Summary.Discovered,
		runState.Summary.Duplicates,
		runState.Summary.TriagedOut,
		runState.Summary.Passed,
	)
	for i, c := range runState.Candidates {
		fmt.Printf("%2d. [triage %d] %s at %s\n", i+1, c.Triage.Score, c.Posting.Title, c.Posting.Employer)
		if c.Posting.URL != "" {
			fmt.Printf("    %s\n", c.Posting.URL)
		}
	}
}
