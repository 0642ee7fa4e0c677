package cmd

import (
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/logger"
	"github.com/mhall-io/jobscout/internal/state"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase the seen-job ledger so every posting is evaluated again",
	Run: func(cmd *cobra.Command, _ []string) {
		reset(cmd)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation")
}

func reset(cmd *cobra.Command) {
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

	if ledger.Len() == 0 {
		logger.Info("seen-job ledger is already empty")
		return
	}

	if cmd.Flag("auto-approve").Value.String() == "false" {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Delete all %d seen-job records?", ledger.Len()),
			Items: []string{PromptYes, PromptNo},
		}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	ledger.Reset()
	if err := ledger.Flush(); err != nil {
		logger.Fatal("flushing seen-job ledger", zap.Error(err))
	}

	logger.Info("seen-job ledger erased")
}
