package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/discovery"
	"github.com/mhall-io/jobscout/internal/logger"
)

var expandATSCmd = &cobra.Command{
	Use:   "expand-ats <linkedin-export-dir>",
	Short: "Probe ATS boards for companies found in a LinkedIn data export",
	Long: `Reads Saved Jobs and Company Follows from a LinkedIn data export,
probes Greenhouse, Lever, and Ashby for each company not yet monitored,
and adds confirmed boards to the registry.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		expandATS(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(expandATSCmd)

	expandATSCmd.Flags().BoolP("auto-approve", "y", false, "add every detected board without prompting")
}

func expandATS(cmd *cobra.Command, exportDir string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	companies, err := discovery.LoadCompanies(config.DataDir)
	if err != nil {
		logger.Fatal("loading companies registry", zap.Error(err))
	}

	// Companies in the config count as monitored too, or expand-ats would
	// keep rediscovering them.
	monitored := companies
	if config.Discovery != nil {
		monitored = discovery.MergeCompanies(companies, config.Discovery.Companies)
	}
	existing := make([]string, 0, len(monitored))
	for _, company := range monitored {
		existing = append(existing, company.Name)
	}

	candidates, err := discovery.ExtractCandidateCompanies(exportDir, existing, logger)
	if err != nil {
		logger.Fatal("extracting candidate companies", zap.Error(err))
	}
	if len(candidates) == 0 {
		logger.Info("no new companies found in the export")
		return
	}

	logger.Info("probing candidates for ats boards", zap.Int("candidates", len(candidates)))

	detector := discovery.NewDetector(logger)
	var detected []discovery.CompanyRef
	var undetected []string
	for _, candidate := range candidates {
		ref, err := detector.Detect(ctx, candidate)
		if err != nil {
			logger.Fatal("probing aborted", zap.Error(err))
		}
		if ref == nil {
			undetected = append(undetected, candidate)
			continue
		}
		detected = append(detected, *ref)
	}

	logger.Info("probing finished",
		zap.Int("detected", len(detected)),
		zap.Int("undetected", len(undetected)),
	)

	autoApprove := cmd.Flag("auto-approve").Value.String() == "true"
	added := 0
	for _, ref := range detected {
		if !autoApprove {
			prompt := promptui.Select{
				Label: fmt.Sprintf("Add %s (%s, token: %s)?", ref.Name, ref.ATS, ref.BoardToken),
				Items: []string{PromptYes, PromptNo},
			}
			_, action, err := prompt.Run()
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
			if action == PromptNo {
				continue
			}
		}
		companies = append(companies, ref)
		added++
	}

	if added > 0 {
		if err := discovery.SaveCompanies(config.DataDir, companies); err != nil {
			logger.Fatal("saving companies registry", zap.Error(err))
		}
	}
	logger.Info("registry updated",
		zap.Int("added", added),
		zap.Int("total", len(companies)),
	)

	// Surface the misses so boards on unsupported platforms can be added
	// by hand with add-company.
	for _, name := range undetected {
		logger.Info("no ats detected", zap.String("company", name))
	}
}
