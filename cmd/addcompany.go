package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/discovery"
	"github.com/mhall-io/jobscout/internal/logger"
)

var supportedATS = []string{"greenhouse", "lever", "ashby"}

var addCompanyCmd = &cobra.Command{
	Use:   "add-company <name>",
	Short: "Add a company board to ATS monitoring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addCompany(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(addCompanyCmd)

	addCompanyCmd.Flags().String("ats", "", fmt.Sprintf("ATS platform, one of: %s", strings.Join(supportedATS, ", ")))
	addCompanyCmd.Flags().String("token", "", "board token / slug for the ATS")
	addCompanyCmd.MarkFlagRequired("ats")
	addCompanyCmd.MarkFlagRequired("token")
}

func addCompany(cmd *cobra.Command, name string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ats := cmd.Flag("ats").Value.String()
	token := cmd.Flag("token").Value.String()
	if !isSupportedATS(ats) {
		logger.Fatal("unsupported ats platform",
			zap.String("ats", ats),
			zap.Strings("supported", supportedATS),
		)
	}

	companies, err := discovery.LoadCompanies(config.DataDir)
	if err != nil {
		logger.Fatal("loading companies registry", zap.Error(err))
	}

	for _, existing := range companies {
		if strings.EqualFold(existing.Name, name) {
			logger.Info("company is already monitored",
				zap.String("company", existing.Name),
				zap.String("ats", existing.ATS),
			)
			return
		}
	}

	companies = append(companies, discovery.CompanyRef{Name: name, ATS: ats, BoardToken: token})
	if err := discovery.SaveCompanies(config.DataDir, companies); err != nil {
		logger.Fatal("saving companies registry", zap.Error(err))
	}

	logger.Info("company added to ats monitoring",
		zap.String("company", name),
		zap.String("ats", ats),
		zap.String("token", token),
		zap.Int("total", len(companies)),
	)
}

func isSupportedATS(ats string) bool {
	for _, supported := range supportedATS {
		if ats == supported {
			return true
		}
	}
	return false
}
