package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mhall-io/jobscout/internal/discovery"
)

const (
	app = "jobscout"
)

type Config struct {
	DataDir   string           `mapstructure:"data-dir"`
	Triage    *TriageConfig    `mapstructure:"triage"`
	Network   *NetworkConfig   `mapstructure:"network"`
	Discovery *DiscoveryConfig `mapstructure:"discovery"`
	AI        *AIConfig        `mapstructure:"ai"`
}

type TriageConfig struct {
	PositiveKeywords []string `mapstructure:"positive-keywords"`
	NegativeKeywords []string `mapstructure:"negative-keywords"`
	AcceptedRegions  []string `mapstructure:"accepted-regions"`
	// MinScore stays a pointer so an explicit zero is distinguishable
	// from an absent key.
	MinScore    *int `mapstructure:"min-score"`
	PositiveCap int  `mapstructure:"positive-cap"`
}

type NetworkConfig struct {
	ConnectionsFile     string  `mapstructure:"connections-file"`
	SimilarityThreshold float64 `mapstructure:"similarity-threshold"`
	MaxMatches          int     `mapstructure:"max-matches"`
}

type DiscoveryConfig struct {
	MaxAgeHours int                    `mapstructure:"max-age-hours"`
	Companies   []discovery.CompanyRef `mapstructure:"companies"`
	Search      *SearchConfig          `mapstructure:"search"`
}

type SearchConfig struct {
	APIKeyFile string   `mapstructure:"api-key-file"`
	Queries    []string `mapstructure:"queries"`
}

type AIConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Provider      string        `mapstructure:"provider"`
	ProfileFile   string        `mapstructure:"profile-file"`
	MaxRetries    int           `mapstructure:"max-retries"`
	RatePerSecond float64       `mapstructure:"rate-per-second"`
	Gemini        *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobscout discovers job postings, triages them, and surfaces the best candidates",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("discovery.search.api-key-file", "SEARCHAPI_KEY_FILE"); err != nil {
		log.Fatalf("binding SEARCHAPI_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobscout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	viper.SetDefault("data-dir", "data")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine; status and reset work with the
	// data-dir default. An explicitly given or unparsable config is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
