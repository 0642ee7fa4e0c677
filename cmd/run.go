package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/discovery"
	"github.com/mhall-io/jobscout/internal/logger"
	"github.com/mhall-io/jobscout/internal/network"
	"github.com/mhall-io/jobscout/internal/pipeline"
	"github.com/mhall-io/jobscout/internal/report"
	"github.com/mhall-io/jobscout/internal/scoring"
	"github.com/mhall-io/jobscout/internal/scoring/gemini"
	"github.com/mhall-io/jobscout/internal/secrets"
	"github.com/mhall-io/jobscout/internal/state"
	"github.com/mhall-io/jobscout/internal/triage"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	topQueriesInReport = 10
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full discovery, triage, and scoring pipeline",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before spending scorer calls")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting jobscout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil || config.Triage == nil {
		logger.Fatal("triage rules are required in the configuration file")
	}

	env := openRunEnv(ctx, config, logger)

	sources := buildSources(config, env.tracker, logger)
	if len(sources) == 0 {
		logger.Fatal("no discovery sources configured",
			zap.String("hint", "configure discovery.companies or discovery.search.queries, or add boards with add-company"))
	}

	postings := discovery.CollectAll(ctx, sources, logger)
	if postings.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no postings discovered"))
		flush(env, logger)
		logger.Info("run summary", summaryFields(pipeline.Summary{})...)
		return
	}

	runState := env.pipe.Collect(postings)
	if len(runState.Candidates) == 0 {
		logger.Info("no candidates passed triage")
		flush(env, logger)
		logger.Info("run summary", summaryFields(runState.Summary)...)
		return
	}

	if env.scorer != nil && cmd.Flag("auto-approve").Value.String() == "false" {
		model := config.AI.Gemini.Model
		if model == "" {
			model = "gemini"
		}
		prompt := promptui.Select{
			Label: fmt.Sprintf("Score %d candidates with %s?", len(runState.Candidates), model),
			Items: []string{PromptYes, PromptNo},
		}
		_, action, err := prompt.Run()
		if err != nil {
			flush(env, logger)
			logger.Info("run summary", summaryFields(runState.Summary)...)
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			// Candidates stay unrecorded so the next run picks them up.
			logger.Info("exiting", zap.String("reason", "scoring declined"))
			flush(env, logger)
			logger.Info("run summary", summaryFields(runState.Summary)...)
			return
		}
	}

	// Fatal exits the process, so the summary goes out first on the
	// failure paths below.
	if err := env.pipe.Score(ctx, runState); err != nil {
		flush(env, logger)
		logger.Info("run summary", summaryFields(runState.Summary)...)
		logger.Fatal("scoring aborted", zap.Error(err))
	}

	generator := report.NewGenerator(config.DataDir, logger)
	path, err := generator.Generate(runState, env.tracker.Top(topQueriesInReport))
	if err != nil {
		flush(env, logger)
		logger.Info("run summary", summaryFields(runState.Summary)...)
		logger.Fatal("writing report", zap.Error(err))
	}
	env.pipe.MarkReported(runState)

	flush(env, logger)

	logger.Info("run complete",
		append(summaryFields(runState.Summary), zap.String("report", path))...)
}

// summaryFields renders a run summary for logging. Every exit path of run
// reports these counts, including aborts.
func summaryFields(s pipeline.Summary) []zap.Field {
	return []zap.Field{
		zap.Int("discovered", s.Discovered),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("malformed", s.Malformed),
		zap.Int("triaged_out", s.TriagedOut),
		zap.Int("passed", s.Passed),
		zap.Int("scored", s.Scored),
		zap.Int("errors", s.Errors),
	}
}

// runEnv bundles the stateful components a command needs.
type runEnv struct {
	ledger  *state.Ledger
	tracker *state.Tracker
	pipe    *pipeline.Pipeline
	scorer  scoring.Scorer
}

// openRunEnv loads state, validates rules, and wires the pipeline. Any
// failure here is fatal before external calls are made.
func openRunEnv(ctx context.Context, config *Config, logger *zap.Logger) *runEnv {
	ledger, err := state.OpenLedger(config.DataDir, logger)
	if err != nil {
		logger.Fatal("loading seen-job ledger", zap.Error(err))
	}
	tracker, err := state.OpenTracker(config.DataDir, logger)
	if err != nil {
		logger.Fatal("loading query tracker", zap.Error(err))
	}

	rules := &triage.Rules{
		PositiveKeywords: config.Triage.PositiveKeywords,
		NegativeKeywords: config.Triage.NegativeKeywords,
		AcceptedRegions:  config.Triage.AcceptedRegions,
		MinScore:         config.Triage.MinScore,
		PositiveCap:      config.Triage.PositiveCap,
	}
	if err := rules.Normalize(); err != nil {
		logger.Fatal("invalid triage rules", zap.Error(err))
	}

	matcher := buildMatcher(config.Network, logger)

	scorer, err := newScorer(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building scorer", zap.Error(err))
	}

	cfg := pipeline.Config{}
	if config.AI != nil {
		if config.AI.MaxRetries > 0 {
			cfg.MaxScoreAttempts = uint64(config.AI.MaxRetries)
		}
		cfg.ScoreRatePerSecond = config.AI.RatePerSecond
	}

	return &runEnv{
		ledger:  ledger,
		tracker: tracker,
		scorer:  scorer,
		pipe:    pipeline.New(ledger, tracker, rules, matcher, scorer, cfg, logger),
	}
}

func buildMatcher(cfg *NetworkConfig, logger *zap.Logger) *network.Matcher {
	if cfg == nil || cfg.ConnectionsFile == "" {
		return nil
	}

	connections, err := network.LoadConnections(cfg.ConnectionsFile, logger)
	if err != nil {
		logger.Fatal("loading connections export", zap.Error(err))
	}
	if len(connections) == 0 {
		return nil
	}

	matcher, err := network.NewMatcher(connections, network.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxMatches:          cfg.MaxMatches,
	}, logger)
	if err != nil {
		logger.Fatal("invalid network matcher configuration", zap.Error(err))
	}

	return matcher
}

// buildSources assembles discovery sources from the config and the
// companies registry maintained by add-company and expand-ats. Web search
// queries run in historical-yield order.
func buildSources(config *Config, tracker *state.Tracker, logger *zap.Logger) []discovery.Source {
	var sources []discovery.Source

	registry, err := discovery.LoadCompanies(config.DataDir)
	if err != nil {
		logger.Fatal("loading companies registry", zap.Error(err))
	}

	var configured []discovery.CompanyRef
	var maxAge time.Duration
	if config.Discovery != nil {
		configured = config.Discovery.Companies
		maxAge = time.Duration(config.Discovery.MaxAgeHours) * time.Hour
	}

	if companies := discovery.MergeCompanies(configured, registry); len(companies) > 0 {
		sources = append(sources, discovery.NewATSPoller(companies, maxAge, logger))
	}

	if config.Discovery == nil {
		return sources
	}

	search := config.Discovery.Search
	if search != nil && len(search.Queries) > 0 {
		queries := tracker.Rank(search.Queries)
		sources = append(sources, webSearchSource(search, queries, logger))
	}

	return sources
}

func webSearchSource(search *SearchConfig, queries []string, logger *zap.Logger) discovery.Source {
	apiKey := ""
	keyFile := search.APIKeyFile
	if keyFile == "" {
		keyFile = viper.GetString("discovery.search.api-key-file")
	}
	if keyFile != "" {
		key, err := secrets.SearchAPIKey(keyFile)
		if err != nil {
			logger.Warn("skipping web search discovery", zap.Error(err))
		} else {
			apiKey = key
		}
	}

	return discovery.NewWebSearch(apiKey, queries, logger)
}

func newScorer(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (scoring.Scorer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai scoring is enabled")
	}

	apiKey, err := secrets.GeminiAPIKey(cfg.Gemini.APIKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	profile := ""
	if cfg.ProfileFile != "" {
		data, err := os.ReadFile(cfg.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("reading profile file: %w", err)
		}
		profile = string(data)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	scorerLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
	)

	return gemini.NewScorer(generator, profile, cfg.Gemini.MaxLogLength, scorerLogger), nil
}

// flush persists ledger and tracker once, at the end of a command.
func flush(env *runEnv, logger *zap.Logger) {
	if err := env.ledger.Flush(); err != nil {
		logger.Fatal("flushing seen-job ledger", zap.Error(err))
	}
	if err := env.tracker.Flush(); err != nil {
		logger.Fatal("flushing query tracker", zap.Error(err))
	}
}
