package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-badges/internal/config"
	"github.com/naka-gawa/github-badges/internal/gateway"
	"github.com/naka-gawa/github-badges/internal/metrics"
	"github.com/naka-gawa/github-badges/internal/render"
	"github.com/naka-gawa/github-badges/internal/store"
	"github.com/naka-gawa/github-badges/internal/usecase"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Fetches GitHub statistics and renders all SVG badges",
	Long: `Fetches the statistics of the account that owns ACCESS_TOKEN, merges today's
repository traffic into the persisted history and renders the overview, languages
and per-repository badges.

Configuration is read from the environment: ACCESS_TOKEN and GITHUB_ACTOR are
required; EXCLUDED, EXCLUDED_LANGS and EXCLUDE_FORKED_REPOS are optional.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("template-dir", config.DefaultTemplateDir, "Directory holding the SVG templates")
	cobra.CheckErr(viper.BindPFlag(config.KeyTemplateDir, generateCmd.Flags().Lookup("template-dir")))

	generateCmd.Flags().String("output-dir", config.DefaultOutputDir, "Directory the badges are written to")
	cobra.CheckErr(viper.BindPFlag(config.KeyOutputDir, generateCmd.Flags().Lookup("output-dir")))

	generateCmd.Flags().Int("concurrency", config.DefaultConcurrency, "Number of repositories whose traffic is fetched in parallel")
	cobra.CheckErr(viper.BindPFlag(config.KeyConcurrency, generateCmd.Flags().Lookup("concurrency")))

	generateCmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus text format to this file")
	cobra.CheckErr(viper.BindPFlag(config.KeyMetricsFile, generateCmd.Flags().Lookup("metrics-file")))
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// Inject dependencies and run the main business logic.
	githubGateway, err := gateway.NewGitHubGateway(cfg.AccessToken, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	source := usecase.NewStats(githubGateway, usecase.Filter{
		ExcludedRepos:      cfg.ExcludedRepos,
		ExcludedLangs:      cfg.ExcludedLangs,
		ExcludeForkedRepos: cfg.ExcludeForkedRepos,
	}, logger)
	renderer := render.NewRenderer(cfg.TemplateDir, cfg.OutputDir, logger)
	history := store.NewHistoryStore(cfg.StatsFile)
	recorder := metrics.NewRecorder()

	logger.Info("starting badge generation",
		zap.String("user", cfg.User),
		zap.Strings("excluded_repos", cfg.ExcludedRepos),
		zap.Strings("excluded_langs", cfg.ExcludedLangs),
		zap.Bool("exclude_forked_repos", cfg.ExcludeForkedRepos))

	runErr := usecase.NewGenerator(source, renderer, history, recorder, cfg.Concurrency, logger).Run(cmd.Context())

	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("could not write metrics", zap.Error(err))
		}
	}
	if runErr != nil {
		return fmt.Errorf("failed to generate badges: %w", runErr)
	}
	return nil
}
