package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/ai/gemini"
	"github.com/spigell/jobhound/internal/filtering"
	"github.com/spigell/jobhound/internal/linkedin"
	"github.com/spigell/jobhound/internal/lock"
	"github.com/spigell/jobhound/internal/logger"
	"github.com/spigell/jobhound/internal/match"
	"github.com/spigell/jobhound/internal/match/rulebased"
	"github.com/spigell/jobhound/internal/notify"
	"github.com/spigell/jobhound/internal/resume"
	"github.com/spigell/jobhound/internal/runner"
	"github.com/spigell/jobhound/internal/secrets"
	"github.com/spigell/jobhound/internal/store"
)

const redacted = "<redacted>"

var errDeclined = errors.New("force notify was not confirmed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single scrape, match and notify pass",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("force-notify", false, "notify every new posting regardless of pre-filter and score")
	runCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation when force notify is set")
	runCmd.Flags().String("run-type", string(runner.RunManual), "lookback window to use: manual, startup, morning or hourly")
	runCmd.Flags().Bool("dump", false, "dump postings that passed the pre-filter to a temp file")

	viper.BindPFlag("match.force-notify", runCmd.Flags().Lookup("force-notify"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobhound", zap.String("version", version))
	logger.Debug(fmt.Sprintf("starting with config: \n %s", prettyConfig(config)))

	runType, err := runner.ParseRunType(cmd.Flag("run-type").Value.String())
	if err != nil {
		logger.Fatal("parsing run type", zap.Error(err))
	}

	if config.Match.ForceNotify && cmd.Flag("yes").Value.String() == "false" {
		if err := confirmForce(); err != nil {
			logger.Info("exiting", zap.String("reason", err.Error()))
			return
		}
	}

	dump := cmd.Flag("dump").Value.String() == "true"

	a, err := newApp(ctx, config, runType, dump, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}

	summary := a.runner.Run(ctx, runType)
	a.Close()

	if summary.Status == notify.RunFailed {
		logger.Fatal("run failed", zap.Strings("errors", summary.Errors))
	}
}

func confirmForce() error {
	p := promptui.Prompt{
		Label:     "Force notify sends every new posting regardless of filters and score. Proceed",
		IsConfirm: true,
	}

	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return errDeclined
		}
		return err
	}
	return nil
}

// prettyConfig renders the config for debug output with secrets removed.
func prettyConfig(config *Config) string {
	if config == nil {
		return "{}"
	}

	c := *config
	if c.AI.Gemini.APIKey != "" {
		c.AI.Gemini.APIKey = redacted
	}
	if c.Notify.Discord.WebhookURL != "" {
		c.Notify.Discord.WebhookURL = redacted
	}
	if c.Notify.AMQP.URL != "" {
		c.Notify.AMQP.URL = redacted
	}
	if c.Lock.RedisURL != "" {
		c.Lock.RedisURL = redacted
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(c, "", "  ")
	return string(pretty)
}

// app owns the collaborators of a runner and releases them on Close.
type app struct {
	runner  *runner.Runner
	closers []func() error
	logger  *zap.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resources", zap.Error(err))
		}
	}
	a.closers = nil
}

// newApp builds the notifier first, so a failure in any later setup step is
// still reported with a failed run summary.
func newApp(ctx context.Context, config *Config, runType runner.RunType, dump bool, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}
	notifier := newNotifier(a, config, logger)

	if err := a.build(ctx, config, notifier, dump); err != nil {
		runner.Abort(ctx, notifier, runType, err, logger)
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) build(ctx context.Context, config *Config, notifier notify.Notifier, dump bool) error {
	logger := a.logger

	if strings.TrimSpace(config.Search.URL) == "" {
		return errors.New("search.url is required")
	}

	st, err := store.Open(ctx, config.Store.DSN, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, st.Close)

	matcher := newMatcher(ctx, config, logger)

	locker, err := newLocker(ctx, a, config, logger)
	if err != nil {
		return fmt.Errorf("building run lock: %w", err)
	}

	resumePath := config.Resume.Path
	r, err := runner.New(runner.Config{
		SearchURL:        config.Search.URL,
		MaxJobs:          config.Search.MaxJobs,
		Lookback:         config.Lookback,
		MinScore:         config.Match.MinScore,
		ForceNotify:      config.Match.ForceNotify,
		ExcludeCompanies: config.Filters.ExcludeCompanies,
		ExcludeFile:      config.Filters.ExcludeFile,
		Keywords: filtering.KeywordsConfig{
			TitleKeywords:   config.Filters.TitleKeywords,
			RequiredSkills:  config.Filters.RequiredSkills,
			MinSkillMatches: config.Filters.MinSkillMatches,
		},
		DumpPostings: dump,
	}, runner.Deps{
		Scraper:  linkedin.New(logger, config.Search.UserAgent, config.Search.RequestsPerSecond),
		Matcher:  matcher,
		Store:    st,
		Notifier: notifier,
		Locker:   locker,
		Profile:  func() (*resume.Profile, error) { return resume.ParseFile(resumePath) },
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	a.runner = r

	return nil
}

// newMatcher builds the strategy chain: one batch strategy per configured
// gemini model, then the rule-based matcher.
func newMatcher(ctx context.Context, config *Config, logger *zap.Logger) *match.Chain {
	var strategies []match.Strategy

	if config.AI.Enabled {
		llm, err := newGeminiStrategies(ctx, &config.AI.Gemini, config.Match.DescriptionBudget, logger)
		if err != nil {
			logger.Warn("skipping gemini analysis, only rule-based matching is used",
				zap.Error(err),
				zap.String("hint", "set GEMINI_API_KEY, ai.gemini.api-key-file or GEMINI_API_KEY_FILE"),
			)
		}
		strategies = append(strategies, llm...)
	}

	strategies = append(strategies, rulebased.New(logger))

	return match.NewChain(logger, config.Match.BatchSize, strategies...)
}

func newGeminiStrategies(ctx context.Context, cfg *GeminiConfig, budget int, log *zap.Logger) ([]match.Strategy, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	strategies := make([]match.Strategy, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		genLogger := log.With(zap.Int("ai_retry_attempts", cfg.MaxRetries))

		generator, err := gemini.NewGenerator(client, model, cfg.MaxRetries, genLogger)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, gemini.NewBatchStrategy(generator, genLogger, budget, cfg.MaxLogLength))
	}

	return strategies, nil
}

// newNotifier never fails: a sink that cannot be set up is logged and left out.
func newNotifier(a *app, config *Config, log *zap.Logger) notify.Notifier {
	webhook, err := secrets.Load(secrets.Source{
		Name:  "discord webhook",
		Value: config.Notify.Discord.WebhookURL,
		File:  config.Notify.Discord.WebhookURLFile,
	})
	if err != nil {
		log.Warn("discord notifications are disabled", zap.Error(err))
	}

	sinks := []notify.Notifier{notify.NewDiscord(webhook, log)}

	if url := strings.TrimSpace(config.Notify.AMQP.URL); url != "" {
		publisher, err := notify.DialAMQP(url, config.Notify.AMQP.Exchange, log)
		if err != nil {
			log.Warn("amqp notifications are disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, publisher.Close)
			sinks = append(sinks, publisher)
		}
	}

	return notify.NewMulti(log, sinks...)
}

func newLocker(ctx context.Context, a *app, config *Config, log *zap.Logger) (lock.Locker, error) {
	url := strings.TrimSpace(config.Lock.RedisURL)
	if url == "" {
		return lock.Noop{}, nil
	}

	client, err := lock.NewRedisClient(ctx, url)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	return lock.NewRedis(client, config.Lock.Key, config.Lock.TTL, log), nil
}
