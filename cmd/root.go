package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobhound/internal/runner"
)

const (
	appName   = "jobhound"
	envPrefix = "JOBHOUND"
)

type Config struct {
	Search   SearchConfig    `mapstructure:"search"`
	Lookback runner.Lookback `mapstructure:"lookback"`
	Resume   ResumeConfig    `mapstructure:"resume"`
	Filters  FiltersConfig   `mapstructure:"filters"`
	Match    MatchConfig     `mapstructure:"match"`
	AI       AIConfig        `mapstructure:"ai"`
	Store    StoreConfig     `mapstructure:"store"`
	Notify   NotifyConfig    `mapstructure:"notify"`
	Lock     LockConfig      `mapstructure:"lock"`
	Schedule ScheduleConfig  `mapstructure:"schedule"`
}

type SearchConfig struct {
	URL               string  `mapstructure:"url"`
	MaxJobs           int     `mapstructure:"max-jobs"`
	UserAgent         string  `mapstructure:"user-agent"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

type ResumeConfig struct {
	Path string `mapstructure:"path"`
}

type FiltersConfig struct {
	MinSkillMatches  int      `mapstructure:"min-skill-matches"`
	TitleKeywords    []string `mapstructure:"title-keywords"`
	RequiredSkills   []string `mapstructure:"required-skills"`
	ExcludeCompanies []string `mapstructure:"exclude-companies"`
	ExcludeFile      string   `mapstructure:"exclude-file"`
}

type MatchConfig struct {
	MinScore          float64 `mapstructure:"min-score"`
	ForceNotify       bool    `mapstructure:"force-notify"`
	BatchSize         int     `mapstructure:"batch-size"`
	DescriptionBudget int     `mapstructure:"description-budget"`
}

type AIConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Gemini  GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string   `mapstructure:"api-key"`
	APIKeyFile   string   `mapstructure:"api-key-file"`
	Models       []string `mapstructure:"models"`
	MaxRetries   int      `mapstructure:"max-retries"`
	MaxLogLength int      `mapstructure:"max-log-length"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type NotifyConfig struct {
	Discord DiscordConfig `mapstructure:"discord"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
}

type DiscordConfig struct {
	WebhookURL     string `mapstructure:"webhook-url"`
	WebhookURLFile string `mapstructure:"webhook-url-file"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LockConfig struct {
	RedisURL string        `mapstructure:"redis-url"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ScheduleConfig struct {
	Timezone  string `mapstructure:"timezone"`
	StartHour int    `mapstructure:"start-hour"`
	EndHour   int    `mapstructure:"end-hour"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "jobhound scrapes LinkedIn job postings, scores them against a resume and sends the best matches to Discord",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobhound.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.max-jobs", 30)
	v.SetDefault("search.requests-per-second", 0.5)
	v.SetDefault("lookback.startup", runner.DefaultStartupLookback)
	v.SetDefault("lookback.morning", runner.DefaultMorningLookback)
	v.SetDefault("lookback.hourly", runner.DefaultHourlyLookback)
	v.SetDefault("filters.min-skill-matches", 3)
	v.SetDefault("match.min-score", runner.DefaultMinScore)
	v.SetDefault("match.batch-size", 5)
	v.SetDefault("match.description-budget", 2500)
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.gemini.models", []string{"gemini-2.5-flash"})
	v.SetDefault("ai.gemini.max-retries", 2)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("store.dsn", "jobhound.db")
	v.SetDefault("notify.amqp.exchange", "jobhound")
	v.SetDefault("lock.ttl", 30*time.Minute)
	v.SetDefault("schedule.timezone", "Asia/Kolkata")
	v.SetDefault("schedule.start-hour", 7)
	v.SetDefault("schedule.end-hour", 23)
}

// envKeys have no default value, so AutomaticEnv alone would not expose them
// to Unmarshal.
var envKeys = []string{
	"search.url",
	"search.user-agent",
	"resume.path",
	"filters.exclude-file",
	"ai.gemini.api-key",
	"notify.discord.webhook-url-file",
	"notify.amqp.url",
	"lock.redis-url",
	"lock.key",
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if err := v.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE", envPrefix+"_AI_GEMINI_API_KEY_FILE"); err != nil {
		return err
	}
	return v.BindEnv("notify.discord.webhook-url", "DISCORD_WEBHOOK_URL", envPrefix+"_NOTIFY_DISCORD_WEBHOOK_URL")
}

func initConfig() {
	// version does not need a config
	if versionCmd.CalledAs() != "" {
		return
	}

	// a missing .env is fine, the environment is used as is
	_ = godotenv.Load()

	if err := bindEnv(viper.GetViper()); err != nil {
		log.Fatalf("binding environment variables: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return config, nil
}
