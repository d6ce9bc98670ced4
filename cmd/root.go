package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/ingest"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/quota"
	"github.com/spigell/job-radar/internal/recommend"
	"github.com/spigell/job-radar/internal/scheduler"
	"github.com/spigell/job-radar/internal/sources/partner"
)

const (
	app = "job-radar"
)

type Config struct {
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	AI        *AIConfig        `mapstructure:"ai"`
	Sources   SourcesConfig    `mapstructure:"sources"`
	Merge     MergeConfig      `mapstructure:"merge"`
	Ingest    ingest.Config    `mapstructure:"ingest"`
	Embedding EmbeddingConfig  `mapstructure:"embedding"`
	Quota     quota.Config     `mapstructure:"quota"`
	Recommend recommend.Config `mapstructure:"recommend"`
	Schedule  scheduler.Config `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url" json:"-"`
	URLFile string `mapstructure:"url-file"`
}

type RedisConfig struct {
	// Addr is a redis:// URL or host:port. Empty keeps caches in process.
	Addr string `mapstructure:"addr" json:"-"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey             string `mapstructure:"api-key" json:"-"`
	APIKeyFile         string `mapstructure:"api-key-file"`
	Model              string `mapstructure:"model"`
	EmbeddingModel     string `mapstructure:"embedding-model"`
	MaxRetries         int    `mapstructure:"max-retries"`
	MaxLogLength       int    `mapstructure:"max-log-length"`
	EmbeddingBatchSize int    `mapstructure:"embedding-batch-size"`
	Dimensions         int    `mapstructure:"dimensions"`
}

type SourcesConfig struct {
	HeadHunter struct {
		Token      string         `mapstructure:"token" json:"-"`
		TokenFile  string         `mapstructure:"token-file"`
		Areas      map[string]int `mapstructure:"areas"`
		PeriodDays uint           `mapstructure:"period-days"`
	} `mapstructure:"headhunter"`
	Adzuna struct {
		AppID   string `mapstructure:"app-id"`
		AppKey  string `mapstructure:"app-key" json:"-"`
		Country string `mapstructure:"country"`
		BaseURL string `mapstructure:"base-url"`
	} `mapstructure:"adzuna"`
	Scraper struct {
		Token      string        `mapstructure:"token" json:"-"`
		TokenFile  string        `mapstructure:"token-file"`
		ActorID    string        `mapstructure:"actor-id"`
		BaseURL    string        `mapstructure:"base-url"`
		PollBudget time.Duration `mapstructure:"poll-budget"`
	} `mapstructure:"scraper"`
	Partners []partner.Page `mapstructure:"partners"`
}

type MergeConfig struct {
	Version    string   `mapstructure:"version"`
	Priorities []string `mapstructure:"priorities"`
}

type EmbeddingConfig struct {
	embedding.Config      `mapstructure:",squash"`
	embedding.QueueConfig `mapstructure:",squash"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-radar collects job postings from several sources and recommends them to users",
	}
)

// Execute executes the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

var envBindings = map[string]string{
	"database.url":                  "DATABASE_URL",
	"redis.addr":                    "REDIS_URL",
	"ai.gemini.api-key-file":        "GEMINI_API_KEY_FILE",
	"sources.headhunter.token-file": "HH_TOKEN_FILE",
	"sources.adzuna.app-id":         "ADZUNA_APP_ID",
	"sources.adzuna.app-key":        "ADZUNA_APP_KEY",
	"sources.scraper.token-file":    "SCRAPER_TOKEN_FILE",
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-radar.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		// An explicit file must parse.
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	config := &Config{
		Ingest:    ingest.DefaultConfig(),
		Quota:     quota.DefaultConfig(),
		Schedule:  scheduler.DefaultConfig(),
		Embedding: EmbeddingConfig{Config: embedding.DefaultConfig(), QueueConfig: embedding.DefaultQueueConfig()},
	}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}

// bootstrap builds the logger and decodes the config. It exits on failure.
func bootstrap(command string) (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the job-radar", zap.String("command", command), zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}
