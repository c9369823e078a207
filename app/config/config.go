package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	// MonthlyUsageLimit is the number of AI answered messages a user gets per calendar month.
	MonthlyUsageLimit = 400
	// SessionHistoryWindow is how many messages of the active session go into a prompt.
	SessionHistoryWindow = 10
	SummaryWindowRecent  = 100
	SummaryWindowAll     = 1000

	DefaultYoutubeChannelURL = "https://t.me/sokhannegar_bot"
)

type Config struct {
	BotName     string
	Environment string `env:"ENV" envDefault:"dev"`

	TelegramBotToken      string `env:"TELEGRAM_BOT_TOKEN,required"`
	TelegramWebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramSystemTo      int64  `env:"TELEGRAM_SYSTEM_TO"`
	BackendBaseURL        string `env:"BACKEND_BASE_URL"`
	ListenAddress         string `env:"BACKEND_LISTEN_ADDRESS" envDefault:":3000"`
	WebhookPath           string `env:"WEBHOOK_PATH" envDefault:"/api/telegram"`

	AI AI

	MongoDBConnection string `env:"MONGO_DB_CONNECTION_STRING" envDefault:"mongodb://localhost:27017"`
	MongoDBName       string `env:"MONGO_DB_NAME" envDefault:"chatrelay"`

	Redis Redis

	DataDogAddress       string        `env:"DATADOG_ADDRESS" envDefault:"datadog-agent.default.svc.cluster.local:8125"`
	StatusWorkerInterval time.Duration `env:"STATUS_WORKER_INTERVAL" envDefault:"1m"`

	MonthlyUsageLimit    int    `env:"MONTHLY_USAGE_LIMIT" envDefault:"400"`
	SessionHistoryWindow int    `env:"SESSION_HISTORY_WINDOW" envDefault:"10"`
	YoutubeChannelURL    string `env:"YOUTUBE_CHANNEL_URL" envDefault:"https://t.me/sokhannegar_bot"`
}

type AI struct {
	APIKey  string `env:"OPENROUTER_API_KEY"`
	BaseURL string `env:"AI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	Model   string `env:"AI_MODEL" envDefault:"quasar-openai/quasar-7b-chat-alpha"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside of local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("Load: failed to parse environment: %w", err)
	}
	if cfg.MonthlyUsageLimit <= 0 {
		cfg.MonthlyUsageLimit = MonthlyUsageLimit
	}
	if cfg.SessionHistoryWindow <= 0 {
		cfg.SessionHistoryWindow = SessionHistoryWindow
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
