package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Hasura     HasuraConfig     `yaml:"hasura" mapstructure:"hasura"`
	Verifier   VerifierConfig   `yaml:"verifier" mapstructure:"verifier"`
	Telegram   TelegramConfig   `yaml:"telegram" mapstructure:"telegram"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// HasuraConfig holds the delinquency GraphQL endpoint settings.
type HasuraConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	AdminSecret string `yaml:"admin_secret" mapstructure:"admin_secret"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VerifierConfig holds the subscriber verification API settings.
type VerifierConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	// BreakerThreshold is the number of consecutive lookup failures after
	// which remaining lookups fail fast. Zero disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// TelegramConfig holds the chat front end settings.
type TelegramConfig struct {
	Token           string `yaml:"token" mapstructure:"token"`
	AdminID         int64  `yaml:"admin_id" mapstructure:"admin_id"`
	Locale          string `yaml:"locale" mapstructure:"locale"`
	PollTimeoutSecs int    `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
}

// ScheduleConfig configures the daily export run. An empty Cron disables it.
type ScheduleConfig struct {
	Cron     string `yaml:"cron" mapstructure:"cron"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// ExportConfig configures where spreadsheets are written before delivery.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the status server. Port 0 disables it.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures failure alerts.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DELINQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to "" so AutomaticEnv binds them on Unmarshal.
	v.SetDefault("hasura.url", "")
	v.SetDefault("hasura.admin_secret", "")
	v.SetDefault("hasura.schema", "mk01")
	v.SetDefault("hasura.timeout_secs", 30)
	v.SetDefault("verifier.url", "https://api.junior.online.dev.br/verificar")
	v.SetDefault("verifier.token", "")
	v.SetDefault("verifier.timeout_secs", 15)
	v.SetDefault("verifier.rate_per_sec", 5.0)
	v.SetDefault("verifier.breaker_threshold", 0)
	v.SetDefault("verifier.breaker_reset_secs", 60)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", 0)
	v.SetDefault("telegram.locale", "en")
	v.SetDefault("telegram.poll_timeout_secs", 60)
	v.SetDefault("schedule.cron", "0 8 * * *")
	v.SetDefault("schedule.timezone", "America/Sao_Paulo")
	v.SetDefault("export.dir", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode: "pipeline" for
// one-shot fetch/verify/export commands, "bot" for the long-running server.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "pipeline", "bot":
		if c.Hasura.URL == "" {
			errs = append(errs, "hasura.url is required (DELINQ_HASURA_URL)")
		}
		if c.Verifier.URL == "" {
			errs = append(errs, "verifier.url is required (DELINQ_VERIFIER_URL)")
		}
		if c.Verifier.Token == "" {
			errs = append(errs, "verifier.token is required (DELINQ_VERIFIER_TOKEN)")
		}
		if c.Verifier.BreakerThreshold < 0 {
			errs = append(errs, "verifier.breaker_threshold must not be negative")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if mode == "bot" {
		if c.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required (DELINQ_TELEGRAM_TOKEN)")
		}
		if c.Telegram.AdminID == 0 {
			errs = append(errs, "telegram.admin_id is required (DELINQ_TELEGRAM_ADMIN_ID)")
		}
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 0 and 65535")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out := *c
	out.Hasura.AdminSecret = mask(c.Hasura.AdminSecret)
	out.Verifier.Token = mask(c.Verifier.Token)
	out.Telegram.Token = mask(c.Telegram.Token)
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
