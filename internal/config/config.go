package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	EngineImage          string        `mapstructure:"engine_image"`
	TempDir              string        `mapstructure:"temp_dir"`
	ContainerCPULimit    int64         `mapstructure:"container_cpu_limit"`
	ContainerMemoryLimit int64         `mapstructure:"container_memory_limit"`
	CallbackBaseURL      string        `mapstructure:"callback_base_url"`
}

type ProvisioningConfig struct {
	SheetsServiceURL  string        `mapstructure:"sheets_service_url"`
	SheetsAPIKey      string        `mapstructure:"sheets_api_key"`
	WebhookServiceURL string        `mapstructure:"webhook_service_url"`
	WebhookAPIKey     string        `mapstructure:"webhook_api_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type EmailConfig struct {
	From             string   `mapstructure:"from"`
	SMTPHost         string   `mapstructure:"smtp_host"`
	SMTPPort         int      `mapstructure:"smtp_port"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"`
	MagicURLTemplate string   `mapstructure:"magic_url_template"`
	AlertRecipients  []string `mapstructure:"alert_recipients"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SessionConfig struct {
	CookieName   string `mapstructure:"cookie_name"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
}

type Config struct {
	DatabaseURL  string             `mapstructure:"database_url"`
	ServerPort   string             `mapstructure:"server_port"`
	JWTSecret    string             `mapstructure:"jwt_secret"`
	Session      SessionConfig      `mapstructure:"session"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Email        EmailConfig        `mapstructure:"email"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Temporal     TemporalConfig     `mapstructure:"temporal"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Session.CookieName == "" {
		config.Session.CookieName = "clipforge_session"
	}

	if config.Provisioning.RequestTimeout == 0 {
		config.Provisioning.RequestTimeout = 30 * time.Second
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.MagicURLTemplate == "" {
		config.Email.MagicURLTemplate = "https://app.clipforge.dev/auth/magic/verify?token=%s"
	}

	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 5 * time.Second
	}
	if config.Worker.EngineImage == "" {
		config.Worker.EngineImage = "clipforge/highlights-engine:latest"
	}

	if config.Temporal.HostPort == "" {
		config.Temporal.HostPort = "localhost:7233"
	}
	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}

	if config.RateLimit.RequestsPerSecond == 0 {
		config.RateLimit.RequestsPerSecond = 10
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 20
	}

	return &config
}
