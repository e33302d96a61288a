package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Email       EmailConfig       `yaml:"email"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	App         AppConfig         `yaml:"app"`
	Invitations InvitationsConfig `yaml:"invitations"`
	Rewards     RewardsConfig     `yaml:"rewards"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host" env:"SERVER_HOST"`
	Port     int    `yaml:"port" env:"SERVER_PORT"`
	GRPCPort int    `yaml:"grpc_port" env:"SERVER_GRPC_PORT"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Database string `yaml:"database" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
	Migrate  bool   `yaml:"migrate" env:"DB_MIGRATE"`
}

// StorageConfig selects the ledger store backend
type StorageConfig struct {
	Type string `yaml:"type" env:"STORAGE_TYPE"` // "postgres" or "memory"
}

// EmailConfig contains outbound mail settings
type EmailConfig struct {
	Provider       string `yaml:"provider" env:"EMAIL_PROVIDER"` // "sendgrid" or "log"
	SendGridAPIKey string `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	From           string `yaml:"from" env:"EMAIL_FROM"`
	FromName       string `yaml:"from_name" env:"EMAIL_FROM_NAME"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	MaxRetries     int    `yaml:"max_retries"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret" env:"JWT_SECRET"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// AppConfig contains settings used to build links in outbound email
type AppConfig struct {
	BaseURL string `yaml:"base_url" env:"APP_BASE_URL"`
	Name    string `yaml:"name"`
}

// InvitationsConfig contains invitation defaults
type InvitationsConfig struct {
	DefaultTTLDays int `yaml:"default_ttl_days"`
	MaxBatch       int `yaml:"max_batch"`
}

// RewardsConfig contains point amounts and bonus eligibility windows
type RewardsConfig struct {
	ClientAcceptedPoints    int `yaml:"client_accepted_points"`
	TrainerAcceptedPoints   int `yaml:"trainer_accepted_points"`
	RetentionBonusPoints    int `yaml:"retention_bonus_points"`
	VerificationBonusPoints int `yaml:"verification_bonus_points"`
	RetentionDelayDays      int `yaml:"retention_delay_days"`
	RetentionWindowHours    int `yaml:"retention_window_hours"`
	ActivityLookbackDays    int `yaml:"activity_lookback_days"`
	ReconcileLookbackDays   int `yaml:"reconcile_lookback_days"`
}

// SchedulerConfig contains cron schedule settings (seconds precision, UTC)
type SchedulerConfig struct {
	RetentionSweep        string `yaml:"retention_sweep"`
	ExpireInvitations     string `yaml:"expire_invitations"`
	ReconcileRewards      string `yaml:"reconcile_rewards"`
	ReconcileAchievements string `yaml:"reconcile_achievements"`
	ReconcileVerification string `yaml:"reconcile_verification"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Unset variables leave the YAML values in place
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "postgres"
	}
	switch c.Storage.Type {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Email.Provider == "" {
		c.Email.Provider = "log"
	}
	switch c.Email.Provider {
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email from address is required")
		}
	case "log":
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}
	if c.Email.Workers <= 0 {
		c.Email.Workers = 2
	}
	if c.Email.QueueSize <= 0 {
		c.Email.QueueSize = 100
	}
	if c.Email.MaxRetries < 0 {
		c.Email.MaxRetries = 0
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.App.Name == "" {
		c.App.Name = "Coachboard"
	}

	if c.Invitations.DefaultTTLDays <= 0 {
		c.Invitations.DefaultTTLDays = 7
	}
	if c.Invitations.MaxBatch <= 0 {
		c.Invitations.MaxBatch = 50
	}

	r := &c.Rewards
	if r.ClientAcceptedPoints == 0 {
		r.ClientAcceptedPoints = 10
	}
	if r.TrainerAcceptedPoints == 0 {
		r.TrainerAcceptedPoints = 25
	}
	if r.RetentionBonusPoints == 0 {
		r.RetentionBonusPoints = 25
	}
	if r.VerificationBonusPoints == 0 {
		r.VerificationBonusPoints = 50
	}
	if r.RetentionDelayDays == 0 {
		r.RetentionDelayDays = 30
	}
	if r.RetentionWindowHours == 0 {
		r.RetentionWindowHours = 24
	}
	if r.ActivityLookbackDays == 0 {
		r.ActivityLookbackDays = 7
	}
	if r.ReconcileLookbackDays == 0 {
		r.ReconcileLookbackDays = 30
	}

	s := &c.Scheduler
	if s.RetentionSweep == "" {
		s.RetentionSweep = "0 0 * * * *" // hourly
	}
	if s.ExpireInvitations == "" {
		s.ExpireInvitations = "0 */15 * * * *" // every 15 minutes
	}
	if s.ReconcileRewards == "" {
		s.ReconcileRewards = "0 30 * * * *" // hourly at :30
	}
	if s.ReconcileAchievements == "" {
		s.ReconcileAchievements = "0 0 3 * * *" // 3 AM UTC
	}
	if s.ReconcileVerification == "" {
		s.ReconcileVerification = "0 45 * * * *" // hourly at :45
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
