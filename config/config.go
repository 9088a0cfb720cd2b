// Ininicializing common application configuration
package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Claim    ClaimConfig    `mapstructure:"claim"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

type ServerConfig struct {
	AppVersion   string `json:"appVersion"`
	Host         string `json:"host" validate:"required"`
	Port         string `json:"port" validate:"required"`
	Timeout      time.Duration
	Idle_timeout time.Duration
	Env          string `json:"environment"`
	Mode         string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `json:"URL"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"required"`
	Password string `json:"password"`
	DB       int    `json:"db"`

	// Настройки пула соединений
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	MaxIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Enabled bool   `mapstructure:"enabled"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	Enabled  bool   `mapstructure:"enabled"`
}

// ClaimConfig governs the reservation TTL and credential generation.
type ClaimConfig struct {
	TTLMinutes       int `mapstructure:"ttl_minutes"`
	SixCodeAttempts  int `mapstructure:"six_code_attempts"`
	MaxClaimsPerUser int `mapstructure:"max_claims_per_user"` // fallback when the offer has no limit
}

type WorkerConfig struct {
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	DripIntervalMinutes  int `mapstructure:"drip_interval_minutes"`
	BatchSize            int `mapstructure:"batch_size"`
}

type QueueConfig struct {
	MainQueue    string `mapstructure:"main_queue"`
	DelayedQueue string `mapstructure:"delayed_queue"`
	DLQ          string `mapstructure:"dlq"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Fatalf("unable to decode config into struct, %v", err)
		return nil, err
	}
	return &c, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ClaimTTL returns the configured reservation lifetime.
func (c *Config) ClaimTTL() time.Duration {
	if c.Claim.TTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Claim.TTLMinutes) * time.Minute
}

// SweepInterval returns how often the expiry sweeper runs. Claim TTLs are
// short, so minute granularity is the floor.
func (c *Config) SweepInterval() time.Duration {
	if c.Worker.SweepIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Worker.SweepIntervalMinutes) * time.Minute
}

func (c *Config) DripInterval() time.Duration {
	if c.Worker.DripIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Worker.DripIntervalMinutes) * time.Minute
}
