package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `json:"env"`
	Port     int            `json:"port"`
	AppName  string         `json:"app_name"`
	MongoDB  MongoDBConfig  `json:"mongodb"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	S3       S3Config       `json:"s3"`
	Upload   UploadConfig   `json:"upload"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	// How long per-job event history is retained, in minutes
	EventTTLMinutes int `json:"event_ttl_minutes"`
	// Cap on events retained per job
	EventLimit int `json:"event_limit"`
}

// RabbitMQConfig contains connection details for the outbound event bridge
type RabbitMQConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	VHost        string `json:"vhost"`
	ExchangeName string `json:"exchange_name"`
}

// S3Config contains object storage credentials and signing settings
type S3Config struct {
	AccessKey             string `json:"access_key"`
	SecretKey             string `json:"secret_key"`
	Bucket                string `json:"bucket"`
	Region                string `json:"region"`
	PresignTTLMinutes     int    `json:"presign_ttl_minutes"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// UploadConfig tunes the upload coordination core
type UploadConfig struct {
	MaxRetries               int `json:"max_retries"`
	MaxBatchSize             int `json:"max_batch_size"`
	StalledThresholdMinutes  int `json:"stalled_threshold_minutes"`
	ReconcileIntervalMinutes int `json:"reconcile_interval_minutes"`
	// When true, completion reports are checked against S3 with a
	// HeadObject call before being accepted
	VerifyOnComplete      bool `json:"verify_on_complete"`
	SubscriberIdleMinutes int  `json:"subscriber_idle_minutes"`
	SubscriberBuffer      int  `json:"subscriber_buffer"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Upload.MaxRetries == 0 {
		c.Upload.MaxRetries = 3
	}
	if c.Upload.MaxBatchSize == 0 {
		c.Upload.MaxBatchSize = 100
	}
	if c.Upload.StalledThresholdMinutes == 0 {
		c.Upload.StalledThresholdMinutes = 10
	}
	if c.Upload.ReconcileIntervalMinutes == 0 {
		c.Upload.ReconcileIntervalMinutes = 5
	}
	if c.Upload.SubscriberIdleMinutes == 0 {
		c.Upload.SubscriberIdleMinutes = 30
	}
	if c.Upload.SubscriberBuffer == 0 {
		c.Upload.SubscriberBuffer = 16
	}
	if c.S3.PresignTTLMinutes == 0 {
		c.S3.PresignTTLMinutes = 15
	}
	if c.S3.RequestTimeoutSeconds == 0 {
		c.S3.RequestTimeoutSeconds = 10
	}
	if c.Redis.EventTTLMinutes == 0 {
		c.Redis.EventTTLMinutes = 60
	}
	if c.Redis.EventLimit == 0 {
		c.Redis.EventLimit = 500
	}
}
