package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// Config holds all node configuration
type Config struct {
	ServerAddress string   `json:"serverAddress"`
	DatabasePath  string   `json:"databasePath"`
	DatabaseURL   string   `json:"databaseUrl"`
	NodeID        string   `json:"nodeId"`
	Remote        Remote   `json:"remote"`
	Security      Security `json:"security"`
	Sync          Sync     `json:"sync"`
}

// Remote is the remote sync authority the node replicates against
type Remote struct {
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
}

// Security configuration
type Security struct {
	APIKey          string `json:"apiKey"`
	APIKeyHeader    string `json:"apiKeyHeader"`
	OperatorKeyHash string `json:"operatorKeyHash"`
}

// Sync configuration for the background scheduler
type Sync struct {
	IntervalMinutes int      `json:"intervalMinutes"`
	BatchSize       int      `json:"batchSize"`
	AutoStart       bool     `json:"autoStart"`
	Tables          []string `json:"tables"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "ordersync.db",
		Remote: Remote{
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		Sync: Sync{
			IntervalMinutes: 5,
			BatchSize:       100,
			AutoStart:       true,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if nodeID := os.Getenv("NODE_ID"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	if baseURL := os.Getenv("REMOTE_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if apiKey := os.Getenv("REMOTE_API_KEY"); apiKey != "" {
		cfg.Remote.APIKey = apiKey
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if hash := os.Getenv("OPERATOR_KEY_HASH"); hash != "" {
		cfg.Security.OperatorKeyHash = hash
	}

	// Sync scheduler configuration
	if interval := os.Getenv("SYNC_INTERVAL_MINUTES"); interval != "" {
		if minutes, err := strconv.Atoi(interval); err == nil && minutes > 0 {
			cfg.Sync.IntervalMinutes = minutes
		}
	}
	if batch := os.Getenv("SYNC_BATCH_SIZE"); batch != "" {
		if size, err := strconv.Atoi(batch); err == nil && size > 0 {
			cfg.Sync.BatchSize = size
		}
	}
	if autoStart := os.Getenv("SYNC_AUTO_START"); autoStart != "" {
		cfg.Sync.AutoStart = autoStart == "true" || autoStart == "1"
	}

	// A node's identity must survive restarts; generate one only when
	// the file and environment both left it unset.
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.New().String()
	}

	return cfg, nil
}
