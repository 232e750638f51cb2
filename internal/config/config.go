package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	LedgerBackendBadger = "badger"
	LedgerBackendFile   = "file"
)

type Config struct {
	NodeID    string `yaml:"node_id"`
	HTTPPort  int    `yaml:"http_port"`
	Debug     bool   `yaml:"debug"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DataDir       string `yaml:"data_dir"`
	StorageDir    string `yaml:"storage_dir"`
	LedgerBackend string `yaml:"ledger_backend"`
	LedgerFile    string `yaml:"ledger_file"`

	PollInterval        time.Duration `yaml:"poll_interval"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	FanOutLimit         int           `yaml:"fanout_limit"`
	LedgerEscalateAfter int           `yaml:"ledger_escalate_after"`

	MaxUploadBytes       int64         `yaml:"max_upload_bytes"`
	StatusStreamInterval time.Duration `yaml:"status_stream_interval"`

	OpenAIAPIKey  string        `yaml:"openai_api_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OpenAIModel   string        `yaml:"openai_model"`
	OpenAITimeout time.Duration `yaml:"openai_timeout"`

	// APIURL is where the upload/status client commands send requests.
	APIURL string `yaml:"api_url"`
}

func Default() *Config {
	return &Config{
		NodeID:    "node-default",
		HTTPPort:  8000,
		LogLevel:  "info",
		LogFormat: "console",

		DataDir:       "data",
		StorageDir:    "data/files",
		LedgerBackend: LedgerBackendBadger,
		LedgerFile:    "data/file_status.json",

		PollInterval:        10 * time.Second,
		FetchTimeout:        60 * time.Second,
		FanOutLimit:         0,
		LedgerEscalateAfter: 3,

		MaxUploadBytes:       50 << 20,
		StatusStreamInterval: 2 * time.Second,

		OpenAIBaseURL: "https://api.openai.com/v1",
		OpenAIModel:   "gpt-3.5-turbo",
		OpenAITimeout: 45 * time.Second,

		APIURL: "http://localhost:8000",
	}
}

// Load builds the config from defaults, then the optional YAML file at path
// (or $EXPLAINER_CONFIG), then the environment. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("EXPLAINER_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.NodeID = getEnv("NODE_ID", c.NodeID)
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.LedgerBackend = getEnv("LEDGER_BACKEND", c.LedgerBackend)
	c.LedgerFile = getEnv("LEDGER_FILE", c.LedgerFile)

	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.FanOutLimit = getEnvInt("FANOUT_LIMIT", c.FanOutLimit)
	c.LedgerEscalateAfter = getEnvInt("LEDGER_ESCALATE_AFTER", c.LedgerEscalateAfter)

	c.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.StatusStreamInterval = getEnvDuration("STATUS_STREAM_INTERVAL", c.StatusStreamInterval)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAITimeout = getEnvDuration("OPENAI_TIMEOUT", c.OpenAITimeout)

	c.APIURL = getEnv("API_URL", c.APIURL)
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.StatusStreamInterval <= 0 {
		return errors.New("STATUS_STREAM_INTERVAL must be positive")
	}
	if c.FanOutLimit < 0 {
		return errors.New("FANOUT_LIMIT must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	switch c.LedgerBackend {
	case LedgerBackendBadger, LedgerBackendFile:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("10s") or whole seconds ("10").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
