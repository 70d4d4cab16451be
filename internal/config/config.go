// Package config assembles runtime settings from an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir        = "data"
	DefaultTokenStoreFile = "plaid_access_tokens.json"
	DefaultPlaidEnv       = "production"
	DefaultClientName     = "Personal Finance App"
	DefaultLookbackDays   = 90
	DefaultOllamaBaseURL  = "http://localhost:11434"
	DefaultOllamaModel    = "qwen3:4b"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultFREDURL        = "https://fred.stlouisfed.org/graph/fredgraph.csv?id=MORTGAGE30US"
	DefaultYourRate       = 6.575
	DefaultPort           = "8080"
)

// Config holds every setting the CLI and API server need.
type Config struct {
	Plaid    PlaidConfig    `yaml:"plaid"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Mortgage MortgageConfig `yaml:"mortgage"`
	Sinks    SinkConfig     `yaml:"sinks"`
	Notion   NotionConfig   `yaml:"notion"`
}

// PlaidConfig carries credentials, token sources and account filters.
type PlaidConfig struct {
	ClientID    string `yaml:"client_id"`
	Secret      string `yaml:"secret"`
	Environment string `yaml:"environment"`
	ClientName  string `yaml:"client_name"`

	// Token sources consulted by the resolver.
	AccessToken  string   `yaml:"access_token"`
	ItemID       string   `yaml:"item_id"`
	AccessTokens []string `yaml:"access_tokens"`
	PublicToken  string   `yaml:"public_token"`

	AccountIDs        []string `yaml:"account_ids"`
	AccountNameFilter []string `yaml:"account_name_filter"`
	AccountSubtypes   []string `yaml:"account_subtypes"`

	TokenStorePath string `yaml:"token_store_path"`
	LookbackDays   int    `yaml:"lookback_days"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DownloadWorkers int           `yaml:"download_workers"`
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	Backend       string        `yaml:"backend"`
	OllamaBaseURL string        `yaml:"ollama_base_url"`
	OllamaModel   string        `yaml:"ollama_model"`
	OpenAIAPIKey  string        `yaml:"openai_api_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OpenAIModel   string        `yaml:"openai_model"`
	GeminiAPIKey  string        `yaml:"gemini_api_key"`
	GeminiModel   string        `yaml:"gemini_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

type MortgageConfig struct {
	SeriesURL string        `yaml:"series_url"`
	YourRate  float64       `yaml:"your_rate"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// SinkConfig enables the optional destinations records are copied to after a fetch.
// An empty value disables the sink.
type SinkConfig struct {
	SQLitePath      string `yaml:"sqlite_path"`
	GCPProjectID    string `yaml:"gcp_project_id"`
	BigQueryDataset string `yaml:"bigquery_dataset"`
	GCSBucket       string `yaml:"gcs_bucket"`
}

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// Load reads .env files, then the YAML file at configPath (if non-empty),
// then overlays the process environment and fills defaults.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	cfg := &Config{}
	if configPath != "" {
		fileCfg, err := LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		cfg = fileCfg
	}

	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadFile parses a YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadFile: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotEnv tries the working directory first, then its parent.
// A missing file is normal; variables already set in the process win.
func loadDotEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}
	_ = godotenv.Load(filepath.Join("..", ".env"))
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with any variables lookup reports as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	setString(&cfg.Plaid.ClientID, lookup, "PLAID_CLIENT_ID")
	setString(&cfg.Plaid.Secret, lookup, "PLAID_SECRET")
	setString(&cfg.Plaid.Environment, lookup, "PLAID_ENV")
	setString(&cfg.Plaid.ClientName, lookup, "PLAID_CLIENT_NAME")
	setString(&cfg.Plaid.AccessToken, lookup, "PLAID_ACCESS_TOKEN")
	setString(&cfg.Plaid.ItemID, lookup, "PLAID_ITEM_ID")
	setList(&cfg.Plaid.AccessTokens, lookup, "PLAID_ACCESS_TOKENS", false)
	setString(&cfg.Plaid.PublicToken, lookup, "PLAID_PUBLIC_TOKEN")
	setList(&cfg.Plaid.AccountIDs, lookup, "PLAID_ACCOUNT_IDS", false)
	setList(&cfg.Plaid.AccountNameFilter, lookup, "PLAID_ACCOUNT_NAME_FILTER", true)
	setList(&cfg.Plaid.AccountSubtypes, lookup, "PLAID_ACCOUNT_SUBTYPES", true)
	setString(&cfg.Plaid.TokenStorePath, lookup, "PLAID_TOKEN_STORE")
	setInt(&cfg.Plaid.LookbackDays, lookup, "PLAID_LOOKBACK_DAYS")

	setString(&cfg.DataDir, lookup, "DATA_DIR")
	setString(&cfg.LogLevel, lookup, "LOG_LEVEL")

	setString(&cfg.Server.Port, lookup, "PORT")
	setString(&cfg.Server.AllowedOrigin, lookup, "CORS_ALLOWED_ORIGIN")
	setFloat(&cfg.Server.RateLimitRPS, lookup, "RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, lookup, "RATE_LIMIT_BURST")
	setDuration(&cfg.Server.RequestTimeout, lookup, "REQUEST_TIMEOUT")
	setInt(&cfg.Server.DownloadWorkers, lookup, "DOWNLOAD_WORKERS")

	setString(&cfg.LLM.Backend, lookup, "LLM_BACKEND")
	setString(&cfg.LLM.OllamaBaseURL, lookup, "OLLAMA_BASE_URL")
	setString(&cfg.LLM.OllamaModel, lookup, "OLLAMA_MODEL")
	setString(&cfg.LLM.OpenAIAPIKey, lookup, "OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIBaseURL, lookup, "OPENAI_BASE_URL")
	setString(&cfg.LLM.OpenAIModel, lookup, "OPENAI_MODEL")
	setString(&cfg.LLM.GeminiAPIKey, lookup, "GEMINI_API_KEY")
	setString(&cfg.LLM.GeminiModel, lookup, "GEMINI_MODEL")
	setDuration(&cfg.LLM.Timeout, lookup, "LLM_TIMEOUT")

	setString(&cfg.Mortgage.SeriesURL, lookup, "FRED_SERIES_URL")
	setFloat(&cfg.Mortgage.YourRate, lookup, "MORTGAGE_YOUR_RATE")
	setDuration(&cfg.Mortgage.CacheTTL, lookup, "MORTGAGE_CACHE_TTL")

	setString(&cfg.Sinks.SQLitePath, lookup, "TXSTORE_PATH")
	setString(&cfg.Sinks.GCPProjectID, lookup, "GCP_PROJECT_ID")
	setString(&cfg.Sinks.BigQueryDataset, lookup, "BIGQUERY_DATASET")
	setString(&cfg.Sinks.GCSBucket, lookup, "GCS_BUCKET")

	setString(&cfg.Notion.Token, lookup, "NOTION_TOKEN")
	setString(&cfg.Notion.DatabaseID, lookup, "NOTION_DATABASE_ID")
}

// ApplyDefaults fills every unset value that has a sensible default.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Plaid.Environment) == "" {
		cfg.Plaid.Environment = DefaultPlaidEnv
	}
	if cfg.Plaid.ClientName == "" {
		cfg.Plaid.ClientName = DefaultClientName
	}
	if cfg.Plaid.TokenStorePath == "" {
		cfg.Plaid.TokenStorePath = filepath.Join(cfg.DataDir, DefaultTokenStoreFile)
	}
	if cfg.Plaid.LookbackDays <= 0 {
		cfg.Plaid.LookbackDays = DefaultLookbackDays
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.AllowedOrigin == "" {
		cfg.Server.AllowedOrigin = "*"
	}
	if cfg.Server.RateLimitRPS <= 0 {
		cfg.Server.RateLimitRPS = 5
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Server.DownloadWorkers <= 0 {
		cfg.Server.DownloadWorkers = 2
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "ollama"
	}
	if cfg.LLM.OllamaBaseURL == "" {
		cfg.LLM.OllamaBaseURL = DefaultOllamaBaseURL
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = DefaultOllamaModel
	}
	if cfg.LLM.OpenAIBaseURL == "" {
		cfg.LLM.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if cfg.LLM.OpenAIModel == "" {
		cfg.LLM.OpenAIModel = DefaultOpenAIModel
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = DefaultGeminiModel
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 300 * time.Second
	}

	if cfg.Mortgage.SeriesURL == "" {
		cfg.Mortgage.SeriesURL = DefaultFREDURL
	}
	if cfg.Mortgage.YourRate <= 0 {
		cfg.Mortgage.YourRate = DefaultYourRate
	}
	if cfg.Mortgage.CacheTTL <= 0 {
		cfg.Mortgage.CacheTTL = 6 * time.Hour
	}
}

// SplitList splits a comma-separated value, trimming entries and dropping empty ones.
func SplitList(value string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lower {
			part = strings.ToLower(part)
		}
		out = append(out, part)
	}
	return out
}

// ErrInvalidValue is wrapped by Validate for malformed numeric settings.
var ErrInvalidValue = errors.New("invalid configuration value")

// Validate reports settings that would make every command fail.
func (c *Config) Validate() error {
	if c.Plaid.LookbackDays < 0 {
		return fmt.Errorf("Validate: lookback_days %d: %w", c.Plaid.LookbackDays, ErrInvalidValue)
	}
	switch strings.ToLower(c.LLM.Backend) {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("Validate: llm backend %q: %w", c.LLM.Backend, ErrInvalidValue)
	}
	return nil
}

func setString(dst *string, lookup LookupFunc, key string) {
	if v, ok := lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setList(dst *[]string, lookup LookupFunc, key string, lower bool) {
	if v, ok := lookup(key); ok {
		*dst = SplitList(v, lower)
	}
}

// Malformed numbers are ignored so the file or default value stays in effect.
func setInt(dst *int, lookup LookupFunc, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, lookup LookupFunc, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, lookup LookupFunc, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
