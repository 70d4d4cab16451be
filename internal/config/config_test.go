package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv_PlaidValues(t *testing.T) {
	cfg := &Config{}
	ApplyEnv(cfg, mapLookup(map[string]string{
		"PLAID_CLIENT_ID":           " client ",
		"PLAID_SECRET":              "secret",
		"PLAID_ENV":                 "Sandbox",
		"PLAID_ACCESS_TOKENS":       "access-sandbox-a, ,access-sandbox-b",
		"PLAID_ACCOUNT_NAME_FILTER": "Checking, SAVINGS",
		"PLAID_ACCOUNT_SUBTYPES":    "Credit Card",
		"PLAID_ACCOUNT_IDS":         "acc-1,acc-2",
	}))

	if cfg.Plaid.ClientID != "client" {
		t.Errorf("ClientID = %q, want trimmed value", cfg.Plaid.ClientID)
	}
	if cfg.Plaid.Environment != "Sandbox" {
		t.Errorf("Environment = %q, want raw value", cfg.Plaid.Environment)
	}
	if want := []string{"access-sandbox-a", "access-sandbox-b"}; !reflect.DeepEqual(cfg.Plaid.AccessTokens, want) {
		t.Errorf("AccessTokens = %v, want %v", cfg.Plaid.AccessTokens, want)
	}
	if want := []string{"checking", "savings"}; !reflect.DeepEqual(cfg.Plaid.AccountNameFilter, want) {
		t.Errorf("AccountNameFilter = %v, want %v", cfg.Plaid.AccountNameFilter, want)
	}
	if want := []string{"credit card"}; !reflect.DeepEqual(cfg.Plaid.AccountSubtypes, want) {
		t.Errorf("AccountSubtypes = %v, want %v", cfg.Plaid.AccountSubtypes, want)
	}
	if want := []string{"acc-1", "acc-2"}; !reflect.DeepEqual(cfg.Plaid.AccountIDs, want) {
		t.Errorf("AccountIDs = %v, want %v", cfg.Plaid.AccountIDs, want)
	}
}

func TestApplyEnv_InvalidNumbersKeepExisting(t *testing.T) {
	cfg := &Config{Mortgage: MortgageConfig{YourRate: 5.5}}
	ApplyEnv(cfg, mapLookup(map[string]string{
		"MORTGAGE_YOUR_RATE": "not-a-number",
		"LLM_TIMEOUT":        "90s",
	}))

	if cfg.Mortgage.YourRate != 5.5 {
		t.Errorf("YourRate = %v, want 5.5", cfg.Mortgage.YourRate)
	}
	if cfg.LLM.Timeout != 90*time.Second {
		t.Errorf("LLM.Timeout = %v, want 90s", cfg.LLM.Timeout)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Plaid.Environment != DefaultPlaidEnv {
		t.Errorf("Environment = %q, want %q", cfg.Plaid.Environment, DefaultPlaidEnv)
	}
	if want := filepath.Join("data", "plaid_access_tokens.json"); cfg.Plaid.TokenStorePath != want {
		t.Errorf("TokenStorePath = %q, want %q", cfg.Plaid.TokenStorePath, want)
	}
	if cfg.Plaid.LookbackDays != 90 {
		t.Errorf("LookbackDays = %d, want 90", cfg.Plaid.LookbackDays)
	}
	if cfg.LLM.OllamaModel != "qwen3:4b" {
		t.Errorf("OllamaModel = %q, want qwen3:4b", cfg.LLM.OllamaModel)
	}
	if cfg.Mortgage.YourRate != 6.575 {
		t.Errorf("YourRate = %v, want 6.575", cfg.Mortgage.YourRate)
	}
	if cfg.Plaid.ClientName != "Personal Finance App" {
		t.Errorf("ClientName = %q", cfg.Plaid.ClientName)
	}
}

func TestApplyDefaults_TokenStoreFollowsDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/bank"}
	ApplyDefaults(cfg)

	if want := filepath.Join("/var/lib/bank", DefaultTokenStoreFile); cfg.Plaid.TokenStorePath != want {
		t.Errorf("TokenStorePath = %q, want %q", cfg.Plaid.TokenStorePath, want)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: /tmp/bank
plaid:
  environment: sandbox
  account_name_filter: [checking]
llm:
  backend: gemini
mortgage:
  your_rate: 5.25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.DataDir != "/tmp/bank" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Plaid.Environment != "sandbox" {
		t.Errorf("Environment = %q", cfg.Plaid.Environment)
	}
	if cfg.LLM.Backend != "gemini" {
		t.Errorf("Backend = %q", cfg.LLM.Backend)
	}
	if cfg.Mortgage.YourRate != 5.25 {
		t.Errorf("YourRate = %v", cfg.Mortgage.YourRate)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" A, b ,,C ", true)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList() = %v, want %v", got, want)
	}
	if got := SplitList("", false); got != nil {
		t.Errorf("SplitList(\"\") = %v, want nil", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults error = %v", err)
	}

	cfg.LLM.Backend = "claude-local"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Validate() error = %v, want ErrInvalidValue", err)
	}
}
