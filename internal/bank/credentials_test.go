package bank

import (
	"errors"
	"testing"

	"github.com/dvloznov/bank-data-pipeline/internal/config"
)

func TestLoadCredentials(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.PlaidConfig
		wantEnv  Environment
		wantHost string
		wantErr  bool
	}{
		{
			name:     "default production",
			cfg:      config.PlaidConfig{ClientID: "id", Secret: "secret"},
			wantEnv:  EnvProduction,
			wantHost: "https://production.plaid.com",
		},
		{
			name:     "sandbox case insensitive",
			cfg:      config.PlaidConfig{ClientID: "id", Secret: "secret", Environment: " SandBox "},
			wantEnv:  EnvSandbox,
			wantHost: "https://sandbox.plaid.com",
		},
		{
			name:     "development aliases sandbox host",
			cfg:      config.PlaidConfig{ClientID: "id", Secret: "secret", Environment: "development"},
			wantEnv:  EnvDevelopment,
			wantHost: "https://sandbox.plaid.com",
		},
		{
			name:    "missing secret",
			cfg:     config.PlaidConfig{ClientID: "id"},
			wantErr: true,
		},
		{
			name:    "missing client id",
			cfg:     config.PlaidConfig{Secret: "secret"},
			wantErr: true,
		},
		{
			name:    "unknown environment",
			cfg:     config.PlaidConfig{ClientID: "id", Secret: "secret", Environment: "staging"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := LoadCredentials(tt.cfg)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("Expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCredentials() error = %v", err)
			}
			if creds.Environment != tt.wantEnv {
				t.Errorf("Environment = %q, want %q", creds.Environment, tt.wantEnv)
			}
			if creds.Host() != tt.wantHost {
				t.Errorf("Host() = %q, want %q", creds.Host(), tt.wantHost)
			}
		})
	}
}
