package bank

import (
	"fmt"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/config"
)

// Environment names a Plaid deployment.
type Environment string

const (
	EnvSandbox     Environment = "sandbox"
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

const (
	sandboxHost    = "https://sandbox.plaid.com"
	productionHost = "https://production.plaid.com"
)

// Credentials identify this application to Plaid.
type Credentials struct {
	ClientID    string
	Secret      string
	Environment Environment
}

// Host returns the API base URL for the environment. Development shares
// the sandbox host.
func (c Credentials) Host() string {
	if c.Environment == EnvProduction {
		return productionHost
	}
	return sandboxHost
}

// LoadCredentials validates the Plaid settings in cfg. It makes no network call.
func LoadCredentials(cfg config.PlaidConfig) (Credentials, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return Credentials{}, &ConfigurationError{
			Message: "Missing Plaid credentials. Please set PLAID_CLIENT_ID and PLAID_SECRET in your environment or .env file.",
		}
	}

	envName := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if envName == "" {
		envName = string(EnvProduction)
	}
	env := Environment(envName)
	switch env {
	case EnvSandbox, EnvDevelopment, EnvProduction:
	default:
		return Credentials{}, &ConfigurationError{
			Message: fmt.Sprintf("Unsupported PLAID_ENV '%s'. Valid options: sandbox, development, production.", envName),
		}
	}

	return Credentials{ClientID: clientID, Secret: secret, Environment: env}, nil
}
