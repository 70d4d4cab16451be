package bank

import (
	"strings"
	"testing"
)

func TestValidAccessToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"sandbox", "access-sandbox-de3ce8ef-33f8-452c-a685-8671031fc0f6", true},
		{"development", "access-development-abc123", true},
		{"production", "access-production-ABC-123", true},
		{"surrounding whitespace", "  access-sandbox-abc  ", true},
		{"empty", "", false},
		{"missing prefix", "sandbox-abc123", false},
		{"public token", "public-sandbox-abc123", false},
		{"unknown env", "access-staging-abc123", false},
		{"underscore separator", "access_sandbox_abc123", false},
		{"illegal punctuation", "access-sandbox-abc.123", false},
		{"missing identifier", "access-sandbox-", false},
		{"uppercase prefix", "ACCESS-sandbox-abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidAccessToken(tt.token); got != tt.want {
				t.Errorf("ValidAccessToken(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	masked := MaskToken("access-sandbox-de3ce8ef-33f8-452c-a685-8671031fc0f6")
	if masked != "access-sandbox-****c0f6" {
		t.Errorf("MaskToken() = %q", masked)
	}
	if strings.Contains(MaskToken("short"), "short") {
		t.Error("short tokens must be fully masked")
	}
}
