package config

import (
	"testing"
)

func TestDefaultConfig_InsecureSkipVerifyDefaultsOn(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Gateway.InsecureSkipVerify {
		t.Error("DefaultConfig should default InsecureSkipVerify to true for self-signed internal deployments")
	}
	if cfg.Normalizer.Timezone != "Asia/Dhaka" {
		t.Errorf("Normalizer.Timezone = %q, want Asia/Dhaka", cfg.Normalizer.Timezone)
	}
}

func TestGatewayConfig_DerivedURLs(t *testing.T) {
	g := GatewayConfig{Host: "nsp.example.net"}

	if want, got := "https://nsp.example.net:8443/rest-gateway/rest/api/v1/auth/token", g.AuthURL(); got != want {
		t.Errorf("AuthURL() = %q, want %q", got, want)
	}
	if want, got := "https://nsp.example.net:8443/rest-gateway/rest/api/v1/auth/revocation", g.RevocationURL(); got != want {
		t.Errorf("RevocationURL() = %q, want %q", got, want)
	}
	if want, got := "https://nsp.example.net/nbi-notification/api/v1/notifications/subscriptions", g.SubscriptionBaseURL(); got != want {
		t.Errorf("SubscriptionBaseURL() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Gateway:  GatewayConfig{Host: "h", Username: "u", Password: "p"},
			Bus:      BusConfig{KeystorePassword: "kp"},
			Database: DatabaseConfig{URL: "postgres://localhost/db"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("Validate() on a fully populated config = %v, want nil", err)
	}

	missing := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Gateway.Host = "" }},
		{"missing username", func(c *Config) { c.Gateway.Username = "" }},
		{"missing password", func(c *Config) { c.Gateway.Password = "" }},
		{"missing keystore password", func(c *Config) { c.Bus.KeystorePassword = "" }},
		{"missing database url", func(c *Config) { c.Database.URL = "" }},
	}
	for _, tc := range missing {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want an error")
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NSP_SERVER", "nsp.example.net")
	t.Setenv("NSP_USERNAME", "svc-account")
	t.Setenv("NSP_PASSWORD", "secret")
	t.Setenv("NSP_VERIFY_SSL", "true")
	t.Setenv("KAFKA_KEYSTORE_PASSWORD", "kspass")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Gateway.Host != "nsp.example.net" {
		t.Errorf("Gateway.Host = %q, want nsp.example.net", cfg.Gateway.Host)
	}
	if cfg.Gateway.Username != "svc-account" {
		t.Errorf("Gateway.Username = %q, want svc-account", cfg.Gateway.Username)
	}
	if cfg.Gateway.Password != "secret" {
		t.Errorf("Gateway.Password = %q, want secret", cfg.Gateway.Password)
	}
	if cfg.Gateway.InsecureSkipVerify {
		t.Error("NSP_VERIFY_SSL=true should clear InsecureSkipVerify")
	}
	if cfg.Bus.KeystorePassword != "kspass" {
		t.Errorf("Bus.KeystorePassword = %q, want kspass", cfg.Bus.KeystorePassword)
	}
	if len(cfg.Bus.Brokers) != 1 || cfg.Bus.Brokers[0] != "nsp.example.net:9193" {
		t.Errorf("Bus.Brokers = %v, want [nsp.example.net:9193] derived from NSP_SERVER", cfg.Bus.Brokers)
	}
}
