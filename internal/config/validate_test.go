package config

import (
	"strings"
	"testing"
)

func validTestConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8080"},
		Detection: DetectionConfig{
			Provider:            "azure",
			Endpoint:            "https://lang.example.com",
			APIKeyEnv:           "LANGUAGE_KEY",
			Mode:                "redact",
			ConfidenceThreshold: 0.8,
			Domain:              "healthcare",
			Language:            "en",
		},
		Agent: AgentConfig{
			Endpoint:        "https://agents.example.com",
			APIKeyEnv:       "AGENTS_KEY",
			Model:           "gpt-4o",
			EnableGrounding: true,
		},
		Clients: []ClientConfig{
			{ID: "c1", APIKeys: []string{"key-1"}},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	if err := Validate(validTestConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Detection.Mode = "block" },
			wantSub: "mode",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Detection.ConfidenceThreshold = 1.2 },
			wantSub: "confidence_threshold",
		},
		{
			name:    "threshold below zero",
			mutate:  func(c *Config) { c.Detection.ConfidenceThreshold = -0.1 },
			wantSub: "confidence_threshold",
		},
		{
			name:    "unknown domain",
			mutate:  func(c *Config) { c.Detection.Domain = "finance" },
			wantSub: "domain",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Detection.Provider = "comprehend" },
			wantSub: "provider",
		},
		{
			name:    "missing detection key env",
			mutate:  func(c *Config) { c.Detection.APIKeyEnv = "" },
			wantSub: "api_key_env",
		},
		{
			name:    "agent endpoint required when grounding",
			mutate:  func(c *Config) { c.Agent.Endpoint = "" },
			wantSub: "agent.endpoint",
		},
		{
			name:    "bad agent endpoint scheme",
			mutate:  func(c *Config) { c.Agent.Endpoint = "ftp://agents.example.com" },
			wantSub: "http",
		},
		{
			name:    "no clients",
			mutate:  func(c *Config) { c.Clients = nil },
			wantSub: "client",
		},
		{
			name: "duplicate api key across clients",
			mutate: func(c *Config) {
				c.Clients = append(c.Clients, ClientConfig{ID: "c2", APIKeys: []string{"key-1"}})
			},
			wantSub: "api key",
		},
		{
			name: "client mode typo",
			mutate: func(c *Config) {
				c.Clients[0].Mode = "deny"
			},
			wantSub: "redact|reject",
		},
		{
			name: "audit enabled without sink",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
			},
			wantSub: "audit",
		},
		{
			name: "telemetry bad protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "https://otlp.example.com"
				c.Telemetry.Protocol = "udp"
			},
			wantSub: "protocol",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestGroundingDisabledSkipsAgentChecks(t *testing.T) {
	cfg := validTestConfig()
	cfg.Agent = AgentConfig{EnableGrounding: false}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("agent config should be ignored when grounding disabled: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Detection.Mode != "redact" {
		t.Fatalf("expected default mode redact, got %q", cfg.Detection.Mode)
	}
	if cfg.Detection.ConfidenceThreshold != 0.8 {
		t.Fatalf("expected default threshold 0.8, got %v", cfg.Detection.ConfidenceThreshold)
	}
}
