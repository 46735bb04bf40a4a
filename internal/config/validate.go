package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validation happens once at load time: a config either comes out of Validate
// clean or the process refuses to start. Nothing downstream re-checks these.

var (
	validModes   = map[string]bool{"redact": true, "reject": true}
	validDomains = map[string]bool{"general": true, "healthcare": true}
)

// Validate checks the loaded config for required fields and enumerated values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	if err := validateDetectionConfig(cfg.Detection); err != nil {
		return err
	}

	if cfg.Agent.EnableGrounding {
		if err := validateAgentConfig(cfg.Agent); err != nil {
			return err
		}
	}

	if len(cfg.Clients) == 0 {
		return errors.New("at least one client must be configured")
	}
	seenKeys := map[string]string{}
	for _, c := range cfg.Clients {
		if strings.TrimSpace(c.ID) == "" {
			return errors.New("client id must be set")
		}
		if len(c.APIKeys) == 0 {
			return fmt.Errorf("client %q must define at least one api_keys entry", c.ID)
		}
		for _, key := range c.APIKeys {
			if key == "" {
				continue
			}
			if other, exists := seenKeys[key]; exists && other != c.ID {
				return fmt.Errorf("api key assigned to both %q and %q", other, c.ID)
			}
			seenKeys[key] = c.ID
		}
		if c.Mode != "" && !validModes[c.Mode] {
			return fmt.Errorf("client %q mode must be one of redact|reject, got %q", c.ID, c.Mode)
		}
		if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
			return fmt.Errorf("client %q confidence_threshold must be within [0,1], got %v", c.ID, *c.ConfidenceThreshold)
		}
	}

	if err := validateAuditConfig(cfg.Audit); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateDetectionConfig(d DetectionConfig) error {
	switch d.Provider {
	case "azure":
		if strings.TrimSpace(d.Endpoint) == "" {
			return errors.New("detection.endpoint must be set for the azure provider")
		}
		if err := validateEndpointURL("detection.endpoint", d.Endpoint); err != nil {
			return err
		}
		if strings.TrimSpace(d.APIKeyEnv) == "" {
			return errors.New("detection.api_key_env must be set for the azure provider")
		}
	case "regex":
		// offline backend, no endpoint
	default:
		return fmt.Errorf("detection.provider must be one of azure|regex, got %q", d.Provider)
	}

	if !validModes[d.Mode] {
		return fmt.Errorf("detection.mode must be one of redact|reject, got %q", d.Mode)
	}
	if !validDomains[d.Domain] {
		return fmt.Errorf("detection.domain must be one of general|healthcare, got %q", d.Domain)
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold must be within [0,1], got %v", d.ConfidenceThreshold)
	}
	if strings.TrimSpace(d.Language) == "" {
		return errors.New("detection.language must be set")
	}
	return nil
}

func validateAgentConfig(a AgentConfig) error {
	if strings.TrimSpace(a.Endpoint) == "" {
		return errors.New("agent.endpoint must be set when grounding is enabled")
	}
	if err := validateEndpointURL("agent.endpoint", a.Endpoint); err != nil {
		return err
	}
	if strings.TrimSpace(a.APIKeyEnv) == "" {
		return errors.New("agent.api_key_env must be set when grounding is enabled")
	}
	if a.AgentID == "" && strings.TrimSpace(a.Model) == "" {
		return errors.New("agent.model must be set when no agent_id is configured")
	}
	return nil
}

func validateAuditConfig(a AuditConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.FilePath == "" && a.Webhook.URL == "" {
		return errors.New("audit enabled but neither file_path nor webhook.url is set")
	}
	if a.Webhook.URL != "" {
		if err := validateEndpointURL("audit.webhook.url", a.Webhook.URL); err != nil {
			return err
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	switch strings.ToLower(t.Protocol) {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry.endpoint must be set when telemetry is enabled")
	}
	return nil
}

func validateEndpointURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL", field)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https", field)
	}
	return nil
}
