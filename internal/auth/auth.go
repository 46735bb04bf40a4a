package auth

import (
	"fmt"

	"github.com/scrubgate-ai/scrubgate/internal/config"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
)

// Client is the runtime representation of a caller with its policy overrides.
type Client struct {
	ID string
	// Mode, when non-empty, overrides the detection default for this caller.
	Mode policy.Mode
	// ConfidenceThreshold, when set, overrides the detection default.
	ConfidenceThreshold *float64
}

// Policy resolves the effective policy for this client over the defaults.
func (c Client) Policy(defaults policy.Policy) policy.Policy {
	out := defaults
	if c.Mode != "" {
		out.Mode = c.Mode
	}
	if c.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	return out
}

// Auth holds mappings from API keys to clients.
type Auth struct {
	apiKeyToClient map[string]Client
}

// NewFromConfig builds an Auth instance from the loaded config.
func NewFromConfig(cfg *config.Config) (*Auth, error) {
	m := make(map[string]Client)

	for _, c := range cfg.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id in config")
		}
		client := Client{
			ID:                  c.ID,
			ConfidenceThreshold: c.ConfidenceThreshold,
		}
		if c.Mode != "" {
			mode, err := policy.ParseMode(c.Mode)
			if err != nil {
				return nil, fmt.Errorf("client %q: %w", c.ID, err)
			}
			client.Mode = mode
		}
		for _, key := range c.APIKeys {
			if key == "" {
				continue
			}
			if _, exists := m[key]; exists {
				return nil, fmt.Errorf("api key %q is assigned to multiple clients", key)
			}
			m[key] = client
		}
	}

	return &Auth{
		apiKeyToClient: m,
	}, nil
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil {
		return Client{}, false
	}
	c, ok := a.apiKeyToClient[apiKey]
	return c, ok
}
