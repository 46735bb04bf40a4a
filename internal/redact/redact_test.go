package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "api keys slice",
			input:    "api_keys=[client-key-1 client-key-2]",
			disallow: []string{"client-key-1", "client-key-2"},
			require:  []string{"api_keys=[REDACTED]"},
		},
		{
			name:     "subscription key header",
			input:    "Ocp-Apim-Subscription-Key: 0123456789abcdef",
			disallow: []string{"0123456789abcdef"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "email address",
			input:    "patient contact jane.doe@example.org unreachable",
			disallow: []string{"jane.doe@example.org"},
			require:  []string{"[REDACTED_EMAIL]"},
		},
		{
			name:     "ssn",
			input:    "document mentions 123-45-6789 inline",
			disallow: []string{"123-45-6789"},
			require:  []string{"[REDACTED_SSN]"},
		},
		{
			name:     "phone number",
			input:    "callback (555) 867-5309 requested",
			disallow: []string{"867-5309"},
			require:  []string{"[REDACTED_PHONE]"},
		},
		{
			name:     "endpoint url",
			input:    "detect endpoint=https://lang.example.com/language/:analyze-text?api-version=2023-04-01",
			disallow: []string{"api-version=2023-04-01"},
			require:  []string{"https://lang.example.com/"},
		},
		{
			name:     "mixed token",
			input:    "Bearer abc key=supersecret token=anotherone",
			disallow: []string{"abc", "supersecret", "anotherone"},
			require:  []string{"[REDACTED]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && strings.Contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if want == "" {
					continue
				}
				if !strings.Contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestAnyScrubsStructs(t *testing.T) {
	type creds struct {
		APIKey string
	}
	out := Any(creds{APIKey: "super-secret-value"})
	if strings.Contains(out, "super-secret-value") {
		t.Fatalf("Any leaked api key: %s", out)
	}
}
