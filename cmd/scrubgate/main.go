package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scrubgate-ai/scrubgate/internal/agent"
	"github.com/scrubgate-ai/scrubgate/internal/audit"
	"github.com/scrubgate-ai/scrubgate/internal/auth"
	"github.com/scrubgate-ai/scrubgate/internal/config"
	"github.com/scrubgate-ai/scrubgate/internal/detect"
	"github.com/scrubgate-ai/scrubgate/internal/pipeline"
	"github.com/scrubgate-ai/scrubgate/internal/redact"
	"github.com/scrubgate-ai/scrubgate/internal/server"
	"github.com/scrubgate-ai/scrubgate/internal/telemetry"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "scrubgate.yaml", "Path to scrubgate config file")
	flag.Parse()

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  cfg.Telemetry.Version,
	})
	if err != nil {
		redact.Fatalf("failed to set up telemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	detector, err := buildDetector(cfg)
	if err != nil {
		redact.Fatalf("failed to build detector: %v", err)
	}

	var grounder pipeline.Grounder
	if cfg.Agent.EnableGrounding {
		apiKey := os.Getenv(cfg.Agent.APIKeyEnv)
		if apiKey == "" {
			redact.Fatalf("agent api key env %s is empty", cfg.Agent.APIKeyEnv)
		}
		client := agent.NewFoundry(cfg.Agent.Endpoint, apiKey, agent.FoundryOptions{
			APIVersion:       cfg.Agent.APIVersion,
			Timeout:          cfg.Agent.Timeout.Std(),
			MaxResponseBytes: cfg.Agent.MaxResponseBytes,
		})
		grounder = agent.New(client, agent.Config{
			AgentID: cfg.Agent.AgentID,
			Spec: agent.AgentSpec{
				Name:             cfg.Agent.AgentName,
				Model:            cfg.Agent.Model,
				Instructions:     cfg.Agent.Instructions,
				EnableGrounding:  true,
				BingConnectionID: cfg.Agent.BingConnectionID,
			},
			RunTimeout:   cfg.Agent.RunTimeout.Std(),
			PollInterval: cfg.Agent.PollInterval.Std(),
			Nudge:        cfg.Agent.GroundingNudge,
		})
	} else {
		redact.Logf("grounding disabled; /v1/query will only detect and redact")
	}

	domain, err := detect.ParseDomain(cfg.Detection.Domain)
	if err != nil {
		redact.Fatalf("invalid detection domain: %v", err)
	}
	pipe := pipeline.New(detector, grounder, pipeline.Options{
		Domain:       domain,
		Language:     cfg.Detection.Language,
		ScrubAnswers: cfg.Detection.ScrubResponses,
	})

	authz, err := auth.NewFromConfig(cfg)
	if err != nil {
		redact.Fatalf("failed to build auth: %v", err)
	}

	emitter := buildAuditEmitter(cfg)
	defer emitter.Close(context.Background())

	snap := config.NewSnapshot(cfg)
	if cfg.Server.WatchConfig {
		if err := config.Watch(ctx, *configPath, snap); err != nil {
			redact.Logf("config watch unavailable: %v", err)
		}
	}

	srv := server.New(server.Options{
		Snapshot:  snap,
		Auth:      authz,
		Pipeline:  pipe,
		Audit:     emitter,
		Telemetry: tel,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		redact.Fatalf("server error: %v", err)
	case <-ctx.Done():
		redact.Logf("shutting down")
	}
}

func buildDetector(cfg *config.Config) (detect.Detector, error) {
	switch cfg.Detection.Provider {
	case "azure":
		apiKey := os.Getenv(cfg.Detection.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("detection api key env %s is empty", cfg.Detection.APIKeyEnv)
		}
		return detect.NewAzure(cfg.Detection.Endpoint, apiKey, cfg.Detection.Timeout.Std(), cfg.Detection.MaxResponseBytes), nil
	case "regex":
		return detect.NewRegex(), nil
	default:
		return nil, fmt.Errorf("unsupported detection provider %q", cfg.Detection.Provider)
	}
}

func buildAuditEmitter(cfg *config.Config) *audit.Emitter {
	var sinks []audit.Sink
	if cfg.Audit.Enabled {
		if cfg.Audit.FilePath != "" {
			sink, err := audit.NewFileSink(cfg.Audit.FilePath)
			if err != nil {
				redact.Fatalf("failed to open audit file sink: %v", err)
			}
			sinks = append(sinks, sink)
		}
		if cfg.Audit.Webhook.URL != "" {
			sink, err := audit.NewWebhookSink(cfg.Audit.Webhook.URL, cfg.Audit.Webhook.Headers, cfg.Audit.Webhook.Timeout.Std())
			if err != nil {
				redact.Fatalf("failed to build audit webhook sink: %v", err)
			}
			sinks = append(sinks, sink)
		}
	}
	return audit.NewEmitter(audit.EmitterConfig{
		QueueSize:       cfg.Audit.QueueSize,
		Workers:         cfg.Audit.Workers,
		ShutdownTimeout: cfg.Audit.ShutdownTimeout.Std(),
	}, sinks)
}
