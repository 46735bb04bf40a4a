package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scrubgate-ai/scrubgate/internal/config"
	"github.com/scrubgate-ai/scrubgate/internal/detect"
	"github.com/scrubgate-ai/scrubgate/internal/pipeline"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
)

func main() {
	cfgPath := flag.String("config", "", "path to config yaml (optional; defaults apply)")
	n := flag.Int("n", 200, "number of iterations")
	text := flag.String("text", "Patient John Doe, MRN 12345, SSN 123-45-6789, email john.doe@example.com, asked about metformin dosing.", "query text to evaluate")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// The bench always runs the offline regex backend: it measures the span
	// pipeline (detect, resolve, render, decide), not network latency.
	domain, err := detect.ParseDomain(cfg.Detection.Domain)
	if err != nil {
		log.Fatalf("invalid detection domain: %v", err)
	}
	pipe := pipeline.New(detect.NewRegex(), nil, pipeline.Options{
		Domain:   domain,
		Language: cfg.Detection.Language,
	})
	pol := policy.Policy{Mode: policy.ModeRedact, ConfidenceThreshold: cfg.Detection.ConfidenceThreshold}

	ctx := context.Background()

	// Warmup
	for i := 0; i < 5; i++ {
		if _, err := pipe.Process(ctx, *text, pol); err != nil {
			log.Fatalf("warmup failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	durations := make([]time.Duration, 0, *n)
	var entities int
	for i := 0; i < *n; i++ {
		start := time.Now()
		res, err := pipe.Process(ctx, *text, pol)
		if err != nil {
			log.Fatalf("process failed: %v", err)
		}
		durations = append(durations, time.Since(start))
		entities = len(res.Entities)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d avg_ms=%.3f p50_ms=%.3f p95_ms=%.3f entities=%d domain=%s threshold=%.2f\n",
		len(durations),
		avg,
		p50,
		p95,
		entities,
		domain,
		cfg.Detection.ConfidenceThreshold,
	)
}
