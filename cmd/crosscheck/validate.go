package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/propsignal/crosscheck/internal/cache"
	"github.com/propsignal/crosscheck/internal/config"
	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
	"github.com/propsignal/crosscheck/internal/integration"
	"github.com/propsignal/crosscheck/internal/orchestrator"
	"github.com/propsignal/crosscheck/internal/validate"
)

// inputFile is the one-shot validation input: ordered per-source records.
// Slice order decides consensus tie-breaks, so the file order matters.
type inputFile []struct {
	Source string        `json:"source"`
	Record domain.Record `json:"record"`
}

// runValidate runs a single cross-validation from a JSON file and prints the
// enhanced record plus the report to stdout.
func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	kind, _ := cmd.Flags().GetString("kind")
	entityID, _ := cmd.Flags().GetInt64("id")
	inputPath, _ := cmd.Flags().GetString("input")

	if kind != domain.EntityPlayer && kind != domain.EntityGame {
		return fmt.Errorf("kind must be player or game, got %q", kind)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input %s: %w", inputPath, err)
	}
	var in inputFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parsing input %s: %w", inputPath, err)
	}

	sources := make([]engine.SourceRecord, len(in))
	for i, src := range in {
		sources[i] = engine.SourceRecord{Source: domain.DataSource(src.Source), Record: src.Record}
	}

	single := validate.NewSingleSourceValidator(validate.NewSchemaValidator(), validate.NewStatisticalValidator())
	eng := engine.New(single, engine.Config{Strategy: engine.ConsensusStrategy(cfg.ConsensusStrategy)})
	breakers := datasources.NewBreakerManager(datasources.BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout.Std(),
		SuccessThreshold: cfg.SuccessThreshold,
	}, nil, nil)
	orch := orchestrator.New(eng, breakers, cache.NewReportCache(cfg.CacheTTL.Std(), cfg.MaxCacheSize, nil), nil, nil, orchestrator.Config{
		Timeout:              cfg.ValidationTimeout.Std(),
		MaxConcurrent:        cfg.MaxConcurrentValidations,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		CacheResults:         false,
		CrossValidate:        cfg.EnableCrossValidation,
		AlertOnConflicts:     cfg.AlertOnConflicts,
	})
	service := integration.NewService(orch, nil, nil, nil, integration.Config{
		EnableValidation:       cfg.EnableValidation,
		EnableFallback:         cfg.EnableFallback,
		MinConfidenceThreshold: cfg.MinConfidenceThreshold,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ValidationTimeout.Std())
	defer cancel()

	enhanced, report, err := service.ValidateAndEnhance(ctx, kind, entityID, sources)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := map[string]interface{}{"enhanced_data": enhanced}
	if report != nil {
		out["report"] = report
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// runHealth queries a running service's /health endpoint.
func runHealth(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	resp, err := http.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(health); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service degraded (HTTP %d)", resp.StatusCode)
	}
	return nil
}
