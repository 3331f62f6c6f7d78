package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/propsignal/crosscheck/internal/cache"
	"github.com/propsignal/crosscheck/internal/config"
	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
	"github.com/propsignal/crosscheck/internal/integration"
	httpiface "github.com/propsignal/crosscheck/internal/interfaces/http"
	"github.com/propsignal/crosscheck/internal/interfaces/ws"
	"github.com/propsignal/crosscheck/internal/metrics"
	"github.com/propsignal/crosscheck/internal/orchestrator"
	"github.com/propsignal/crosscheck/internal/store"
	"github.com/propsignal/crosscheck/internal/validate"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	hub := ws.NewHub()

	breakerHook := func(source domain.DataSource, from, to gobreaker.State) {
		reg.SetBreakerState(string(source), breakerGauge(to))
		hub.Publish("breaker_state_changed", map[string]interface{}{
			"source": string(source),
			"from":   from.String(),
			"to":     to.String(),
		})
	}
	breakerOverrides := make(map[domain.DataSource]datasources.BreakerSettings)
	for source, o := range cfg.BreakerOverrideMap() {
		breakerOverrides[source] = datasources.BreakerSettings{
			FailureThreshold: o.FailureThreshold,
			RecoveryTimeout:  o.RecoveryTimeout.Std(),
			SuccessThreshold: o.SuccessThreshold,
		}
	}
	breakers := datasources.NewBreakerManager(datasources.BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout.Std(),
		SuccessThreshold: cfg.SuccessThreshold,
	}, breakerOverrides, breakerHook)

	single := validate.NewSingleSourceValidator(validate.NewSchemaValidator(), validate.NewStatisticalValidator())
	eng := engine.New(single, engine.Config{Strategy: engine.ConsensusStrategy(cfg.ConsensusStrategy)})

	var reportCache *cache.ReportCache
	if cfg.CacheResults {
		var external cache.ByteCache
		if cfg.RedisAddr != "" {
			external = cache.NewRedis(cfg.RedisAddr)
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis write-through cache enabled")
		}
		reportCache = cache.NewReportCache(cfg.CacheTTL.Std(), cfg.MaxCacheSize, external)
	}

	orch := orchestrator.New(eng, breakers, reportCache, reg, hub, orchestrator.Config{
		Timeout:              cfg.ValidationTimeout.Std(),
		MaxConcurrent:        cfg.MaxConcurrentValidations,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		CacheResults:         cfg.CacheResults,
		CrossValidate:        cfg.EnableCrossValidation,
		AlertOnConflicts:     cfg.AlertOnConflicts,
	})
	orch.Start(ctx, 5*time.Minute)

	history, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		// the service runs without history; the endpoints report not configured
		log.Warn().Err(err).Msg("validation history store unavailable")
	}
	defer history.Close()

	service := integration.NewService(orch, datasources.NewClientRegistry(), reg, hub, integration.Config{
		EnableValidation:       cfg.EnableValidation,
		EnableFallback:         cfg.EnableFallback,
		MinConfidenceThreshold: cfg.MinConfidenceThreshold,
	})

	server := httpiface.NewServer(cfg.HTTPAddr, orch, service, reg, hub, history)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// breakerGauge maps breaker states onto the metric scale: 0 closed,
// 1 half-open, 2 open.
func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
