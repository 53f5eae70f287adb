package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/config"
	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/connector/instagram"
	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/knowledge"
	"github.com/tbourn/go-engage-backend/internal/moderation"
	"github.com/tbourn/go-engage-backend/internal/observability"
	"github.com/tbourn/go-engage-backend/internal/repo"
	"github.com/tbourn/go-engage-backend/internal/responder"
	"github.com/tbourn/go-engage-backend/internal/services"
	"github.com/tbourn/go-engage-backend/internal/sysutil"
)

// app is the wired engine.
type app struct {
	db           *gorm.DB
	orchestrator *services.Orchestrator
	monitoring   *services.MonitoringRegistry
	decisions    *services.DecisionService
	shutdownOTel observability.ShutdownFunc
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownOTel != nil {
		errs = append(errs, a.shutdownOTel(ctx))
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	var err error
	if a.shutdownOTel, err = observability.Setup(ctx, cfg.OTEL, sysutil.Version()); err != nil {
		return nil, err
	}

	dsn := cfg.DB.Path
	if cfg.DB.Driver == "postgres" {
		dsn = cfg.DB.URL
	}
	if a.db, err = repo.Open(cfg.DB.Driver, dsn); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(a.db); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	retry := connector.RetryPolicy{
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		MaxRetries: cfg.Retry.MaxRetries,
	}
	connectors := connector.NewRegistry()
	ig := instagram.NewFactory(instagram.Options{
		BaseURL:   cfg.Instagram.APIBase,
		RateRPS:   cfg.Instagram.RateRPS,
		RateBurst: cfg.Instagram.RateBurst,
		MaxPages:  cfg.Instagram.MaxPages,
		Timeout:   cfg.Instagram.Timeout,
		Retry:     retry,
	})
	connectors.Register(instagram.Platform, ig.New)

	a.decisions = &services.DecisionService{
		DB:                a.db,
		FlaggedAction:     domain.Verdict(cfg.Moderation.FlaggedAction),
		ModerationFailure: services.ParseFailurePolicy(cfg.Moderation.FailurePolicy),
	}
	if cfg.Moderation.Enabled {
		a.decisions.Moderator = moderation.New(moderation.Options{
			URL:     cfg.Moderation.URL,
			APIKey:  cfg.Moderation.APIKey,
			Model:   cfg.Moderation.Model,
			Timeout: cfg.Moderation.Timeout,
		})
	}

	resp, err := newResponder(ctx, cfg.Responder)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.monitoring = &services.MonitoringRegistry{
		DB:         a.db,
		Cadence:    services.DefaultCadence(),
		Connectors: connectors,
		Log:        log.With().Str("component", "monitoring").Logger(),
	}
	a.orchestrator = &services.Orchestrator{
		DB:         a.db,
		Registry:   a.monitoring,
		Connectors: connectors,
		Gate: &services.AutomationGate{
			DB:  a.db,
			Log: log.With().Str("component", "gate").Logger(),
		},
		Triage:      services.TriageFilter{Log: log.With().Str("component", "triage").Logger()},
		Decisions:   a.decisions,
		Responder:   resp,
		TickBudget:  cfg.Poll.TickBudget,
		PostTimeout: cfg.Poll.PostTimeout,
		Workers:     cfg.Poll.Workers,
		BatchSize:   cfg.Poll.BatchSize,

		ReplyRescanParents: cfg.Poll.ReplyRescanParents,
		ReplyRescanWindow:  cfg.Poll.ReplyRescanWindow,

		Log: log.With().Str("component", "orchestrator").Logger(),
	}
	return a, nil
}

func newResponder(ctx context.Context, rc config.ResponderConfig) (services.Responder, error) {
	switch rc.Provider {
	case "gemini":
		var kb *knowledge.Base
		if rc.KnowledgePath != "" {
			var err error
			if kb, err = knowledge.Load(rc.KnowledgePath); err != nil {
				return nil, fmt.Errorf("knowledge base: %w", err)
			}
			log.Info().Str("path", rc.KnowledgePath).Int("facts", kb.Len()).Msg("knowledge base loaded")
		}
		g, err := responder.NewGemini(ctx, rc.GeminiAPIKey, rc.GeminiModel, kb)
		if err != nil {
			return nil, fmt.Errorf("gemini responder: %w", err)
		}
		return g, nil
	default:
		return responder.Template{Format: rc.Template}, nil
	}
}
