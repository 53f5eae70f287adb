package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/tbourn/go-engage-backend/internal/http"
)

var (
	noPoller     bool
	drainTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and the operator API",
	Long: `serve starts the polling loop (one tick immediately, then every
POLL_INTERVAL) and the operator HTTP API on PORT. SIGINT or SIGTERM stops
both; in-flight ticks and requests get --drain-timeout to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := a.Close(cctx); err != nil {
				log.Warn().Err(err).Msg("shutdown")
			}
		}()

		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, httpapi.Deps{
			Engine:     a.orchestrator,
			Monitoring: a.monitoring,
			Decider:    a.decisions,
			DB:         a.db,
		}, cfg)

		srv := &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("operator api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		if !noPoller {
			g.Go(func() error {
				log.Info().Dur("interval", cfg.Poll.Interval).Msg("poller started")
				return a.orchestrator.Run(gctx, cfg.Poll.Interval)
			})
		}

		err = g.Wait()
		log.Info().Msg("stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&noPoller, "no-poller", false, "serve the API only; ticks run on POST /polls")
	serveCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "grace period for in-flight work on shutdown")
}
