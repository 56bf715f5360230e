package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/premproperties/portalauth/internal/httpapi"
	promexport "github.com/premproperties/portalauth/metrics/export/prometheus"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auth HTTP API and the token sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags) error {
	rt, err := loadRuntime(ctx, flags)
	if err != nil {
		return err
	}
	defer rt.Close()

	report := rt.engine.SecurityReport()
	rt.logger.Info("security posture",
		zap.Bool("cookie_secure", report.CookieSecure),
		zap.Duration("admin_session_ttl", report.AdminSessionTTL),
		zap.Duration("member_session_ttl", report.MemberSessionTTL),
		zap.Duration("otp_ttl", report.OTPTTL),
		zap.Int("otp_max_attempts", report.OTPMaxAttempts),
		zap.Bool("rate_limiting", report.RateLimitingActive),
		zap.String("token_store", string(report.TokenStore)),
		zap.Bool("audit", report.AuditEnabled),
	)
	if !report.CookieSecure && rt.cfg.Production() {
		rt.logger.Warn("session cookies are not marked Secure in production")
	}

	proxies, err := httpapi.ParseTrustedProxies(rt.cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}
	api := httpapi.New(rt.engine, rt.logger, promexport.Handler(rt.engine)).WithTrustedProxies(proxies)
	srv := &http.Server{
		Addr:              rt.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return rt.engine.RunSweeper(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
