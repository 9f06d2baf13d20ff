package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"extornos/internal/domain"
	handler "extornos/internal/handler/http"
	"extornos/internal/mailer"
	"extornos/internal/metrics"
	"extornos/internal/notification"
	"extornos/internal/service"
	"extornos/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var (
		skipMigrate bool
		dryRunMail  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the public confirmation pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, skipMigrate, dryRunMail)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply the postgres schema on start")
	cmd.Flags().BoolVar(&dryRunMail, "dry-run-mail", false, "record emails in memory instead of sending them")
	return cmd
}

func runServe(ctx context.Context, skipMigrate, dryRunMail bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log

	if !skipMigrate {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	uploads := storage.NewAttachments(backend, cfg.Storage.MaxFileSize)

	var mail mailer.Service
	if dryRunMail || cfg.SMTP.Host == "" {
		log.Warn("smtp disabled, emails are only recorded in memory")
		mail = &mailer.Mock{}
	} else {
		mail = mailer.NewSMTPMailer(cfg.SMTP)
	}

	configs := service.NewEmailConfigService(a.emailConfigs, a.fallbackEmailConfig(), log)
	if _, err := configs.Current(ctx); err != nil && !errors.Is(err, domain.ErrConfigMissing) {
		log.Warn("email config unavailable at start", zap.Error(err))
	}

	dispatcher, err := notification.NewDispatcher(mail, configs, cfg.Server.PublicBaseURL, log)
	if err != nil {
		return err
	}
	tokens := service.NewTokenIssuer(a.refunds, cfg.Token.ConfirmationBytes)
	refunds := service.NewRefundService(a.refunds, tokens, dispatcher, uploads, log)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := handler.Options{
		AuthToken:      cfg.Token.AuthToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadSize:  cfg.Storage.MaxFileSize,
		MaxFiles:       cfg.Storage.MaxFiles,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "local" {
		if u, err := url.Parse(cfg.Storage.LocalURLPrefix); err == nil && u.Path != "" {
			opts.Files = http.FileServer(http.Dir(cfg.Storage.LocalDir))
			opts.FilesPath = u.Path
		}
	}
	if cfg.Token.AuthToken == "" {
		log.Warn("token.authToken is empty, the admin API rejects every request")
	}

	h := handler.NewHandler(refunds, configs, uploads, log, opts)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("public_base_url", cfg.Server.PublicBaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
