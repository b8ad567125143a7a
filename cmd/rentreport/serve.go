package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/components/geocode"
	"github.com/goliatone/go-rentreport/internal/config"
	"github.com/goliatone/go-rentreport/internal/httpapi"
	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/contract"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/registration"
	"github.com/goliatone/go-rentreport/pkg/rentreport"
	"github.com/goliatone/go-rentreport/pkg/session"
	"github.com/goliatone/go-rentreport/pkg/submit"
	"github.com/goliatone/go-rentreport/pkg/tracking"
	"github.com/goliatone/go-rentreport/pkg/validation"
	"github.com/goliatone/go-rentreport/pkg/views"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

// app is the wired service graph behind the serve command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	handler http.Handler
	tracker *tracking.Tracker
	redis   *redis.Client
}

func newClient(cfg config.Config, logger *zap.Logger, service, baseURL string) (*client.Client, error) {
	return client.New(service, baseURL,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(logger),
	)
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{cfg: cfg, logger: logger}
	sys := clock.System()

	identityClient, err := newClient(cfg, logger, "identity", cfg.Endpoints.Identity)
	if err != nil {
		return nil, err
	}
	apiClient, err := newClient(cfg, logger, "api", cfg.Endpoints.API)
	if err != nil {
		return nil, err
	}
	identity := client.NewIdentity(identityClient)
	api := client.NewAPI(apiClient)

	registry, err := forms.Default()
	if err != nil {
		return nil, err
	}
	validator := validation.New(validation.WithClock(sys), validation.WithLogger(logger))
	caches := rentreport.NewCaches(cfg.CacheTTL, sys, logger)

	coordinatorOpts := []submit.Option{
		submit.WithSender("identity", identityClient),
		submit.WithSender("api", apiClient),
		submit.WithInvalidator(caches.Invalidators()),
		submit.WithDismissAfter(cfg.ToastDismiss),
		submit.WithLogger(logger),
	}
	if cfg.Endpoints.Documents != "" {
		documentsClient, err := newClient(cfg, logger, "documents", cfg.Endpoints.Documents)
		if err != nil {
			return nil, err
		}
		coordinatorOpts = append(coordinatorOpts, submit.WithDocuments(client.NewDocuments(documentsClient)))
	}
	if cfg.ContractCheck {
		doc, err := contract.Default(ctx)
		if err != nil {
			return nil, err
		}
		coordinatorOpts = append(coordinatorOpts, submit.WithContract(doc))
	}
	coordinator := submit.New(validator, coordinatorOpts...)

	stores := session.NewMemoryStores(sys)
	if cfg.RedisURL != "" {
		rdb, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		stores = session.NewRedisStores(rdb, cfg.RedisPrefix, sys)
		logger.Info("session stores backed by redis", zap.String("prefix", cfg.RedisPrefix))
	}

	if cfg.Endpoints.Tracking != "" {
		trackingClient, err := newClient(cfg, logger, "tracking", cfg.Endpoints.Tracking)
		if err != nil {
			a.close()
			return nil, err
		}
		a.tracker = tracking.NewTracker(client.NewTracking(trackingClient),
			tracking.WithDebounce(cfg.TrackingDebounce),
			tracking.WithIdleTTL(cfg.TrackingIdleTTL),
			tracking.WithClock(sys),
			tracking.WithLogger(logger),
		)
	}

	reportDeps := rentreport.Deps{
		Forms:       registry,
		Coordinator: coordinator,
		API:         api,
		Stores:      stores,
		Caches:      caches,
		Clock:       sys,
		Logger:      logger,
	}
	if cfg.Endpoints.Delivery != "" {
		deliveryClient, err := newClient(cfg, logger, "delivery", cfg.Endpoints.Delivery)
		if err != nil {
			a.close()
			return nil, err
		}
		reportDeps.Delivery = client.NewDelivery(deliveryClient)
	}
	reports, err := rentreport.NewService(reportDeps)
	if err != nil {
		a.close()
		return nil, err
	}

	funnelDeps := registration.Deps{
		Forms:       registry,
		Coordinator: coordinator,
		Provider:    identity,
		Stores:      stores,
		Tracker:     a.tracker,
		Retry:       auth.Retry{Attempts: cfg.SignInAttempts, Delay: cfg.SignInDelay},
		Clock:       sys,
		Logger:      logger,
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
	}
	apiDeps := httpapi.Deps{
		Forms:           registry,
		Validator:       validator,
		Provider:        identity,
		Reports:         reports,
		Tracker:         a.tracker,
		Clock:           sys,
		Logger:          logger,
		PortalReturnURL: cfg.PortalReturnURL,
	}
	if cfg.Endpoints.Billing != "" {
		billingClient, err := newClient(cfg, logger, "billing", cfg.Endpoints.Billing)
		if err != nil {
			a.close()
			return nil, err
		}
		billing := client.NewBilling(billingClient)
		funnelDeps.Billing = billing
		apiDeps.Portal = billing
	}
	funnel, err := registration.New(funnelDeps)
	if err != nil {
		a.close()
		return nil, err
	}
	apiDeps.Registration = funnel

	if cfg.Endpoints.Geocode != "" {
		geocodeClient, err := newClient(cfg, logger, "geocode", cfg.Endpoints.Geocode)
		if err != nil {
			a.close()
			return nil, err
		}
		apiDeps.Geocode = geocode.New(
			geocode.WithSource(client.NewGeocoder(geocodeClient)),
			geocode.WithCacheTTL(cfg.CacheTTL),
			geocode.WithClock(sys),
			geocode.WithLogger(logger),
		)
	}

	renderer, err := views.New()
	if err != nil {
		a.close()
		return nil, err
	}
	if err := renderer.Engine().GlobalContext(map[string]any{"portalReturnUrl": cfg.PortalReturnURL}); err != nil {
		a.close()
		return nil, err
	}
	apiDeps.Views = renderer

	handler, err := httpapi.NewRouter(apiDeps)
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = handler
	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// close flushes pending tracking updates and releases the redis pool.
func (a *app) close() {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
