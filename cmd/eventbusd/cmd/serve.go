package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/dlq"
	"github.com/ArrinPaul/Campus-Connect-sub003/idempotency"
	"github.com/ArrinPaul/Campus-Connect-sub003/monitor"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	addr            string
	collectInterval time.Duration
	redisAddr       string
	dedupeTTL       time.Duration
	shutdownTimeout time.Duration
	deliveryLogSize int
}

// NewServeCommand creates the serve command
func NewServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bus with the campus modules and the admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8080", "admin HTTP listen address")
	flags.DurationVar(&opts.collectInterval, "collect-interval", 30*time.Second, "how often dead letters move into the operator store")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for notification deduplication (in-memory when empty)")
	flags.DurationVar(&opts.dedupeTTL, "dedupe-ttl", 24*time.Hour, "how long delivered notifications are remembered")
	flags.IntVar(&opts.deliveryLogSize, "delivery-log-size", monitor.DefaultMaxEntries, "deliveries kept in the delivery log")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown limit")

	return cmd
}

func serve(ctx context.Context, cfg eventbus.Config, logger *slog.Logger, opts *serveOptions) error {
	bus, err := eventbus.NewFromConfig(cfg, eventbus.WithLogger(logger))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := newDedupeStore(ctx, opts.redisAddr, opts.dedupeTTL)
	if err != nil {
		return err
	}
	defer closeStore()

	deliveries := monitor.NewMemoryStore(monitor.WithMaxEntries(opts.deliveryLogSize))
	defer deliveries.Close()

	campus, err := WireCampus(bus, store, logger,
		eventbus.WithMiddleware(monitor.Middleware(deliveries)))
	if err != nil {
		return err
	}
	defer campus.Close()

	mgr := dlq.NewManager(bus, bus, dlq.WithLogger(logger))
	collectDone := make(chan error, 1)
	go func() {
		collectDone <- mgr.Run(ctx, opts.collectInterval)
	}()

	admin := monitor.New(bus,
		monitor.WithManager(mgr),
		monitor.WithDeliveryStore(deliveries),
		monitor.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           admin,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("admin server listening", "addr", opts.addr, "bus", bus.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		cancel()
		<-collectDone
		return fmt.Errorf("admin server: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), opts.shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown", "error", err)
	}
	if err := <-collectDone; err != nil {
		return fmt.Errorf("dead-letter collector: %w", err)
	}
	return nil
}

// newDedupeStore returns a Redis store when addr is set, an in-memory one
// otherwise, with the function releasing it.
func newDedupeStore(ctx context.Context, addr string, ttl time.Duration) (idempotency.Store, func(), error) {
	if addr == "" {
		s := idempotency.NewMemoryStore(ttl)
		return s, s.Close, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return idempotency.NewRedisStore(client, ttl), func() { client.Close() }, nil
}
