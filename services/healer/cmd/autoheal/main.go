package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"autoheal/pkg/db"
	"autoheal/pkg/telemetry"
	"autoheal/services/audit"
	"autoheal/services/healer"
	"autoheal/services/healer/internal/config"
)

const serviceName = "autoheal"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Alert-driven EC2 auto-remediation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newHandleCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newAuditCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newServeCommand() *cobra.Command {
	var consumeAlerts bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept alert events over HTTP and optionally NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName, telemetry.Options{
				Endpoint: cfg.OTLPEndpoint,
				Level:    cfg.LogLevel,
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTelemetry(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown telemetry")
				}
			}()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if consumeAlerts {
				if a.bus == nil {
					return errors.New("--consume-alerts requires NATS_URL")
				}
				sub, err := healer.ConsumeAlerts(ctx, a.bus, cfg.AlertsSubject, "autoheal-alerts", a.orch, logger)
				if err != nil {
					return fmt.Errorf("subscribe alerts: %w", err)
				}
				defer sub.Close()
				logger.Info().Str("subject", cfg.AlertsSubject).Msg("consuming alerts from nats")
			}

			routes, err := healer.Routes(healer.ServerOptions{
				Handler:  a.orch,
				Audit:    a.auditReader(),
				Ready:    a.ready,
				Gatherer: a.registry,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           middleware(routes),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting autoheal")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("shutdown server")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&consumeAlerts, "consume-alerts", false, "Also consume alert envelopes from NATS_ALERTS_SUBJECT")
	return cmd
}

func newHandleCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Process a single alert event and print the response envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			shutdownTelemetry, _, logger, err := telemetry.Init(ctx, serviceName, telemetry.Options{
				Endpoint: cfg.OTLPEndpoint,
				Level:    cfg.LogLevel,
				Out:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTelemetry(context.Background()) }()

			raw, err := readEvent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			resp := a.orch.Handle(ctx, raw)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Event JSON file, or - for stdin")
	return cmd
}

func readEvent(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return raw, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply audit database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cmd.ErrOrStderr())

			pool, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	}
}

func newAuditCommand() *cobra.Command {
	var (
		filter audit.Filter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded healing actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			orm, err := db.OpenORM(pool)
			if err != nil {
				return err
			}
			history, err := audit.NewHistory(orm)
			if err != nil {
				return err
			}

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := history.List(ctx, filter)
			if err != nil {
				return fmt.Errorf("list audit: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.InstanceID, "instance", "", "Only entries for this instance id")
	cmd.Flags().StringVar(&filter.InvocationID, "invocation", "", "Only entries for this invocation id")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only entries with this status")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this age (e.g. 24h)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "Maximum entries to print")
	return cmd
}
