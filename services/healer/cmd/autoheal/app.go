package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"autoheal/pkg/awsconf"
	"autoheal/pkg/bus"
	"autoheal/pkg/db"
	"autoheal/pkg/render"
	gos3 "autoheal/pkg/s3"
	"autoheal/services/audit"
	"autoheal/services/healer"
	"autoheal/services/healer/internal/config"
)

const streamName = "AUTOHEAL"

// app holds the wired pipeline and the resources it owns.
type app struct {
	orch     *healer.Orchestrator
	registry *prometheus.Registry
	pool     *pgxpool.Pool
	bus      *bus.Bus
	store    *audit.PostgresStore
}

func buildApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	awsCfg, err := awsconf.Load(ctx, awsconf.Settings{
		Region:    cfg.AWSRegion,
		Endpoint:  cfg.AWSEndpoint,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	compute, err := healer.NewEC2Compute(ec2.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	cpu, err := healer.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	commands, err := healer.NewSSMCommands(ssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}

	sinks := audit.Fanout{healer.NewLogAudit(logger)}
	if cfg.DBDSN != "" {
		a.pool, err = db.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.store, err = audit.NewPostgresStore(a.pool, map[string]any{"region": awsCfg.Region})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.store)
	}
	if cfg.AuditBucket != "" {
		archive, err := audit.NewS3Archive(gos3.NewClient(awsCfg), cfg.AuditBucket, cfg.AuditPrefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
	}

	var notifiers []healer.Notifier
	if cfg.SNSTopicARN != "" {
		n, err := healer.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.NATSURL != "" {
		a.bus, err = bus.New(cfg.NATSURL, nats.Name("autoheal"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		if err := a.bus.EnsureStream(streamName, cfg.ResultsSubject, cfg.AlertsSubject); err != nil {
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
		n, err := healer.NewBusNotifier(a.bus, cfg.ResultsSubject)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := healer.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	engine, err := render.New()
	if err != nil {
		return nil, err
	}
	params, err := healer.LoadScriptParams(cfg.ScriptsFile)
	if err != nil {
		return nil, err
	}
	scripts, err := healer.NewScripts(engine, params)
	if err != nil {
		return nil, err
	}

	inspector, err := healer.NewInspector(compute, cpu, logger)
	if err != nil {
		return nil, err
	}
	executor, err := healer.NewExecutor(healer.ExecutorConfig{
		Enabled:       cfg.Enabled,
		ActionTimeout: cfg.ActionTimeout(),
	}, compute, inspector, commands, scripts, sinks, metrics, logger)
	if err != nil {
		return nil, err
	}
	reporter, err := healer.NewReporter(sinks, logger, notifiers...)
	if err != nil {
		return nil, err
	}

	a.orch, err = healer.New(healer.Deps{
		Inspector:   inspector,
		Executor:    executor,
		Reporter:    reporter,
		Metrics:     metrics,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Bool("enabled", cfg.Enabled).
		Int("notifiers", len(notifiers)).
		Int("audit_sinks", len(sinks)).
		Msg("auto-healing pipeline ready")
	built = true
	return a, nil
}

func (a *app) ready(ctx context.Context) error {
	if a.bus != nil && !a.bus.Connected() {
		return errors.New("nats disconnected")
	}
	if a.pool == nil {
		return nil
	}
	return db.Ping(ctx, a.pool)
}

func (a *app) auditReader() healer.AuditReader {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *app) close() {
	if a == nil {
		return
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func openDatabase(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DBDSN == "" {
		return nil, errors.New("AUTOHEAL_DB_DSN is required")
	}
	return db.Open(ctx, cfg.DBDSN)
}
