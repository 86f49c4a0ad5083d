package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rxvc/internal/audit"
	"rxvc/internal/credential/issuer"
	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	credstore "rxvc/internal/credential/store"
	"rxvc/internal/decision"
	decisionmetrics "rxvc/internal/decision/metrics"
	"rxvc/internal/disclosure"
	"rxvc/internal/fraud/alerts"
	"rxvc/internal/identity"
	"rxvc/internal/platform/config"
	"rxvc/internal/platform/httpserver"
	"rxvc/internal/platform/kafka"
	"rxvc/internal/platform/metrics"
	"rxvc/internal/platform/middleware"
	"rxvc/internal/platform/postgres"
	"rxvc/internal/platform/ratelimit"
	"rxvc/internal/platform/redis"
	"rxvc/internal/registry"
	"rxvc/internal/registry/auditortoken"
	"rxvc/internal/signer/local"
	"rxvc/internal/signer/remote"
	"rxvc/internal/workflow"
	"rxvc/internal/workflow/handler"
	platformaudit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/audit/publishers/compliance"
	"rxvc/pkg/platform/audit/publishers/ops"
	kafkastore "rxvc/pkg/platform/audit/store/kafka"
	"rxvc/pkg/platform/audit/store/ledger"
	auditmemory "rxvc/pkg/platform/audit/store/memory"
	auditpostgres "rxvc/pkg/platform/audit/store/postgres"
	"rxvc/pkg/platform/circuit"
	"rxvc/pkg/platform/middleware/metadata"
	"rxvc/pkg/platform/middleware/request"
	"rxvc/pkg/platform/middleware/requesttime"
)

// app is the wired process. closers run in reverse order on shutdown.
type app struct {
	router  chi.Router
	closers []io.Closer
	checks  map[string]httpserver.Check
	log     *slog.Logger
}

func (a *app) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

const readinessTimeout = 2 * time.Second

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{log: log, checks: map[string]httpserver.Check{}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.onClose(db)
		a.checks["postgres"] = db.PingContext
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		log.Info("postgres stores enabled")
	}

	creds, actors, tx := stores(db)
	if err := seedActors(ctx, actors, cfg.Registry.SeedPath, log); err != nil {
		return nil, err
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.onClose(rc)
		a.checks["redis"] = rc.Health
	}

	signer, resolver, err := signing(cfg, a, log)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		log.Info("identity document cache enabled", "ttl", cfg.Redis.DocumentTTL)
		resolver = identity.NewCached(resolver, rc.Client, cfg.Redis.DocumentTTL, log)
	}

	sink, err := auditSink(ctx, cfg, db, a, log)
	if err != nil {
		return nil, err
	}

	publisher, err := fraudAlerts(cfg.RabbitMQ, a, log)
	if err != nil {
		return nil, err
	}

	catalog, err := disclosure.NewCatalog(cfg.Engine)
	if err != nil {
		return nil, err
	}
	disclosures := disclosure.New(signer, catalog,
		disclosure.WithMetrics(disclosure.NewMetrics()),
		disclosure.WithLogger(log),
	)

	compliancePub := compliance.New(sink,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	a.onClose(compliancePub)
	tracker := ops.New(sink, ops.WithLogger(log), ops.WithMetrics(ops.NewMetrics()))
	a.onClose(tracker)

	opts := []workflow.Option{
		workflow.WithCompliance(compliancePub),
		workflow.WithTracker(tracker),
		workflow.WithAlerts(publisher),
		workflow.WithTx(tx),
		workflow.WithLogger(log),
	}
	if counter, ok := sink.(platformaudit.Counter); ok {
		opts = append(opts, workflow.WithAuditCounter(counter))
	}

	service := workflow.New(workflow.Deps{
		Store:    creds,
		Registry: actors,
		Issuer: issuer.New(signer, resolver,
			issuer.WithMetrics(issuer.NewMetrics()),
			issuer.WithLogger(log),
		),
		Disclosures: disclosures,
		Decisions: decision.New(creds, actors, cfg.Engine.FraudWeights,
			decision.WithMetrics(decisionmetrics.New()),
			decision.WithLogger(log),
		),
		Audits: audit.New(creds, disclosures, sink,
			audit.WithMetrics(audit.NewMetrics()),
			audit.WithLogger(log),
		),
		Tokens:  auditortoken.NewService(cfg.Auditor.TokenSecret, cfg.Auditor.TokenIssuer),
		Policy:  decision.DefaultPolicy{MaxScore: cfg.Engine.Approval.MaxScore},
		Weights: cfg.Engine.FraudWeights,
	}, opts...)

	var limits ratelimit.Store = ratelimit.NewInMemoryStore(nil)
	if rc != nil {
		limits = ratelimit.NewRedisStore(rc.Client, nil)
	}
	limiter := ratelimit.New(limits, cfg.RateLimit.Requests, cfg.RateLimit.Window, log,
		ratelimit.WithActorHeader(middleware.HeaderActorDID),
	)

	a.router = router(cfg, service, limiter, a.checks, log)
	return a, nil
}

func router(cfg config.Config, service *workflow.Service, limiter *ratelimit.Middleware, checks map[string]httpserver.Check, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(log))
	r.Use(metrics.New().Middleware)
	r.Use(limiter.Handler)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/readyz", httpserver.Readiness(checks, readinessTimeout))
	handler.New(service, log, cfg.Server.PublicURL).Register(r)
	return r
}

// stores selects postgres when a pool is configured and memory otherwise.
func stores(db *sql.DB) (ports.CredentialStore, registry.Store, workflow.TxRunner) {
	if db == nil {
		creds := credstore.NewInMemoryStore()
		return creds, registry.NewInMemoryStore(), workflow.NewLockTx(creds)
	}
	return credstore.NewPostgres(db), registry.NewPostgres(db), workflow.NewSQLTx(db)
}

// signing selects the remote KMS when KMS_URL is set. The dev KMS provisions
// a BLS and a fallback key for every controller it has not seen.
func signing(cfg config.Config, a *app, log *slog.Logger) (ports.Signer, identity.Resolver, error) {
	var resolver identity.Resolver
	if cfg.Resolver.URL != "" {
		resolver = identity.NewHTTPResolver(cfg.Resolver.URL, cfg.Resolver.Timeout,
			identity.WithBreaker(circuit.New("did-resolver", circuit.WithFailureThreshold(cfg.Resolver.FailureThreshold))),
			identity.WithLogger(log),
		)
	}

	if cfg.KMS.URL != "" {
		if resolver == nil {
			return nil, nil, errors.New("KMS_URL requires DID_RESOLVER_URL")
		}
		log.Info("remote kms enabled", "url", cfg.KMS.URL)
		return remote.New(cfg.KMS.URL, cfg.KMS.Timeout, remote.WithLogger(log)), resolver, nil
	}

	docs := identity.NewStatic()
	kms := local.New(
		local.WithDocuments(docs),
		local.WithAutoProvision(models.KeyTypeBls12381G2, models.KeyTypeJWK),
		local.WithLogger(log),
	)
	if cfg.KMS.KeyFile != "" {
		if err := loadKeys(kms, cfg.KMS.KeyFile); err != nil {
			return nil, nil, err
		}
		a.onClose(closerFunc(func() error { return saveKeys(kms, cfg.KMS.KeyFile) }))
	}
	if resolver == nil {
		resolver = docs
	}
	log.Warn("using in-process dev kms")
	return kms, resolver, nil
}

func loadKeys(kms *local.KMS, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	return kms.Import(data)
}

func saveKeys(kms *local.KMS, path string) error {
	data, err := kms.Export()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func auditSink(ctx context.Context, cfg config.Config, db *sql.DB, a *app, log *slog.Logger) (platformaudit.Store, error) {
	switch cfg.Audit.Sink {
	case "postgres":
		return auditpostgres.New(db), nil
	case "ledger":
		l, err := ledger.Open(cfg.Audit.LedgerPath)
		if err != nil {
			return nil, err
		}
		a.onClose(l)
		if err := l.Verify(ctx); err != nil {
			return nil, fmt.Errorf("audit ledger: %w", err)
		}
		log.Info("audit ledger opened", "path", cfg.Audit.LedgerPath, "head", l.Head())
		return l, nil
	case "kafka":
		client, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.onClose(closerFunc(func() error { client.Close(); return nil }))
		a.checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, client) }
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, 3, 1); err != nil {
			return nil, err
		}
		return kafkastore.New(client, cfg.Kafka.Topic), nil
	default:
		log.Warn("audit log kept in memory")
		return auditmemory.NewInMemoryStore(), nil
	}
}

func fraudAlerts(cfg config.RabbitMQConfig, a *app, log *slog.Logger) (alerts.Publisher, error) {
	if cfg.URL == "" {
		return alerts.LogPublisher{Logger: log}, nil
	}
	p, err := alerts.Dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	a.onClose(p)
	return p, nil
}
