// Command server runs the fund ledger service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"tranche/internal/auth"
	authhandler "tranche/internal/auth/handler"
	authstore "tranche/internal/auth/store"
	"tranche/internal/governance"
	governancehandler "tranche/internal/governance/handler"
	governancememory "tranche/internal/governance/store/memory"
	governancepg "tranche/internal/governance/store/postgres"
	httprouter "tranche/internal/http"
	"tranche/internal/idempotency"
	"tranche/internal/jwttoken"
	"tranche/internal/ledger"
	ledgerhandler "tranche/internal/ledger/handler"
	ledgermetrics "tranche/internal/ledger/metrics"
	ledgermemory "tranche/internal/ledger/store/memory"
	ledgerpg "tranche/internal/ledger/store/postgres"
	"tranche/internal/platform/config"
	"tranche/internal/platform/httpserver"
	"tranche/internal/platform/logger"
	"tranche/internal/platform/metrics"
	platformredis "tranche/internal/platform/redis"
	id "tranche/pkg/domain"
	audit "tranche/pkg/platform/audit"
	auditkafka "tranche/pkg/platform/audit/publishers/kafka"
	auditmemory "tranche/pkg/platform/audit/store/memory"
	auditpg "tranche/pkg/platform/audit/store/postgres"
	auditworker "tranche/pkg/platform/audit/worker"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		ledgerStore     ledger.Store
		governanceStore governance.Store
		auditStore      audit.Store
		credentialStore auth.CredentialStore
		healthCheckers  = map[string]httprouter.HealthChecker{}
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to open postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Error("failed to ping postgres", "error", err)
			os.Exit(1)
		}

		auditDB, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to open audit database", "error", err)
			os.Exit(1)
		}
		defer auditDB.Close()

		ledgerStore = ledgerpg.New(pool)
		governanceStore = governancepg.New(pool)
		auditStore = auditpg.New(auditDB)
		credentialStore = authstore.NewPostgres(pool)
		healthCheckers["postgres"] = poolHealth{pool}
		log.Info("using postgres stores")
	} else {
		ledgerStore = ledgermemory.New()
		governanceStore = governancememory.New()
		auditStore = auditmemory.NewInMemoryStore()
		credentialStore = authstore.NewInMemory()
		log.Info("using in-memory stores")
	}

	// Audit pipeline: compliance events synchronous (store plus optional
	// kafka), operations events drained by the background worker.
	syncSinks := audit.Fanout{audit.NewPublisher(auditStore)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := auditkafka.New(cfg.Kafka.Brokers, auditkafka.WithTopic(cfg.Kafka.Topic))
		if err != nil {
			log.Error("failed to connect kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		syncSinks = append(syncSinks, kafkaSink)
		log.Info("kafka audit sink enabled", "topic", cfg.Kafka.Topic)
	}
	dispatcher := audit.NewDispatcher(syncSinks, 256, log)
	worker := auditworker.NewWorker(auditStore, dispatcher.Inbox(), log)

	// Idempotency guard: redis when configured, per-instance memory otherwise.
	var guard idempotency.Guard = idempotency.NewMemoryGuard()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = idempotency.NewRedisGuard(redisClient.Client)
		healthCheckers["redis"] = redisClient
		log.Info("redis idempotency guard enabled")
	}

	tokens := jwttoken.NewService(cfg.Server.JWTSigningKey, "tranche", "tranche-api")

	authService, err := auth.New(credentialStore, tokens,
		auth.WithLogger(log), auth.WithAuditEmitter(dispatcher))
	if err != nil {
		log.Error("failed to build auth service", "error", err)
		os.Exit(1)
	}

	governanceService, err := governance.New(governanceStore,
		governance.WithLogger(log), governance.WithAuditEmitter(dispatcher))
	if err != nil {
		log.Error("failed to build governance service", "error", err)
		os.Exit(1)
	}

	bootstrap, err := seed(ctx, cfg.Fund, authService, governanceService)
	if err != nil {
		log.Error("failed to seed bootstrap state", "error", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.New(ledgerStore, governanceService,
		cfg.Fund.ProtocolFeePercent, bootstrap.feeBeneficiary,
		ledger.WithLogger(log),
		ledger.WithAuditEmitter(dispatcher),
		ledger.WithMetrics(ledgermetrics.New(prometheus.DefaultRegisterer)))
	if err != nil {
		log.Error("failed to build ledger service", "error", err)
		os.Exit(1)
	}

	router := httprouter.New(httprouter.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		TokenValidator: tokens,
		Idempotency:    guard,
		Auth:           authhandler.New(authService, log),
		Fund:           ledgerhandler.New(ledgerService, log),
		Governance:     governancehandler.New(governanceService, log),
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthCheckers: healthCheckers,
	})

	server := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type bootstrapIdentities struct {
	feeBeneficiary id.Identity
}

// seed installs the bootstrap credentials and governance params. Identities
// must be provided via environment; the fund cannot start without an owner,
// issuer, broker and fee beneficiary.
func seed(ctx context.Context, cfg config.Fund, authService *auth.Service, governanceService *governance.Service) (bootstrapIdentities, error) {
	owner, err := id.ParseIdentity(cfg.OwnerIdentity)
	if err != nil {
		return bootstrapIdentities{}, errors.New("TRANCHE_OWNER_IDENTITY must be a valid identity")
	}
	issuer, err := id.ParseIdentity(cfg.IssuerIdentity)
	if err != nil {
		return bootstrapIdentities{}, errors.New("TRANCHE_ISSUER_IDENTITY must be a valid identity")
	}
	broker, err := id.ParseIdentity(cfg.BrokerIdentity)
	if err != nil {
		return bootstrapIdentities{}, errors.New("TRANCHE_BROKER_IDENTITY must be a valid identity")
	}
	beneficiary, err := id.ParseIdentity(cfg.FeeBeneficiary)
	if err != nil {
		return bootstrapIdentities{}, errors.New("TRANCHE_FEE_BENEFICIARY must be a valid identity")
	}

	seeds := []struct {
		identity id.Identity
		secret   string
		label    string
	}{
		{owner, cfg.OwnerSecret, "owner"},
		{issuer, cfg.IssuerSecret, "issuer"},
		{broker, cfg.BrokerSecret, "broker"},
		{beneficiary, cfg.FeeBeneficiarySecret, "fee-beneficiary"},
	}
	for _, s := range seeds {
		if err := authService.SeedCredential(ctx, s.identity, s.secret, s.label); err != nil {
			return bootstrapIdentities{}, err
		}
	}

	if err := governanceService.Seed(ctx, governance.Params{
		Owner:  owner,
		Active: true,
		Issuer: issuer,
		Broker: broker,
	}); err != nil {
		return bootstrapIdentities{}, err
	}
	return bootstrapIdentities{feeBeneficiary: beneficiary}, nil
}

type poolHealth struct {
	pool *pgxpool.Pool
}

func (p poolHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
