package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	stdlog "log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"treasuryagent/internal/advisor"
	"treasuryagent/internal/approval"
	"treasuryagent/internal/backend/docprovider"
	"treasuryagent/internal/backend/orderbook"
	"treasuryagent/internal/backend/paymentrail"
	"treasuryagent/internal/backend/policyresolver"
	"treasuryagent/internal/backend/statechannel"
	"treasuryagent/internal/config"
	"treasuryagent/internal/docsync"
	"treasuryagent/internal/executor"
	"treasuryagent/internal/httpapi"
	"treasuryagent/internal/logging"
	"treasuryagent/internal/oracle"
	"treasuryagent/internal/policy"
	"treasuryagent/internal/reconcile"
	"treasuryagent/internal/scheduler"
	"treasuryagent/internal/store"
	"treasuryagent/internal/telemetry"
	"treasuryagent/internal/wallet"

	gwmiddleware "treasuryagent/gateway/middleware"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("agentd: %v", err)
	}
}

func run() error {
	cfgPath := flag.String("config", "agent.toml", "path to the agent's TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.Setup(logging.Config{
		Service:    "agentd",
		Env:        cfg.Environment,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		Environment: cfg.Environment,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		Headers:     cfg.OtelHeaders,
		Metrics:     cfg.OtelMetrics,
		Traces:      cfg.OtelTraces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	for _, doc := range cfg.TrackedDocuments {
		if _, err := st.UpsertDocument(doc.DocID, doc.DisplayName); err != nil {
			return fmt.Errorf("seed document %s: %w", doc.DocID, err)
		}
	}
	docIDs := func() []string {
		ids, err := st.ListDocumentIDs()
		if err != nil {
			log.Error("list tracked documents failed", "error", err)
			return nil
		}
		return ids
	}

	masterKey, err := decodeMasterKey(cfg.MasterKey())
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	wallets, err := wallet.New(st, masterKey)
	if err != nil {
		return fmt.Errorf("init wallet provisioner: %w", err)
	}

	policySource := buildPolicySource(st, cfg)

	var channel statechannel.Backend
	if cfg.StateChannel.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := statechannel.Dial(ctx, cfg.StateChannel.Endpoint)
		cancel()
		if err != nil {
			return fmt.Errorf("dial state channel: %w", err)
		}
		channel = client
	}

	var ob orderbook.Backend
	if cfg.OrderBook.Enabled {
		ob = orderbook.NewHTTPBackend(cfg.OrderBook.Endpoint, cfg.OrderBook.APIKey())
	}
	var nativeRail paymentrail.NativeRail
	if cfg.NativeRail.Enabled {
		nativeRail = paymentrail.NewHTTPNativeRail(cfg.NativeRail.Endpoint, cfg.NativeRail.APIKey())
	}
	var managedRail paymentrail.ManagedRail
	if cfg.ManagedRail.Enabled {
		managedRail = paymentrail.NewHTTPManagedRail(cfg.ManagedRail.Endpoint, cfg.ManagedRail.APIKey())
	}
	var provider docprovider.Provider
	if cfg.DocProvider.Enabled {
		provider = docprovider.NewHTTPProvider(cfg.DocProvider.Endpoint, cfg.DocProvider.APIKey())
	}

	syncer := docsync.New(st, provider, docsync.PolicySource(policySource), docIDs, cfg.PublicBaseURL,
		docsync.WithInterval(cfg.Intervals.Discovery.Duration),
		docsync.WithLogger(log),
	)

	exec := executor.New(st, executor.PolicySource(policySource),
		executor.WithInterval(cfg.Intervals.Executor.Duration),
		executor.WithLogger(log),
		executor.WithOrderBook(ob),
		executor.WithNativeRail(nativeRail),
		executor.WithManagedRail(managedRail),
		executor.WithChannel(channel),
		executor.WithWallets(wallets),
	)

	sched := scheduler.New(st, docIDs,
		scheduler.WithInterval(cfg.Intervals.Scheduler.Duration),
		scheduler.WithLogger(log),
	)

	var oracleMgr *oracle.Manager
	if ob != nil {
		oracleMgr = oracle.New(st, ob, docIDs, "SUI/USDC", "",
			oracle.WithInterval(cfg.Intervals.Oracle.Duration),
			oracle.WithLogger(log),
		)
	}

	var advisorLoop *advisor.Advisor
	if ob != nil {
		advisorLoop = advisor.New(st, ob, advisor.PolicySource(policySource), docIDs, "SUI/USDC", "",
			advisor.WithInterval(cfg.Intervals.Advisor.Duration),
			advisor.WithLogger(log),
		)
	}

	recon := reconcile.New(st, docIDs,
		reconcile.WithLogger(log),
	)

	coordinator := approval.New(st, approval.WithChannel(channel))
	challengeStore, err := httpapi.NewChallengeStore(challengeStorePath(cfg))
	if err != nil {
		return fmt.Errorf("init challenge store: %w", err)
	}
	defer challengeStore.Close()

	jwtSecret := []byte(cfg.JWTSecret())
	limiter := gwmiddleware.NewRateLimiter(map[string]gwmiddleware.RateLimit{
		"join":     {RatePerSecond: 1, Burst: 5, DefaultTokens: 5},
		"decision": {RatePerSecond: 2, Burst: 10, DefaultTokens: 10},
	}, nil)
	observability := gwmiddleware.NewObservability(gwmiddleware.ObservabilityConfig{
		ServiceName:   "agentd",
		MetricsPrefix: "agentd",
		LogRequests:   cfg.Environment != "production",
		Enabled:       true,
	}, nil)
	metricsAuth := gwmiddleware.NewAuthenticator(gwmiddleware.AuthConfig{
		Enabled:    cfg.MetricsAuthEnabled,
		HMACSecret: cfg.MetricsAuthSecret(),
	}, nil)

	server := httpapi.New(st, coordinator, challengeStore, jwtSecret,
		httpapi.WithLogger(log),
		httpapi.WithChannel(channel),
		httpapi.WithRateLimiter(limiter),
		httpapi.WithSecureCookies(cfg.Environment == "production"),
		httpapi.WithObservability(observability),
		httpapi.WithMetricsAuth(metricsAuth),
		httpapi.WithCORS(gwmiddleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go syncer.Run(ctx)
	go exec.Run(ctx)
	go sched.Run(ctx)
	if oracleMgr != nil {
		go oracleMgr.Run(ctx)
	}
	if advisorLoop != nil {
		go advisorLoop.Run(ctx)
	}
	go recon.Run(ctx)

	errs := make(chan error, 1)
	go func() {
		log.Info("agentd listening", "addr", httpServer.Addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}
	return nil
}

// openDatabase dispatches to the postgres driver for a postgres:// DSN and
// to the pure-Go sqlite driver otherwise, matching how otc-gateway and the
// rest of the Store test suite each pick their own backend.
func openDatabase(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}

func decodeMasterKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("MASTER_KEY must be 64 hex characters (32 bytes): %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("MASTER_KEY must decode to 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// challengeStorePath derives the join-challenge LevelDB directory from the
// configured database DSN; leveldb.OpenFile creates the directory itself.
func challengeStorePath(cfg config.Config) string {
	base := strings.TrimSuffix(filepath.Base(cfg.DatabaseDSN), filepath.Ext(cfg.DatabaseDSN))
	if base == "" {
		base = "agentd"
	}
	return filepath.Join(filepath.Dir(cfg.DatabaseDSN), base+"-challenges")
}

func buildPolicySource(st *store.Store, cfg config.Config) func(docID string) (policy.Policy, error) {
	var resolver *policyresolver.Resolver
	if cfg.PolicyDNS.Enabled {
		resolver = policyresolver.New(cfg.PolicyDNS.Endpoint, cfg.Intervals.Oracle.Duration)
	}
	return func(docID string) (policy.Policy, error) {
		doc, err := st.GetDocument(docID)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("load document: %w", err)
		}
		if resolver == nil || strings.TrimSpace(doc.PolicyENS) == "" {
			return policy.Policy{}, nil
		}
		p, err := resolver.GetPolicy(doc.PolicyENS)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("resolve policy: %w", err)
		}
		if p == nil {
			return policy.Policy{}, nil
		}
		return *p, nil
	}
}
