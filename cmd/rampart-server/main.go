package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/rampart-ai/rampart/internal/api"
	"github.com/rampart-ai/rampart/internal/audit"
	"github.com/rampart-ai/rampart/internal/auth"
	"github.com/rampart-ai/rampart/internal/credential"
	"github.com/rampart-ai/rampart/internal/gateway"
	"github.com/rampart-ai/rampart/internal/llm"
	"github.com/rampart-ai/rampart/internal/policy"
	"github.com/rampart-ai/rampart/internal/policypack"
	"github.com/rampart-ai/rampart/internal/policystore"
	"github.com/rampart-ai/rampart/internal/quarantine"
	"github.com/rampart-ai/rampart/internal/registry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("RAMPART_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("RAMPART_HTTP_PORT", "8080")
	postgresDSN := os.Getenv("DATABASE_URL")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	mcpConfigPath := os.Getenv("RAMPART_MCP_CONFIG")
	packPath := os.Getenv("RAMPART_POLICY_PACK")
	packWatch := envOrDefaultBool("RAMPART_POLICY_PACK_WATCH", false)
	policyCacheTTL := envOrDefaultInt("RAMPART_POLICY_CACHE_TTL_S", 30)
	authCacheTTL := envOrDefaultInt("RAMPART_AUTH_CACHE_TTL_S", 30)
	authFailOpen := envOrDefaultBool("RAMPART_AUTH_FAIL_OPEN", false)

	logger.Info("starting rampart server",
		zap.String("http_port", httpPort),
		zap.Int("policy_cache_ttl_s", policyCacheTTL),
		zap.Bool("auth_fail_open", authFailOpen),
	)

	// Postgres pool (policies, credentials, quarantine configs, API keys)
	var db *sql.DB
	if postgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		logger.Info("postgres connected")
	} else {
		logger.Warn("no DATABASE_URL set, using in-memory stores")
	}

	// Policy store + cached source + engine
	var store policystore.Store
	if db != nil {
		store = policystore.NewPostgres(db)
	} else {
		store = policystore.NewMemory()
	}
	source := policystore.NewCachedSource(store, time.Duration(policyCacheTTL)*time.Second, logger)
	eng := policy.NewEngine(source, logger)

	// Quarantine config store
	var configs quarantine.ConfigStore
	if db != nil {
		configs = quarantine.NewPostgresConfigStore(db)
	} else {
		configs = quarantine.NewMemoryConfigStore()
	}
	for _, orgID := range splitCSV(os.Getenv("RAMPART_ORGS")) {
		if _, err := configs.EnsureDefault(context.Background(), orgID); err != nil {
			logger.Warn("failed to ensure quarantine default",
				zap.String("org_id", orgID), zap.Error(err))
		}
	}

	// Credential directory and secret vault
	var dir credential.Directory
	var secrets credential.SecretStore
	if db != nil {
		dir = credential.NewPostgresDirectory(db)
		if keyHex := os.Getenv("RAMPART_VAULT_KEY"); keyHex != "" {
			key, err := hex.DecodeString(keyHex)
			if err != nil {
				logger.Fatal("RAMPART_VAULT_KEY is not valid hex", zap.Error(err))
			}
			vault, err := credential.NewSealedVault(db, key)
			if err != nil {
				logger.Fatal("failed to build sealed vault", zap.Error(err))
			}
			secrets = vault
			logger.Info("sealed vault enabled")
		} else {
			secrets = credential.NewMemoryVault()
			logger.Warn("no RAMPART_VAULT_KEY set, secrets held in memory only")
		}
	} else {
		dir = credential.NewMemoryDirectory()
		secrets = credential.NewMemoryVault()
	}
	resolver := credential.NewResolver(dir, logger)

	// Tool registry: MCP servers from config, or an empty static catalog
	var reg registry.Registry
	if mcpConfigPath != "" {
		servers, err := loadMCPServers(mcpConfigPath)
		if err != nil {
			logger.Fatal("failed to load mcp config", zap.Error(err))
		}
		reg = registry.NewMCP(servers, logger)
		logger.Info("mcp registry configured", zap.Int("servers", len(servers)))
	} else {
		reg = registry.NewStatic()
		logger.Warn("no RAMPART_MCP_CONFIG set, tool catalog is empty")
	}

	// Quarantine sanitizer: two model roles over one OpenAI-compatible endpoint
	var sanitizer gateway.Sanitizer
	if openaiKey != "" {
		baseURL := os.Getenv("OPENAI_BASE_URL")
		mainModel := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  openaiKey,
			BaseURL: baseURL,
			Model:   envOrDefault("RAMPART_MAIN_MODEL", "gpt-4o"),
		}, logger)
		quarantinedModel := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  openaiKey,
			BaseURL: baseURL,
			Model:   envOrDefault("RAMPART_QUARANTINED_MODEL", "gpt-4o-mini"),
		}, logger)
		sanitizer = quarantine.NewCoordinator(quarantine.CoordinatorConfig{
			Main:        mainModel,
			Quarantined: quarantinedModel,
		}, logger)
		logger.Info("quarantine sanitizer enabled")
	} else {
		sanitizer = unavailableSanitizer{}
		logger.Warn("no OPENAI_API_KEY set, sanitize_with_quarantine policies will fail closed")
	}

	// Audit storage: ClickHouse or log-only fallback
	var recorder audit.Recorder
	if clickhouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			recorder = audit.NewLogWriter(logger)
		} else {
			recorder = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		recorder = audit.NewLogWriter(logger)
		logger.Warn("no CLICKHOUSE_DSN set, decision events go to the log only")
	}
	defer recorder.Close()

	// ClickHouse reader for the decision log endpoints
	var reader *audit.Reader
	if clickhouseDSN != "" {
		var err error
		reader, err = audit.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
			reader = nil
		} else {
			defer func() { _ = reader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Auth: Postgres-backed API keys, or accept any well-formed key
	var authn auth.Authenticator
	if db != nil {
		authn = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			FailOpen: authFailOpen,
			Logger:   logger,
		})
	} else {
		authn = auth.NewStaticAuthenticator()
		logger.Warn("no DATABASE_URL set, any rk_ key is accepted")
	}

	gw := gateway.New(gateway.Config{
		Engine:    eng,
		Registry:  reg,
		Resolver:  resolver,
		Secrets:   secrets,
		Sanitizer: sanitizer,
		Configs:   configs,
		Audit:     recorder,
	}, logger)

	// Policy pack: applied at startup, optionally re-applied on file change.
	// Pack writes invalidate the engine's cache so changes take effect at once.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if packPath != "" {
		applier := policypack.NewApplier(policypack.ApplierConfig{
			Store:      store,
			Configs:    configs,
			Invalidate: source.Invalidate,
		}, logger)
		if _, err := applier.ApplyFile(context.Background(), packPath); err != nil {
			logger.Fatal("policy pack apply failed", zap.String("path", packPath), zap.Error(err))
		}
		if packWatch {
			go func() {
				if err := policypack.NewWatcher(packPath, applier, logger).Run(watchCtx); err != nil {
					logger.Error("policy pack watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	deps := &api.Dependencies{
		Gateway:  gw,
		Store:    store,
		Configs:  configs,
		Registry: reg,
		Reader:   reader,
		Auth:     authn,
		Logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	cancelWatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("rampart server stopped")
}

// unavailableSanitizer fails any sanitize policy when no model endpoint is
// configured, so results never pass through unscreened.
type unavailableSanitizer struct{}

func (unavailableSanitizer) Run(context.Context, quarantine.Config, string, string) (string, int, error) {
	return "", 0, fmt.Errorf("quarantine sanitizer is not configured")
}

// mcpConfigFile is the shape of the RAMPART_MCP_CONFIG JSON file.
type mcpConfigFile struct {
	Servers []registry.ServerConfig `json:"servers"`
}

func loadMCPServers(path string) ([]registry.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg mcpConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("%s names no servers", path)
	}
	return cfg.Servers, nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
