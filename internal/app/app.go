package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/joysparks/internal/auth"
	"github.com/hitoshi/joysparks/internal/config"
	"github.com/hitoshi/joysparks/internal/database"
	"github.com/hitoshi/joysparks/internal/entry"
	"github.com/hitoshi/joysparks/internal/handler"
	"github.com/hitoshi/joysparks/internal/logger"
	"github.com/hitoshi/joysparks/internal/metrics"
	"github.com/hitoshi/joysparks/internal/middleware"
	"github.com/hitoshi/joysparks/internal/repository"
	"github.com/hitoshi/joysparks/internal/security"
	"github.com/hitoshi/joysparks/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	pingTimeout     = 3 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、設定を読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// infra は起動モード共通の外部接続。
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	sessions repository.SessionRepository
}

// openInfra はDBに接続し、設定に応じたセッションストアを構築する。
func openInfra(ctx context.Context, cfg *config.Config) (*infra, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, pingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	in := &infra{db: db}
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		rdb, err := database.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		in.redis = rdb
		in.sessions = repository.NewRedisSessionRepo(rdb)
	default:
		in.sessions = repository.NewPostgresSessionRepo(db)
	}
	return in, nil
}

// ping はDBと（使用している場合は）Redisへの疎通を確認する。
func (in *infra) ping(ctx context.Context) error {
	if err := in.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if in.redis != nil {
		if err := in.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (in *infra) close() {
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			slog.Warn("failed to close redis", slog.String("error", err.Error()))
		}
	}
	if err := in.db.Close(); err != nil {
		slog.Warn("failed to close database", slog.String("error", err.Error()))
	}
}

// newRouterDeps は設定と外部接続から全依存関係をワイヤリングする。
func newRouterDeps(cfg *config.Config, in *infra, reg *prometheus.Registry) *handler.RouterDeps {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(in.db)
	entryRepo := repository.NewPostgresEntryRepo(in.db)

	// 2. 外部IdP（未設定の場合は無効）
	var verifier auth.TokenVerifier
	if cfg.GoogleSignInEnabled() {
		verifier = auth.NewGoogleIDTokenVerifier(auth.GoogleIDTokenVerifierConfig{
			ClientID: cfg.GoogleClientID,
			Issuers:  cfg.GoogleIssuerList(),
			CertsURL: cfg.GoogleCertsURL,
		})
	}
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleOAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:        cfg.GoogleClientID,
			ClientSecret:    cfg.GoogleClientSecret,
			RedirectURL:     cfg.GoogleRedirectURL,
			IDTokenVerifier: verifier,
		})
	}

	// 3. ドメインサービス
	authService := auth.NewService(auth.ServiceDeps{
		Accounts: accountRepo,
		Sessions: in.sessions,
		Hasher:   security.NewPasswordHasher(security.ScryptParams{N: cfg.ScryptN, R: cfg.ScryptR, P: cfg.ScryptP}),
		Resolver: auth.NewResolver(accountRepo, collector),
		OAuth:    oauthProvider,
		Verifier: verifier,
		Metrics:  collector,
	}, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	entryService := entry.NewService(entryRepo, security.NewContentSanitizer(), entry.Config{
		DefaultLimit: cfg.EntryPageDefault,
		MaxLimit:     cfg.EntryPageMax,
	})

	return &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     in.sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin)),

		Metrics:         collector,
		MetricsGatherer: reg,
		HealthCheck:     in.ping,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		EntryService: entryService,
	}
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	in, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer in.close()

	deps := newRouterDeps(cfg, in, newMetricsRegistry())
	defer deps.RateLimiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serve(ctx, server)
}

// serve はctxがキャンセルされるまでserverを実行し、その後グレースフルシャットダウンする。
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除をctxがキャンセルされるまで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	in, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer in.close()

	if cfg.SessionStore == config.SessionStoreRedis {
		slog.Info("redis sessions expire by TTL; cleanup runs as a no-op")
	}

	job := cleanup.NewSessionCleanupJob(in.sessions, slog.Default())
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
