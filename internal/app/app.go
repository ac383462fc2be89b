package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/noxshop/internal/account"
	"github.com/hitoshi/noxshop/internal/auth"
	"github.com/hitoshi/noxshop/internal/catalog"
	"github.com/hitoshi/noxshop/internal/config"
	"github.com/hitoshi/noxshop/internal/database"
	"github.com/hitoshi/noxshop/internal/handler"
	"github.com/hitoshi/noxshop/internal/logger"
	"github.com/hitoshi/noxshop/internal/metrics"
	"github.com/hitoshi/noxshop/internal/middleware"
	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/purchase"
	"github.com/hitoshi/noxshop/internal/report"
	"github.com/hitoshi/noxshop/internal/repository"
	"github.com/hitoshi/noxshop/internal/security"
	"github.com/hitoshi/noxshop/internal/upload"
	"github.com/hitoshi/noxshop/internal/worker/cleanup"
)

// errMissingUID はgrant-adminにUIDが渡されなかったことを表す。
var errMissingUID = errors.New("usage: noxshop grant-admin <uid>")

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandGrantAdmin:
		return runGrantAdmin(cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// スキーマを最新化し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続とスキーマの適用
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database schema ready", slog.Uint64("version", uint64(version)))

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	purchaseRepo := repository.NewPostgresPurchaseRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. IDトークン検証
	ctx := context.Background()
	firebaseClient, err := auth.NewFirebaseAuthClient(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(firebaseClient)

	// 5. ドメインサービスの初期化
	accountService := account.NewService(accountRepo, cfg.AdminUIDs)
	catalogService := catalog.NewService(productRepo, security.NewTextSanitizer(), cfg.UploadURLPrefix)
	purchaseService := purchase.NewService(productRepo, purchaseRepo, collector, purchase.Config{
		AllowRemoved: cfg.AllowRemovedPurchase,
	})
	reportService := report.NewService(purchaseRepo)
	uploadService := upload.NewService(upload.Config{
		Dir:            cfg.UploadDir,
		URLPrefix:      cfg.UploadURLPrefix,
		MaxBytes:       cfg.UploadMaxBytes,
		ThumbnailWidth: cfg.ThumbnailWidth,
		ImportTimeout:  cfg.ImageImportTimeout,
	}, security.NewSSRFGuard(), collector)

	if cfg.SeedSampleProducts {
		if _, err := catalogService.SeedIfEmpty(ctx); err != nil {
			return fmt.Errorf("failed to seed products: %w", err)
		}
	}

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitPurchase),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     verifier,
		AccountFinder:     accountService,
		RateLimiter:       rateLimiter,
		CORSEnabled:       cfg.CORSEnabled,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPMetrics:       collector,
		TokenMetrics:      collector,
		MetricsHandler:    metrics.Handler(registry),
		HealthChecker:     db,
		UploadDir:         cfg.UploadDir,
		UploadURLPrefix:   cfg.UploadURLPrefix,

		Products:       catalogService,
		Purchases:      purchaseService,
		Accounts:       accountService,
		Catalog:        catalogService,
		Reports:        reportService,
		Images:         uploadService,
		MaxUploadBytes: cfg.UploadMaxBytes,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("cors_enabled", cfg.CORSEnabled),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 商品から参照されなくなったアップロード画像を定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	productRepo := repository.NewPostgresProductRepo(db)
	cleanupJob := cleanup.NewCleanupJob(productRepo, cfg.UploadDir, cfg.UploadURLPrefix, slog.Default(), nil)
	cleanupJob.Grace = cfg.OrphanUploadGrace

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("orphan_grace", cfg.OrphanUploadGrace),
	)

	runCleanupLoop(ctx, cleanupJob, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runCleanupLoop は起動直後に1回、以後intervalごとにjobを実行する。ctxがキャンセルされると戻る。
func runCleanupLoop(ctx context.Context, job interface{ Run(context.Context) error }, interval time.Duration) {
	if err := job.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
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

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runGrantAdmin は指定UIDのアカウントにADMINロールを付与する。
// アカウントは一度ログインして作成済みである必要がある。
func runGrantAdmin(cfg *config.Config, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return errMissingUID
	}
	uid := strings.TrimSpace(args[0])

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	accountService := account.NewService(repository.NewPostgresAccountRepo(db), cfg.AdminUIDs)
	if err := accountService.GrantRole(context.Background(), uid, model.RoleAdmin); err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return "***"
	}
	return url[:scheme+3] + "***" + url[at:]
}
