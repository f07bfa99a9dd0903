package app

import (
	"context"
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

	"github.com/hitoshi/nutrilog/internal/config"
	"github.com/hitoshi/nutrilog/internal/database"
	"github.com/hitoshi/nutrilog/internal/food"
	"github.com/hitoshi/nutrilog/internal/handler"
	"github.com/hitoshi/nutrilog/internal/logger"
	"github.com/hitoshi/nutrilog/internal/mcptools"
	"github.com/hitoshi/nutrilog/internal/metrics"
	"github.com/hitoshi/nutrilog/internal/middleware"
	"github.com/hitoshi/nutrilog/internal/nutrition"
	"github.com/hitoshi/nutrilog/internal/oracle"
	"github.com/hitoshi/nutrilog/internal/repository"
	"github.com/hitoshi/nutrilog/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// serverWriteTimeout は画像推定の待ち時間を含めたレスポンス書き込みの上限。
const serverWriteTimeout = 90 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envを読み込む（既存の環境変数は上書きしない）
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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

	// MCPモードでは標準出力をプロトコルが使うため、ログは標準エラー出力に書く
	if cmd == CommandMCP && w == os.Stdout {
		w = os.Stderr
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandMCP:
		return runMCP(cfg)
	default:
		return runServe(cfg)
	}
}

// newFoodService は外部サービスのクライアントと行ストアを組み立てて食品サービスを生成する。
// Geminiの認証情報が未設定でも生成でき、該当する推定のみが失敗する。
// 外部サービスのエンドポイントが不正な場合はエラーを返す。
func newFoodService(cfg *config.Config, db *database.DB, recorder metrics.Recorder, log *slog.Logger) (*food.Service, error) {
	foodRepo := repository.NewSQLFoodRepo(db)
	settingsRepo := repository.NewSQLSettingsRepo(db)

	guard := security.NewOutboundGuard(cfg.OracleAllowPrivateHosts)
	if guard.AllowsPrivate() {
		log.Warn("outbound requests to private addresses are allowed")
	}
	for _, endpoint := range []string{cfg.GeminiBaseURL, cfg.OpenFoodFactsBaseURL} {
		if err := guard.ValidateEndpoint(endpoint); err != nil {
			return nil, fmt.Errorf("invalid oracle endpoint %q: %w", endpoint, err)
		}
	}

	// 呼び出しごとのタイムアウトはコンテキストで制御し、クライアントには最長の値を設定する
	gemini := oracle.NewGeminiClient(guard.NewClient(cfg.OracleVisionTimeout), log, oracle.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if !gemini.Configured() {
		log.Warn("GEMINI_API_KEY is not set; name, image and unit estimates will fail")
	}
	products := oracle.NewOpenFoodFactsClient(guard.NewClient(cfg.ProductLookupTimeout), log, cfg.OpenFoodFactsBaseURL)

	estimator := nutrition.NewEstimator(
		gemini, gemini, products,
		security.NewNameSanitizer(),
		recorder, log,
		nutrition.Timeouts{
			Text:    cfg.OracleTextTimeout,
			Vision:  cfg.OracleVisionTimeout,
			Weight:  cfg.OracleWeightTimeout,
			Barcode: cfg.ProductLookupTimeout,
		},
	)
	weights := nutrition.NewWeightNormalizer(gemini, recorder, log, cfg.OracleWeightTimeout)

	return food.NewService(foodRepo, settingsRepo, estimator, weights, recorder, log), nil
}

// runServe はWebサーバーモードで起動する。
// DB接続とマイグレーションを行い、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続とスキーマの準備
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Setup(ctx, cfg.DatabaseURL, log)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	// 3. ドメインサービスの初期化
	foodService, err := newFoodService(cfg, db, recorder, log)
	if err != nil {
		return err
	}

	pages, err := handler.NewPages(log)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitOracle),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		FoodService:   foodService,
		HealthChecker: db,
		Pages:         pages,
		Logger:        log,
		Session: middleware.SessionConfig{
			Secret:       []byte(cfg.SessionSecret),
			MaxAge:       cfg.SessionMaxAge,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		MaxUploadSize:     cfg.MaxUploadSize,
		MetricsHandler:    metrics.Handler(reg),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-stop:
	}
	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runMCP は標準入出力でMCPサーバーを起動する。
// Webサーバーと同じ行ストアと推定処理を使い、入力が閉じられると終了する。
func runMCP(cfg *config.Config) error {
	log := slog.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Setup(ctx, cfg.DatabaseURL, log)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	foodService, err := newFoodService(cfg, db, metrics.Nop{}, log)
	if err != nil {
		return err
	}

	slog.Info("mcp server starting", slog.String("version", mcptools.Version))
	if err := mcptools.ServeStdio(mcptools.NewServer(foodService, log)); err != nil {
		return fmt.Errorf("mcp server failed: %w", err)
	}

	slog.Info("mcp server stopped")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、旧スキーマに不足している列を補う。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.Setup(ctx, cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	slog.Info("database migrations completed successfully")
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
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
