package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"text2image-service/internal/api"
	"text2image-service/internal/config"
	"text2image-service/internal/generation"
	"text2image-service/internal/imagestore"
	"text2image-service/internal/kv"
	"text2image-service/internal/model"
	"text2image-service/internal/session"
	"text2image-service/internal/storage"
	"text2image-service/internal/upstream"
	"text2image-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// ErrMissingAPIKey 未配置上游 API Key 时拒绝启动
var ErrMissingAPIKey = errors.New("未配置上游 API Key")

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	Long: `启动代理与结果管理服务。

需要设置 DASHSCOPE_API_KEY 环境变量或在配置文件中填写 upstream.api_key。`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "监听端口 (覆盖配置文件)")

	// 不带子命令时直接启动服务
	rootCmd.RunE = runServe
	rootCmd.Flags().IntVarP(&servePort, "port", "p", 0, "监听端口 (覆盖配置文件)")
}

func requireAPIKey(w io.Writer, cfg config.Config) error {
	if cfg.Upstream.APIKey != "" {
		return nil
	}
	fmt.Fprintln(w, "错误: 未设置 DASHSCOPE_API_KEY 环境变量")
	fmt.Fprintln(w, "请设置环境变量后重新启动:")
	fmt.Fprintln(w, "  Windows: set DASHSCOPE_API_KEY=your_api_key")
	fmt.Fprintln(w, "  Linux/Mac: export DASHSCOPE_API_KEY=your_api_key")
	return ErrMissingAPIKey
}

// app 服务运行所需的全部组件
type app struct {
	db       *gorm.DB
	pool     *worker.Pool
	sessions *session.Manager
	router   *gin.Engine
}

func newApp(cfg config.Config) (*app, error) {
	db, err := model.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	images := imagestore.New(kv.NewGormMedium(db))
	client := newUpstreamClient(cfg)
	pipeline := generation.NewPipeline(client, client.GenerationPath(), images)

	pool := worker.NewPool(pipeline, cfg.Worker.Count, cfg.Worker.QueueSize, cfg.UpstreamTimeout())
	pool.Start()

	sessions := session.NewManager(cfg.SessionIdle())
	if err := sessions.StartSweeper(cfg.Session.SweepSpec); err != nil {
		pool.Stop()
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("会话清理任务配置错误: %w", err)
	}

	cache := storage.NewImageCache(filepath.Join(cfg.Storage.LocalDir, "cache"), cfg.UpstreamTimeout(), cfg.Gallery.ThumbnailSize)
	srv := api.NewServer(api.Server{
		Proxy:    client,
		Images:   images,
		Sessions: sessions,
		Pool:     pool,
		Cache:    cache,
		Build:    api.BuildInfo{Version: Version, BuildTime: BuildTime},
	})

	return &app{db: db, pool: pool, sessions: sessions, router: srv.Router()}, nil
}

// Close 等待进行中的生成完成后释放资源
func (a *app) Close() {
	a.pool.Stop()
	a.sessions.Stop()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newUpstreamClient(cfg config.Config) *upstream.Client {
	return upstream.NewClient(upstream.Options{
		APIKey:         cfg.Upstream.APIKey,
		APIBase:        cfg.Upstream.APIBase,
		GenerationPath: cfg.Upstream.GenerationPath,
		Timeout:        cfg.UpstreamTimeout(),
		UserAgent:      "text2image-service/" + Version,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(configFile); err != nil {
		return err
	}
	cfg := config.GlobalConfig
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if err := requireAPIKey(cmd.ErrOrStderr(), cfg); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: a.router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("服务已启动", "addr", srv.Addr, "upstream", cfg.Upstream.APIBase)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("启动服务失败: %w", err)
	}
	slog.Info("正在关闭服务...")

	// 优雅停止 Worker 池
	a.Close()

	// 优雅停止 HTTP 服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	slog.Info("服务已安全退出")
	return nil
}
