package api

import (
	"context"
	"time"

	"text2image-service/internal/imagestore"
	"text2image-service/internal/session"
	"text2image-service/internal/storage"
	"text2image-service/internal/upstream"
	"text2image-service/internal/worker"

	"github.com/gin-gonic/gin"
)

// Forwarder 把规范请求体原样转发给上游
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (*upstream.RawResponse, error)
}

// Submitter 接收生成任务
type Submitter interface {
	Submit(job *worker.Job) bool
}

// BuildInfo 状态页展示的构建信息
type BuildInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	BuildTime   string `json:"buildTime"`
}

type Server struct {
	Proxy    Forwarder
	Images   *imagestore.Store
	Sessions *session.Manager
	Pool     Submitter
	Cache    *storage.ImageCache
	Build    BuildInfo

	startedAt time.Time
}

func NewServer(s Server) *Server {
	srv := s
	srv.startedAt = time.Now()
	if srv.Build.Name == "" {
		srv.Build.Name = "AI Text to Image Proxy"
	}
	if srv.Build.Description == "" {
		srv.Build.Description = "阿里云DashScope API代理服务"
	}
	if srv.Build.BuildTime == "" {
		srv.Build.BuildTime = srv.startedAt.UTC().Format(time.RFC3339)
	}
	return &srv
}

// Router 注册全部路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors())

	r.GET("/health", func(c *gin.Context) {
		Success(c, gin.H{"status": "ok"})
	})
	r.GET("/actuator/info", s.AppInfoHandler)
	r.GET("/actuator/health", s.AppHealthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/images/generate", s.ProxyGenerateHandler)
		v1.GET("/images/health", s.HealthHandler)

		v1.POST("/generate", s.GenerateHandler)

		v1.GET("/images", s.ListImagesHandler)
		v1.DELETE("/images", s.ClearImagesHandler)
		v1.GET("/images/stats", s.StatsHandler)
		v1.GET("/images/stats/models", s.ModelStatsHandler)
		v1.POST("/images/export", s.ExportImagesHandler)
		v1.DELETE("/images/:id", s.DeleteImageHandler)
		v1.GET("/images/:id/download", s.DownloadImageHandler)
		v1.GET("/images/:id/thumbnail", s.ThumbnailHandler)

		v1.GET("/session/form", s.GetFormHandler)
		v1.PUT("/session/form", s.SaveFormHandler)
		v1.GET("/session/outcome", s.GetOutcomeHandler)
		v1.GET("/session/outcome/stream", s.StreamOutcomeHandler)
		v1.GET("/session/exists", s.HasSavedDataHandler)
		v1.DELETE("/session", s.ClearSessionHandler)
	}
	return r
}

// cors 允许前端在其他端口访问
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Session-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
