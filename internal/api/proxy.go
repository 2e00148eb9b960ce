package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"text2image-service/internal/upstream"

	"github.com/gin-gonic/gin"
)

const maxProxyBody = 1 << 20

// ProxyGenerateHandler 把规范请求体原样转发给上游，并原样返回上游状态码与响应体
func (s *Server) ProxyGenerateHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil || !hasModelAndInput(body) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "请求数据格式错误，缺少必要参数",
		})
		return
	}

	raw, err := s.Proxy.Forward(c.Request.Context(), body)
	if err != nil {
		te := upstream.Classify(err)
		slog.Error("代理请求失败", "kind", te.Kind, "error", te.Err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": te.Message(),
		})
		return
	}
	c.Data(raw.StatusCode, "application/json; charset=utf-8", raw.Body)
}

func hasModelAndInput(body []byte) bool {
	var probe struct {
		Model string          `json:"model"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Model != "" && len(probe.Input) > 0 && string(probe.Input) != "null"
}

// HealthHandler 代理服务健康状态
func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"uptime":    time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) AppInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Build)
}

func (s *Server) AppHealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
