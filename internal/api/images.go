package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"text2image-service/internal/generation"

	"github.com/gin-gonic/gin"
)

// ListImagesHandler 返回图库，最新的在前
func (s *Server) ListImagesHandler(c *gin.Context) {
	images := s.Images.List()
	Success(c, gin.H{
		"list":  images,
		"total": len(images),
	})
}

func (s *Server) DeleteImageHandler(c *gin.Context) {
	id := c.Param("id")
	if record, ok := s.Images.Get(id); ok && s.Cache != nil {
		if err := s.Cache.Evict(record.URL); err != nil {
			slog.Warn("删除图片缓存失败", "id", id, "error", err)
		}
	}
	s.Images.Remove(id)
	Success(c, nil)
}

func (s *Server) ClearImagesHandler(c *gin.Context) {
	if s.Cache != nil {
		for _, record := range s.Images.List() {
			_ = s.Cache.Evict(record.URL)
		}
	}
	s.Images.Clear()
	Success(c, nil)
}

func (s *Server) StatsHandler(c *gin.Context) {
	Success(c, s.Images.Stats())
}

// ModelStatsHandler 按模型统计图片数量
func (s *Server) ModelStatsHandler(c *gin.Context) {
	Success(c, s.Images.ModelStats())
}

// ThumbnailHandler 返回缩略图，首次访问时拉取原图生成
func (s *Server) ThumbnailHandler(c *gin.Context) {
	record, ok := s.Images.Get(c.Param("id"))
	if !ok {
		Error(c, http.StatusNotFound, 404, "图片未找到")
		return
	}
	path, err := s.Cache.Thumbnail(c.Request.Context(), record.URL)
	if err != nil {
		slog.Warn("生成缩略图失败", "id", record.ID, "error", err)
		Error(c, http.StatusBadGateway, 502, "获取图片失败")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

// DownloadImageHandler 以推导出的文件名下载原图，成功后标记为已下载
func (s *Server) DownloadImageHandler(c *gin.Context) {
	record, ok := s.Images.Get(c.Param("id"))
	if !ok {
		Error(c, http.StatusNotFound, 404, "图片未找到")
		return
	}
	cached, err := s.Cache.Original(c.Request.Context(), record.URL)
	if err != nil {
		slog.Warn("下载图片失败", "id", record.ID, "error", err)
		Error(c, http.StatusBadGateway, 502, "获取图片失败")
		return
	}

	c.FileAttachment(cached.Path, downloadName(record))
	if c.Writer.Status() == http.StatusOK {
		s.Images.MarkDownloaded(record.ID)
	}
}

func downloadName(record generation.ImageRecord) string {
	return generation.DeriveFilename(record.Prompt, batchIndex(record.ID), record.Model)
}

// batchIndex 从 "<requestId>-<index>" 中取出批内序号
func batchIndex(id string) int {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
