package api

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"text2image-service/internal/generation"

	"github.com/gin-gonic/gin"
)

type exportImagesRequest struct {
	ImageIDs    []string `json:"imageIds"`
	ImageIDsAlt []string `json:"image_ids"`
}

// ExportImagesHandler exports selected images as a zip archive.
func (s *Server) ExportImagesHandler(c *gin.Context) {
	var req exportImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败")
		return
	}

	ids := req.ImageIDs
	if len(ids) == 0 {
		ids = req.ImageIDsAlt
	}
	if len(ids) == 0 {
		Error(c, http.StatusBadRequest, 400, "imageIds 不能为空")
		return
	}

	var records []generation.ImageRecord
	var missing []string
	for _, id := range ids {
		record, ok := s.Images.Get(id)
		if !ok {
			missing = append(missing, fmt.Sprintf("%s: not found", id))
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		Error(c, http.StatusNotFound, 404, "没有可导出的图片")
		return
	}

	fileName := fmt.Sprintf("images-%d.zip", time.Now().Unix())
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	if len(missing) > 0 {
		c.Header("X-Export-Partial", "true")
	}
	c.Status(http.StatusOK)

	zipWriter := zip.NewWriter(c.Writer)
	defer zipWriter.Close()

	used := make(map[string]bool, len(records))
	for _, record := range records {
		cached, err := s.Cache.Original(c.Request.Context(), record.URL)
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", record.ID, err))
			continue
		}

		name := downloadName(record)
		if used[name] {
			name = strings.TrimSuffix(name, ".png") + "_" + record.ID + ".png"
		}
		used[name] = true

		if err := copyIntoZip(zipWriter, name, cached.Path); err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", record.ID, err))
		}
	}

	if len(missing) > 0 {
		if writer, err := zipWriter.Create("missing.txt"); err == nil {
			_, _ = writer.Write([]byte(strings.Join(missing, "\n")))
		}
	}
}

func copyIntoZip(zipWriter *zip.Writer, name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer, err := zipWriter.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, file)
	return err
}
