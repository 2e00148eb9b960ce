package generation

import (
	"strconv"
	"strings"
	"time"
)

// 尺寸字符串无法解析时使用的分辨率
const (
	FallbackWidth  = 1328
	FallbackHeight = 1328
)

// isoLayout 与浏览器 toISOString 的输出一致
const isoLayout = "2006-01-02T15:04:05.000Z"

// ImageRecord 一张生成图片的记录，只由归一化流程创建
type ImageRecord struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Prompt       string `json:"prompt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Model        string `json:"model"`
	Size         string `json:"size"`
	CreatedAt    string `json:"createdAt"`
	Downloaded   bool   `json:"downloaded,omitempty"`
	DownloadedAt string `json:"downloadedAt,omitempty"`
}

// CreatedTime 解析 CreatedAt，失败时返回 false
func (r ImageRecord) CreatedTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTimestamp 以 UTC 毫秒精度格式化时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseSize 解析 "1328*1328" / "1024x768" 形式的尺寸
func ParseSize(size string) (int, int) {
	parts := strings.FieldsFunc(strings.TrimSpace(size), func(r rune) bool {
		return r == '*' || r == 'x' || r == 'X' || r == '×'
	})
	if len(parts) != 2 {
		return FallbackWidth, FallbackHeight
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return FallbackWidth, FallbackHeight
	}
	return w, h
}
