package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxBytes  = 20 * 1024 * 1024
	DefaultThumbSize = 256
)

var ErrTooLarge = errors.New("图片过大")

// LocalStorage 本地文件存储
type LocalStorage struct {
	BaseDir string
}

// Save 原子写入文件：先写临时文件再重命名
func (l *LocalStorage) Save(name string, reader io.Reader) (string, error) {
	path := filepath.Join(l.BaseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("创建本地文件失败: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("写入本地文件失败: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("写入本地文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("写入本地文件失败: %w", err)
	}
	return path, nil
}

// SaveThumbnail 从已保存的原图生成等比例缩略图，返回缩略图路径与原图尺寸
func (l *LocalStorage) SaveThumbnail(srcPath, thumbName string, size int) (string, int, int, error) {
	srcImg, err := imaging.Open(srcPath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("打开原图生成缩略图失败: %w", err)
	}
	width := srcImg.Bounds().Dx()
	height := srcImg.Bounds().Dy()

	thumbPath := filepath.Join(l.BaseDir, thumbName)
	dstImg := imaging.Thumbnail(srcImg, size, size, imaging.Lanczos)
	if err := imaging.Save(dstImg, thumbPath); err != nil {
		return "", width, height, fmt.Errorf("保存缩略图失败: %w", err)
	}
	return thumbPath, width, height, nil
}

// DeleteMatching 删除名称以 key 开头的所有文件
func (l *LocalStorage) DeleteMatching(key string) error {
	matches, err := filepath.Glob(filepath.Join(l.BaseDir, key+"*"))
	if err != nil {
		return err
	}
	thumbs, _ := filepath.Glob(filepath.Join(l.BaseDir, "thumb_"+key+"*"))
	var errs []string
	for _, path := range append(matches, thumbs...) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("删除过程出错: %s", strings.Join(errs, "; "))
	}
	return nil
}

type cacheMeta struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	UpdatedAt   string `json:"updated_at"`
}

// CachedImage 已缓存到本地的远程图片
type CachedImage struct {
	Path        string
	ContentType string
	Cached      bool
}

// ImageCache 按需拉取远程图片并缓存到本地，记录本身仍只保存远程地址
type ImageCache struct {
	Local     *LocalStorage
	Client    *http.Client
	MaxBytes  int64
	ThumbSize int
}

func NewImageCache(baseDir string, timeout time.Duration, thumbSize int) *ImageCache {
	if thumbSize <= 0 {
		thumbSize = DefaultThumbSize
	}
	return &ImageCache{
		Local:     &LocalStorage{BaseDir: baseDir},
		Client:    &http.Client{Timeout: timeout},
		MaxBytes:  DefaultMaxBytes,
		ThumbSize: thumbSize,
	}
}

// Key 远程地址对应的缓存文件名前缀
func Key(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Original 返回远程图片的本地缓存，未缓存时先拉取
func (c *ImageCache) Original(ctx context.Context, rawURL string) (CachedImage, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return CachedImage{}, fmt.Errorf("url 不合法: %s", rawURL)
	}

	key := Key(rawURL)
	metaPath := filepath.Join(c.Local.BaseDir, key+".json")
	if path, contentType := c.lookup(metaPath, key); path != "" {
		return CachedImage{Path: path, ContentType: contentType, Cached: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return CachedImage{}, fmt.Errorf("请求构造失败: %w", err)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := c.Client.Do(req)
	if err != nil {
		return CachedImage{}, fmt.Errorf("拉取远程图片失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CachedImage{}, fmt.Errorf("远程图片响应异常: %s", resp.Status)
	}

	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return CachedImage{}, fmt.Errorf("读取远程图片失败: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return CachedImage{}, ErrTooLarge
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	filename := key + resolveImageExt(parsed.Path, contentType)
	path, err := c.Local.Save(filename, bytes.NewReader(data))
	if err != nil {
		return CachedImage{}, err
	}

	meta := cacheMeta{
		URL:         rawURL,
		Filename:    filename,
		ContentType: contentType,
		UpdatedAt:   time.Now().Format(time.RFC3339),
	}
	if encoded, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(metaPath, encoded, 0644)
	}
	return CachedImage{Path: path, ContentType: contentType}, nil
}

// Thumbnail 返回远程图片的缩略图路径
func (c *ImageCache) Thumbnail(ctx context.Context, rawURL string) (string, error) {
	key := Key(rawURL)
	thumbName := "thumb_" + key + ".jpg"
	thumbPath := filepath.Join(c.Local.BaseDir, thumbName)
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	original, err := c.Original(ctx, rawURL)
	if err != nil {
		return "", err
	}
	path, _, _, err := c.Local.SaveThumbnail(original.Path, thumbName, c.ThumbSize)
	return path, err
}

// Evict 删除远程地址对应的全部缓存文件
func (c *ImageCache) Evict(rawURL string) error {
	return c.Local.DeleteMatching(Key(rawURL))
}

func (c *ImageCache) lookup(metaPath, key string) (string, string) {
	if metaData, err := os.ReadFile(metaPath); err == nil {
		var meta cacheMeta
		if err := json.Unmarshal(metaData, &meta); err == nil && meta.Filename != "" {
			cachedPath := filepath.Join(c.Local.BaseDir, meta.Filename)
			if _, err := os.Stat(cachedPath); err == nil {
				return cachedPath, meta.ContentType
			}
		}
	}
	return "", ""
}

func resolveImageExt(path, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" && len(ext) <= 5 {
		return ext
	}
	ctype := strings.ToLower(contentType)
	switch {
	case strings.Contains(ctype, "jpeg"):
		return ".jpg"
	case strings.Contains(ctype, "png"):
		return ".png"
	case strings.Contains(ctype, "webp"):
		return ".webp"
	case strings.Contains(ctype, "gif"):
		return ".gif"
	default:
		return ".img"
	}
}
