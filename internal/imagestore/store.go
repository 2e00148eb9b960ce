// Package imagestore 持久化保存生成的图片记录，最多保留 Capacity 条，最新的在前。
//
// 写入失败只记录警告，不会影响调用方拿到的生成结果。
package imagestore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"text2image-service/internal/generation"
	"text2image-service/internal/kv"
)

const (
	// Key 图片集合在介质中的固定 key
	Key      = "generated_images"
	Capacity = 100
)

var errNotFound = errors.New("记录不存在")

// Stats 图片统计
type Stats struct {
	Total    int `json:"total"`
	Today    int `json:"today"`
	ThisWeek int `json:"thisWeek"`
}

type Store struct {
	medium kv.Medium
	now    func() time.Time
}

type Option func(*Store)

// WithClock 替换统计时使用的当前时间
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(medium kv.Medium, opts ...Option) *Store {
	s := &Store{medium: medium, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append 把记录插到最前面，超出容量时淘汰最旧的记录
func (s *Store) Append(record generation.ImageRecord) {
	err := s.update(func(images []generation.ImageRecord) ([]generation.ImageRecord, error) {
		images = append([]generation.ImageRecord{record}, images...)
		if len(images) > Capacity {
			images = images[:Capacity]
		}
		return images, nil
	})
	if err != nil {
		slog.Warn("保存图片失败", "id", record.ID, "error", err)
		return
	}
	slog.Debug("图片已保存", "id", record.ID)
}

// List 返回全部记录；介质不可用或数据损坏时返回空列表
func (s *Store) List() []generation.ImageRecord {
	value, ok, err := s.medium.Get(Key)
	if err != nil {
		slog.Warn("获取存储图片失败", "error", err)
		return []generation.ImageRecord{}
	}
	if !ok {
		return []generation.ImageRecord{}
	}
	return decode(value)
}

// Get 按 id 查找记录
func (s *Store) Get(id string) (generation.ImageRecord, bool) {
	for _, img := range s.List() {
		if img.ID == id {
			return img, true
		}
	}
	return generation.ImageRecord{}, false
}

// Remove 删除第一条匹配 id 的记录，不存在时什么也不做
func (s *Store) Remove(id string) {
	err := s.update(func(images []generation.ImageRecord) ([]generation.ImageRecord, error) {
		for i, img := range images {
			if img.ID == id {
				return append(images[:i:i], images[i+1:]...), nil
			}
		}
		return images, nil
	})
	if err != nil {
		slog.Warn("删除图片失败", "id", id, "error", err)
	}
}

// Clear 清空所有记录
func (s *Store) Clear() {
	if err := s.medium.Remove(Key); err != nil {
		slog.Warn("清空图片失败", "error", err)
	}
}

// MarkDownloaded 标记第一条匹配 id 的记录为已下载
func (s *Store) MarkDownloaded(id string) bool {
	err := s.update(func(images []generation.ImageRecord) ([]generation.ImageRecord, error) {
		for i := range images {
			if images[i].ID == id {
				images[i].Downloaded = true
				images[i].DownloadedAt = generation.FormatTimestamp(s.now())
				return images, nil
			}
		}
		return nil, errNotFound
	})
	if err != nil {
		if !errors.Is(err, errNotFound) {
			slog.Warn("标记下载状态失败", "id", id, "error", err)
		}
		return false
	}
	return true
}

// Stats today 按本地日历日统计，thisWeek 为最近 7×24 小时
func (s *Store) Stats() Stats {
	images := s.List()
	now := s.now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	y, m, d := now.Local().Date()

	stats := Stats{Total: len(images)}
	for _, img := range images {
		created, ok := img.CreatedTime()
		if !ok {
			continue
		}
		cy, cm, cd := created.Local().Date()
		if cy == y && cm == m && cd == d {
			stats.Today++
		}
		if !created.Before(weekAgo) {
			stats.ThisWeek++
		}
	}
	return stats
}

// ModelStats 按模型分组计数
func (s *Store) ModelStats() map[string]int {
	stats := make(map[string]int)
	for _, img := range s.List() {
		stats[img.Model]++
	}
	return stats
}

func (s *Store) update(fn func([]generation.ImageRecord) ([]generation.ImageRecord, error)) error {
	return kv.Update(s.medium, Key, func(current string, ok bool) (string, error) {
		var images []generation.ImageRecord
		if ok {
			images = decode(current)
		}
		next, err := fn(images)
		if err != nil {
			return "", err
		}
		if next == nil {
			next = []generation.ImageRecord{}
		}
		data, err := json.Marshal(next)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

func decode(value string) []generation.ImageRecord {
	var images []generation.ImageRecord
	if err := json.Unmarshal([]byte(value), &images); err != nil {
		slog.Warn("图片数据已损坏，已丢弃", "error", err)
		return []generation.ImageRecord{}
	}
	if images == nil {
		images = []generation.ImageRecord{}
	}
	return images
}
