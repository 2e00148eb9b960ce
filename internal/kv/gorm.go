package kv

import (
	"errors"
	"fmt"
	"time"

	"text2image-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMedium 基于 kv_entries 表的持久介质
type GormMedium struct {
	DB *gorm.DB
}

func NewGormMedium(db *gorm.DB) *GormMedium {
	return &GormMedium{DB: db}
}

func (g *GormMedium) Get(key string) (string, bool, error) {
	if g.DB == nil {
		return "", false, ErrUnavailable
	}
	return get(g.DB, key)
}

func (g *GormMedium) Set(key, value string) error {
	if g.DB == nil {
		return ErrUnavailable
	}
	return set(g.DB, key, value)
}

func (g *GormMedium) Remove(key string) error {
	if g.DB == nil {
		return ErrUnavailable
	}
	if err := g.DB.Where("entry_key = ?", key).Delete(&model.KVEntry{}).Error; err != nil {
		return fmt.Errorf("删除 %s 失败: %w", key, err)
	}
	return nil
}

// Update 在同一个事务内完成读改写，多个写入方不会互相覆盖
func (g *GormMedium) Update(key string, fn UpdateFunc) error {
	if g.DB == nil {
		return ErrUnavailable
	}
	return g.DB.Transaction(func(tx *gorm.DB) error {
		current, ok, err := get(tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		return set(tx, key, next)
	})
}

func get(db *gorm.DB, key string) (string, bool, error) {
	var entry model.KVEntry
	err := db.Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取 %s 失败: %w", key, err)
	}
	return entry.Value, true, nil
}

func set(db *gorm.DB, key, value string) error {
	entry := model.KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	return nil
}
