// Package session 保存单个浏览会话内可恢复的表单与最近一次生成结果。
package session

import (
	"encoding/json"
	"log/slog"

	"text2image-service/internal/generation"
	"text2image-service/internal/kv"
)

const (
	FormKey    = "form_data"
	OutcomeKey = "generation_result"
)

// DraftStore 会话草稿。所有操作都不返回错误，内部失败只记日志
type DraftStore struct {
	medium kv.Medium
}

func NewDraftStore(medium kv.Medium) *DraftStore {
	return &DraftStore{medium: medium}
}

func (d *DraftStore) SaveForm(form generation.Request) {
	d.save(FormKey, form)
}

// Form 返回保存的表单，没有时 ok 为 false
func (d *DraftStore) Form() (form generation.Request, ok bool) {
	ok = d.load(FormKey, &form)
	return form, ok
}

func (d *DraftStore) SaveOutcome(outcome generation.Outcome) {
	d.save(OutcomeKey, outcome)
}

// Outcome 返回最近一次生成结果，没有时 ok 为 false
func (d *DraftStore) Outcome() (outcome generation.Outcome, ok bool) {
	ok = d.load(OutcomeKey, &outcome)
	return outcome, ok
}

// ClearAll 清除表单与结果
func (d *DraftStore) ClearAll() {
	for _, key := range []string{OutcomeKey, FormKey} {
		if err := d.medium.Remove(key); err != nil {
			slog.Warn("清除会话数据失败", "key", key, "error", err)
		}
	}
}

func (d *DraftStore) HasSavedData() bool {
	for _, key := range []string{OutcomeKey, FormKey} {
		if _, ok, err := d.medium.Get(key); err == nil && ok {
			return true
		}
	}
	return false
}

func (d *DraftStore) save(key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("编码会话数据失败", "key", key, "error", err)
		return
	}
	if err := d.medium.Set(key, string(data)); err != nil {
		slog.Warn("保存会话数据失败", "key", key, "error", err)
	}
}

func (d *DraftStore) load(key string, v interface{}) bool {
	value, ok, err := d.medium.Get(key)
	if err != nil {
		slog.Warn("读取会话数据失败", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		slog.Warn("会话数据已损坏", "key", key, "error", err)
		return false
	}
	return true
}
