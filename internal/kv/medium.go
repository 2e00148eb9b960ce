// Package kv 提供按 key 存取字符串值的存储介质。
//
// 图片库与会话草稿都只依赖 Medium 接口：持久介质基于 SQLite，会话介质只存在于进程内存。
package kv

import (
	"errors"
	"strings"
	"sync"
)

// ErrUnavailable 表示底层介质不可用
var ErrUnavailable = errors.New("存储介质不可用")

// Medium 是最小的键值存储能力
type Medium interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// UpdateFunc 接收当前值，返回要写回的新值
type UpdateFunc func(current string, ok bool) (string, error)

// Updater 由支持原子读改写的介质实现
type Updater interface {
	Update(key string, fn UpdateFunc) error
}

// Update 在介质支持时原子执行读改写，否则退化为 Get + Set
func Update(m Medium, key string, fn UpdateFunc) error {
	if u, ok := m.(Updater); ok {
		return u.Update(key, fn)
	}
	current, ok, err := m.Get(key)
	if err != nil {
		return err
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	return m.Set(key, next)
}

// MemoryMedium 进程内介质
type MemoryMedium struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{data: make(map[string]string)}
}

func (m *MemoryMedium) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryMedium) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryMedium) Update(key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

// RemovePrefix 删除所有以 prefix 开头的 key
func (m *MemoryMedium) RemovePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// Prefixed 在另一个介质上划出一个带前缀的命名空间
type Prefixed struct {
	Base   Medium
	Prefix string
}

func (p Prefixed) Get(key string) (string, bool, error) { return p.Base.Get(p.Prefix + key) }
func (p Prefixed) Set(key, value string) error           { return p.Base.Set(p.Prefix+key, value) }
func (p Prefixed) Remove(key string) error               { return p.Base.Remove(p.Prefix + key) }

func (p Prefixed) Update(key string, fn UpdateFunc) error {
	return Update(p.Base, p.Prefix+key, fn)
}
