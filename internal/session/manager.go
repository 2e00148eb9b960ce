package session

import (
	"log/slog"
	"sync"
	"time"

	"text2image-service/internal/kv"

	"github.com/robfig/cron/v3"
)

// Manager 按会话 ID 划分草稿，并在会话空闲超时后清除
type Manager struct {
	medium *kv.MemoryMedium
	idle   time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	inFlight map[string]bool

	cron *cron.Cron
}

func NewManager(idle time.Duration) *Manager {
	return &Manager{
		medium:   kv.NewMemoryMedium(),
		idle:     idle,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		inFlight: make(map[string]bool),
	}
}

func prefix(id string) string { return "session:" + id + ":" }

// Draft 返回会话对应的草稿，并刷新会话活跃时间
func (m *Manager) Draft(id string) *DraftStore {
	m.mu.Lock()
	m.lastSeen[id] = m.now()
	m.mu.Unlock()
	return NewDraftStore(kv.Prefixed{Base: m.medium, Prefix: prefix(id)})
}

// Begin 标记会话开始一次生成；已有未完成的生成时返回 false
func (m *Manager) Begin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] {
		return false
	}
	m.inFlight[id] = true
	m.lastSeen[id] = m.now()
	return true
}

// End 结束会话的生成
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// InFlight 表示会话有未完成的生成
func (m *Manager) InFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[id]
}

// Sweep 清除空闲超时且没有进行中请求的会话，返回清除数量
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.idle)
	n := 0
	for id, seen := range m.lastSeen {
		if m.inFlight[id] || seen.After(cutoff) {
			continue
		}
		m.medium.RemovePrefix(prefix(id))
		delete(m.lastSeen, id)
		n++
	}
	return n
}

// StartSweeper 按 cron 表达式定期清理过期会话
func (m *Manager) StartSweeper(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := m.Sweep(); n > 0 {
			slog.Info("已清理过期会话", "count", n)
		}
	}); err != nil {
		return err
	}
	m.cron = c
	c.Start()
	return nil
}

func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}
