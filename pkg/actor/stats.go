package actor

import (
	"math"
	"sync"
	"time"
)

// ActorStats 运行时统计信息
type ActorStats struct {
	// 消息计数
	MessagesReceived int64 `yaml:"messages_received"`
	MessagesHandled  int64 `yaml:"messages_handled"`
	Errors           int64 `yaml:"errors"`

	// 延迟统计
	TotalLatency   time.Duration `yaml:"total_latency"`
	AverageLatency time.Duration `yaml:"average_latency"`
	MaxLatency     time.Duration `yaml:"max_latency"`
	MinLatency     time.Duration `yaml:"min_latency"`

	// 时间戳
	StartedAt     time.Time `yaml:"started_at"`
	LastMessageAt time.Time `yaml:"last_message_at"`
	LastErrorAt   time.Time `yaml:"last_error_at"`

	LastError error `yaml:"-"`
}

// Clone 克隆统计信息
func (s *ActorStats) Clone() *ActorStats {
	c := *s
	return &c
}

// StatsCollector 线程安全的统计收集器
type StatsCollector struct {
	mu    sync.RWMutex
	stats ActorStats
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	c := &StatsCollector{}
	c.Reset()
	return c
}

// RecordReceived 记录接收消息
func (c *StatsCollector) RecordReceived() {
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastMessageAt = time.Now()
	c.mu.Unlock()
}

// RecordHandled 记录成功处理消息
func (c *StatsCollector) RecordHandled(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.MessagesHandled++
	c.stats.TotalLatency += latency
	c.stats.AverageLatency = c.stats.TotalLatency / time.Duration(c.stats.MessagesHandled)

	if latency > c.stats.MaxLatency {
		c.stats.MaxLatency = latency
	}
	if latency < c.stats.MinLatency {
		c.stats.MinLatency = latency
	}
}

// RecordError 记录错误
func (c *StatsCollector) RecordError(err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.LastError = err
	c.stats.LastErrorAt = time.Now()
	c.mu.Unlock()
}

// Stats 获取统计快照
// 尚未处理过消息时 MinLatency 为 0
func (c *StatsCollector) Stats() *ActorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := c.stats.Clone()
	if snapshot.MessagesHandled == 0 {
		snapshot.MinLatency = 0
	}
	return snapshot
}

// Reset 重置统计
func (c *StatsCollector) Reset() {
	c.mu.Lock()
	c.stats = ActorStats{
		StartedAt:  time.Now(),
		MinLatency: time.Duration(math.MaxInt64),
	}
	c.mu.Unlock()
}
