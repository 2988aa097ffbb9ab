package actor

import (
	"sync"
	"time"
)

// Directive 监督指令
type Directive int

const (
	// DirectiveResume 忽略失败，继续处理下一条消息
	DirectiveResume Directive = iota
	// DirectiveRestart 重启 Actor
	DirectiveRestart
	// DirectiveStop 停止 Actor
	DirectiveStop
	// DirectiveEscalate 上报给父 Actor 并停止
	DirectiveEscalate
)

// DirectiveWithDelay 带延迟的指令
type DirectiveWithDelay struct {
	Directive Directive
	Delay     time.Duration
}

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case DirectiveResume:
		return "Resume"
	case DirectiveRestart:
		return "Restart"
	case DirectiveStop:
		return "Stop"
	case DirectiveEscalate:
		return "Escalate"
	default:
		return "Unknown"
	}
}

// SupervisorStrategy 监督策略接口
type SupervisorStrategy interface {
	// HandleFailure 处理消息处理中的 panic
	// 返回 Directive 或 DirectiveWithDelay
	HandleFailure(system *System, child *PID, msg Message, err any) any
}

// Decider 决策函数类型
type Decider func(err any) Directive

// DefaultDecider 对所有错误重启
func DefaultDecider(_ any) Directive {
	return DirectiveRestart
}

// StoppingDecider 对所有错误停止
func StoppingDecider(_ any) Directive {
	return DirectiveStop
}

// EscalatingDecider 对所有错误上报
func EscalatingDecider(_ any) Directive {
	return DirectiveEscalate
}

// ResumingDecider 对所有错误恢复
func ResumingDecider(_ any) Directive {
	return DirectiveResume
}

// restartWindow 滑动时间窗口内的重启计数
type restartWindow struct {
	mu       sync.Mutex
	within   time.Duration
	max      int
	restarts []time.Time
}

// allow 窗口内重启次数未超限时记录本次重启并返回 true
func (w *restartWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.within)
	kept := w.restarts[:0]
	for _, t := range w.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.restarts = kept

	if len(w.restarts) >= w.max {
		return false
	}
	w.restarts = append(w.restarts, now)
	return true
}

// OneForOneStrategy 只处理失败的那个 Actor
// 窗口内重启次数超过 MaxRestarts 后改为停止
type OneForOneStrategy struct {
	MaxRestarts    int
	WithinDuration time.Duration
	Decider        Decider

	window *restartWindow
}

// NewOneForOneStrategy 创建一对一策略
func NewOneForOneStrategy(maxRestarts int, within time.Duration, decider Decider) *OneForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &OneForOneStrategy{
		MaxRestarts:    maxRestarts,
		WithinDuration: within,
		Decider:        decider,
		window:         &restartWindow{within: within, max: maxRestarts},
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *OneForOneStrategy) HandleFailure(_ *System, _ *PID, _ Message, err any) any {
	directive := s.Decider(err)
	if directive == DirectiveRestart && !s.window.allow(time.Now()) {
		return DirectiveStop
	}
	return directive
}

// ExponentialBackoffStrategy 指数退避重启
type ExponentialBackoffStrategy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRestarts  int
	Decider      Decider

	mu           sync.Mutex
	currentDelay time.Duration
	restartCount int
}

// NewExponentialBackoffStrategy 创建指数退避策略
func NewExponentialBackoffStrategy(initialDelay, maxDelay time.Duration, maxRestarts int, decider Decider) *ExponentialBackoffStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &ExponentialBackoffStrategy{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		MaxRestarts:  maxRestarts,
		Decider:      decider,
		currentDelay: initialDelay,
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *ExponentialBackoffStrategy) HandleFailure(_ *System, _ *PID, _ Message, err any) any {
	directive := s.Decider(err)
	if directive != DirectiveRestart {
		return directive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restartCount >= s.MaxRestarts {
		return DirectiveStop
	}

	delay := s.currentDelay
	s.currentDelay = min(s.currentDelay*2, s.MaxDelay)
	s.restartCount++

	return DirectiveWithDelay{Directive: DirectiveRestart, Delay: delay}
}

// Reset 重置退避状态
func (s *ExponentialBackoffStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDelay = s.InitialDelay
	s.restartCount = 0
}

// DefaultSupervisorStrategy 默认监督策略：1 分钟内最多重启 3 次
func DefaultSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(3, time.Minute, DefaultDecider)
}

// StrictSupervisorStrategy 任何失败都停止 Actor
func StrictSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(0, time.Second, StoppingDecider)
}

// ResumingSupervisorStrategy 失败只影响当前消息，Arbiter 的默认策略
func ResumingSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(0, time.Second, ResumingDecider)
}
