package actor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Arbiter 执行上下文
//
// 一个 Arbiter 拥有一个 goroutine 和一个串行队列。它执行投递过来的 [Deferred]
// 任务（[Execute]、[StartActor]），通过 StartActor 构造的 Actor 挂在它下面，
// 收到 [StopArbiter] 后连同这些 Actor 一起停止。
//
// 任务中的 panic 只让当前这条消息失败：等待方收到 [*PanicError]，
// Arbiter 默认使用 [ResumingSupervisorStrategy] 继续处理后续消息。
type Arbiter struct {
	name   string
	pid    *PID
	logger *slog.Logger
	stats  *StatsCollector

	code     atomic.Int64
	done     chan struct{}
	doneOnce sync.Once
}

// NewArbiter 创建并启动 Arbiter
// 同名 Arbiter 已存在时返回已有的那个
func (s *System) NewArbiter(name string) *Arbiter {
	return s.NewArbiterWithProps(DefaultProps(name))
}

// NewArbiterWithProps 使用属性创建 Arbiter
func (s *System) NewArbiterWithProps(props *Props) *Arbiter {
	p := *props
	if p.Name == "" {
		p.Name = "arbiter-" + uuid.NewString()
	}
	if p.SupervisorStrategy == nil {
		p.SupervisorStrategy = ResumingSupervisorStrategy()
	}

	s.actorsMu.RLock()
	cell, exists := s.actors[p.Name]
	s.actorsMu.RUnlock()
	if exists {
		if existing, ok := cell.actor.(*Arbiter); ok {
			return existing
		}
	}

	a := &Arbiter{
		name:   p.Name,
		logger: s.logger.With("arbiter", p.Name),
		stats:  NewStatsCollector(),
		done:   make(chan struct{}),
	}
	a.pid = s.register(&PID{ID: p.Name, system: s}, a, &p, nil, nil)
	a.name = a.pid.ID
	if !s.IsRunning() {
		a.markDone()
	}
	return a
}

// Name 返回 Arbiter 名称
func (a *Arbiter) Name() string {
	return a.name
}

// PID 返回 Arbiter 地址，[Execute]、[StartActor]、[StopArbiter] 都发到这里
func (a *Arbiter) PID() *PID {
	return a.pid
}

// Done Arbiter 的消息循环退出后关闭
func (a *Arbiter) Done() <-chan struct{} {
	return a.done
}

// ExitCode 停止 Arbiter 的 StopArbiter 携带的状态码
// 因系统关闭而停止时为 0
func (a *Arbiter) ExitCode() int {
	return int(a.code.Load())
}

// Stats 已执行任务的统计，panic 计入 Errors
func (a *Arbiter) Stats() *ActorStats {
	return a.stats.Stats()
}

// Receive 实现 Actor 接口
func (a *Arbiter) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *Started:
		a.logger.Debug("arbiter started")

	case Deferred:
		a.invoke(ctx, m)

	case *StopArbiter:
		a.code.Store(int64(m.Code))
		a.logger.Info("arbiter stop requested", "code", m.Code, "sender", ctx.Sender)

	case *Stopping:
		a.logger.Debug("arbiter stopping")

	case *Stopped:
		a.markDone()
		a.logger.Debug("arbiter stopped", "code", a.ExitCode())

	case *Restarting:
		a.logger.Debug("arbiter resuming after restart")

	default:
		a.logger.Warn("arbiter received unknown message", "kind", msg.Kind())
	}
}

// invoke 调用延迟任务并把结果作为响应
// 统计先于响应写入；panic 记录后继续向上抛出，由消息循环决定如何隔离
func (a *Arbiter) invoke(ctx *Context, d Deferred) {
	a.stats.RecordReceived()
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.stats.RecordError(fmt.Errorf("%s: %v", d.Kind(), r))
			panic(r)
		}
	}()

	result := d.Invoke(ctx)
	a.stats.RecordHandled(time.Since(startTime))
	ctx.Reply(result)
}

func (a *Arbiter) markDone() {
	a.doneOnce.Do(func() { close(a.done) })
}
