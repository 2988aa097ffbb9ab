package actor

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// ControlActorName 进程级控制 Actor 的名称，负责处理 [SystemExit]
	ControlActorName = "system"
	// DefaultArbiterName 随系统创建的默认 Arbiter 名称
	DefaultArbiterName = "arbiter"
)

// System Actor 系统
// 管理所有 Actor 与 Arbiter 的生命周期、消息路由和监督
type System struct {
	name string

	// Actor 注册表
	actors   map[string]*actorCell
	actorsMu sync.RWMutex

	// 全局邮箱（用于路由消息）
	mailbox chan envelope

	// 死信队列（无法投递的消息）
	deadLetters chan envelope

	// 生命周期控制
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	isRunning    atomic.Bool
	shutdownOnce sync.Once
	stopped      chan struct{}

	// SystemExit 处理
	control  *PID
	arbiter  *Arbiter
	exitOnce sync.Once
	exitCh   chan struct{}
	exitCode atomic.Int64

	config *SystemConfig
	stats  *SystemStats
	logger *slog.Logger
}

// SystemConfig 系统配置
type SystemConfig struct {
	// MailboxSize 全局邮箱大小
	MailboxSize int
	// DeadLetterSize 死信队列大小
	DeadLetterSize int
	// DefaultActorMailboxSize 默认 Actor 邮箱大小
	DefaultActorMailboxSize int
	// EnableDeadLetterLogging 是否记录死信
	EnableDeadLetterLogging bool
	// ShutdownTimeout 关闭时等待所有 Actor 退出的时间
	ShutdownTimeout time.Duration
	// PanicHandler panic 处理函数，为空时写日志
	PanicHandler func(actor *PID, msg Message, err any)
	// ExitFunc RunAndExit 使用的退出函数，默认 os.Exit
	ExitFunc func(code int)
	// Logger 自定义日志器
	Logger *slog.Logger
}

// DefaultSystemConfig 默认系统配置
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MailboxSize:             10000,
		DeadLetterSize:          1000,
		DefaultActorMailboxSize: 100,
		EnableDeadLetterLogging: true,
		ShutdownTimeout:         30 * time.Second,
	}
}

// SystemStats 系统统计
type SystemStats struct {
	TotalActors   int64     `yaml:"total_actors"`
	TotalMessages int64     `yaml:"total_messages"`
	DeadLetters   int64     `yaml:"dead_letters"`
	ProcessedMsgs int64     `yaml:"processed_messages"`
	Panics        int64     `yaml:"panics"`
	StartTime     time.Time `yaml:"start_time"`
}

// actorCell Actor 单元，包含 Actor 及其运行时状态
type actorCell struct {
	pid      *PID
	actor    Actor
	mailbox  chan envelope
	parent   *PID
	watchers map[string]*PID

	state    actorState
	stateMu  sync.RWMutex
	restarts int

	supervisor SupervisorStrategy

	ctx    context.Context
	cancel context.CancelFunc
}

type actorState int

const (
	actorStateIdle actorState = iota
	actorStateRunning
	actorStateStopping
	actorStateStopped
	actorStateRestarting
)

func (c *actorCell) setState(state actorState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

func (c *actorCell) getState() actorState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// halts 处理完该消息后是否退出消息循环
func (c *actorCell) halts(msg Message) bool {
	switch msg.(type) {
	case *PoisonPill:
		return true
	case *StopArbiter:
		_, ok := c.actor.(*Arbiter)
		return ok
	}
	return false
}

// envelope 消息信封
type envelope struct {
	target  *PID
	sender  *PID
	message Message
	sentAt  time.Time
	reply   *replyTo
}

// NewSystem 创建新的 Actor 系统
func NewSystem(name string) *System {
	return NewSystemWithConfig(name, DefaultSystemConfig())
}

// NewSystemWithConfig 使用配置创建 Actor 系统
// 同时启动控制 Actor 与默认 Arbiter
func NewSystemWithConfig(name string, config *SystemConfig) *System {
	if config == nil {
		config = DefaultSystemConfig()
	}
	cfg := *config
	config = &cfg
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &System{
		name:        name,
		actors:      make(map[string]*actorCell),
		mailbox:     make(chan envelope, config.MailboxSize),
		deadLetters: make(chan envelope, config.DeadLetterSize),
		ctx:         ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
		exitCh:      make(chan struct{}),
		config:      config,
		logger:      logger,
		stats: &SystemStats{
			StartTime: time.Now(),
		},
	}

	s.isRunning.Store(true)

	s.wg.Add(1)
	go s.dispatcher()

	if config.EnableDeadLetterLogging {
		s.wg.Add(1)
		go s.deadLetterHandler()
	}

	s.control = s.Spawn(&controlActor{system: s}, ControlActorName)
	s.arbiter = s.NewArbiter(DefaultArbiterName)

	s.logger.Info("actor system started", "name", name)
	return s
}

// Name 返回系统名称
func (s *System) Name() string {
	return s.name
}

// ControlPID 返回处理 [SystemExit] 的控制 Actor 地址
func (s *System) ControlPID() *PID {
	return s.control
}

// Arbiter 返回默认 Arbiter
func (s *System) Arbiter() *Arbiter {
	return s.arbiter
}

// Spawn 创建 Actor
func (s *System) Spawn(actor Actor, name string) *PID {
	return s.spawn(actor, name, nil)
}

// SpawnWithProps 使用属性创建 Actor
func (s *System) SpawnWithProps(actor Actor, props *Props) *PID {
	return s.spawnWithProps(actor, props, nil)
}

func (s *System) spawn(actor Actor, name string, parent *PID) *PID {
	return s.spawnWithProps(actor, DefaultProps(name), parent)
}

// spawnWithProps 名称已存在时返回已有 PID
func (s *System) spawnWithProps(actor Actor, props *Props, parent *PID) *PID {
	if props == nil {
		props = DefaultProps("")
	}
	name := props.Name
	if name == "" {
		name = "actor-" + uuid.NewString()
	}
	pid, _ := s.startCell(&PID{ID: name, system: s}, actor, props, parent, false, nil)
	return pid
}

// register 注册已构造好的 Actor，名称冲突时追加后缀
// scope 为构造 Actor 时已经分配好的 context，为空时从父 Actor 派生
func (s *System) register(pid *PID, actor Actor, props *Props, parent *PID, scope *cellScope) *PID {
	registered, _ := s.startCell(pid, actor, props, parent, true, scope)
	return registered
}

// cellScope Actor 自己的可取消 context
type cellScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// startCell 注册并启动 Actor 消息循环
// 返回实际注册的 PID 与 Actor（名称已存在且 unique 为 false 时是已有的那个）
func (s *System) startCell(pid *PID, actor Actor, props *Props, parent *PID, unique bool, scope *cellScope) (*PID, Actor) {
	if !s.isRunning.Load() {
		if scope != nil {
			scope.cancel()
		}
		s.logger.Warn("spawn on stopped system ignored", "name", pid.ID)
		return pid, actor
	}

	s.actorsMu.Lock()

	if existing, exists := s.actors[pid.ID]; exists {
		if !unique {
			s.actorsMu.Unlock()
			if scope != nil {
				scope.cancel()
			}
			s.logger.Warn("actor already exists, returning existing PID", "name", pid.ID)
			return existing.pid, existing.actor
		}
		pid.ID = pid.ID + "-" + uuid.NewString()[:8]
	}

	if scope == nil {
		parentCtx := s.ctx
		if parent != nil {
			if parentCell, ok := s.actors[parent.ID]; ok {
				parentCtx = parentCell.ctx
			}
		}
		ctx, cancel := context.WithCancel(parentCtx)
		scope = &cellScope{ctx: ctx, cancel: cancel}
	}
	ctx, cancel := scope.ctx, scope.cancel

	mailboxSize := props.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = s.config.DefaultActorMailboxSize
	}

	cell := &actorCell{
		pid:        pid,
		actor:      actor,
		mailbox:    make(chan envelope, mailboxSize),
		parent:     parent,
		watchers:   make(map[string]*PID),
		state:      actorStateIdle,
		supervisor: props.SupervisorStrategy,
		ctx:        ctx,
		cancel:     cancel,
	}

	s.actors[pid.ID] = cell
	atomic.AddInt64(&s.stats.TotalActors, 1)

	s.wg.Add(1)
	go s.actorLoop(cell)

	s.actorsMu.Unlock()

	s.SendWithSender(pid, &Started{}, nil)

	s.logger.Debug("spawned actor", "name", pid.ID, "parent", parent)
	return pid, actor
}

// Send 发送消息（无发送者）
func (s *System) Send(target *PID, msg Message) {
	s.SendWithSender(target, msg, nil)
}

// SendWithSender 发送消息（带发送者）
func (s *System) SendWithSender(target *PID, msg Message, sender *PID) {
	s.post(envelope{
		target:  target,
		sender:  sender,
		message: msg,
		sentAt:  time.Now(),
	})
}

// post 投递到全局邮箱，邮箱满时等待，系统关闭时转入死信
func (s *System) post(env envelope) bool {
	if !s.isRunning.Load() {
		if env.reply != nil {
			env.reply.fail(ErrSystemStopped)
		}
		return false
	}
	if env.target == nil {
		s.deadLetter(env, ErrActorNotFound)
		return false
	}

	select {
	case s.mailbox <- env:
		atomic.AddInt64(&s.stats.TotalMessages, 1)
		return true
	case <-s.ctx.Done():
		s.deadLetter(env, ErrSystemStopped)
		return false
	}
}

// TrySend 尝试发送消息（非阻塞）
// 如果邮箱已满，返回 false
func (s *System) TrySend(target *PID, msg Message) bool {
	if target == nil || !s.isRunning.Load() {
		return false
	}

	env := envelope{
		target:  target,
		message: msg,
		sentAt:  time.Now(),
	}

	select {
	case s.mailbox <- env:
		atomic.AddInt64(&s.stats.TotalMessages, 1)
		return true
	default:
		return false
	}
}

// Broadcast 广播消息到所有 Actor
func (s *System) Broadcast(msg Message) {
	s.BroadcastWithFilter(msg, func(*PID) bool { return true })
}

// BroadcastWithFilter 带过滤条件的广播
func (s *System) BroadcastWithFilter(msg Message, filter func(*PID) bool) {
	s.actorsMu.RLock()
	pids := make([]*PID, 0, len(s.actors))
	for _, cell := range s.actors {
		if filter(cell.pid) {
			pids = append(pids, cell.pid)
		}
	}
	s.actorsMu.RUnlock()

	for _, pid := range pids {
		s.TrySend(pid, msg)
	}
}

// Request 同步请求（等待无类型响应）
func (s *System) Request(target *PID, msg Message, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply := newReplyTo(ctx)
	s.post(envelope{
		target:  target,
		message: msg,
		sentAt:  time.Now(),
		reply:   reply,
	})

	select {
	case v := <-reply.ch:
		if f, ok := v.(failure); ok {
			return nil, f.err
		}
		return v, nil
	case <-ctx.Done():
		return nil, &ResponseTimeout{Target: target, Timeout: timeout}
	}
}

// Stop 停止 Actor，已在队列中的消息先处理完
func (s *System) Stop(pid *PID) {
	if pid == nil {
		return
	}

	s.actorsMu.RLock()
	cell, exists := s.actors[pid.ID]
	s.actorsMu.RUnlock()

	if !exists {
		return
	}

	cell.setState(actorStateStopping)
	s.Send(pid, &PoisonPill{})
}

// StopGracefully 停止 Actor 并等待其退出
func (s *System) StopGracefully(pid *PID, timeout time.Duration) error {
	s.Stop(pid)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.actorsMu.RLock()
		cell, exists := s.actors[pid.ID]
		s.actorsMu.RUnlock()

		if !exists || cell.getState() == actorStateStopped {
			return nil
		}

		time.Sleep(10 * time.Millisecond)
	}

	return &ResponseTimeout{Target: pid, Timeout: timeout}
}

// Shutdown 关闭整个 Actor 系统
func (s *System) Shutdown() {
	s.ShutdownWithTimeout(s.config.ShutdownTimeout)
}

// ShutdownWithTimeout 带超时的关闭
// 可重复调用，只有第一次生效，其余调用等待第一次完成
func (s *System) ShutdownWithTimeout(timeout time.Duration) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("actor system shutting down", "name", s.name)

		s.isRunning.Store(false)
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("actor system shutdown complete", "name", s.name)
		case <-time.After(timeout):
			s.logger.Warn("actor system shutdown timeout, forcing exit", "name", s.name)
		}

		s.failPending(s.mailbox, ErrSystemStopped)
		close(s.stopped)
	})

	// 直接调用 Shutdown 时唤醒 Run
	s.requestExit(0)
}

// requestExit 记录退出码并异步关闭系统，只有第一次生效
func (s *System) requestExit(code int) {
	s.exitOnce.Do(func() {
		s.exitCode.Store(int64(code))
		close(s.exitCh)
		go s.ShutdownWithTimeout(s.config.ShutdownTimeout)
	})
}

// Run 阻塞直到收到 SystemExit（或系统被关闭）且关闭完成，返回退出码
func (s *System) Run() int {
	<-s.exitCh
	<-s.stopped
	return int(s.exitCode.Load())
}

// RunAndExit 运行直到 SystemExit，然后以其退出码结束进程
func (s *System) RunAndExit() {
	exit := s.config.ExitFunc
	if exit == nil {
		exit = os.Exit
	}
	exit(s.Run())
}

// ExitRequested 收到 SystemExit 或开始关闭时关闭
func (s *System) ExitRequested() <-chan struct{} {
	return s.exitCh
}

// Done 系统关闭完成时关闭
func (s *System) Done() <-chan struct{} {
	return s.stopped
}

// dispatcher 全局消息分发器
func (s *System) dispatcher() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.mailbox:
			s.dispatchMessage(env)
		}
	}
}

// dispatchMessage 分发单条消息
// Actor 邮箱满时等待其消费，Actor 在此期间停止则转入死信
func (s *System) dispatchMessage(env envelope) {
	if env.target == nil {
		s.deadLetter(env, ErrActorNotFound)
		return
	}

	s.actorsMu.RLock()
	cell, exists := s.actors[env.target.ID]
	s.actorsMu.RUnlock()

	if !exists {
		s.deadLetter(env, ErrActorNotFound)
		return
	}

	select {
	case cell.mailbox <- env:
		// cleanupActor 先取消再清空邮箱，取消之后放入的消息由这里清空
		if cell.ctx.Err() != nil {
			s.failPending(cell.mailbox, s.stopReason())
		}
	case <-cell.ctx.Done():
		s.deadLetter(env, s.stopReason())
	}
}

// stopReason 消息因 Actor 停止而无法处理时返回给等待方的错误
func (s *System) stopReason() error {
	if s.ctx.Err() != nil {
		return ErrSystemStopped
	}
	return ErrArbiterStopped
}

// deadLetter 无法投递的消息，等待中的调用方收到 reason
func (s *System) deadLetter(env envelope, reason error) {
	if env.reply != nil {
		env.reply.fail(reason)
	}

	select {
	case s.deadLetters <- env:
		atomic.AddInt64(&s.stats.DeadLetters, 1)
	default:
		s.logger.Warn("dead letter queue full, message dropped",
			"kind", env.message.Kind(), "target", env.target)
	}
}

// failPending 清空邮箱，未被处理的请求以 reason 结束
// 其中的延迟任务不会被调用
func (s *System) failPending(mailbox chan envelope, reason error) {
	for {
		select {
		case env := <-mailbox:
			if env.reply != nil {
				env.reply.fail(reason)
			}
			s.logger.Debug("discarded undelivered message",
				"kind", env.message.Kind(), "target", env.target)
		default:
			return
		}
	}
}

// actorLoop Actor 消息处理循环
func (s *System) actorLoop(cell *actorCell) {
	defer s.wg.Done()
	defer s.cleanupActor(cell)

	cell.setState(actorStateRunning)

	for {
		// 取消优先于邮箱中剩余的消息
		if cell.ctx.Err() != nil {
			return
		}

		select {
		case <-cell.ctx.Done():
			return
		case env := <-cell.mailbox:
			s.processMessage(cell, env)

			if cell.halts(env.message) {
				return
			}
		}
	}
}

// processMessage 处理单条消息
// panic 只影响当前消息，随后交给监督策略
func (s *System) processMessage(cell *actorCell, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&s.stats.Panics, 1)

			perr := &PanicError{
				Actor: cell.pid,
				Kind:  env.message.Kind(),
				Value: r,
				Stack: debug.Stack(),
			}
			if env.reply != nil {
				env.reply.fail(perr)
			}

			if s.config.PanicHandler != nil {
				s.config.PanicHandler(cell.pid, env.message, r)
			} else {
				s.logger.Error("panic in actor",
					"actor", cell.pid.ID,
					"message", env.message.Kind(),
					"error", r,
					"stack", string(perr.Stack))
			}
			s.handleFailure(cell, env.message, r)
		}
	}()

	ctx := &Context{
		Self:    cell.pid,
		Sender:  env.sender,
		Parent:  cell.parent,
		system:  s,
		ctx:     cell.ctx,
		message: env.message,
		reply:   env.reply,
	}

	switch msg := env.message.(type) {
	case *PoisonPill:
		cell.actor.Receive(ctx, &Stopping{})
		return

	case *StopArbiter:
		// 只有 Arbiter 会被 StopArbiter 停止，其他 Actor 当作普通消息
		if !cell.halts(msg) {
			break
		}
		cell.setState(actorStateStopping)
		cell.actor.Receive(ctx, msg)
		ctx.Reply(Unit{})
		cell.actor.Receive(ctx, &Stopping{})
		return

	case *Watch:
		cell.watchers[msg.Watcher.ID] = msg.Watcher
		return

	case *Unwatch:
		delete(cell.watchers, msg.Watcher.ID)
		return
	}

	cell.actor.Receive(ctx, env.message)
	atomic.AddInt64(&s.stats.ProcessedMsgs, 1)
}

// handleFailure 处理 Actor 失败
func (s *System) handleFailure(cell *actorCell, msg Message, err any) {
	supervisor := cell.supervisor
	if supervisor == nil && cell.parent != nil {
		s.actorsMu.RLock()
		if parentCell, ok := s.actors[cell.parent.ID]; ok {
			supervisor = parentCell.supervisor
		}
		s.actorsMu.RUnlock()
	}

	if supervisor == nil {
		supervisor = DefaultSupervisorStrategy()
	}

	switch r := supervisor.HandleFailure(s, cell.pid, msg, err).(type) {
	case DirectiveWithDelay:
		pid := cell.pid
		time.AfterFunc(r.Delay, func() {
			s.Send(pid, &Restarting{})
			s.Send(pid, &Started{})
		})
		cell.restarts++
	case Directive:
		s.applyDirective(cell, r)
	}
}

// applyDirective 应用监督指令
// 重启通过邮箱完成，保证 Receive 始终只在 Actor 自己的 goroutine 上调用
func (s *System) applyDirective(cell *actorCell, directive Directive) {
	switch directive {
	case DirectiveResume:
		s.logger.Debug("actor resumed after failure", "actor", cell.pid.ID)

	case DirectiveRestart:
		cell.restarts++
		cell.setState(actorStateRestarting)
		s.Send(cell.pid, &Restarting{})
		s.Send(cell.pid, &Started{})
		cell.setState(actorStateRunning)
		s.logger.Info("actor restarted", "actor", cell.pid.ID, "restarts", cell.restarts)

	case DirectiveStop:
		s.Stop(cell.pid)

	case DirectiveEscalate:
		if cell.parent != nil {
			s.Send(cell.parent, &Terminated{Who: cell.pid})
		}
		s.Stop(cell.pid)
	}
}

// cleanupActor 清理 Actor
// 子 Actor 的 context 派生自父 Actor，取消后随之退出；取消先于清空邮箱
func (s *System) cleanupActor(cell *actorCell) {
	cell.setState(actorStateStopped)

	s.actorsMu.Lock()
	delete(s.actors, cell.pid.ID)
	s.actorsMu.Unlock()

	cell.cancel()
	s.failPending(cell.mailbox, s.stopReason())

	ctx := &Context{Self: cell.pid, Parent: cell.parent, system: s, ctx: context.Background()}
	cell.actor.Receive(ctx, &Stopped{})

	for _, watcher := range cell.watchers {
		s.Send(watcher, &Terminated{Who: cell.pid})
	}

	atomic.AddInt64(&s.stats.TotalActors, -1)
	s.logger.Debug("actor stopped", "actor", cell.pid.ID)
}

// deadLetterHandler 死信处理器
func (s *System) deadLetterHandler() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.deadLetters:
			s.logger.Warn("dead letter",
				"message", env.message.Kind(),
				"target", env.target,
				"sender", env.sender)
		}
	}
}

// Stats 获取统计信息
func (s *System) Stats() *SystemStats {
	return &SystemStats{
		TotalActors:   atomic.LoadInt64(&s.stats.TotalActors),
		TotalMessages: atomic.LoadInt64(&s.stats.TotalMessages),
		DeadLetters:   atomic.LoadInt64(&s.stats.DeadLetters),
		ProcessedMsgs: atomic.LoadInt64(&s.stats.ProcessedMsgs),
		Panics:        atomic.LoadInt64(&s.stats.Panics),
		StartTime:     s.stats.StartTime,
	}
}

// GetActor 获取 Actor
func (s *System) GetActor(name string) (*PID, bool) {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()

	if cell, ok := s.actors[name]; ok {
		return cell.pid, true
	}
	return nil, false
}

// ListActors 列出所有 Actor（包含控制 Actor 与 Arbiter）
func (s *System) ListActors() []*PID {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()

	pids := make([]*PID, 0, len(s.actors))
	for _, cell := range s.actors {
		pids = append(pids, cell.pid)
	}
	return pids
}

// Count 返回 Actor 数量（包含控制 Actor 与 Arbiter）
func (s *System) Count() int {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()
	return len(s.actors)
}

// IsRunning 检查系统是否运行中
func (s *System) IsRunning() bool {
	return s.isRunning.Load()
}

// ═══════════════════════════════════════════════════════════════════════════
// 控制 Actor
// ═══════════════════════════════════════════════════════════════════════════

// controlActor 进程级控制 Actor
type controlActor struct {
	system *System
}

// Receive 实现 Actor 接口
func (c *controlActor) Receive(ctx *Context, msg Message) {
	if m, ok := msg.(*SystemExit); ok {
		c.system.logger.Info("system exit requested", "code", m.Code, "sender", ctx.Sender)
		Respond(ctx, m, Unit{})
		c.system.requestExit(m.Code)
	}
}
