package actor

import (
	"context"
	"fmt"
	"time"
)

// Message Actor 消息接口
// 所有经过邮箱传递的消息都必须实现此接口
type Message interface {
	// Kind 返回消息类型标识，用于路由和监控
	Kind() string
}

// PID (Process ID) Actor 进程标识符
// 是 Actor 与 Arbiter 的唯一寻址方式
type PID struct {
	// ID Actor 唯一标识（本地）
	ID string
	// Address 网络地址，本地 Actor 为空
	Address string
	// system 所属的 Actor 系统（内部使用）
	system *System
}

// String 返回 PID 的字符串表示
func (p *PID) String() string {
	if p == nil {
		return "<nil>"
	}
	if p.Address != "" {
		return fmt.Sprintf("%s@%s", p.ID, p.Address)
	}
	return p.ID
}

// Tell 发送消息（fire-and-forget）
func (p *PID) Tell(msg Message) {
	if p != nil && p.system != nil {
		p.system.Send(p, msg)
	}
}

// TrySend 尝试发送消息（非阻塞）
// 如果邮箱已满，返回 false
func (p *PID) TrySend(msg Message) bool {
	if p == nil || p.system == nil {
		return false
	}
	return p.system.TrySend(p, msg)
}

// Request 发送请求并等待响应（无类型版本）
// 需要静态类型的响应时使用 [Call]
func (p *PID) Request(msg Message, timeout time.Duration) (any, error) {
	if p == nil || p.system == nil {
		return nil, ErrSystemStopped
	}
	return p.system.Request(p, msg, timeout)
}

// Actor Actor 接口
type Actor interface {
	// Receive 处理接收到的消息
	Receive(ctx *Context, msg Message)
}

// ActorFunc 函数式 Actor，便于快速创建简单 Actor
type ActorFunc func(ctx *Context, msg Message)

// Receive 实现 Actor 接口
func (f ActorFunc) Receive(ctx *Context, msg Message) {
	f(ctx, msg)
}

// BaseActor 基础 Actor 实现，提供默认的空实现，方便嵌入
type BaseActor struct{}

// Receive 默认实现，不处理任何消息
func (b *BaseActor) Receive(_ *Context, _ Message) {}

// Context Actor 执行上下文
// 每条消息处理时新建，不要在 Receive 之外持有
type Context struct {
	// Self 当前 Actor 的 PID
	Self *PID
	// Sender 消息发送者的 PID（如果有）
	Sender *PID
	// Parent 父 Actor 的 PID（如果有）
	Parent *PID

	system  *System
	ctx     context.Context
	message Message
	reply   *replyTo
}

// Reply 回复当前消息
// Request/Call 模式下写入等待方的响应通道，否则以消息形式发回 Sender
func (c *Context) Reply(value any) bool {
	if c.reply != nil {
		return c.reply.deliver(value)
	}
	if c.Sender != nil {
		if msg, ok := value.(Message); ok {
			c.system.SendWithSender(c.Sender, msg, c.Self)
			return true
		}
	}
	return false
}

// Forward 转发当前消息到另一个 Actor，保留原始发送者和响应通道
func (c *Context) Forward(target *PID) {
	if c.message == nil {
		return
	}
	c.system.post(envelope{
		target:  target,
		sender:  c.Sender,
		message: c.message,
		sentAt:  time.Now(),
		reply:   c.reply,
	})
}

// Spawn 创建子 Actor
func (c *Context) Spawn(actor Actor, name string) *PID {
	return c.system.spawn(actor, name, c.Self)
}

// SpawnWithProps 使用属性创建子 Actor
func (c *Context) SpawnWithProps(actor Actor, props *Props) *PID {
	return c.system.spawnWithProps(actor, props, c.Self)
}

// Stop 停止指定 Actor
func (c *Context) Stop(pid *PID) {
	c.system.Stop(pid)
}

// StopSelf 停止当前 Actor
func (c *Context) StopSelf() {
	c.system.Stop(c.Self)
}

// Watch 监控另一个 Actor，被监控者终止时收到 [Terminated]
func (c *Context) Watch(pid *PID) {
	c.system.Send(pid, &Watch{Watcher: c.Self})
}

// Unwatch 取消监控
func (c *Context) Unwatch(pid *PID) {
	c.system.Send(pid, &Unwatch{Watcher: c.Self})
}

// Context 获取 Go context，Actor 停止时取消
func (c *Context) Context() context.Context {
	return c.ctx
}

// Message 获取当前正在处理的消息
func (c *Context) Message() Message {
	return c.message
}

// System 获取 Actor 系统引用
func (c *Context) System() *System {
	return c.system
}

// Props Actor 属性配置
type Props struct {
	// Name Actor 名称，为空时自动生成
	Name string
	// MailboxSize 邮箱大小
	MailboxSize int
	// SupervisorStrategy 监督策略
	SupervisorStrategy SupervisorStrategy
}

// DefaultProps 默认属性
func DefaultProps(name string) *Props {
	return &Props{
		Name:        name,
		MailboxSize: 100,
	}
}

// WithMailboxSize 设置邮箱大小
func (p *Props) WithMailboxSize(size int) *Props {
	p.MailboxSize = size
	return p
}

// WithSupervisor 设置监督策略
func (p *Props) WithSupervisor(strategy SupervisorStrategy) *Props {
	p.SupervisorStrategy = strategy
	return p
}

// Addr 带类型的 Actor 地址
// 由 [StartActor] 产生，记住了被构造 Actor 的静态类型
type Addr[A Actor] struct {
	pid *PID
}

// PID 返回底层的无类型地址
func (a Addr[A]) PID() *PID {
	return a.pid
}

// Tell 发送消息（fire-and-forget）
func (a Addr[A]) Tell(msg Message) {
	if a.pid != nil {
		a.pid.Tell(msg)
	}
}

// IsZero 地址是否为空
func (a Addr[A]) IsZero() bool {
	return a.pid == nil
}

// String 返回地址的字符串表示
func (a Addr[A]) String() string {
	return a.pid.String()
}
