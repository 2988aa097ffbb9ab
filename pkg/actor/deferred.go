package actor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Deferred 类型擦除的一次性延迟任务
//
// Arbiter 的消息循环对每个出队的 Deferred 调用且只调用一次 Invoke，
// 返回值作为对该消息的响应。Invoke 不捕获 panic，隔离策略由调用方决定。
type Deferred interface {
	Message
	// Invoke 在 host（承载任务的 Arbiter 上下文）上执行任务
	Invoke(host *Context) any
}

// ═══════════════════════════════════════════════════════════════════════════
// Result
// ═══════════════════════════════════════════════════════════════════════════

// Result 成功值 I 或失败值 E 二选一
type Result[I, E any] struct {
	value I
	err   E
	ok    bool
}

// Ok 构造成功结果
func Ok[I, E any](v I) Result[I, E] {
	return Result[I, E]{value: v, ok: true}
}

// Err 构造失败结果
func Err[I, E any](e E) Result[I, E] {
	return Result[I, E]{err: e}
}

// IsOk 是否成功
func (r Result[I, E]) IsOk() bool { return r.ok }

// IsErr 是否失败
func (r Result[I, E]) IsErr() bool { return !r.ok }

// Value 成功值，失败时为零值
func (r Result[I, E]) Value() I { return r.value }

// Failure 失败值，成功时为零值
func (r Result[I, E]) Failure() E { return r.err }

// String 返回 Ok(v) 或 Err(e)
func (r Result[I, E]) String() string {
	if r.ok {
		return fmt.Sprintf("Ok(%v)", r.value)
	}
	return fmt.Sprintf("Err(%v)", r.err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Execute: 在 Arbiter 上执行函数
// ═══════════════════════════════════════════════════════════════════════════

// Execute 在目标 Arbiter 的 goroutine 上执行一次函数
//
// 闭包会在其他 goroutine 上运行，不要捕获未加保护的共享可变状态；
// 也不要在其中做慢 I/O，否则会阻塞整个 Arbiter 的队列。
//
//	exec := actor.NewExecute(func() actor.Result[int, error] {
//	    return actor.Ok[int, error](42)
//	})
//	res, err := exec.CallOn(ctx, arbiter.PID())
type Execute[I, E any] struct {
	Returns[Result[I, E]]
	fn atomic.Pointer[func() Result[I, E]]
}

// NewExecute 包装一次性函数，此时不会执行
func NewExecute[I, E any](f func() Result[I, E]) *Execute[I, E] {
	e := &Execute[I, E]{}
	e.fn.Store(&f)
	return e
}

// NewExecuteFunc 包装 Go 风格的 (value, error) 函数
// 非 nil error 变为 Err，否则为 Ok
func NewExecuteFunc[I any](f func() (I, error)) *Execute[I, error] {
	return NewExecute(func() Result[I, error] {
		v, err := f()
		if err != nil {
			return Err[I, error](err)
		}
		return Ok[I, error](v)
	})
}

// Kind 实现 Message 接口
func (e *Execute[I, E]) Kind() string { return "arbiter.execute" }

// Exec 执行被包装的函数并原样返回其结果
// 第二次调用 panic(ErrAlreadyInvoked)
func (e *Execute[I, E]) Exec() Result[I, E] {
	fp := e.fn.Swap(nil)
	if fp == nil {
		panic(ErrAlreadyInvoked)
	}
	return (*fp)()
}

// Invoke 实现 Deferred 接口
func (e *Execute[I, E]) Invoke(_ *Context) any {
	return e.Exec()
}

// CallOn 投递到 pid 指向的 Arbiter 并等待结果
func (e *Execute[I, E]) CallOn(ctx context.Context, pid *PID) (Result[I, E], error) {
	return Call[Result[I, E]](ctx, pid, e)
}

// ═══════════════════════════════════════════════════════════════════════════
// StartActor: 在 Arbiter 上构造 Actor
// ═══════════════════════════════════════════════════════════════════════════

// StartActor 在目标 Arbiter 的 goroutine 上构造 Actor
//
// 工厂函数拿到的是新 Actor 自己的 Context（Self 为新地址，Parent 为 Arbiter），
// 其 Context() 在新 Actor 停止时取消。
// 构造返回前新 Actor 尚未注册，不要在工厂中给 Self 发消息。
type StartActor[A Actor] struct {
	Returns[Addr[A]]
	props   Props
	factory atomic.Pointer[func(ctx *Context) A]
}

// NewStartActor 包装一次性工厂函数，此时不会执行
func NewStartActor[A Actor](factory func(ctx *Context) A) *StartActor[A] {
	return NewStartActorWithProps(nil, factory)
}

// NewStartActorWithProps 指定新 Actor 的属性
// Name 已被占用时会追加随机后缀
func NewStartActorWithProps[A Actor](props *Props, factory func(ctx *Context) A) *StartActor[A] {
	s := &StartActor[A]{}
	if props != nil {
		s.props = *props
	}
	s.factory.Store(&factory)
	return s
}

// Kind 实现 Message 接口
func (s *StartActor[A]) Kind() string { return "arbiter.start_actor" }

// Start 调用工厂并在 host 下注册新 Actor
// 第二次调用 panic(ErrAlreadyInvoked)
func (s *StartActor[A]) Start(host *Context) Addr[A] {
	fp := s.factory.Swap(nil)
	if fp == nil {
		panic(ErrAlreadyInvoked)
	}

	name := s.props.Name
	if name == "" {
		name = "actor-" + uuid.NewString()
	}
	pid := &PID{ID: name, system: host.system}

	// 新 Actor 的 context 在构造前分配，随 Actor 停止而取消
	cctx, cancel := context.WithCancel(host.ctx)
	registered := false
	defer func() {
		if !registered {
			cancel()
		}
	}()

	a := (*fp)(&Context{
		Self:   pid,
		Parent: host.Self,
		system: host.system,
		ctx:    cctx,
	})

	props := s.props
	registered = true
	return Addr[A]{pid: host.system.register(pid, a, &props, host.Self, &cellScope{ctx: cctx, cancel: cancel})}
}

// Invoke 实现 Deferred 接口
func (s *StartActor[A]) Invoke(host *Context) any {
	return s.Start(host)
}

// CallOn 投递到 pid 指向的 Arbiter 并等待新 Actor 的地址
func (s *StartActor[A]) CallOn(ctx context.Context, pid *PID) (Addr[A], error) {
	return Call[Addr[A]](ctx, pid, s)
}
