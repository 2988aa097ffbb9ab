package actor

import (
	"context"
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 消息与结果类型的静态绑定
// ═══════════════════════════════════════════════════════════════════════════

// Unit 无返回值消息的结果类型
type Unit = struct{}

// Request 声明了结果类型 R 的消息
//
// 每个消息类型通过嵌入 [Returns] 固定唯一的结果类型，绑定发生在类型声明处，
// 与具体实例无关：
//
//	type GetCount struct {
//	    actor.Returns[int]
//	}
//
//	func (m *GetCount) Kind() string { return "counter.get" }
//
//	n, err := actor.Call[int](ctx, pid, &GetCount{})
type Request[R any] interface {
	Message
	result(R)
}

// Returns 嵌入到消息结构体中以声明结果类型
type Returns[R any] struct{}

func (Returns[R]) result(R) {}

// failure 传输层错误，与结果值区分开
type failure struct {
	err error
}

// replyTo 一次性响应通道
type replyTo struct {
	ch  chan any
	ctx context.Context
}

func newReplyTo(ctx context.Context) *replyTo {
	return &replyTo{ch: make(chan any, 1), ctx: ctx}
}

// deliver 非阻塞写入，只有第一次写入生效；请求已取消时丢弃
func (r *replyTo) deliver(value any) bool {
	if r.ctx != nil && r.ctx.Err() != nil {
		return false
	}
	select {
	case r.ch <- value:
		return true
	default:
		return false
	}
}

func (r *replyTo) fail(err error) bool {
	return r.deliver(failure{err: err})
}

// Future 尚未到达的类型化响应
type Future[R any] struct {
	target *PID
	reply  *replyTo
}

// Send 发送请求并立即返回 Future
//
// R 必须与消息声明的结果类型一致，否则无法通过编译。
func Send[R any](pid *PID, msg Request[R]) *Future[R] {
	return send(context.Background(), pid, msg)
}

func send[R any](ctx context.Context, pid *PID, msg Request[R]) *Future[R] {
	f := &Future[R]{target: pid, reply: newReplyTo(ctx)}
	if pid == nil || pid.system == nil {
		f.reply.fail(ErrSystemStopped)
		return f
	}
	pid.system.post(envelope{
		target:  pid,
		message: msg,
		sentAt:  time.Now(),
		reply:   f.reply,
	})
	return f
}

// Await 等待响应，每个 Future 只应等待一次
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	var zero R
	select {
	case v := <-f.reply.ch:
		return resolve[R](v)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// AwaitTimeout 带超时的等待，超时返回 [*ResponseTimeout]
func (f *Future[R]) AwaitTimeout(timeout time.Duration) (R, error) {
	var zero R
	select {
	case v := <-f.reply.ch:
		return resolve[R](v)
	case <-time.After(timeout):
		return zero, &ResponseTimeout{Target: f.target, Timeout: timeout}
	}
}

// Call 发送请求并等待类型化响应
//
// 返回的 error 只表示投递或执行失败（系统停止、目标不存在、panic、超时），
// 结果值本身原样返回。
func Call[R any](ctx context.Context, pid *PID, msg Request[R]) (R, error) {
	return send(ctx, pid, msg).Await(ctx)
}

// Respond 以消息声明的结果类型回复
func Respond[R any](ctx *Context, _ Request[R], value R) bool {
	return ctx.Reply(value)
}

func resolve[R any](v any) (R, error) {
	var zero R
	if f, ok := v.(failure); ok {
		return zero, f.err
	}
	if v == nil {
		return zero, nil
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedReply, v, zero)
	}
	return r, nil
}
