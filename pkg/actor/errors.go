package actor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSystemStopped 系统已关闭，消息无法投递
	ErrSystemStopped = errors.New("actor system is not running")
	// ErrActorNotFound 目标 Actor 不存在
	ErrActorNotFound = errors.New("actor not found")
	// ErrArbiterStopped 目标 Arbiter 在处理请求前已停止
	ErrArbiterStopped = errors.New("arbiter stopped before handling the request")
	// ErrAlreadyInvoked 延迟任务已被调用过
	ErrAlreadyInvoked = errors.New("deferred work already invoked")
	// ErrUnexpectedReply 响应类型与消息声明的结果类型不一致
	ErrUnexpectedReply = errors.New("unexpected reply type")
)

// ResponseTimeout 响应超时错误
type ResponseTimeout struct {
	Target  *PID
	Timeout time.Duration
}

// Kind 实现 Message 接口
func (r *ResponseTimeout) Kind() string { return "system.response_timeout" }

// Error 实现 error 接口
func (r *ResponseTimeout) Error() string {
	return fmt.Sprintf("request to %s timed out after %v", r.Target, r.Timeout)
}

// PanicError 消息处理过程中发生 panic
// 由消息循环捕获后交给等待响应的调用方
type PanicError struct {
	Actor *PID
	Kind  string
	Value any
	Stack []byte
}

// Error 实现 error 接口
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s while handling %s: %v", e.Actor, e.Kind, e.Value)
}

// Unwrap 当 panic 值本身是 error 时返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
