// Package actor 提供 Arbiter 执行上下文、延迟任务与控制消息
//
// 任意代码都可以把一段工作交给指定的执行上下文（Arbiter）稍后执行：
// 构造一个新 Actor，或运行一个可能失败的函数。任务作为普通消息穿过
// 类型擦除的邮箱，发送方仍然拿到静态类型的结果。
//
// # 核心组件
//
// [System] 管理所有 Actor 的生命周期，创建时同时启动控制 Actor 和默认 Arbiter：
//
//	sys := actor.NewSystem("my-system")
//	defer sys.Shutdown()
//
// [Arbiter] 是一个执行上下文：一个 goroutine，一个串行队列。
// [System.NewArbiter] 创建更多 Arbiter。
//
// # 延迟任务
//
// [Execute] 包装一次性函数，结果为 [Result]：
//
//	exec := actor.NewExecuteFunc(func() (int, error) { return 42, nil })
//	res, err := exec.CallOn(ctx, sys.Arbiter().PID())
//
// [StartActor] 包装一次性 Actor 工厂，结果为带类型的地址 [Addr]：
//
//	start := actor.NewStartActor(func(ctx *actor.Context) *Worker { return &Worker{} })
//	addr, err := start.CallOn(ctx, sys.Arbiter().PID())
//
// 两者都只能调用一次，第二次调用 panic(ErrAlreadyInvoked)。
// 未投递或被丢弃的任务不会执行。
//
// # 消息与结果类型
//
// 需要响应的消息嵌入 [Returns] 声明唯一的结果类型，[Call]、[Send]、[Respond]
// 在编译期检查调用方给出的结果类型与声明一致。
//
// # 控制消息
//
// [SystemExit] 发给 [System.ControlPID]，关闭整个系统，[System.Run] 返回其状态码。
// [StopArbiter] 只停止接收它的那个 Arbiter。两者都是 fire-and-forget。
//
// # 失败隔离
//
// 任务中的 panic 不在任务内部捕获，由消息循环捕获：当前消息失败，
// 等待方收到 [*PanicError]，随后由监督策略决定 Actor 的去留。
// Arbiter 默认 [ResumingSupervisorStrategy]，继续处理后续消息。
package actor
