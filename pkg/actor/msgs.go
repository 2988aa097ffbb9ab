package actor

// ============== 控制信号 ==============

// SystemExit 停止整个系统
//
// 投递给控制 Actor（[System.ControlPID]）后，系统有序关闭所有 Arbiter 与 Actor，
// [System.Run] 返回 Code，[System.RunAndExit] 以 Code 作为进程退出码。
// 发送方不等待关闭完成。
type SystemExit struct {
	Returns[Unit]
	Code int
}

// Kind 实现 Message 接口
func (m *SystemExit) Kind() string { return "system.exit" }

// StopArbiter 停止单个 Arbiter
//
// 只终止接收它的 Arbiter 的消息循环（以及该 Arbiter 启动的 Actor），
// 其他 Arbiter 不受影响。
type StopArbiter struct {
	Returns[Unit]
	Code int
}

// Kind 实现 Message 接口
func (m *StopArbiter) Kind() string { return "arbiter.stop" }

// ============== 生命周期消息 ==============

// Started Actor 启动完成消息
type Started struct{}

// Kind 实现 Message 接口
func (s *Started) Kind() string { return "system.started" }

// Stopping Actor 正在停止消息
type Stopping struct{}

// Kind 实现 Message 接口
func (s *Stopping) Kind() string { return "system.stopping" }

// Stopped Actor 已停止消息，消息循环退出后在同一 goroutine 上投递
type Stopped struct{}

// Kind 实现 Message 接口
func (s *Stopped) Kind() string { return "system.stopped" }

// Restarting Actor 正在重启消息
type Restarting struct{}

// Kind 实现 Message 接口
func (r *Restarting) Kind() string { return "system.restarting" }

// PoisonPill 毒丸消息，优雅停止 Actor
type PoisonPill struct{}

// Kind 实现 Message 接口
func (p *PoisonPill) Kind() string { return "system.poison_pill" }

// Watch 监控请求
type Watch struct {
	Watcher *PID
}

// Kind 实现 Message 接口
func (w *Watch) Kind() string { return "system.watch" }

// Unwatch 取消监控
type Unwatch struct {
	Watcher *PID
}

// Kind 实现 Message 接口
func (u *Unwatch) Kind() string { return "system.unwatch" }

// Terminated Actor 终止通知
type Terminated struct {
	Who *PID
}

// Kind 实现 Message 接口
func (t *Terminated) Kind() string { return "system.terminated" }
