package actor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============== 测试消息类型 ==============

type GetCount struct {
	Returns[int]
}

func (m *GetCount) Kind() string { return "counter.get" }

type Increment struct {
	By int
}

func (m *Increment) Kind() string { return "counter.increment" }

type Worker struct {
	BaseActor
	count   int
	started atomic.Bool
}

func (w *Worker) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *Started:
		w.started.Store(true)
	case *Increment:
		w.count += m.By
	case *GetCount:
		Respond(ctx, m, w.count)
	}
}

type codeError struct {
	Code int
}

func (e *codeError) Error() string { return "code error" }

func callTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============== Result ==============

func TestResult(t *testing.T) {
	ok := Ok[int, string](7)
	assert.True(t, ok.IsOk())
	assert.False(t, ok.IsErr())
	assert.Equal(t, 7, ok.Value())
	assert.Equal(t, "", ok.Failure())
	assert.Equal(t, "Ok(7)", ok.String())

	bad := Err[int, string]("bad")
	assert.True(t, bad.IsErr())
	assert.Equal(t, 0, bad.Value())
	assert.Equal(t, "bad", bad.Failure())
	assert.Equal(t, "Err(bad)", bad.String())
}

// ============== Execute ==============

func TestExecuteReturnsOkUnchanged(t *testing.T) {
	exec := NewExecute(func() Result[int, string] {
		return Ok[int, string](42)
	})

	res := exec.Exec()
	require.True(t, res.IsOk())
	assert.Equal(t, 42, res.Value())
}

func TestExecuteReturnsErrUnchanged(t *testing.T) {
	want := &codeError{Code: 3}
	exec := NewExecute(func() Result[string, *codeError] {
		return Err[string](want)
	})

	res := exec.Exec()
	require.True(t, res.IsErr())
	assert.Same(t, want, res.Failure())
}

func TestExecuteFunc(t *testing.T) {
	okExec := NewExecuteFunc(func() (string, error) { return "done", nil })
	res := okExec.Exec()
	require.True(t, res.IsOk())
	assert.Equal(t, "done", res.Value())

	errExec := NewExecuteFunc(func() (string, error) { return "", assert.AnError })
	res = errExec.Exec()
	require.True(t, res.IsErr())
	assert.Equal(t, assert.AnError, res.Failure())
}

func TestExecuteSecondCallPanics(t *testing.T) {
	var calls atomic.Int32
	exec := NewExecute(func() Result[int, error] {
		calls.Add(1)
		return Ok[int, error](1)
	})

	exec.Exec()
	assert.PanicsWithValue(t, ErrAlreadyInvoked, func() { exec.Exec() })
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteNotRunUntilInvoked(t *testing.T) {
	var ran atomic.Bool
	exec := NewExecute(func() Result[int, error] {
		ran.Store(true)
		return Ok[int, error](1)
	})

	assert.Equal(t, "arbiter.execute", exec.Kind())
	assert.False(t, ran.Load())
}

func TestExecuteOnArbiter(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	exec := NewExecute(func() Result[int, error] {
		return Ok[int, error](42)
	})

	res, err := exec.CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, 42, res.Value())
}

func TestExecuteErrIsNotTransportError(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	exec := NewExecuteFunc(func() (int, error) { return 0, assert.AnError })

	res, err := exec.CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	require.True(t, res.IsErr())
	assert.Equal(t, assert.AnError, res.Failure())
}

func TestExecuteRunsOnArbiterGoroutine(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	// 同一个 Arbiter 上的任务串行执行，无需额外加锁
	counter := 0
	futures := make([]*Future[Result[int, error]], 0, 50)
	for i := 0; i < 50; i++ {
		exec := NewExecute(func() Result[int, error] {
			counter++
			return Ok[int, error](counter)
		})
		futures = append(futures, Send[Result[int, error]](sys.Arbiter().PID(), exec))
	}

	for i, f := range futures {
		res, err := f.AwaitTimeout(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Value())
	}
}

func TestExecuteSentTwiceRunsOnce(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	var calls atomic.Int32
	exec := NewExecute(func() Result[int, error] {
		calls.Add(1)
		return Ok[int, error](1)
	})

	_, err := exec.CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)

	_, err = exec.CallOn(callTimeout(t), sys.Arbiter().PID())
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrAlreadyInvoked)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteOnStoppedSystemNeverRuns(t *testing.T) {
	sys := NewSystem("test")
	pid := sys.Arbiter().PID()
	sys.Shutdown()

	var ran atomic.Bool
	exec := NewExecute(func() Result[int, error] {
		ran.Store(true)
		return Ok[int, error](1)
	})

	_, err := exec.CallOn(callTimeout(t), pid)
	assert.ErrorIs(t, err, ErrSystemStopped)
	assert.False(t, ran.Load())
}

func TestExecutePanicIsIsolated(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	arbiter := sys.Arbiter()

	boom := NewExecute(func() Result[int, error] {
		panic("boom")
	})
	_, err := boom.CallOn(callTimeout(t), arbiter.PID())

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.Equal(t, "arbiter.execute", perr.Kind)
	assert.Equal(t, arbiter.PID().ID, perr.Actor.ID)
	assert.NotEmpty(t, perr.Stack)

	// Arbiter 继续处理后续任务
	next := NewExecute(func() Result[int, error] {
		return Ok[int, error](2)
	})
	res, err := next.CallOn(callTimeout(t), arbiter.PID())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value())

	stats := arbiter.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), sys.Stats().Panics)
}

func TestExecutePanicWithErrorUnwraps(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	sentinel := errors.New("sentinel")
	exec := NewExecute(func() Result[int, error] {
		panic(sentinel)
	})

	_, err := exec.CallOn(callTimeout(t), sys.Arbiter().PID())
	assert.ErrorIs(t, err, sentinel)
}

// ============== StartActor ==============

func TestStartActorOnArbiter(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	arbiter := sys.Arbiter()

	var (
		calls  atomic.Int32
		self   *PID
		parent *PID
		hasCtx bool
	)
	start := NewStartActor(func(ctx *Context) *Worker {
		calls.Add(1)
		self = ctx.Self
		parent = ctx.Parent
		hasCtx = ctx.Context() != nil
		return &Worker{}
	})
	assert.Equal(t, "arbiter.start_actor", start.Kind())

	addr, err := start.CallOn(callTimeout(t), arbiter.PID())
	require.NoError(t, err)
	require.False(t, addr.IsZero())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, self.ID, addr.PID().ID)
	assert.Equal(t, arbiter.PID().ID, parent.ID)
	assert.True(t, hasCtx)

	_, ok := sys.GetActor(addr.PID().ID)
	assert.True(t, ok)

	// 新 Actor 是活的，可以收发消息
	addr.Tell(&Increment{By: 2})
	addr.Tell(&Increment{By: 3})
	n, err := Call[int](callTimeout(t), addr.PID(), &GetCount{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStartActorContextFollowsActor(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	var actorCtx context.Context
	addr, err := NewStartActor(func(ctx *Context) *Worker {
		actorCtx = ctx.Context()
		return &Worker{}
	}).CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	require.NotNil(t, actorCtx)

	// 停止新 Actor 只取消它自己的 context，Arbiter 继续运行
	sys.Stop(addr.PID())
	select {
	case <-actorCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor context not cancelled after stop")
	}

	res, err := NewExecute(func() Result[int, error] {
		return Ok[int, error](1)
	}).CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value())
}

func TestStartActorSecondStartPanics(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	var calls atomic.Int32
	start := NewStartActor(func(*Context) *Worker {
		calls.Add(1)
		return &Worker{}
	})

	_, err := start.CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)

	_, err = start.CallOn(callTimeout(t), sys.Arbiter().PID())
	assert.ErrorIs(t, err, ErrAlreadyInvoked)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartActorWithProps(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	first, err := NewStartActorWithProps(DefaultProps("worker"), func(*Context) *Worker {
		return &Worker{}
	}).CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	assert.Equal(t, "worker", first.PID().ID)

	// 名称冲突时追加后缀，不会返回已有的 Actor
	second, err := NewStartActorWithProps(DefaultProps("worker"), func(*Context) *Worker {
		return &Worker{}
	}).CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)
	assert.NotEqual(t, first.PID().ID, second.PID().ID)
	assert.Contains(t, second.PID().ID, "worker-")
}

func TestStartActorReceivesStarted(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	w := &Worker{}
	_, err := NewStartActor(func(*Context) *Worker { return w }).CallOn(callTimeout(t), sys.Arbiter().PID())
	require.NoError(t, err)

	require.Eventually(t, w.started.Load, time.Second, 5*time.Millisecond)
}

func TestStartActorFactoryPanic(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	before := sys.Count()
	_, err := NewStartActor(func(*Context) *Worker {
		panic("factory failed")
	}).CallOn(callTimeout(t), sys.Arbiter().PID())

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "arbiter.start_actor", perr.Kind)
	assert.Equal(t, before, sys.Count())
}

// ============== 消息与结果类型 ==============

type WrongReplier struct {
	BaseActor
}

func (w *WrongReplier) Receive(ctx *Context, msg Message) {
	if _, ok := msg.(*GetCount); ok {
		ctx.Reply("not an int")
	}
}

func TestCallTypedReply(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	pid := sys.Spawn(&Worker{}, "worker")
	pid.Tell(&Increment{By: 9})

	n, err := Call[int](callTimeout(t), pid, &GetCount{})
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestCallUnexpectedReply(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	pid := sys.Spawn(&WrongReplier{}, "wrong")

	_, err := Call[int](callTimeout(t), pid, &GetCount{})
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestCallNilPID(t *testing.T) {
	_, err := Call[int](context.Background(), nil, &GetCount{})
	assert.ErrorIs(t, err, ErrSystemStopped)
}

func TestCallUnknownActor(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	_, err := Call[int](callTimeout(t), &PID{ID: "nobody", system: sys}, &GetCount{})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestCallContextDeadline(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	// 不回复 GetCount
	pid := sys.Spawn(&CounterActor{}, "mute")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Call[int](ctx, pid, &GetCount{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFutureAwaitTimeout(t *testing.T) {
	sys := NewSystem("test")
	defer sys.Shutdown()

	pid := sys.Spawn(&CounterActor{}, "mute")

	_, err := Send[int](pid, &GetCount{}).AwaitTimeout(50 * time.Millisecond)
	var timeout *ResponseTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "mute", timeout.Target.ID)
}
