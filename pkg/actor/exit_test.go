package actor

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWithTimeout 在后台调用 Run，超时视为失败
func runWithTimeout(t *testing.T, sys *System) int {
	t.Helper()
	done := make(chan int, 1)
	go func() { done <- sys.Run() }()

	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return 0
	}
}

func TestSystemExitCodes(t *testing.T) {
	for _, code := range []int{0, 1, -1, 137} {
		t.Run(fmt.Sprintf("code=%d", code), func(t *testing.T) {
			sys := NewSystem("test")
			a := sys.NewArbiter("worker")

			sys.ControlPID().Tell(&SystemExit{Code: code})

			assert.Equal(t, code, runWithTimeout(t, sys))
			assert.False(t, sys.IsRunning())

			// 所有 Arbiter 都已停止
			for _, done := range []<-chan struct{}{a.Done(), sys.Arbiter().Done()} {
				select {
				case <-done:
				default:
					t.Fatal("arbiter still running after SystemExit")
				}
			}
		})
	}
}

func TestSystemExitCall(t *testing.T) {
	sys := NewSystem("test")

	_, err := Call[Unit](callTimeout(t), sys.ControlPID(), &SystemExit{Code: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, runWithTimeout(t, sys))
}

func TestSystemExitFirstWins(t *testing.T) {
	sys := NewSystem("test")

	sys.ControlPID().Tell(&SystemExit{Code: 3})
	sys.ControlPID().Tell(&SystemExit{Code: 4})

	assert.Equal(t, 3, runWithTimeout(t, sys))
}

func TestSystemExitFailsPendingWork(t *testing.T) {
	sys := NewSystem("test")

	release := make(chan struct{})
	started := make(chan struct{})
	block := NewExecute(func() Result[int, error] {
		close(started)
		<-release
		return Ok[int, error](1)
	})
	Send[Result[int, error]](sys.Arbiter().PID(), block)
	<-started

	pending := Send[Result[int, error]](sys.Arbiter().PID(), NewExecute(func() Result[int, error] {
		return Ok[int, error](2)
	}))
	require.Eventually(t, func() bool { return queued(sys, DefaultArbiterName) == 1 }, time.Second, 5*time.Millisecond)

	sys.actorsMu.RLock()
	arbiterCtx := sys.actors[DefaultArbiterName].ctx
	sys.actorsMu.RUnlock()

	sys.ControlPID().Tell(&SystemExit{Code: 9})
	<-arbiterCtx.Done()
	close(release)

	assert.Equal(t, 9, runWithTimeout(t, sys))

	_, err := pending.AwaitTimeout(time.Second)
	assert.ErrorIs(t, err, ErrSystemStopped)
}

func TestShutdownWakesRun(t *testing.T) {
	sys := NewSystem("test")
	sys.Shutdown()

	assert.Equal(t, 0, runWithTimeout(t, sys))

	// SystemExit 在关闭之后不再改变退出码
	sys.ControlPID().Tell(&SystemExit{Code: 2})
	assert.Equal(t, 0, sys.Run())
}

func TestRunAndExitUsesExitFunc(t *testing.T) {
	got := make(chan int, 1)
	config := DefaultSystemConfig()
	config.ExitFunc = func(code int) { got <- code }

	sys := NewSystemWithConfig("test", config)
	sys.ControlPID().Tell(&SystemExit{Code: 42})

	go sys.RunAndExit()

	select {
	case code := <-got:
		assert.Equal(t, 42, code)
	case <-time.After(5 * time.Second):
		t.Fatal("ExitFunc was not called")
	}
}

const exitCodeEnv = "ACTOR_TEST_EXIT_CODE"

// TestSystemExitProcessStatus 在子进程中运行 RunAndExit，检查真实的进程退出状态
func TestSystemExitProcessStatus(t *testing.T) {
	if v := os.Getenv(exitCodeEnv); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			os.Exit(100)
		}
		// 测试中调用 os.Exit(0) 会被判为失败，状态码 0 直接返回
		config := DefaultSystemConfig()
		config.ExitFunc = func(c int) {
			if c != 0 {
				os.Exit(c)
			}
		}
		sys := NewSystemWithConfig("child", config)
		sys.ControlPID().Tell(&SystemExit{Code: code})
		sys.RunAndExit()
		return
	}

	if runtime.GOOS == "windows" {
		t.Skip("exit status truncation differs on windows")
	}

	for _, code := range []int{0, 1, -1, 137} {
		t.Run(fmt.Sprintf("code=%d", code), func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestSystemExitProcessStatus$")
			cmd.Env = append(os.Environ(), exitCodeEnv+"="+strconv.Itoa(code))

			err := cmd.Run()
			if code == 0 {
				require.NoError(t, err)
				return
			}

			var exitErr *exec.ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, code&0xff, exitErr.ExitCode())
		})
	}
}
