// Package main 演示在多个 Arbiter 上分发任务并以指定状态码退出
//
// 流程：
//   - 按配置创建 Arbiter
//   - 在默认 Arbiter 上用 StartActor 启动汇总 Actor
//   - 把 Execute 任务轮流投递到各个 Arbiter
//   - 向控制 Actor 发送 SystemExit，进程以其状态码退出
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/lwmacct/251215-go-pkg-arbiter/pkg/actor"
	"github.com/lwmacct/251215-go-pkg-arbiter/pkg/config"
)

func main() {
	var exitCode int

	cmd := newCommand(os.Stdout, &exitCode)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "arbiterd:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newCommand(out io.Writer, exitCode *int) *cli.Command {
	return &cli.Command{
		Name:   "arbiterd",
		Usage:  "run deferred jobs on a set of arbiters, then exit with the given status",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON config file",
				Sources: cli.EnvVars("ARBITERD_CONFIG"),
			},
			&cli.IntFlag{
				Name:  "jobs",
				Usage: "number of jobs to distribute",
				Value: 16,
			},
			&cli.IntFlag{
				Name:  "exit-code",
				Usage: "status code carried by SystemExit",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "print runtime stats as YAML before exiting",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Int("jobs") < 0 {
				return errors.New("--jobs must not be negative")
			}

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			code, err := run(ctx, cfg, options{
				jobs:     cmd.Int("jobs"),
				exitCode: cmd.Int("exit-code"),
				stats:    cmd.Bool("stats"),
			}, out)
			if err != nil {
				return err
			}
			*exitCode = code
			return nil
		},
	}
}

type options struct {
	jobs     int
	exitCode int
	stats    bool
}

// run 执行全部任务后发送 SystemExit，返回 System.Run 的退出码
func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) (int, error) {
	logger := cfg.Logger(os.Stderr)
	sys := actor.NewSystemWithConfig(cfg.System.Name, cfg.SystemConfig(logger))

	arbiters := []*actor.Arbiter{sys.Arbiter()}
	for _, a := range cfg.Arbiters {
		arbiters = append(arbiters, sys.NewArbiterWithProps(a.ArbiterProps()))
	}

	sum, err := actor.NewStartActorWithProps(actor.DefaultProps("tally"), func(*actor.Context) *tally {
		return &tally{}
	}).CallOn(ctx, sys.Arbiter().PID())
	if err != nil {
		sys.Shutdown()
		return 0, fmt.Errorf("start tally: %w", err)
	}

	futures := make([]*actor.Future[actor.Result[int, error]], 0, opts.jobs)
	for i := range opts.jobs {
		target := arbiters[i%len(arbiters)]
		futures = append(futures, actor.Send[actor.Result[int, error]](target.PID(), job(i)))
	}

	var ok, failed int
	for i, f := range futures {
		res, err := f.Await(ctx)
		if err != nil {
			sys.Shutdown()
			return 0, fmt.Errorf("job %d: %w", i, err)
		}
		if res.IsErr() {
			failed++
			logger.Warn("job failed", "job", i, "error", res.Failure())
			continue
		}
		ok++
		sum.Tell(&record{n: res.Value()})
	}

	total, err := actor.Call[int](ctx, sum.PID(), &totalRequest{})
	if err != nil {
		sys.Shutdown()
		return 0, fmt.Errorf("read total: %w", err)
	}
	fmt.Fprintf(out, "jobs=%d ok=%d failed=%d total=%d\n", opts.jobs, ok, failed, total)

	if opts.stats {
		if err := writeStats(out, sys, arbiters); err != nil {
			sys.Shutdown()
			return 0, err
		}
	}

	sys.ControlPID().Tell(&actor.SystemExit{Code: opts.exitCode})
	return sys.Run(), nil
}

// job 第 i 个任务：返回 i 的平方，每 7 个中有一个被拒绝
func job(i int) *actor.Execute[int, error] {
	return actor.NewExecuteFunc(func() (int, error) {
		if i%7 == 6 {
			return 0, fmt.Errorf("job %d rejected", i)
		}
		return i * i, nil
	})
}

type statsReport struct {
	System   *actor.SystemStats            `yaml:"system"`
	Arbiters map[string]*actor.ActorStats `yaml:"arbiters"`
}

func writeStats(out io.Writer, sys *actor.System, arbiters []*actor.Arbiter) error {
	report := statsReport{
		System:   sys.Stats(),
		Arbiters: make(map[string]*actor.ActorStats, len(arbiters)),
	}
	for _, a := range arbiters {
		report.Arbiters[a.Name()] = a.Stats()
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return enc.Close()
}

// ═══════════════════════════════════════════════════════════════════════════
// 汇总 Actor
// ═══════════════════════════════════════════════════════════════════════════

type record struct {
	n int
}

func (m *record) Kind() string { return "tally.record" }

type totalRequest struct {
	actor.Returns[int]
}

func (m *totalRequest) Kind() string { return "tally.total" }

type tally struct {
	actor.BaseActor
	sum int
}

func (t *tally) Receive(ctx *actor.Context, msg actor.Message) {
	switch m := msg.(type) {
	case *record:
		t.sum += m.n
	case *totalRequest:
		actor.Respond(ctx, m, t.sum)
	}
}
