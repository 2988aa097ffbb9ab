// Package config 加载 Actor 系统与 Arbiter 的配置
//
// 配置按以下顺序合并，后者覆盖前者：
//
//  1. [Default] 的默认值
//  2. YAML 或 JSON 配置文件（按扩展名识别）
//
// 示例：
//
//	system:
//	  name: arbiterd
//	  mailbox_size: 10000
//	  shutdown_timeout: 10s
//	  log_level: debug
//	arbiters:
//	  - name: io
//	    mailbox_size: 256
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/lwmacct/251215-go-pkg-arbiter/pkg/actor"
)

// Format 配置格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrUnknownFormat 无法识别的配置格式
	ErrUnknownFormat = errors.New("unknown config format")
	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("invalid config")
)

// Config 根配置
type Config struct {
	System   SystemSection    `koanf:"system"`
	Arbiters []ArbiterSection `koanf:"arbiters"`
}

// SystemSection Actor 系统配置
type SystemSection struct {
	Name                    string        `koanf:"name"`
	MailboxSize             int           `koanf:"mailbox_size"`
	DeadLetterSize          int           `koanf:"dead_letter_size"`
	DefaultActorMailboxSize int           `koanf:"default_actor_mailbox_size"`
	DeadLetterLogging       bool          `koanf:"dead_letter_logging"`
	ShutdownTimeout         time.Duration `koanf:"shutdown_timeout"`
	LogLevel                string        `koanf:"log_level"`
	LogFormat               string        `koanf:"log_format"`
}

// ArbiterSection 额外创建的 Arbiter
type ArbiterSection struct {
	Name        string `koanf:"name"`
	MailboxSize int    `koanf:"mailbox_size"`
}

// Default 默认配置，与 [actor.DefaultSystemConfig] 一致
func Default() *Config {
	sc := actor.DefaultSystemConfig()
	return &Config{
		System: SystemSection{
			Name:                    "arbiterd",
			MailboxSize:             sc.MailboxSize,
			DeadLetterSize:          sc.DeadLetterSize,
			DefaultActorMailboxSize: sc.DefaultActorMailboxSize,
			DeadLetterLogging:       sc.EnableDeadLetterLogging,
			ShutdownTimeout:         sc.ShutdownTimeout,
			LogLevel:                "info",
			LogFormat:               "text",
		},
	}
}

// FormatFromPath 根据扩展名判断格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Load 从文件加载配置，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return load(file.Provider(path), format)
}

// LoadBytes 从内存数据加载配置
func LoadBytes(data []byte, format Format) (*Config, error) {
	return load(rawbytes.Provider(data), format)
}

func load(p koanf.Provider, format Format) (*Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(p, parser); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.System.MailboxSize <= 0 {
		errs = append(errs, errors.New("system.mailbox_size must be positive"))
	}
	if c.System.DeadLetterSize <= 0 {
		errs = append(errs, errors.New("system.dead_letter_size must be positive"))
	}
	if c.System.DefaultActorMailboxSize <= 0 {
		errs = append(errs, errors.New("system.default_actor_mailbox_size must be positive"))
	}
	if c.System.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("system.shutdown_timeout must be positive"))
	}
	if _, err := parseLevel(c.System.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.System.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("system.log_format must be text or json, got %q", c.System.LogFormat))
	}

	seen := make(map[string]bool, len(c.Arbiters))
	for i, a := range c.Arbiters {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("arbiters[%d].name is required", i))
		case a.Name == actor.ControlActorName || a.Name == actor.DefaultArbiterName:
			errs = append(errs, fmt.Errorf("arbiters[%d].name %q is reserved", i, a.Name))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("arbiters[%d].name %q is duplicated", i, a.Name))
		}
		seen[a.Name] = true

		if a.MailboxSize < 0 {
			errs = append(errs, fmt.Errorf("arbiters[%d].mailbox_size must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SystemConfig 转换为 [actor.SystemConfig]
func (c *Config) SystemConfig(logger *slog.Logger) *actor.SystemConfig {
	sc := actor.DefaultSystemConfig()
	sc.MailboxSize = c.System.MailboxSize
	sc.DeadLetterSize = c.System.DeadLetterSize
	sc.DefaultActorMailboxSize = c.System.DefaultActorMailboxSize
	sc.EnableDeadLetterLogging = c.System.DeadLetterLogging
	sc.ShutdownTimeout = c.System.ShutdownTimeout
	sc.Logger = logger
	return sc
}

// ArbiterProps 转换为创建 Arbiter 用的属性
func (a ArbiterSection) ArbiterProps() *actor.Props {
	return actor.DefaultProps(a.Name).WithMailboxSize(a.MailboxSize)
}

// Logger 按配置的级别与格式创建日志器
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.System.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.System.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("system.log_level: %w", err)
	}
	return level, nil
}
