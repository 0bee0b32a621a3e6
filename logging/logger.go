// Package logging 提供了统一的结构化日志（slog）封装，支持OpenTelemetry追踪上下文注入与运行时调整级别。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"go.opentelemetry.io/otel/trace" // OpenTelemetry追踪
)

var (
	// defaultLogger 是全局默认的Logger实例。
	defaultLogger *Logger
	mu            sync.RWMutex
	// level 全局共享的动态日志级别，SetLevel 修改后所有 Logger 立即生效。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string `mapstructure:"service"     toml:"service"`
	Module     string `mapstructure:"module"      toml:"module"`
	Level      string `mapstructure:"level"       toml:"level"  validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`        // 日志文件路径，为空则只输出到 stdout
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`    // 每个日志文件最大尺寸 (MB)
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"` // 保留旧日志文件的最大个数
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`     // 保留旧日志文件的最大天数
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
	Stdout     bool   `mapstructure:"stdout"      toml:"stdout"` // 配置了文件时是否同时输出到 stdout
}

// Logger 结构体封装了原生的 `*slog.Logger`，并添加了服务名和模块名，方便在日志中区分来源。
type Logger struct {
	*slog.Logger
	Service string // 服务名称
	Module  string // 模块名称
}

// TraceHandler 是一个 `slog.Handler` 装饰器，从 `context.Context` 中提取并注入 `trace_id` 和 `span_id`。
type TraceHandler struct {
	slog.Handler
}

type requestIDKey struct{}

// WithRequestID 把请求 ID 放进 ctx，之后带 ctx 的日志都会带上 request_id。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID 取出 WithRequestID 设置的值，没有时为空串。
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Handle 在处理日志记录之前注入当前 Span 的追踪标识与请求 ID。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器包裹。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 保持装饰器包裹。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将字符串解析为 slog 级别，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 运行时修改全局日志级别，供配置热更新调用。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// NewFromConfig 创建一个新的Logger实例。
// 配置了 File 时使用 lumberjack 进行日志切割。
func NewFromConfig(cfg Config) *Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		out = fileWriter
		if cfg.Stdout {
			out = io.MultiWriter(fileWriter, os.Stdout)
		}
	}
	return NewWithWriter(cfg, out)
}

// NewWithWriter 输出到指定 io.Writer，测试中用于捕获日志。
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	return newLogger(cfg, jsonHandler(w))
}

func jsonHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "timestamp"
			}
			return a
		},
	})
}

func newLogger(cfg Config, handler slog.Handler) *Logger {
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)
	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// NewLogger 是创建一个带有简单参数的 logger 的兼容别名。
func NewLogger(service, module string, level ...string) *Logger {
	lvl := "info"
	if len(level) > 0 {
		lvl = level[0]
	}
	return NewFromConfig(Config{
		Service: service,
		Module:  module,
		Level:   lvl,
	})
}

// SetDefault 替换全局默认日志记录器，同时设置 slog 默认 Logger。
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l.Logger)
}

// InitLogger 初始化全局默认日志记录器
func InitLogger(cfg Config) *Logger {
	l := NewFromConfig(cfg)
	SetDefault(l)
	return l
}

// Default 返回默认日志记录器实例，未初始化时创建一个输出到 stdout 的实例。
func Default() *Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewFromConfig(Config{Service: "default", Module: "default"})
	}
	return defaultLogger
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 记录操作耗时，返回的函数应在操作结束时调用。
func (l *Logger) LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args[:len(args):len(args)], "duration", time.Since(start))
		l.InfoContext(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}

// LogDuration 使用默认日志记录器记录操作耗时。
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	return Default().LogDuration(ctx, operation, args...)
}
