package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	log *slog.Logger
)

// Init 初始化全局日志：development 输出文本，其余环境输出 JSON 便于采集。
func Init(env string) {
	SetOutput(env, os.Stdout)
}

// SetOutput 与 Init 相同，但允许替换输出目标（测试中使用）。
func SetOutput(env string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(handler)
	mu.Lock()
	log = l
	mu.Unlock()
	slog.SetDefault(l)
}

// GetLogger 返回全局日志；未初始化时按 development 兜底。
func GetLogger() *slog.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		Init("development")
		return GetLogger()
	}
	return l
}

func Debug(msg string, args ...any) { GetLogger().Debug(msg, args...) }
func Info(msg string, args ...any)  { GetLogger().Info(msg, args...) }
func Warn(msg string, args ...any)  { GetLogger().Warn(msg, args...) }
func Error(msg string, args ...any) { GetLogger().Error(msg, args...) }

// Fatal 记录错误后退出进程，只用于启动阶段。
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// With 创建带附加字段的日志。
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// HTTPLog 记录一次 HTTP 请求，4xx 记 WARN，5xx 记 ERROR。
func HTTPLog(ctx context.Context, method, path string, status int, duration time.Duration, clientIP string) {
	l := FromContext(ctx)
	args := []any{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"client_ip", clientIP,
	}
	switch {
	case status >= 500:
		l.Error("http request", args...)
	case status >= 400:
		l.Warn("http request", args...)
	default:
		l.Info("http request", args...)
	}
}
