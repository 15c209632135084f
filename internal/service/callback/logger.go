// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"

	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
)

// maxLogValueLen 单个字符串字段的最大日志长度
const maxLogValueLen = 200

// Logger 日志回调处理器
// 实现 callbacks.Handler 接口，记录 Eino 组件（ChatModel、Embedder、Parser 等）的执行事件
type Logger struct {
	log         *logger.Logger
	enableDebug bool
}

// NewLogger 创建日志回调处理器
func NewLogger(log *logger.Logger, enableDebug bool) *Logger {
	if log == nil {
		log = logger.NewNop()
	}
	return &Logger{log: log.With("component", "eino"), enableDebug: enableDebug}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.enableDebug {
		l.log.Debug("component start", runInfoFields(info, "input", truncate(input))...)
	}
	return ctx
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if l.enableDebug {
		l.log.Debug("component end", runInfoFields(info, "output", truncate(output))...)
	}
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.log.Warn("component error", runInfoFields(info, "error", err)...)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	if l.enableDebug {
		l.log.Debug("component stream start", runInfoFields(info)...)
	}
	return ctx
}

// OnEndWithStreamOutput 流式输出结束时调用
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	if l.enableDebug {
		l.log.Debug("component stream end", runInfoFields(info)...)
	}
	return ctx
}

func runInfoFields(info *callbacks.RunInfo, extra ...interface{}) []interface{} {
	fields := make([]interface{}, 0, 6+len(extra))
	if info != nil {
		fields = append(fields, "name", info.Name, "type", info.Type, "component", info.Component)
	}
	return append(fields, extra...)
}

// truncate 截断过长的字符串，避免日志过大
func truncate(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if str, ok := v.(string); ok && len(str) > maxLogValueLen {
		return str[:maxLogValueLen] + "..."
	}
	return v
}

// SetupGlobalCallbacks 设置全局回调
func SetupGlobalCallbacks(log *logger.Logger, enableDebug bool) {
	handler := NewLogger(log, enableDebug)
	callbacks.AppendGlobalHandlers(handler)
	handler.log.Info("global callbacks registered", "debug", enableDebug)
}
