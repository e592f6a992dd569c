/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger builds the data node's zap logger.
// Records go to a rotating JSON file and, optionally, to the console.
// logger 包构建数据节点的 zap 日志器，日志写入滚动的 JSON 文件，并可同时输出到控制台。
package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opendatanode/datanode/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a logger from the log configuration
// New 根据日志配置创建日志器
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level / 无效的日志级别 %q: %w", cfg.Level, err)
	}

	var cores []zapcore.Core
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory / 创建日志目录失败: %w", err)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(writer),
			level,
		))
	}
	if cfg.Console || len(cores) == 0 {
		consoleCfg := encoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// InfoF logs a formatted message on the global logger with the trace of ctx
// InfoF 使用全局日志器输出格式化信息，并附带 ctx 中的链路信息
func InfoF(ctx context.Context, format string, args ...any) {
	logf(ctx, zapcore.InfoLevel, format, args...)
}

// WarnF logs a formatted warning
func WarnF(ctx context.Context, format string, args ...any) {
	logf(ctx, zapcore.WarnLevel, format, args...)
}

// ErrorF logs a formatted error
func ErrorF(ctx context.Context, format string, args ...any) {
	logf(ctx, zapcore.ErrorLevel, format, args...)
}

func logf(ctx context.Context, level zapcore.Level, format string, args ...any) {
	l := zap.L().WithOptions(zap.AddCallerSkip(2))
	if ce := l.Check(level, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write(traceFields(ctx)...)
	}
}

// traceFields returns the trace and span ids of ctx, if any
func traceFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
