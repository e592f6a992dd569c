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

// Package tracing initializes OpenTelemetry and records state machine transitions as spans.
// tracing 包初始化 OpenTelemetry，并将状态机转换记录为 span。
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultServiceName is reported when no service name is configured
const DefaultServiceName = "datanode"

// Options configures the tracer provider
// Options 配置追踪提供者
type Options struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// ShutdownFunc flushes and stops the provider
type ShutdownFunc func(ctx context.Context) error

// Init installs the global tracer provider and propagator.
// A noop provider is used when tracing is disabled.
// Init 安装全局追踪提供者和传播器，禁用追踪时使用空操作提供者。
func Init(ctx context.Context, opts Options, logger *zap.Logger) (trace.TracerProvider, ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.Enabled {
		logger.Info("OpenTelemetry tracing is disabled / OpenTelemetry 追踪已禁用")
		tp := noop.NewTracerProvider()
		return tp, func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlptracegrpc.Option{}
	if opts.Endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create otlp exporter / 创建 OTLP 导出器失败: %w", err)
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry tracing initialized / OpenTelemetry 追踪已初始化",
		zap.String("endpoint", opts.Endpoint),
		zap.String("service", serviceName),
	)
	return tp, tp.Shutdown, nil
}
