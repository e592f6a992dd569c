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

// Package api serves the operator HTTP API of the data node.
// api 包提供数据节点的运维 HTTP API。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opendatanode/datanode/internal/datanode"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// DefaultListen is the default listen address
const DefaultListen = ":8999"

// Process is the managed process as seen by the API
// Process 是 API 所见的受管进程
type Process interface {
	Status() datanode.Status
	StdoutLogs() []string
	StderrLogs() []string
	Start(ctx context.Context) error
	Stop() error
	Remove()
}

// Options configures the server
// Options 配置服务器
type Options struct {
	Listen      string
	ServiceName string
	// Metrics serves GET /metrics when set
	Metrics http.Handler
	// Production switches gin to release mode
	Production bool
}

// Server is the operator API server
// Server 是运维 API 服务器
type Server struct {
	proc   Process
	opts   Options
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the router
// NewServer 构建路由
func NewServer(proc Process, opts Options, logger *zap.Logger) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "datanode"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{proc: proc, opts: opts, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName), loggerMiddleware(logger))

	r.GET("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.status)
		v1.GET("/logs/:stream", s.logs)

		processRouter := v1.Group("/process")
		{
			processRouter.POST("/start", s.start)
			processRouter.POST("/stop", s.stop)
			processRouter.POST("/remove", s.remove)
		}
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
// Run 持续服务直到 ctx 被取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening / API 服务已启动", zap.String("listen", s.opts.Listen))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("api server stopped / API 服务已停止")
		return nil
	}
}

// loggerMiddleware logs every request
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
