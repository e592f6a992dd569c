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

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opendatanode/datanode/internal/datanode"
	"github.com/opendatanode/datanode/internal/logger"
	"github.com/opendatanode/datanode/internal/process"
	"go.uber.org/zap"
)

// Response is the envelope of every API response
// Response 是所有 API 响应的外层结构
type Response struct {
	ErrorMsg string `json:"error_msg"`
	Data     any    `json:"data"`
}

// LogsResponse carries the buffered lines of one stream
type LogsResponse struct {
	Stream string   `json:"stream"`
	Lines  []string `json:"lines"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Data: "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Data: s.proc.Status()})
}

func (s *Server) logs(c *gin.Context) {
	var lines []string
	switch process.Stream(c.Param("stream")) {
	case process.StreamStdout:
		lines = s.proc.StdoutLogs()
	case process.StreamStderr:
		lines = s.proc.StderrLogs()
	default:
		c.JSON(http.StatusNotFound, Response{ErrorMsg: "unknown stream, use stdout or stderr / 未知的输出流，请使用 stdout 或 stderr"})
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, Response{Data: LogsResponse{Stream: c.Param("stream"), Lines: lines}})
}

func (s *Server) start(c *gin.Context) {
	logger.InfoF(c.Request.Context(), "[API] start requested from %s", c.ClientIP())
	if err := s.proc.Start(c.Request.Context()); err != nil {
		s.logger.Warn("start request failed / 启动请求失败", zap.Error(err))
		c.JSON(statusFor(err), Response{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Data: s.proc.Status()})
}

func (s *Server) stop(c *gin.Context) {
	logger.InfoF(c.Request.Context(), "[API] stop requested from %s", c.ClientIP())
	if err := s.proc.Stop(); err != nil {
		s.logger.Warn("stop request failed / 停止请求失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Data: s.proc.Status()})
}

func (s *Server) remove(c *gin.Context) {
	logger.InfoF(c.Request.Context(), "[API] removal requested from %s", c.ClientIP())
	s.proc.Remove()
	c.JSON(http.StatusAccepted, Response{Data: s.proc.Status()})
}

// statusFor maps start errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, datanode.ErrNotConfigured):
		return http.StatusConflict
	case errors.Is(err, datanode.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, process.ErrHandleTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
