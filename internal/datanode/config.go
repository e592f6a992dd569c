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

package datanode

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/opendatanode/datanode/internal/process"
)

// Default values for the process configuration
// 进程配置的默认值
const (
	DefaultStartTimeout = 30 * time.Second
	DefaultAdminTimeout = 10 * time.Second
	DefaultScheme       = "http"
)

// ProcessConfig describes how to run the search engine on this node.
// It is treated as immutable: ManagedProcess keeps its own copy.
// ProcessConfig 描述如何在本节点运行搜索引擎，视为不可变，ManagedProcess 持有自己的副本。
type ProcessConfig struct {
	// Node identity / 节点标识
	NodeID   string
	NodeName string
	Hostname string

	// Executable is the absolute path of the search engine binary
	// Executable 是搜索引擎可执行文件的绝对路径
	Executable string
	// WorkingDir is the working directory of the process
	// WorkingDir 是进程的工作目录
	WorkingDir string
	// ConfigDir receives generated files such as the seed hosts list
	// ConfigDir 用于存放生成的文件，例如种子主机列表
	ConfigDir string

	// Settings are rendered in order as -E flags / 按顺序渲染为 -E 参数
	Settings []process.Setting
	// Env overrides, they always win over the host environment / 环境变量覆盖值，始终优先于宿主环境
	Env map[string]string
	// ConflictingEnv lists host variables removed before launch / 启动前移除的宿主环境变量
	ConflictingEnv []string

	LogsBufferSize int

	// Admin API of the search engine / 搜索引擎管理 API
	Scheme        string
	HTTPPort      int
	TransportPort int

	// DatanodeHTTPPort is the port of the data node's own API
	// DatanodeHTTPPort 是数据节点自身 API 的端口
	DatanodeHTTPPort int

	StartTimeout time.Duration
	AdminTimeout time.Duration
}

// Validate checks the configuration
// Validate 校验配置
func (c ProcessConfig) Validate() error {
	if c.Executable == "" {
		return fmt.Errorf("%w: executable is required", ErrInvalidConfig)
	}
	if c.NodeName == "" {
		return fmt.Errorf("%w: node name is required", ErrInvalidConfig)
	}
	if !validPort(c.HTTPPort) {
		return fmt.Errorf("%w: http port %d out of range", ErrInvalidConfig, c.HTTPPort)
	}
	if !validPort(c.TransportPort) {
		return fmt.Errorf("%w: transport port %d out of range", ErrInvalidConfig, c.TransportPort)
	}
	if c.LogsBufferSize < 0 {
		return fmt.Errorf("%w: logs buffer size must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// Args returns the ordered argument vector
// Args 返回有序参数列表
func (c ProcessConfig) Args() []string {
	return process.BuildArgs(c.Settings)
}

// Environ returns the process environment derived from host
// Environ 返回从宿主环境推导的进程环境
func (c ProcessConfig) Environ(host []string) []string {
	conflicting := c.ConflictingEnv
	if conflicting == nil {
		conflicting = process.DefaultConflictingEnv
	}
	return process.BuildEnv(host, conflicting, c.Env)
}

// BaseURL returns the admin API address, e.g. http://node-1:9200
// BaseURL 返回管理 API 地址
func (c ProcessConfig) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + net.JoinHostPort(c.host(), strconv.Itoa(c.HTTPPort))
}

// ClusterURL returns the transport address other nodes use to join, name:port
// ClusterURL 返回其他节点加入集群所用的传输地址
func (c ProcessConfig) ClusterURL() string {
	return c.NodeName + ":" + strconv.Itoa(c.TransportPort)
}

// DatanodeRestAPIURL returns the address of the data node's own API.
// It uses https when the search engine API does.
// DatanodeRestAPIURL 返回数据节点自身 API 的地址，搜索引擎 API 使用 https 时同样使用 https。
func (c ProcessConfig) DatanodeRestAPIURL() string {
	scheme := "http"
	if c.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(c.host(), strconv.Itoa(c.DatanodeHTTPPort))
}

func (c ProcessConfig) host() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	return "localhost"
}

func (c ProcessConfig) startTimeout() time.Duration {
	if c.StartTimeout > 0 {
		return c.StartTimeout
	}
	return DefaultStartTimeout
}

func (c ProcessConfig) adminTimeout() time.Duration {
	if c.AdminTimeout > 0 {
		return c.AdminTimeout
	}
	return DefaultAdminTimeout
}

// clone returns a deep copy so callers cannot mutate the stored configuration
func (c ProcessConfig) clone() ProcessConfig {
	out := c
	out.Settings = slices.Clone(c.Settings)
	out.ConflictingEnv = slices.Clone(c.ConflictingEnv)
	out.Env = maps.Clone(c.Env)
	return out
}
