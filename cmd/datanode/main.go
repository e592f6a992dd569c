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

// Package main is the entry point of the data node.
// main 包是数据节点的入口点。
//
// The data node runs next to an OpenSearch process and:
// 数据节点与 OpenSearch 进程一同运行，负责：
// - Starts, stops and restarts the process / 启动、停止和重启进程
// - Tracks its health through the admin API / 通过管理 API 跟踪其健康状态
// - Drains and stops it when the node is removed / 节点被移除时迁移分片并停止进程
// - Serves an operator API with status, logs and metrics / 提供包含状态、日志和指标的运维 API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/opendatanode/datanode/internal/config"
	"github.com/opendatanode/datanode/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

// rootCmd is the root command for the data node CLI
// rootCmd 是数据节点 CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "datanode",
	Short: "Data node - supervisor for a local OpenSearch process",
	Long: `The data node supervises a local OpenSearch process.
数据节点监管本地的 OpenSearch 进程。

It starts the process, restarts it after crashes, checks cluster health,
drains shards when the node is removed and exposes an operator API.
它负责启动进程、崩溃后重启、检查集群健康、节点移除时迁移分片，并提供运维 API。`,
	RunE:          runDatanode,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Data Node\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

// logLevel overrides log.level when set
var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// cmdArgs collects the flags that override the configuration
// cmdArgs 收集覆盖配置的命令行参数
func cmdArgs() map[string]any {
	args := map[string]any{}
	if logLevel != "" {
		args["log.level"] = logLevel
	}
	return args
}

// runDatanode is the main entry point for the data node service
// runDatanode 是数据节点服务的主入口点
func runDatanode(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithPriority(configFile, cmdArgs())
	if err != nil {
		return fmt.Errorf("failed to load config / 加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	undo := zap.ReplaceGlobals(log)
	defer undo()

	// Setup signal handling for graceful shutdown
	// 设置信号处理以实现优雅关闭
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := NewNode(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer node.Shutdown()

	return node.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
