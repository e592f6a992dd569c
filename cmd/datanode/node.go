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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opendatanode/datanode/internal/api"
	"github.com/opendatanode/datanode/internal/config"
	"github.com/opendatanode/datanode/internal/datanode"
	"github.com/opendatanode/datanode/internal/health"
	"github.com/opendatanode/datanode/internal/lifecycle"
	"github.com/opendatanode/datanode/internal/metrics"
	"github.com/opendatanode/datanode/internal/process"
	"github.com/opendatanode/datanode/internal/registry"
	"github.com/opendatanode/datanode/internal/removal"
	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/opendatanode/datanode/internal/tracing"
	"github.com/opendatanode/datanode/internal/watchdog"
	"go.uber.org/zap"
)

// Node integrates the supervised process with its observers and outer services
// Node 将受管进程与其观察者及外部服务集成在一起
type Node struct {
	// config holds the data node configuration
	// config 保存数据节点配置
	config *config.Config
	logger *zap.Logger

	// process supervises the search engine
	// process 监管搜索引擎进程
	process  *datanode.ManagedProcess
	monitor  *health.Monitor
	watchdog *watchdog.Watchdog
	tracer   *removal.Tracer
	events   *lifecycle.Observer
	metrics  *metrics.Observer

	heartbeater *registry.Heartbeater
	api         *api.Server

	// closers run after the process is closed, in order
	// closers 在进程关闭后按顺序执行
	closers []io.Closer
	// shutdownTracing flushes pending spans
	shutdownTracing tracing.ShutdownFunc

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewNode builds every component from cfg. Nothing is started yet.
// NewNode 根据 cfg 构建所有组件，此时尚未启动任何组件。
func NewNode(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Node{config: cfg, logger: logger}

	processCfg, err := cfg.ProcessConfig()
	if err != nil {
		return nil, err
	}

	// Step 1: Tracing / 步骤 1：链路追踪
	tp, shutdown, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger.Named("tracing"))
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing / 初始化链路追踪失败: %w", err)
	}
	n.shutdownTracing = shutdown

	// Step 2: Managed process / 步骤 2：受管进程
	n.process = datanode.NewManagedProcess(process.NewLauncher(logger.Named("launcher")), logger.Named("process"))
	n.process.SetStopGracePeriod(cfg.OpenSearch.StopGracePeriod)
	if err := n.process.Configure(ctx, processCfg); err != nil {
		n.cleanup()
		return nil, err
	}

	// Step 3: Observers, in dispatch order / 步骤 3：观察者，按分发顺序注册
	n.process.AddObserver("logging", statemachine.NewLoggingObserver(logger.Named("transitions")))
	if cfg.Metrics.Enabled {
		n.metrics = metrics.New(cfg.Metrics.Namespace)
		n.metrics.SetState(n.process.State())
		n.process.Machine().SetPanicHandler(n.metrics.ObserverPanic)
		n.process.AddObserver("metrics", n.metrics)
	}
	if cfg.Telemetry.Enabled {
		n.process.AddObserver("tracing", tracing.NewObserver(tp))
	}
	if cfg.Watchdog.Enabled {
		n.watchdog = watchdog.New(n.process, cfg.Watchdog.MaxFailures, logger.Named("watchdog"))
		n.watchdog.SetCallback(func(attempt int, err error) {
			if err != nil {
				logger.Warn("watchdog restart failed / 看门狗重启失败", zap.Int("attempt", attempt), zap.Error(err))
			}
		})
		n.process.AddObserver("watchdog", n.watchdog)
		if n.metrics != nil {
			registerWatchdogGauge(n.metrics, cfg.Metrics.Namespace, n.watchdog, logger)
		}
	}

	publisher, err := n.buildPublisher()
	if err != nil {
		n.cleanup()
		return nil, err
	}
	n.events = lifecycle.NewObserver(cfg.Node.ID, publisher, logger.Named("lifecycle"))
	n.process.AddObserver("lifecycle", n.events)

	n.tracer = removal.NewTracer(n.process, removal.Options{
		NodeID:         cfg.Node.ID,
		NodeName:       cfg.Node.Name,
		PollInterval:   cfg.Removal.PollInterval,
		RequestTimeout: cfg.Removal.RequestTimeout,
		Publisher:      publisher,
	}, logger.Named("removal"))
	n.process.AddObserver("removal", n.tracer)

	// Step 4: Health monitor / 步骤 4：健康监控
	n.monitor = health.NewMonitor(n.process, cfg.Health.Interval, logger.Named("health"))
	n.monitor.SetTimeout(cfg.Health.Timeout)
	n.process.RegisterCloser(n.monitor)

	// Step 5: Registry / 步骤 5：节点注册表
	if cfg.Registry.Enabled {
		if err := n.buildRegistry(ctx); err != nil {
			n.cleanup()
			return nil, err
		}
	}

	// Step 6: Operator API / 步骤 6：运维 API
	if cfg.API.Enabled {
		opts := api.Options{
			Listen:      cfg.API.Listen,
			ServiceName: cfg.Telemetry.ServiceName,
			Production:  cfg.API.Production,
		}
		if n.metrics != nil {
			opts.Metrics = n.metrics.Handler()
		}
		n.api = api.NewServer(n.process, opts, logger.Named("api"))
	}
	return n, nil
}

// registerWatchdogGauge exports the consecutive restart count. Registration
// errors are logged, not returned.
// registerWatchdogGauge 导出连续重启次数，注册失败只记录日志。
func registerWatchdogGauge(m *metrics.Observer, namespace string, w *watchdog.Watchdog, logger *zap.Logger) {
	err := m.RegisterGaugeFunc(namespace, "watchdog_failures",
		"Consecutive restarts performed by the watchdog", func() float64 {
			return float64(w.Failures())
		})
	if err != nil {
		logger.Warn("failed to register watchdog gauge / 注册看门狗指标失败", zap.Error(err))
	}
}

// buildPublisher returns the log publisher, plus Redis when enabled
// buildPublisher 返回日志发布者，启用时附加 Redis 发布者
func (n *Node) buildPublisher() (lifecycle.Publisher, error) {
	publishers := lifecycle.MultiPublisher{lifecycle.NewLogPublisher(n.logger.Named("events"))}
	rc := n.config.Events.Redis
	if !rc.Enabled {
		return publishers, nil
	}
	redisPub, err := lifecycle.NewRedisPublisher(lifecycle.RedisOptions{
		Addr:     rc.Addr,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
		Channel:  rc.Channel,
		Tracing:  n.config.Telemetry.Enabled,
	}, n.logger.Named("redis"))
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, redisPub)
	return append(publishers, redisPub), nil
}

// buildRegistry opens the database and feeds seeds and leadership to the process
// buildRegistry 打开数据库，并向进程提供种子节点和主节点信息
func (n *Node) buildRegistry(ctx context.Context) error {
	rc := n.config.Registry
	db, err := registry.OpenDatabase(registry.Options{
		Type:       rc.Type,
		SQLitePath: rc.SQLitePath,
		DSN:        rc.DSN,
		LogLevel:   rc.LogLevel,
		Tracing:    n.config.Telemetry.Enabled,
	}, n.logger.Named("database"))
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		n.closers = append(n.closers, sqlDB)
	}

	reg, err := registry.New(db, rc.ActiveWindow)
	if err != nil {
		return err
	}
	n.process.SetSeedSource(reg)

	n.heartbeater = registry.NewHeartbeater(reg, registry.DataNode{
		NodeID:         n.config.Node.ID,
		NodeName:       n.config.Node.Name,
		Hostname:       n.config.Node.Hostname,
		ClusterAddress: n.process.ClusterURL(),
	}, rc.HeartbeatInterval, n.process.SetLeader, n.logger.Named("heartbeat"))
	n.process.RegisterCloser(n.heartbeater)
	// The first beat registers this node before the seed list is written
	// 首次心跳在写入种子列表之前注册本节点
	return n.heartbeater.Beat(ctx)
}

// Run starts the process and background services, blocking until ctx is done
// Run 启动进程和后台服务，阻塞直到 ctx 结束
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return errors.New("data node is already running / 数据节点已在运行")
	}
	n.running = true
	n.mu.Unlock()

	n.logger.Info("starting data node / 正在启动数据节点",
		zap.String("node_id", n.config.Node.ID),
		zap.String("node_name", n.config.Node.Name),
		zap.String("base_url", n.process.BaseURL()))

	if n.heartbeater != nil {
		n.heartbeater.Start(ctx)
	}
	if err := n.monitor.Start(ctx); err != nil {
		return err
	}

	// A failed start is reported but the node keeps serving the API
	// 启动失败会被记录，但节点继续提供 API 服务
	if err := n.process.Start(ctx); err != nil {
		n.logger.Error("failed to start opensearch / 启动 OpenSearch 失败", zap.Error(err))
	}

	errCh := make(chan error, 1)
	if n.api != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.api.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("api server failed / API 服务失败: %w", err)
	}
}

// Shutdown stops the process and releases every resource
// Shutdown 停止进程并释放所有资源
func (n *Node) Shutdown() {
	n.logger.Info("shutting down data node / 正在关闭数据节点")
	if err := n.process.Close(); err != nil {
		n.logger.Warn("error closing process / 关闭进程时出错", zap.Error(err))
	}
	n.wg.Wait()
	n.cleanup()
	n.logger.Info("data node shutdown complete / 数据节点关闭完成")
}

// cleanup waits for pending events and closes the outer resources
func (n *Node) cleanup() {
	if n.events != nil {
		_ = n.events.Close()
	}
	for _, c := range n.closers {
		if err := c.Close(); err != nil {
			n.logger.Warn("error closing resource / 关闭资源时出错", zap.Error(err))
		}
	}
	n.closers = nil
	if n.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := n.shutdownTracing(ctx); err != nil {
			n.logger.Warn("error flushing traces / 刷新链路数据时出错", zap.Error(err))
		}
		n.shutdownTracing = nil
	}
}
