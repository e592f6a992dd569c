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

// Package health polls the cluster health of the supervised search engine.
// health 包轮询受监管搜索引擎的集群健康状态。
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opendatanode/datanode/internal/adminclient"
	"github.com/opendatanode/datanode/internal/statemachine"
	"go.uber.org/zap"
)

// Default values / 默认值
const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Target is the process whose health is monitored
// Target 是被监控健康状态的进程
type Target interface {
	AdminClient() (adminclient.Client, bool)
	OnEvent(event statemachine.Event)
	RefreshNativeInfo()
}

// Monitor fires HEALTH_CHECK_OK or HEALTH_CHECK_FAILED on a fixed cadence.
// A tick is skipped while the previous check is still running.
// Monitor 按固定频率触发 HEALTH_CHECK_OK 或 HEALTH_CHECK_FAILED，上一次检查未完成时跳过本次。
type Monitor struct {
	target   Target
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	inFlight atomic.Bool
	skipped  atomic.Int64
	wg       sync.WaitGroup

	logger *zap.Logger
}

// NewMonitor creates a health monitor
// NewMonitor 创建健康监控器
func NewMonitor(target Target, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{target: target, interval: interval, timeout: DefaultTimeout, logger: logger}
}

// SetTimeout sets the timeout of a single health request
// SetTimeout 设置单次健康请求的超时时间
func (m *Monitor) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.timeout = d
	}
}

// Start starts the polling loop. Calling it twice is a no-op.
// Start 启动轮询循环，重复调用无效果。
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.logger.Info("health monitor started / 健康监控已启动", zap.Duration("interval", m.interval))
	m.wg.Add(1)
	go m.loop(ctx)
	return nil
}

// Stop stops the loop and waits for a running check
// Stop 停止循环并等待正在运行的检查
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("health monitor stopped / 健康监控已停止")
	return nil
}

// Close implements io.Closer
func (m *Monitor) Close() error {
	return m.Stop()
}

// Skipped returns how many ticks were skipped because a check was still running
// Skipped 返回因检查仍在运行而跳过的次数
func (m *Monitor) Skipped() int64 {
	return m.skipped.Load()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick starts a check unless one is already running
func (m *Monitor) tick(ctx context.Context) bool {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.skipped.Add(1)
		m.logger.Debug("previous health check still running, skipping / 上一次健康检查仍在运行，跳过")
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.inFlight.Store(false)
		m.check(ctx)
	}()
	return true
}

// RunOnce performs a single check synchronously unless one is already running
// RunOnce 同步执行一次检查（已有检查在运行时跳过）
func (m *Monitor) RunOnce(ctx context.Context) bool {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.skipped.Add(1)
		return false
	}
	defer m.inFlight.Store(false)
	m.check(ctx)
	return true
}

func (m *Monitor) check(ctx context.Context) {
	m.target.RefreshNativeInfo()

	client, ok := m.target.AdminClient()
	if !ok {
		m.logger.Debug("no admin client yet, skipping health check / 尚无管理客户端，跳过健康检查")
		return
	}

	m.mu.Lock()
	timeout := m.timeout
	m.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	health, err := client.Health(reqCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("health check failed / 健康检查失败", zap.Error(err))
		m.target.OnEvent(statemachine.EventHealthCheckFailed)
		return
	}
	m.logger.Debug("health check ok / 健康检查成功",
		zap.String("status", health.Status),
		zap.Int("relocating_shards", health.RelocatingShards),
	)
	m.target.OnEvent(statemachine.EventHealthCheckOK)
}
