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

package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHeartbeatInterval is the default heartbeat cadence
const DefaultHeartbeatInterval = 10 * time.Second

// LeaderFunc receives the leader flag after every heartbeat
// LeaderFunc 在每次心跳后接收主节点标志
type LeaderFunc func(leader bool)

// Heartbeater periodically refreshes the registration of this node
// Heartbeater 定期刷新本节点的注册信息
type Heartbeater struct {
	registry *Registry
	node     DataNode
	interval time.Duration
	onLeader LeaderFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// NewHeartbeater creates a heartbeater for node
// NewHeartbeater 为节点创建心跳器
func NewHeartbeater(r *Registry, node DataNode, interval time.Duration, onLeader LeaderFunc, logger *zap.Logger) *Heartbeater {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heartbeater{registry: r, node: node, interval: interval, onLeader: onLeader, logger: logger}
}

// Beat sends one heartbeat and publishes the leader flag
// Beat 发送一次心跳并发布主节点标志
func (h *Heartbeater) Beat(ctx context.Context) error {
	if err := h.registry.Heartbeat(ctx, h.node); err != nil {
		h.logger.Warn("heartbeat failed / 心跳失败", zap.Error(err))
		return err
	}
	leader, err := h.registry.IsLeader(ctx, h.node.NodeID)
	if err != nil {
		h.logger.Warn("leader lookup failed / 查询主节点失败", zap.Error(err))
		return err
	}
	if h.onLeader != nil {
		h.onLeader(leader)
	}
	return nil
}

// Start sends a first heartbeat and keeps beating until Stop
// Start 发送首次心跳并持续发送直到 Stop
func (h *Heartbeater) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		_ = h.Beat(ctx)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = h.Beat(ctx)
			}
		}
	}(h.done)
}

// Stop stops the heartbeat loop
// Stop 停止心跳循环
func (h *Heartbeater) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close implements io.Closer
func (h *Heartbeater) Close() error {
	h.Stop()
	return nil
}
