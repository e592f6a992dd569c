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

// Package removal drives the graceful removal of a data node from the cluster.
// removal 包负责将数据节点从集群中平滑移除。
//
// On PROCESS_REMOVE the node is excluded from shard allocation and the cluster
// health is polled until no shard is relocating, then the process is stopped.
// When the node becomes AVAILABLE again a leftover exclusion is cleared so
// that a node whose removal was aborted rejoins normally.
// 收到 PROCESS_REMOVE 后，节点被排除在分片分配之外，并轮询集群健康状态直到没有分片在迁移，
// 然后停止进程。节点再次进入 AVAILABLE 时会清除残留的排除设置，使中止移除的节点正常重新加入。
package removal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opendatanode/datanode/internal/adminclient"
	"github.com/opendatanode/datanode/internal/lifecycle"
	"github.com/opendatanode/datanode/internal/statemachine"
	"go.uber.org/zap"
)

// AllocationExcludeSetting excludes nodes by name from shard allocation
// AllocationExcludeSetting 按节点名称将节点排除在分片分配之外
const AllocationExcludeSetting = "cluster.routing.allocation.exclude._name"

// Default timings / 默认时间参数
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Process is the part of the managed process the tracer acts on
// Process 是移除追踪器所操作的受管进程接口
type Process interface {
	AdminClient() (adminclient.Client, bool)
	Stop() error
	OnEventContext(ctx context.Context, event statemachine.Event)
}

// Options configures a Tracer
// Options 配置 Tracer
type Options struct {
	NodeID         string
	NodeName       string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Publisher      lifecycle.Publisher
}

// Tracer is the removal observer
// Tracer 是移除观察者
type Tracer struct {
	proc Process
	opts Options

	mu      sync.Mutex
	checked bool
	cancel  context.CancelFunc
	gen     uint64
	closed  bool
	wg      sync.WaitGroup

	logger *zap.Logger
}

// NewTracer creates a removal tracer for the given process
// NewTracer 为给定进程创建移除追踪器
func NewTracer(proc Process, opts Options, logger *zap.Logger) *Tracer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{proc: proc, opts: opts, logger: logger}
}

// Trigger implements statemachine.Observer
func (t *Tracer) Trigger(event statemachine.Event) {
	if event == statemachine.EventProcessRemove {
		t.startRemoval()
	}
}

// Transition implements statemachine.Observer
func (t *Tracer) Transition(tr statemachine.Transition) {
	if tr.Destination == statemachine.StateAvailable && tr.Source != statemachine.StateAvailable {
		t.checkAllocationExclude()
	}
}

// AllocationExcludeChecked reports whether a leftover exclusion has been checked
// AllocationExcludeChecked 报告是否已检查残留的排除设置
func (t *Tracer) AllocationExcludeChecked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checked
}

// Polling reports whether a removal poll is running
// Polling 报告移除轮询是否正在运行
func (t *Tracer) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Close cancels a running poll and waits for it to finish.
// Removals requested after Close are ignored.
// Close 取消正在运行的轮询并等待其结束，之后请求的移除将被忽略。
func (t *Tracer) Close() error {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func (t *Tracer) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// startRemoval runs inside the PROCESS_REMOVE fan-out, so its events are queued
func (t *Tracer) startRemoval() {
	if t.isClosed() {
		t.logger.Warn("tracer closed, ignoring removal / 追踪器已关闭，忽略移除请求")
		return
	}
	t.logger.Info("starting removal of node / 开始移除节点", zap.String("node", t.opts.NodeName))
	queued := statemachine.ObserverContext(context.Background())

	client, ok := t.proc.AdminClient()
	if !ok {
		t.logger.Warn("no admin client, cannot exclude node / 无管理客户端，无法排除节点")
		t.proc.OnEventContext(queued, statemachine.EventHealthCheckFailed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	ack, err := client.PutSetting(ctx, AllocationExcludeSetting, t.opts.NodeName)
	cancel()
	if err != nil || !ack {
		t.logger.Error("failed to exclude node from allocation / 将节点排除在分配之外失败",
			zap.Bool("acknowledged", ack),
			zap.Error(err),
		)
		t.proc.OnEventContext(queued, statemachine.EventHealthCheckFailed)
		return
	}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pollCancel()
		t.logger.Warn("tracer closed, not polling removal / 追踪器已关闭，不再轮询移除状态")
		return
	}
	t.checked = false
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	t.cancel = pollCancel
	t.wg.Add(1)
	t.mu.Unlock()

	go t.poll(pollCtx, gen)
}

func (t *Tracer) poll(ctx context.Context, gen uint64) {
	defer t.wg.Done()
	defer t.finish(gen)

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.checkRemovalStatus(ctx) {
				return
			}
		}
	}
}

// checkRemovalStatus returns true once the poll should end
func (t *Tracer) checkRemovalStatus(ctx context.Context) bool {
	client, ok := t.proc.AdminClient()
	if !ok {
		t.logger.Warn("admin client gone during removal / 移除过程中管理客户端不可用")
		t.proc.OnEventContext(context.Background(), statemachine.EventHealthCheckFailed)
		return true
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	health, err := client.Health(reqCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		t.logger.Error("error checking removal status / 检查移除状态失败", zap.Error(err))
		t.proc.OnEventContext(context.Background(), statemachine.EventHealthCheckFailed)
		return true
	}

	if health.RelocatingShards > 0 {
		t.logger.Debug("shards still relocating / 分片仍在迁移", zap.Int("relocating_shards", health.RelocatingShards))
		return false
	}

	t.logger.Info("all shards relocated, stopping process / 所有分片已迁移，停止进程")
	if err := t.proc.Stop(); err != nil {
		t.logger.Error("failed to stop removed node / 停止已移除节点失败", zap.Error(err))
		t.proc.OnEventContext(context.Background(), statemachine.EventHealthCheckFailed)
		return true
	}
	if t.opts.Publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
		defer cancel()
		if err := t.opts.Publisher.Publish(pubCtx, lifecycle.NewEvent(t.opts.NodeID, lifecycle.TriggerRemoved)); err != nil {
			t.logger.Warn("failed to publish removal event / 发布移除事件失败", zap.Error(err))
		}
	}
	return true
}

// finish clears the poll handle if it still belongs to generation gen
func (t *Tracer) finish(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen == gen && t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Tracer) checkAllocationExclude() {
	t.mu.Lock()
	checked := t.checked
	t.mu.Unlock()
	if checked {
		return
	}

	client, ok := t.proc.AdminClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	defer cancel()

	value, present, err := client.GetSetting(ctx, AllocationExcludeSetting)
	if err != nil {
		t.logger.Warn("failed to read allocation exclusion, will retry / 读取分配排除设置失败，稍后重试", zap.Error(err))
		return
	}

	if present {
		if remaining, excluded := withoutNode(value, t.opts.NodeName); excluded {
			t.logger.Info("clearing leftover allocation exclusion / 清除残留的分配排除设置",
				zap.String("node", t.opts.NodeName),
			)
			ack, err := client.PutSetting(ctx, AllocationExcludeSetting, remaining)
			if err != nil || !ack {
				t.logger.Warn("failed to clear allocation exclusion, will retry / 清除分配排除设置失败，稍后重试",
					zap.Bool("acknowledged", ack),
					zap.Error(err),
				)
				return
			}
		}
	}

	t.mu.Lock()
	t.checked = true
	t.mu.Unlock()
}

// withoutNode removes name from a comma separated node list
func withoutNode(list, name string) (string, bool) {
	var kept []string
	found := false
	for _, n := range strings.Split(list, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == name {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	return strings.Join(kept, ","), found
}
