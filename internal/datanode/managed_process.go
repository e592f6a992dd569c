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

// Package datanode supervises the search engine process of a data node.
// datanode 包负责监管数据节点上的搜索引擎进程。
//
// ManagedProcess composes the process configuration, the launcher, the admin
// client and the lifecycle state machine. Watchdog and removal observers act
// on the process only through its public methods.
// ManagedProcess 组合了进程配置、启动器、管理客户端和生命周期状态机。
// 看门狗和移除观察者只通过其公开方法操作进程。
package datanode

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opendatanode/datanode/internal/adminclient"
	"github.com/opendatanode/datanode/internal/process"
	"github.com/opendatanode/datanode/internal/statemachine"
	"go.uber.org/zap"
)

// DefaultStopGracePeriod is how long a stopped process may take to exit before it is killed
// DefaultStopGracePeriod 是停止后进程退出的宽限时间，超时后强制杀死
const DefaultStopGracePeriod = 30 * time.Second

// Launcher starts and signals search engine processes
// Launcher 启动搜索引擎进程并发送信号
type Launcher interface {
	Start(ctx context.Context, c process.Command) (process.Handle, error)
	Stop(h process.Handle) error
	Kill(h process.Handle) error
}

// ClientFactory builds the admin client for a configuration
// ClientFactory 根据配置构建管理客户端
type ClientFactory func(cfg ProcessConfig) (adminclient.Client, error)

// HTTPClientFactory builds an HTTP admin client pointing at the configured base URL
// HTTPClientFactory 构建指向配置地址的 HTTP 管理客户端
func HTTPClientFactory(cfg ProcessConfig) (adminclient.Client, error) {
	c, err := adminclient.NewHTTPClient(cfg.BaseURL(), cfg.adminTimeout())
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ManagedProcess is the single search engine process supervised by this node
// ManagedProcess 是本节点监管的唯一搜索引擎进程
type ManagedProcess struct {
	// lifecycleMu serializes Start, Stop, Configure and Close.
	// It is never held while firing events.
	// lifecycleMu 串行化 Start、Stop、Configure 和 Close，触发事件时从不持有。
	lifecycleMu sync.Mutex

	// mu guards the fields below / mu 保护以下字段
	mu      sync.Mutex
	config  *ProcessConfig
	handle  process.Handle
	client  adminclient.Client
	info    process.Info
	closers []io.Closer
	closed  bool

	buffer atomic.Pointer[process.LogBuffer]
	leader atomic.Bool

	// escalations tracks stopped processes not yet released
	escalations sync.WaitGroup

	machine       *statemachine.Machine
	launcher      Launcher
	clientFactory ClientFactory
	seeds         SeedSource
	hostEnv       func() []string
	stopGrace     time.Duration

	logger *zap.Logger
	output *zap.Logger
}

// NewManagedProcess creates a managed process in the STARTING state.
// Configure must be called before Start.
// NewManagedProcess 创建处于 STARTING 状态的受管进程，Start 之前必须调用 Configure。
func NewManagedProcess(launcher Launcher, logger *zap.Logger) *ManagedProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ManagedProcess{
		machine:       statemachine.New(statemachine.StateStarting, logger.Named("statemachine")),
		launcher:      launcher,
		clientFactory: HTTPClientFactory,
		hostEnv:       os.Environ,
		stopGrace:     DefaultStopGracePeriod,
		logger:        logger,
		output:        logger.Named("opensearch"),
	}
	p.buffer.Store(process.NewLogBuffer(process.DefaultLogBufferSize))
	return p
}

// SetClientFactory replaces the admin client factory
// SetClientFactory 替换管理客户端工厂
func (p *ManagedProcess) SetClientFactory(f ClientFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientFactory = f
}

// SetSeedSource sets the source of the seed hosts list
// SetSeedSource 设置种子主机列表的来源
func (p *ManagedProcess) SetSeedSource(s SeedSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeds = s
}

// SetOutputLogger sets the logger receiving the process output lines
// SetOutputLogger 设置接收进程输出行的日志器
func (p *ManagedProcess) SetOutputLogger(l *zap.Logger) {
	if l != nil {
		p.output = l
	}
}

// SetStopGracePeriod sets how long a stopped process may run before it is killed
// SetStopGracePeriod 设置停止后进程被强制杀死前的宽限时间
func (p *ManagedProcess) SetStopGracePeriod(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopGrace = d
}

// Machine returns the lifecycle state machine
// Machine 返回生命周期状态机
func (p *ManagedProcess) Machine() *statemachine.Machine {
	return p.machine
}

// AddObserver registers a state machine observer. Observers implementing
// io.Closer are closed by Close.
// AddObserver 注册状态机观察者，实现了 io.Closer 的观察者会在 Close 时被关闭。
func (p *ManagedProcess) AddObserver(name string, o statemachine.Observer) {
	p.machine.AddObserver(name, o)
	if c, ok := o.(io.Closer); ok {
		p.RegisterCloser(c)
	}
}

// RegisterCloser registers a resource released by Close, in registration order
// RegisterCloser 注册在 Close 时按注册顺序释放的资源
func (p *ManagedProcess) RegisterCloser(c io.Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, c)
}

// Configure installs a new configuration. A running process is restarted with it.
// Configure 安装新配置，正在运行的进程会使用新配置重启。
func (p *ManagedProcess) Configure(ctx context.Context, cfg ProcessConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.lifecycleMu.Lock()
	p.mu.Lock()
	running := p.handle != nil && alive(p.handle)
	p.mu.Unlock()

	var stopped, started bool
	var err error
	if running {
		stopped, err = p.stopLocked()
	}
	if err == nil {
		p.mu.Lock()
		stored := cfg.clone()
		p.config = &stored
		if b := p.buffer.Load(); b.Capacity() != bufferSize(cfg) {
			p.buffer.Store(process.NewLogBuffer(bufferSize(cfg)))
		}
		p.mu.Unlock()
		if running {
			started, err = p.startLocked(ctx)
		}
	}
	p.lifecycleMu.Unlock()

	if stopped {
		p.machine.FireContext(ctx, statemachine.EventProcessStopped)
	}
	if started {
		p.machine.FireContext(ctx, statemachine.EventProcessStarted)
	}
	return err
}

func bufferSize(cfg ProcessConfig) int {
	if cfg.LogsBufferSize > 0 {
		return cfg.LogsBufferSize
	}
	return process.DefaultLogBufferSize
}

// Start launches the process unless it is already running and fires PROCESS_STARTED.
// A previous, exited handle and its admin client are released first.
// Observers calling Start must pass a statemachine.ObserverContext.
// Start 启动进程（已在运行则跳过）并触发 PROCESS_STARTED。
// 先释放之前已退出的句柄及其管理客户端。观察者调用 Start 时必须传入 statemachine.ObserverContext。
func (p *ManagedProcess) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	started, err := p.startLocked(ctx)
	p.lifecycleMu.Unlock()

	if started {
		p.machine.FireContext(ctx, statemachine.EventProcessStarted)
	}
	return err
}

func (p *ManagedProcess) startLocked(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if p.config == nil {
		p.mu.Unlock()
		return false, ErrNotConfigured
	}
	cfg := *p.config
	prev, prevClient := p.handle, p.client
	if prev != nil && alive(prev) {
		p.mu.Unlock()
		p.logger.Debug("process already running / 进程已在运行", zap.Int("pid", prev.PID()))
		return false, nil
	}
	p.handle, p.client = nil, nil
	seeds := p.seeds
	p.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
	p.closeClient(prevClient)

	if seeds != nil && cfg.ConfigDir != "" {
		p.writeSeedHosts(ctx, seeds, filepath.Join(cfg.ConfigDir, UnicastHostsFile))
	}

	startCtx, cancel := context.WithTimeout(ctx, cfg.startTimeout())
	defer cancel()

	h, err := p.launcher.Start(startCtx, process.Command{
		Executable: cfg.Executable,
		Args:       cfg.Args(),
		Env:        cfg.Environ(p.hostEnv()),
		Dir:        cfg.WorkingDir,
		Sink:       p,
	})
	if err != nil {
		p.logger.Error("failed to start search engine / 启动搜索引擎失败",
			zap.String("executable", cfg.Executable),
			zap.Error(err),
		)
		return false, err
	}

	p.mu.Lock()
	p.handle = h
	p.info = h.Info()
	p.mu.Unlock()

	go p.awaitExit(h)
	return true, nil
}

// Stop requests termination of the current process and fires PROCESS_STOPPED.
// It returns without waiting for the exit. Without a handle it does nothing.
// Stop 请求终止当前进程并触发 PROCESS_STOPPED，不等待进程退出；没有句柄时不做任何事。
func (p *ManagedProcess) Stop() error {
	p.lifecycleMu.Lock()
	stopped, err := p.stopLocked()
	p.lifecycleMu.Unlock()

	if stopped {
		p.machine.Fire(statemachine.EventProcessStopped)
	}
	return err
}

func (p *ManagedProcess) stopLocked() (bool, error) {
	p.mu.Lock()
	h, client := p.handle, p.client
	if h == nil {
		p.mu.Unlock()
		return false, nil
	}
	// Detach first so the exit of h is not reported as a crash
	p.handle, p.client = nil, nil
	grace := p.stopGrace
	p.mu.Unlock()

	if err := p.launcher.Stop(h); err != nil {
		p.mu.Lock()
		p.handle, p.client = h, client
		p.mu.Unlock()
		p.logger.Error("failed to stop search engine / 停止搜索引擎失败",
			zap.Int("pid", h.PID()),
			zap.Error(err),
		)
		return false, err
	}
	p.closeClient(client)

	p.escalations.Add(1)
	go func() {
		defer p.escalations.Done()
		p.releaseAfterExit(h, grace)
	}()
	return true, nil
}

// releaseAfterExit releases the handle once the process exits, killing it
// when it outlives the grace period
// releaseAfterExit 在进程退出后释放句柄，超过宽限时间则强制杀死
func (p *ManagedProcess) releaseAfterExit(h process.Handle, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
		p.logger.Warn("process did not exit in time, killing / 进程未按时退出，强制杀死",
			zap.Int("pid", h.PID()),
			zap.Duration("grace", grace),
		)
		if err := p.launcher.Kill(h); err != nil {
			p.logger.Error("failed to kill process / 杀死进程失败", zap.Int("pid", h.PID()), zap.Error(err))
		}
	}
	h.Release()
}

// awaitExit fires PROCESS_TERMINATED when the current process exits on its own
// awaitExit 在当前进程自行退出时触发 PROCESS_TERMINATED
func (p *ManagedProcess) awaitExit(h process.Handle) {
	<-h.Done()

	p.mu.Lock()
	current := p.handle == h
	if current {
		p.info = h.Info()
	}
	p.mu.Unlock()

	if !current {
		return
	}
	p.logger.Warn("search engine process terminated / 搜索引擎进程已终止",
		zap.Int("pid", h.PID()),
		zap.Int("exit_code", h.ExitCode()),
	)
	p.machine.Fire(statemachine.EventProcessTerminated)
}

// OnEvent forwards an event to the state machine and returns once it is processed
// OnEvent 将事件转发给状态机，处理完成后返回
func (p *ManagedProcess) OnEvent(event statemachine.Event) {
	p.OnEventContext(context.Background(), event)
}

// OnEventContext is OnEvent for callers that may run inside an observer.
// With a statemachine.ObserverContext the event is queued behind the current fan-out.
// OnEventContext 供可能在观察者内部运行的调用方使用，传入 ObserverContext 时事件排在当前通知之后。
func (p *ManagedProcess) OnEventContext(ctx context.Context, event statemachine.Event) {
	p.logger.Debug("process event / 进程事件", zap.String("event", event.String()))
	p.machine.FireContext(ctx, event)
}

// Remove starts the removal of this node from the cluster
// Remove 开始将本节点从集群中移除
func (p *ManagedProcess) Remove() {
	p.OnEvent(statemachine.EventProcessRemove)
}

// State returns the current lifecycle state
// State 返回当前生命周期状态
func (p *ManagedProcess) State() statemachine.State {
	return p.machine.State()
}

// IsInState reports whether the process is in the given state
func (p *ManagedProcess) IsInState(s statemachine.State) bool {
	return p.machine.State() == s
}

// Status is the externally visible snapshot of the process
// Status 是进程对外可见的快照
type Status struct {
	PID       int                             `json:"pid"`
	NodeName  string                          `json:"node_name"`
	State     statemachine.State              `json:"state"`
	Leader    bool                            `json:"leader"`
	StartTime process.Optional[time.Time]     `json:"start_time"`
	CPUTime   process.Optional[time.Duration] `json:"cpu_time"`
	User      process.Optional[string]        `json:"user"`
	AdminPort int                             `json:"admin_port"`
	BaseURL   string                          `json:"base_url,omitempty"`
}

// Status returns the current snapshot. It does no I/O: native fields come
// from the last RefreshNativeInfo.
// Status 返回当前快照，不做 I/O：原生字段来自最近一次 RefreshNativeInfo。
func (p *ManagedProcess) Status() Status {
	p.mu.Lock()
	st := Status{
		PID:       -1,
		StartTime: process.None[time.Time](),
		CPUTime:   process.None[time.Duration](),
		User:      process.None[string](),
	}
	if p.config != nil {
		st.NodeName = p.config.NodeName
		st.AdminPort = p.config.HTTPPort
		st.BaseURL = p.config.BaseURL()
	}
	if p.handle != nil {
		st.PID = p.handle.PID()
		st.StartTime = p.info.StartTime
		st.CPUTime = p.info.CPUTime
		st.User = p.info.User
	}
	p.mu.Unlock()

	st.State = p.machine.State()
	st.Leader = p.leader.Load()
	return st
}

// AdminClient returns the admin client, creating it on first use.
// It is unavailable until the process has been started.
// AdminClient 返回管理客户端，首次使用时创建；进程启动之前不可用。
func (p *ManagedProcess) AdminClient() (adminclient.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, true
	}
	if p.handle == nil || p.config == nil || p.clientFactory == nil {
		return nil, false
	}
	c, err := p.clientFactory(*p.config)
	if err != nil {
		p.logger.Error("failed to create admin client / 创建管理客户端失败", zap.Error(err))
		return nil, false
	}
	p.client = c
	return c, true
}

// RefreshNativeInfo re-reads the OS snapshot of the running process.
// Status only ever returns the last refreshed snapshot.
// RefreshNativeInfo 重新读取运行中进程的操作系统快照，Status 只返回最近一次的快照。
func (p *ManagedProcess) RefreshNativeInfo() {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return
	}

	info := h.Refresh()

	p.mu.Lock()
	if p.handle == h {
		p.info = info
	}
	p.mu.Unlock()
}

// SetLeader records whether this node is the leader
// SetLeader 记录本节点是否为主节点
func (p *ManagedProcess) SetLeader(leader bool) {
	p.leader.Store(leader)
}

// IsLeader reports the last known leader flag
func (p *ManagedProcess) IsLeader() bool {
	return p.leader.Load()
}

// OnLine implements process.LineSink: lines are logged and kept in the log buffer
// OnLine 实现 process.LineSink：输出行写入日志并保存在日志缓冲区
func (p *ManagedProcess) OnLine(stream process.Stream, line string) {
	p.buffer.Load().Offer(stream, line)
	if stream == process.StreamStderr {
		p.output.Warn(line)
		return
	}
	p.output.Info(line)
}

// StdoutLogs returns the buffered stdout lines, oldest first
// StdoutLogs 返回缓冲的 stdout 行，最旧的在前
func (p *ManagedProcess) StdoutLogs() []string {
	return p.buffer.Load().Snapshot(process.StreamStdout)
}

// StderrLogs returns the buffered stderr lines, oldest first
// StderrLogs 返回缓冲的 stderr 行，最旧的在前
func (p *ManagedProcess) StderrLogs() []string {
	return p.buffer.Load().Snapshot(process.StreamStderr)
}

// BaseURL returns the admin API address, empty when not configured
func (p *ManagedProcess) BaseURL() string {
	return p.withConfig(ProcessConfig.BaseURL)
}

// ClusterURL returns the transport address, empty when not configured
func (p *ManagedProcess) ClusterURL() string {
	return p.withConfig(ProcessConfig.ClusterURL)
}

// DatanodeRestAPIURL returns the data node API address, empty when not configured
func (p *ManagedProcess) DatanodeRestAPIURL() string {
	return p.withConfig(ProcessConfig.DatanodeRestAPIURL)
}

func (p *ManagedProcess) withConfig(f func(ProcessConfig) string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config == nil {
		return ""
	}
	return f(*p.config)
}

// Close releases registered resources and stops the process. It returns once
// every stopped process has exited or been killed. It is idempotent.
// Close 释放已注册的资源并停止进程，在所有已停止的进程退出或被杀死后返回，可重复调用。
func (p *ManagedProcess) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	closers := p.closers
	p.mu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			p.logger.Warn("failed to close resource / 关闭资源失败", zap.Error(err))
		}
	}
	err := p.Stop()
	p.escalations.Wait()
	return err
}

func (p *ManagedProcess) writeSeedHosts(ctx context.Context, seeds SeedSource, path string) {
	addresses, err := seeds.ClusterAddresses(ctx)
	if err != nil {
		p.logger.Warn("failed to list seed hosts / 获取种子主机列表失败", zap.Error(err))
		return
	}
	if err := WriteSeedHosts(path, addresses); err != nil {
		p.logger.Error("failed to write seed hosts file / 写入种子主机文件失败",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (p *ManagedProcess) closeClient(c adminclient.Client) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		p.logger.Warn("failed to close admin client / 关闭管理客户端失败", zap.Error(err))
	}
}

func alive(h process.Handle) bool {
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}
