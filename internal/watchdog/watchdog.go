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

// Package watchdog restarts the search engine process after unexpected terminations.
// watchdog 包在搜索引擎进程意外终止后将其重启。
//
// The watchdog is a state machine observer:
// 看门狗是一个状态机观察者：
// - PROCESS_STARTED arms it / PROCESS_STARTED 使其启用
// - HEALTH_CHECK_OK clears the failure history / HEALTH_CHECK_OK 清除失败历史
// - PROCESS_TERMINATED restarts the process until the budget is exhausted / PROCESS_TERMINATED 在预算耗尽前重启进程
// - PROCESS_STOPPED disarms it / PROCESS_STOPPED 使其停用
package watchdog

import (
	"context"
	"sync"

	"github.com/opendatanode/datanode/internal/statemachine"
	"go.uber.org/zap"
)

// DefaultMaxFailures is the default restart budget
// DefaultMaxFailures 是默认的重启预算
const DefaultMaxFailures = 3

// Starter starts the supervised process
// Starter 启动受监管的进程
type Starter interface {
	Start(ctx context.Context) error
}

// RestartCallback is called after each restart attempt
// RestartCallback 在每次重启尝试后被调用
type RestartCallback func(attempt int, err error)

// Watchdog restarts a terminated process a bounded number of times
// Watchdog 对已终止的进程进行有限次数的重启
type Watchdog struct {
	mu       sync.Mutex
	active   bool
	failures *FailuresCounter
	starter  Starter
	callback RestartCallback
	logger   *zap.Logger
}

// New creates a disarmed watchdog
// New 创建一个未启用的看门狗
func New(starter Starter, maxFailures int, logger *zap.Logger) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		failures: NewFailuresCounter(maxFailures),
		starter:  starter,
		logger:   logger,
	}
}

// SetCallback sets the restart callback
// SetCallback 设置重启回调
func (w *Watchdog) SetCallback(cb RestartCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

// Trigger implements statemachine.Observer
func (w *Watchdog) Trigger(event statemachine.Event) {
	switch event {
	case statemachine.EventProcessStarted:
		w.mu.Lock()
		w.active = true
		w.mu.Unlock()
	case statemachine.EventHealthCheckOK:
		w.failures.Reset()
	case statemachine.EventProcessStopped:
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
	case statemachine.EventProcessTerminated:
		w.onTerminated()
	}
}

// Transition implements statemachine.Observer. The watchdog acts on events only.
func (w *Watchdog) Transition(statemachine.Transition) {}

func (w *Watchdog) onTerminated() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	if w.failures.Failed() {
		w.active = false
		w.mu.Unlock()
		w.logger.Error("restart budget exhausted, giving up / 重启次数已耗尽，停止自动重启",
			zap.Int("max_failures", w.failures.Max()),
		)
		return
	}
	// The attempt counts even when the start below fails
	w.failures.Increment()
	attempt := w.failures.Count()
	cb := w.callback
	w.mu.Unlock()

	w.logger.Warn("process terminated, restarting / 进程已终止，正在重启",
		zap.Int("attempt", attempt),
		zap.Int("max_failures", w.failures.Max()),
	)
	// Restarts run inside the PROCESS_TERMINATED fan-out
	err := w.starter.Start(statemachine.ObserverContext(context.Background()))
	if err != nil {
		w.logger.Error("restart failed / 重启失败", zap.Int("attempt", attempt), zap.Error(err))
	}
	if cb != nil {
		cb(attempt, err)
	}
}

// Active reports whether automatic restarts are armed
// Active 报告自动重启是否处于启用状态
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Failures returns the number of consecutive restart attempts
// Failures 返回连续重启尝试次数
func (w *Watchdog) Failures() int {
	return w.failures.Count()
}
