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

// Package statemachine models the lifecycle of the supervised search engine
// process as a finite state machine driven by events.
// statemachine 包将受监管的搜索引擎进程的生命周期建模为由事件驱动的有限状态机。
//
// Events are delivered to observers in FIFO order. An observer may fire new
// events from inside a callback; those are queued and dispatched after the
// current event has been fully delivered.
// 事件按 FIFO 顺序分发给观察者。观察者可以在回调中触发新事件，
// 这些事件会排队，并在当前事件完全分发后再处理。
package statemachine

// State represents the lifecycle state of the search engine process
// State 表示搜索引擎进程的生命周期状态
type State string

const (
	// StateStarting process launched, not yet confirmed healthy / 进程已启动，尚未确认健康
	StateStarting State = "STARTING"
	// StateAvailable process healthy / 进程健康
	StateAvailable State = "AVAILABLE"
	// StateUnavailable health check failing / 健康检查失败
	StateUnavailable State = "UNAVAILABLE"
	// StateRemoving node is draining its shards / 节点正在迁出分片
	StateRemoving State = "REMOVING"
	// StateTerminated process exited unexpectedly / 进程意外退出
	StateTerminated State = "TERMINATED"
	// StateStopped process stopped on purpose / 进程被主动停止
	StateStopped State = "STOPPED"
)

// Event represents an input to the state machine
// Event 表示状态机的输入事件
type Event string

const (
	EventProcessStarted    Event = "PROCESS_STARTED"
	EventProcessTerminated Event = "PROCESS_TERMINATED"
	EventHealthCheckOK     Event = "HEALTH_CHECK_OK"
	EventHealthCheckFailed Event = "HEALTH_CHECK_FAILED"
	EventProcessRemove     Event = "PROCESS_REMOVE"
	EventProcessStopped    Event = "PROCESS_STOPPED"
)

// AllStates returns every state in declaration order
// AllStates 按声明顺序返回所有状态
func AllStates() []State {
	return []State{
		StateStarting,
		StateAvailable,
		StateUnavailable,
		StateRemoving,
		StateTerminated,
		StateStopped,
	}
}

// AllEvents returns every event in declaration order
// AllEvents 按声明顺序返回所有事件
func AllEvents() []Event {
	return []Event{
		EventProcessStarted,
		EventProcessTerminated,
		EventHealthCheckOK,
		EventHealthCheckFailed,
		EventProcessRemove,
		EventProcessStopped,
	}
}

// String returns the state name
func (s State) String() string {
	return string(s)
}

// String returns the event name
func (e Event) String() string {
	return string(e)
}

// Transition describes a state change caused by an event
// Transition 描述由事件引起的状态变化
type Transition struct {
	Event       Event `json:"event"`
	Source      State `json:"source"`
	Destination State `json:"destination"`
}

// IsReentry reports whether the transition leaves the state unchanged
// IsReentry 判断该转换是否保持状态不变
func (t Transition) IsReentry() bool {
	return t.Source == t.Destination
}
