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

package statemachine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// PanicHandler is notified when an observer panics during dispatch
// PanicHandler 在观察者分发过程中发生 panic 时被通知
type PanicHandler func(observer string, recovered any)

type registeredObserver struct {
	name     string
	observer Observer
}

// Machine is the lifecycle state machine of a single managed process.
// Machine 是单个受管进程的生命周期状态机。
//
// Fire is synchronous: it waits for any dispatch running on another
// goroutine, then applies its event and notifies the observers on the
// calling goroutine. Observers that fire from inside a callback use Enqueue
// (or FireContext with an ObserverContext); their events are delivered by
// the running dispatch after the current fan-out.
// Fire 是同步的：先等待其他 goroutine 上正在进行的分发，再在调用者 goroutine 上应用事件并通知观察者。
// 在回调内部触发事件的观察者使用 Enqueue（或携带 ObserverContext 的 FireContext），
// 其事件由当前分发在本轮通知结束后投递。
type Machine struct {
	// dispatchMu is held by the goroutine draining the queue
	dispatchMu sync.Mutex

	mu          sync.Mutex
	state       State
	observers   []registeredObserver
	queue       []Event
	dispatching bool

	onPanic PanicHandler
	logger  *zap.Logger
}

// New creates a state machine in the given initial state
// New 创建处于给定初始状态的状态机
func New(initial State, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		state:  initial,
		logger: logger,
	}
}

// SetPanicHandler installs a hook invoked after an observer panic was recovered
// SetPanicHandler 设置观察者 panic 被恢复后调用的钩子
func (m *Machine) SetPanicHandler(h PanicHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPanic = h
}

// State returns the current state
// State 返回当前状态
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddObserver registers an observer. Observers are notified in registration order.
// AddObserver 注册观察者，观察者按注册顺序接收通知。
func (m *Machine) AddObserver(name string, o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, registeredObserver{name: name, observer: o})
}

// Observers returns the registered observers in registration order
// Observers 按注册顺序返回已注册的观察者
func (m *Machine) Observers() []Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Observer, 0, len(m.observers))
	for _, r := range m.observers {
		out = append(out, r.observer)
	}
	return out
}

type observerCallKey struct{}

// ObserverContext marks ctx as used from inside an observer callback.
// Events fired with such a context are queued instead of waited for.
// ObserverContext 标记 ctx 来自观察者回调内部，使用该上下文触发的事件只入队而不等待。
func ObserverContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, observerCallKey{}, true)
}

// IsObserverContext reports whether ctx was marked by ObserverContext
func IsObserverContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(observerCallKey{}).(bool)
	return v
}

// Fire applies an event and notifies the observers before returning.
// It must not be called from inside an observer callback, use Enqueue there.
// Fire 应用事件并在返回前通知所有观察者，不得在观察者回调内部调用，回调内请使用 Enqueue。
func (m *Machine) Fire(event Event) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	m.queue = append(m.queue, event)
	m.dispatching = true
	m.mu.Unlock()

	m.drain()
}

// Enqueue is the reentrant form of Fire for observer callbacks: the event is
// delivered by the running dispatch once the current fan-out is done.
// Without a running dispatch it behaves like Fire.
// Enqueue 是供观察者回调使用的重入形式：事件在当前通知结束后由正在进行的分发投递；
// 没有分发在进行时等同于 Fire。
func (m *Machine) Enqueue(event Event) {
	m.mu.Lock()
	if m.dispatching {
		m.queue = append(m.queue, event)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.Fire(event)
}

// FireContext calls Enqueue when ctx is an ObserverContext and Fire otherwise
// FireContext 在 ctx 为 ObserverContext 时调用 Enqueue，否则调用 Fire
func (m *Machine) FireContext(ctx context.Context, event Event) {
	if IsObserverContext(ctx) {
		m.Enqueue(event)
		return
	}
	m.Fire(event)
}

// drain delivers queued events one by one until the queue is empty
// drain 逐个投递队列中的事件直到队列为空
func (m *Machine) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.dispatching = false
			m.mu.Unlock()
			return
		}
		event := m.queue[0]
		m.queue[0] = ""
		m.queue = m.queue[1:]

		from := m.state
		to, matched := Next(from, event)
		if matched {
			m.state = to
		}
		observers := m.observers[:len(m.observers):len(m.observers)]
		m.mu.Unlock()

		for _, r := range observers {
			m.notify(r, func() { r.observer.Trigger(event) })
		}
		if !matched {
			continue
		}
		t := Transition{Event: event, Source: from, Destination: to}
		for _, r := range observers {
			m.notify(r, func() { r.observer.Transition(t) })
		}
	}
}

// notify runs a single observer callback and contains its panic
// notify 执行单个观察者回调并拦截其 panic
func (m *Machine) notify(r registeredObserver, call func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("observer panicked / 观察者发生 panic",
				zap.String("observer", r.name),
				zap.Any("panic", rec),
			)
			m.mu.Lock()
			h := m.onPanic
			m.mu.Unlock()
			if h != nil {
				h(r.name, rec)
			}
		}
	}()
	call()
}
