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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// journal collects callback records from one or more recorders
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, entry)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

// recorder records every callback as a string
type recorder struct {
	j    *journal
	name string
}

func newRecorder(name string) *recorder {
	return &recorder{j: &journal{}, name: name}
}

func (r *recorder) Trigger(event Event) {
	r.j.add(fmt.Sprintf("%s:trigger:%s", r.name, event))
}

func (r *recorder) Transition(t Transition) {
	r.j.add(fmt.Sprintf("%s:transition:%s:%s->%s", r.name, t.Event, t.Source, t.Destination))
}

func (r *recorder) snapshot() []string {
	return r.j.snapshot()
}

func TestMachine_InitialState(t *testing.T) {
	m := New(StateStarting, nil)
	assert.Equal(t, StateStarting, m.State())
}

func TestMachine_FireAppliesTable(t *testing.T) {
	m := New(StateStarting, nil)

	m.Fire(EventHealthCheckOK)
	assert.Equal(t, StateAvailable, m.State())

	m.Fire(EventProcessRemove)
	assert.Equal(t, StateRemoving, m.State())

	m.Fire(EventHealthCheckFailed)
	assert.Equal(t, StateUnavailable, m.State())

	m.Fire(EventProcessStopped)
	assert.Equal(t, StateStopped, m.State())

	m.Fire(EventProcessTerminated)
	assert.Equal(t, StateStopped, m.State())
}

// TestMachine_ObserverOrder checks that every observer sees the trigger and
// transition in registration order
// TestMachine_ObserverOrder 检查每个观察者按注册顺序收到 trigger 和 transition
func TestMachine_ObserverOrder(t *testing.T) {
	m := New(StateStarting, nil)
	shared := &journal{}
	m.AddObserver("a", &recorder{j: shared, name: "a"})
	m.AddObserver("b", &recorder{j: shared, name: "b"})

	m.Fire(EventHealthCheckOK)

	assert.Equal(t, []string{
		"a:trigger:HEALTH_CHECK_OK",
		"b:trigger:HEALTH_CHECK_OK",
		"a:transition:HEALTH_CHECK_OK:STARTING->AVAILABLE",
		"b:transition:HEALTH_CHECK_OK:STARTING->AVAILABLE",
	}, shared.snapshot())
}

// TestMachine_IgnoredEventStillTriggers checks that unmatched events reach Trigger only
func TestMachine_IgnoredEventStillTriggers(t *testing.T) {
	m := New(StateStarting, nil)
	r := newRecorder("r")
	m.AddObserver("r", r)

	m.Fire(EventProcessRemove)

	assert.Equal(t, StateStarting, m.State())
	assert.Equal(t, []string{"r:trigger:PROCESS_REMOVE"}, r.snapshot())
}

// TestMachine_ObserverSeesUpdatedState checks that the state is updated before fan-out
func TestMachine_ObserverSeesUpdatedState(t *testing.T) {
	m := New(StateStarting, nil)
	var seen State
	m.AddObserver("probe", ObserverFuncs{
		OnTransition: func(Transition) { seen = m.State() },
	})

	m.Fire(EventHealthCheckOK)
	assert.Equal(t, StateAvailable, seen)
}

// TestMachine_ReentrantFire checks that an event fired from a callback is
// processed after the current event reached every observer
// TestMachine_ReentrantFire 检查回调中触发的事件在当前事件送达所有观察者之后才处理
func TestMachine_ReentrantFire(t *testing.T) {
	m := New(StateAvailable, nil)
	r := newRecorder("tail")

	m.AddObserver("reentrant", ObserverFuncs{
		OnTrigger: func(event Event) {
			if event == EventProcessRemove {
				m.Enqueue(EventHealthCheckFailed)
			}
		},
	})
	m.AddObserver("tail", r)

	done := make(chan struct{})
	go func() {
		m.Fire(EventProcessRemove)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reentrant fire deadlocked / 重入触发死锁")
	}

	assert.Equal(t, StateUnavailable, m.State())
	assert.Equal(t, []string{
		"tail:trigger:PROCESS_REMOVE",
		"tail:transition:PROCESS_REMOVE:AVAILABLE->REMOVING",
		"tail:trigger:HEALTH_CHECK_FAILED",
		"tail:transition:HEALTH_CHECK_FAILED:REMOVING->UNAVAILABLE",
	}, r.snapshot())
}

// TestMachine_PanicIsolation checks that a panicking observer does not stop
// the fan-out or corrupt the state
// TestMachine_PanicIsolation 检查发生 panic 的观察者不会中断分发或破坏状态
func TestMachine_PanicIsolation(t *testing.T) {
	m := New(StateStarting, nil)
	var panicked []string
	m.SetPanicHandler(func(name string, _ any) { panicked = append(panicked, name) })

	m.AddObserver("boom", ObserverFuncs{
		OnTrigger:    func(Event) { panic("trigger failure") },
		OnTransition: func(Transition) { panic("transition failure") },
	})
	r := newRecorder("after")
	m.AddObserver("after", r)

	require.NotPanics(t, func() { m.Fire(EventHealthCheckOK) })

	assert.Equal(t, StateAvailable, m.State())
	assert.Equal(t, []string{
		"after:trigger:HEALTH_CHECK_OK",
		"after:transition:HEALTH_CHECK_OK:STARTING->AVAILABLE",
	}, r.snapshot())
	assert.Equal(t, []string{"boom", "boom"}, panicked)

	// The machine keeps working after the panic
	m.Fire(EventProcessStopped)
	assert.Equal(t, StateStopped, m.State())
}

func TestMachine_PanicIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := New(StateStarting, zap.New(core))
	m.AddObserver("boom", ObserverFuncs{
		OnTrigger: func(Event) { panic("trigger failure") },
	})

	m.Fire(EventHealthCheckOK)

	entries := logs.FilterField(zap.String("observer", "boom")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "trigger failure", entries[0].ContextMap()["panic"])
}

// TestMachine_ConcurrentFire checks that concurrent callers never lose events
func TestMachine_ConcurrentFire(t *testing.T) {
	m := New(StateStarting, nil)
	var mu sync.Mutex
	triggers := 0
	m.AddObserver("count", ObserverFuncs{
		OnTrigger: func(Event) {
			mu.Lock()
			triggers++
			mu.Unlock()
		},
	})

	const goroutines = 8
	const perGoroutine = 50
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Fire(EventHealthCheckOK)
			}
		}()
	}
	wg.Wait()

	// Fire returns only after its own event was delivered
	mu.Lock()
	assert.Equal(t, goroutines*perGoroutine, triggers)
	mu.Unlock()
	assert.Equal(t, StateAvailable, m.State())
}

// TestMachine_FireWaitsForRunningDispatch checks that a Fire from a second
// goroutine returns only after its own event has been applied and delivered
// TestMachine_FireWaitsForRunningDispatch 检查第二个 goroutine 的 Fire 在其事件被应用并送达后才返回
func TestMachine_FireWaitsForRunningDispatch(t *testing.T) {
	m := New(StateStarting, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	m.AddObserver("blocking", ObserverFuncs{
		OnTrigger: func(event Event) {
			if event == EventHealthCheckOK {
				close(entered)
				<-release
			}
		},
	})
	r := newRecorder("tail")
	m.AddObserver("tail", r)

	go m.Fire(EventHealthCheckOK)
	<-entered

	stopped := make(chan struct{})
	go func() {
		m.Fire(EventProcessStopped)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Fire returned while another dispatch was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Fire did not return after the running dispatch finished")
	}

	assert.Equal(t, StateStopped, m.State())
	assert.Equal(t, []string{
		"tail:trigger:HEALTH_CHECK_OK",
		"tail:transition:HEALTH_CHECK_OK:STARTING->AVAILABLE",
		"tail:trigger:PROCESS_STOPPED",
		"tail:transition:PROCESS_STOPPED:AVAILABLE->STOPPED",
	}, r.snapshot())
}

// TestMachine_FireContext checks that an observer context queues the event
// behind the current fan-out, and that a plain context fires it directly
// TestMachine_FireContext 检查观察者上下文会将事件排在当前通知之后，普通上下文直接触发
func TestMachine_FireContext(t *testing.T) {
	m := New(StateStopped, nil)
	r := newRecorder("tail")
	m.AddObserver("restart", ObserverFuncs{
		OnTrigger: func(event Event) {
			if event == EventProcessTerminated {
				m.FireContext(ObserverContext(context.Background()), EventProcessStarted)
			}
		},
	})
	m.AddObserver("tail", r)

	m.FireContext(context.Background(), EventProcessTerminated)

	assert.Equal(t, StateStarting, m.State())
	assert.Equal(t, []string{
		"tail:trigger:PROCESS_TERMINATED",
		"tail:trigger:PROCESS_STARTED",
		"tail:transition:PROCESS_STARTED:STOPPED->STARTING",
	}, r.snapshot())

	assert.True(t, IsObserverContext(ObserverContext(context.Background())))
	assert.False(t, IsObserverContext(context.Background()))

	// Without a running dispatch Enqueue applies the event at once
	m.Enqueue(EventHealthCheckOK)
	assert.Equal(t, StateAvailable, m.State())
}
