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

package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingStarter counts Start calls and optionally fires PROCESS_STARTED
// back into a machine, the way the managed process does
type countingStarter struct {
	mu      sync.Mutex
	calls   int
	err     error
	machine *statemachine.Machine
}

func (s *countingStarter) Start(ctx context.Context) error {
	s.mu.Lock()
	s.calls++
	err, m := s.err, s.machine
	s.mu.Unlock()
	if err == nil && m != nil {
		m.FireContext(ctx, statemachine.EventProcessStarted)
	}
	return err
}

func (s *countingStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFailuresCounter(t *testing.T) {
	c := NewFailuresCounter(2)
	assert.False(t, c.Failed())
	c.Increment()
	c.Increment()
	c.Increment()
	assert.Equal(t, 2, c.Count())
	assert.True(t, c.Failed())
	c.Reset()
	assert.Equal(t, 0, c.Count())

	assert.True(t, NewFailuresCounter(-1).Failed())
}

// TestWatchdog_BudgetExhausted 测试 max=2 时恰好重启两次后停用
func TestWatchdog_BudgetExhausted(t *testing.T) {
	starter := &countingStarter{}
	w := New(starter, 2, zap.NewNop())

	w.Trigger(statemachine.EventProcessStarted)
	w.Trigger(statemachine.EventProcessTerminated)
	w.Trigger(statemachine.EventProcessTerminated)
	w.Trigger(statemachine.EventProcessTerminated)

	assert.Equal(t, 2, starter.count())
	assert.False(t, w.Active())

	// Further terminations are ignored until re-armed
	w.Trigger(statemachine.EventProcessTerminated)
	assert.Equal(t, 2, starter.count())
}

func TestWatchdog_InactiveIgnoresTermination(t *testing.T) {
	starter := &countingStarter{}
	w := New(starter, 3, nil)
	w.Trigger(statemachine.EventProcessTerminated)
	assert.Zero(t, starter.count())
}

func TestWatchdog_HealthyRunResetsCounter(t *testing.T) {
	starter := &countingStarter{}
	w := New(starter, 2, nil)

	w.Trigger(statemachine.EventProcessStarted)
	w.Trigger(statemachine.EventProcessTerminated)
	w.Trigger(statemachine.EventProcessTerminated)
	assert.Equal(t, 2, w.Failures())

	w.Trigger(statemachine.EventHealthCheckOK)
	assert.Equal(t, 0, w.Failures())

	w.Trigger(statemachine.EventProcessTerminated)
	assert.Equal(t, 3, starter.count())
	assert.True(t, w.Active())
}

func TestWatchdog_StopDisarms(t *testing.T) {
	starter := &countingStarter{}
	w := New(starter, 5, nil)

	w.Trigger(statemachine.EventProcessStarted)
	w.Trigger(statemachine.EventProcessStopped)
	w.Trigger(statemachine.EventProcessTerminated)

	assert.Zero(t, starter.count())
	assert.False(t, w.Active())
}

// A failed restart still counts and leaves the watchdog armed
func TestWatchdog_FailedRestartCounts(t *testing.T) {
	starter := &countingStarter{err: errors.New("launch failed")}
	w := New(starter, 3, nil)

	var attempts []int
	var errs []error
	w.SetCallback(func(attempt int, err error) {
		attempts = append(attempts, attempt)
		errs = append(errs, err)
	})

	w.Trigger(statemachine.EventProcessStarted)
	w.Trigger(statemachine.EventProcessTerminated)

	assert.Equal(t, 1, w.Failures())
	assert.True(t, w.Active())
	assert.Equal(t, []int{1}, attempts)
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

// TestWatchdog_ReentrantRestart 测试在状态机分发过程中重启并重新触发 PROCESS_STARTED
func TestWatchdog_ReentrantRestart(t *testing.T) {
	m := statemachine.New(statemachine.StateStarting, zap.NewNop())
	starter := &countingStarter{machine: m}
	w := New(starter, 1, nil)
	m.AddObserver("watchdog", w)

	m.Fire(statemachine.EventProcessStarted)
	m.Fire(statemachine.EventProcessTerminated)

	assert.Equal(t, 1, starter.count())
	assert.Equal(t, statemachine.StateStarting, m.State(), "restart is dispatched after the termination")
	assert.True(t, w.Active())

	m.Fire(statemachine.EventProcessTerminated)
	assert.Equal(t, 1, starter.count())
	assert.False(t, w.Active())
	assert.Equal(t, statemachine.StateTerminated, m.State())
}
