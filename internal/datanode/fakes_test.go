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

package datanode

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opendatanode/datanode/internal/adminclient"
	"github.com/opendatanode/datanode/internal/process"
	"github.com/opendatanode/datanode/internal/statemachine"
)

// fakeHandle is a process handle whose exit is driven by the test
type fakeHandle struct {
	pid      int
	done     chan struct{}
	once     sync.Once
	code     atomic.Int64
	released atomic.Int32
	sink     process.LineSink
}

func newFakeHandle(pid int, sink process.LineSink) *fakeHandle {
	h := &fakeHandle{pid: pid, done: make(chan struct{}), sink: sink}
	h.code.Store(-1)
	return h
}

func (h *fakeHandle) exit(code int) {
	h.once.Do(func() {
		h.code.Store(int64(code))
		close(h.done)
	})
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitCode() int         { return int(h.code.Load()) }
func (h *fakeHandle) Release()              { h.released.Add(1) }

func (h *fakeHandle) Info() process.Info {
	return process.Info{
		PID:       h.pid,
		StartTime: process.Some(time.Unix(1700000000, 0).UTC()),
		CPUTime:   process.None[time.Duration](),
		User:      process.Some("opensearch"),
	}
}

func (h *fakeHandle) Refresh() process.Info {
	info := h.Info()
	info.CPUTime = process.Some(2 * time.Second)
	return info
}

// fakeLauncher records launches. Stop makes the handle exit unless
// exitOnStop is cleared.
type fakeLauncher struct {
	mu         sync.Mutex
	commands   []process.Command
	handles    []*fakeHandle
	startErr   error
	stopErr    error
	exitOnStop bool
	stops      int
	kills      int
	nextPID    int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{exitOnStop: true, nextPID: 100}
}

func (l *fakeLauncher) Start(_ context.Context, c process.Command) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	l.nextPID++
	h := newFakeHandle(l.nextPID, c.Sink)
	l.commands = append(l.commands, c)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) Stop(h process.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopErr != nil {
		return l.stopErr
	}
	l.stops++
	if l.exitOnStop {
		h.(*fakeHandle).exit(143)
	}
	return nil
}

func (l *fakeLauncher) Kill(h process.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kills++
	h.(*fakeHandle).exit(137)
	return nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) handle(i int) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[i]
}

func (l *fakeLauncher) command(i int) process.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commands[i]
}

func (l *fakeLauncher) killCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.kills
}

// fakeClient is a scripted admin client
type fakeClient struct {
	mu        sync.Mutex
	health    adminclient.ClusterHealth
	healthErr error
	settings  map[string]string
	getErr    error
	putErr    error
	putAck    bool
	puts      []string
	closed    atomic.Int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{settings: map[string]string{}, putAck: true, health: adminclient.ClusterHealth{Status: "green"}}
}

func (c *fakeClient) Health(context.Context) (adminclient.ClusterHealth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health, c.healthErr
}

func (c *fakeClient) GetSetting(_ context.Context, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.settings[name]
	return v, ok, nil
}

func (c *fakeClient) PutSetting(_ context.Context, name, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return false, c.putErr
	}
	c.puts = append(c.puts, name+"="+value)
	if c.putAck {
		if value == "" {
			delete(c.settings, name)
		} else {
			c.settings[name] = value
		}
	}
	return c.putAck, nil
}

func (c *fakeClient) Close() error {
	c.closed.Add(1)
	return nil
}

type staticSeeds []string

func (s staticSeeds) ClusterAddresses(context.Context) ([]string, error) {
	return s, nil
}

// eventLog records every fired event and matched transition
type eventLog struct {
	mu          sync.Mutex
	triggers    []statemachine.Event
	transitions []statemachine.Transition
}

func (l *eventLog) Trigger(e statemachine.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggers = append(l.triggers, e)
}

func (l *eventLog) Transition(t statemachine.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, t)
}

func (l *eventLog) events() []statemachine.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]statemachine.Event(nil), l.triggers...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
