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

package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opendatanode/datanode/internal/adminclient"
	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (c *fakeClient) Health(ctx context.Context) (adminclient.ClusterHealth, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return adminclient.ClusterHealth{}, ctx.Err()
		}
	}
	return adminclient.ClusterHealth{Status: "green"}, c.err
}

func (c *fakeClient) GetSetting(context.Context, string) (string, bool, error) { return "", false, nil }
func (c *fakeClient) PutSetting(context.Context, string, string) (bool, error) { return true, nil }
func (c *fakeClient) Close() error                                             { return nil }

type fakeTarget struct {
	mu        sync.Mutex
	client    adminclient.Client
	events    []statemachine.Event
	refreshes int
}

func (t *fakeTarget) AdminClient() (adminclient.Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, t.client != nil
}

func (t *fakeTarget) OnEvent(e statemachine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *fakeTarget) RefreshNativeInfo() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshes++
}

func (t *fakeTarget) fired() []statemachine.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]statemachine.Event(nil), t.events...)
}

func TestMonitor_OK(t *testing.T) {
	target := &fakeTarget{client: &fakeClient{}}
	m := NewMonitor(target, time.Second, zap.NewNop())

	assert.True(t, m.RunOnce(context.Background()))
	assert.Equal(t, []statemachine.Event{statemachine.EventHealthCheckOK}, target.fired())
	assert.Equal(t, 1, target.refreshes)
}

func TestMonitor_Failed(t *testing.T) {
	target := &fakeTarget{client: &fakeClient{err: errors.New("red")}}
	m := NewMonitor(target, time.Second, nil)

	m.RunOnce(context.Background())
	assert.Equal(t, []statemachine.Event{statemachine.EventHealthCheckFailed}, target.fired())
}

// TestMonitor_NoClient 测试没有管理客户端时只记录日志不触发事件
func TestMonitor_NoClient(t *testing.T) {
	target := &fakeTarget{}
	m := NewMonitor(target, time.Second, nil)

	m.RunOnce(context.Background())
	assert.Empty(t, target.fired())
	assert.Equal(t, 1, target.refreshes)
}

func TestMonitor_SkipsOverlappingChecks(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	target := &fakeTarget{client: client}
	m := NewMonitor(target, time.Second, nil)

	ctx := context.Background()
	require.True(t, m.tick(ctx))
	require.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, m.tick(ctx))
	assert.False(t, m.RunOnce(ctx))
	assert.Equal(t, int64(2), m.Skipped())

	close(client.block)
	require.Eventually(t, func() bool { return len(target.fired()) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.tick(ctx) }, time.Second, time.Millisecond)
	m.wg.Wait()
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestMonitor_Loop(t *testing.T) {
	target := &fakeTarget{client: &fakeClient{}}
	m := NewMonitor(target, 5*time.Millisecond, nil)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return len(target.fired()) >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, m.Stop())

	n := len(target.fired())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(target.fired()), "no checks after stop")
	assert.NoError(t, m.Close())
}
