//go:build !windows

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

package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineCollector is a LineSink that records lines per stream
type lineCollector struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func newLineCollector() *lineCollector {
	return &lineCollector{lines: make(map[Stream][]string)}
}

func (c *lineCollector) OnLine(stream Stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[stream] = append(c.lines[stream], line)
}

func (c *lineCollector) get(stream Stream) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines[stream]...)
}

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d did not exit / 进程未退出", h.PID())
	}
}

// TestLauncher_CapturesOutput 测试按行采集输出，包括末尾不完整的行
func TestLauncher_CapturesOutput(t *testing.T) {
	l := NewLauncher(nil)
	sink := newLineCollector()

	h, err := l.Start(context.Background(), Command{
		Executable: "/bin/sh",
		Args:       []string{"-c", `printf 'one\ntwo\r\nthree'; printf 'err\n' 1>&2`},
		Sink:       sink,
	})
	require.NoError(t, err)
	waitDone(t, h)

	// Wait for the readers to hit EOF before releasing
	require.Eventually(t, func() bool {
		return len(sink.get(StreamStdout)) == 3 && len(sink.get(StreamStderr)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	h.Release()

	assert.Equal(t, []string{"one", "two", "three"}, sink.get(StreamStdout))
	assert.Equal(t, []string{"err"}, sink.get(StreamStderr))
	assert.Equal(t, 0, h.ExitCode())
}

func TestLauncher_Info(t *testing.T) {
	l := NewLauncher(nil)
	h, err := l.Start(context.Background(), Command{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	waitDone(t, h)
	defer h.Release()

	info := h.Info()
	assert.Equal(t, h.PID(), info.PID)
	assert.True(t, info.StartTime.Present())
	assert.True(t, info.CPUTime.Present(), "wait reports the final CPU time")
	assert.Equal(t, 3, h.ExitCode())
}

func TestLauncher_LaunchError(t *testing.T) {
	l := NewLauncher(nil)

	_, err := l.Start(context.Background(), Command{Executable: "/nonexistent/opensearch"})
	require.Error(t, err)
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "/nonexistent/opensearch", le.Executable)
	assert.True(t, IsLaunchError(err))

	_, err = l.Start(context.Background(), Command{})
	assert.ErrorIs(t, err, ErrNoExecutable)
}

// TestLauncher_StopTerminates 测试 Stop 发送终止信号且不等待退出
func TestLauncher_StopTerminates(t *testing.T) {
	l := NewLauncher(nil)
	h, err := l.Start(context.Background(), Command{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exec sleep 30"},
	})
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, l.Stop(h))
	waitDone(t, h)

	// Stopping an exited process is a no-op
	assert.NoError(t, l.Stop(h))
	assert.NoError(t, l.Kill(h))
}

// TestLauncher_HandleTimeoutKillsOrphan 测试获取句柄超时后派生的进程会被杀死
func TestLauncher_HandleTimeoutKillsOrphan(t *testing.T) {
	l := NewLauncher(nil)
	spawned := make(chan *NativeHandle, 1)
	l.spawn = func(c Command) (*NativeHandle, error) {
		time.Sleep(200 * time.Millisecond)
		h, err := l.spawnProcess(c)
		if err == nil {
			spawned <- h
		}
		return h, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h, err := l.Start(ctx, Command{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exec sleep 30"},
	})
	require.ErrorIs(t, err, ErrHandleTimeout)
	assert.Nil(t, h)

	var orphan *NativeHandle
	select {
	case orphan = <-spawned:
	case <-time.After(5 * time.Second):
		t.Fatal("process was never spawned / 进程未被派生")
	}
	waitDone(t, orphan)
	assert.False(t, orphan.Alive())
}

func TestNativeHandle_ReleaseIsIdempotent(t *testing.T) {
	l := NewLauncher(nil)
	h, err := l.Start(context.Background(), Command{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exec sleep 30"},
	})
	require.NoError(t, err)

	h.Release()
	h.Release()

	require.NoError(t, l.Kill(h))
	waitDone(t, h)
}
