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

// Package process spawns the search engine process and captures its output.
// process 包负责派生搜索引擎进程并采集其输出。
//
// This package provides:
// 此包提供：
// - Launcher: start and signal OS processes / 启动进程并发送信号
// - NativeHandle: OS-level identity of a running process / 运行中进程的操作系统标识
// - LogBuffer: bounded tail of stdout and stderr / stdout 和 stderr 的有界尾部缓存
// - Argument and environment builders / 参数与环境变量构建
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle is the OS-level identity of a launched process
// Handle 是已启动进程的操作系统级标识
type Handle interface {
	// PID returns the process id / 返回进程 ID
	PID() int
	// Done is closed once the process has exited / 进程退出后关闭
	Done() <-chan struct{}
	// ExitCode returns the exit code, -1 while running / 返回退出码，运行中为 -1
	ExitCode() int
	// Info returns the last known snapshot without doing I/O / 返回最近一次快照，不做 I/O
	Info() Info
	// Refresh re-reads the snapshot from the OS / 从操作系统重新读取快照
	Refresh() Info
	// Release stops the output readers and frees the pipes / 停止输出读取并释放管道
	Release()
}

// NativeHandle is the Handle of a process started by Launcher
// NativeHandle 是由 Launcher 启动的进程句柄
type NativeHandle struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu       sync.Mutex
	info     Info
	exitCode int
	exitErr  error

	pipes       []*os.File
	releaseOnce sync.Once
	readers     sync.WaitGroup
}

// PID implements Handle
func (h *NativeHandle) PID() int {
	return h.pid
}

// Done implements Handle
func (h *NativeHandle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the process has not exited yet
// Alive 判断进程是否尚未退出
func (h *NativeHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode implements Handle
func (h *NativeHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// ExitErr returns the error reported by wait, nil while running or on a clean exit
func (h *NativeHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Info implements Handle
func (h *NativeHandle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// Refresh implements Handle. After exit the CPU time reported by wait is kept.
// Refresh 实现 Handle，进程退出后保留 wait 报告的 CPU 时间。
func (h *NativeHandle) Refresh() Info {
	if !h.Alive() {
		return h.Info()
	}
	cpu := readCPUTime(h.pid)

	h.mu.Lock()
	defer h.mu.Unlock()
	if cpu.Present() && h.exitCode == -1 {
		h.info.CPUTime = cpu
	}
	return h.info
}

// Release closes the read side of the output pipes. Readers blocked on them
// return immediately; lines not yet read are discarded.
// Release 关闭输出管道的读端，阻塞中的读取立即返回，未读取的行被丢弃。
func (h *NativeHandle) Release() {
	h.releaseOnce.Do(func() {
		for _, f := range h.pipes {
			_ = f.Close()
		}
	})
	h.readers.Wait()
}

// wait reaps the process and records its final state
// wait 回收进程并记录最终状态
func (h *NativeHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	if ps := h.cmd.ProcessState; ps != nil {
		h.exitCode = ps.ExitCode()
		h.info.CPUTime = Some(ps.UserTime() + ps.SystemTime())
	}
	h.mu.Unlock()

	close(h.done)
}

// pump reads lines from r until it is closed. A trailing partial line is
// delivered as a final line.
// pump 从 r 读取行直到关闭，末尾不完整的行作为最后一行交付。
func (h *NativeHandle) pump(stream Stream, r io.Reader, sink LineSink) {
	defer h.readers.Done()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 && sink != nil {
			sink.OnLine(stream, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// Launcher starts search engine processes
// Launcher 启动搜索引擎进程
type Launcher struct {
	logger *zap.Logger

	// spawn is replaced in tests to simulate a slow fork
	spawn func(c Command) (*NativeHandle, error)
}

// NewLauncher creates a new Launcher
// NewLauncher 创建新的 Launcher
func NewLauncher(logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{logger: logger}
	l.spawn = l.spawnProcess
	return l
}

type spawnResult struct {
	handle *NativeHandle
	err    error
}

// Start launches the command and waits for its handle until ctx is done.
// On timeout ErrHandleTimeout is returned and a process that is spawned
// afterwards is killed as soon as its handle becomes available.
// Start 启动命令并在 ctx 结束前等待其句柄。
// 超时返回 ErrHandleTimeout，之后才派生成功的进程会在获得句柄后立即被杀死。
func (l *Launcher) Start(ctx context.Context, c Command) (Handle, error) {
	results := make(chan spawnResult, 1)
	go func() {
		h, err := l.spawn(c)
		results <- spawnResult{handle: h, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		l.logger.Info("process started / 进程已启动",
			zap.String("executable", c.Executable),
			zap.Int("pid", r.handle.PID()),
		)
		return r.handle, nil

	case <-ctx.Done():
		go l.reapOrphan(c.Executable, results)
		return nil, fmt.Errorf("%w: %s: %v", ErrHandleTimeout, c.Executable, ctx.Err())
	}
}

// reapOrphan kills a process whose handle arrived after Start gave up
// reapOrphan 杀死在 Start 放弃等待之后才获得句柄的进程
func (l *Launcher) reapOrphan(executable string, results <-chan spawnResult) {
	r := <-results
	if r.err != nil {
		l.logger.Warn("late launch failed / 延迟启动失败",
			zap.String("executable", executable),
			zap.Error(r.err),
		)
		return
	}
	l.logger.Warn("killing orphaned process / 杀死孤儿进程",
		zap.String("executable", executable),
		zap.Int("pid", r.handle.PID()),
	)
	if err := kill(r.handle.PID()); err != nil {
		l.logger.Error("failed to kill orphaned process / 杀死孤儿进程失败",
			zap.Int("pid", r.handle.PID()),
			zap.Error(err),
		)
	}
	<-r.handle.Done()
	r.handle.Release()
}

// Stop sends SIGTERM to the process group and returns without waiting for exit
// Stop 向进程组发送 SIGTERM，不等待进程退出
func (l *Launcher) Stop(h Handle) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	default:
	}
	l.logger.Info("terminating process / 正在终止进程", zap.Int("pid", h.PID()))
	return terminate(h.PID())
}

// Kill sends SIGKILL to the process group
// Kill 向进程组发送 SIGKILL
func (l *Launcher) Kill(h Handle) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	default:
	}
	l.logger.Warn("killing process / 正在强制杀死进程", zap.Int("pid", h.PID()))
	return kill(h.PID())
}

// spawnProcess forks the command with its output attached to pipes owned by the handle.
// Pipes are created here rather than by exec so that Wait does not close
// them and can run concurrently with the readers.
// spawnProcess 派生命令并将输出连接到句柄持有的管道。
// 管道在此创建而非由 exec 创建，使 Wait 不会关闭它们并可与读取并发执行。
func (l *Launcher) spawnProcess(c Command) (*NativeHandle, error) {
	if c.Executable == "" {
		return nil, &LaunchError{Executable: c.Executable, Err: ErrNoExecutable}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}

	cmd := exec.Command(c.Executable, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcGroupAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}
	// The child holds its own copies of the write ends
	closeAll(stdoutW, stderrW)

	pid := cmd.Process.Pid
	h := &NativeHandle{
		cmd:      cmd,
		pid:      pid,
		done:     make(chan struct{}),
		exitCode: -1,
		pipes:    []*os.File{stdoutR, stderrR},
		info: Info{
			PID:       pid,
			StartTime: Some(time.Now()),
			CPUTime:   readCPUTime(pid),
			User:      lookupOwner(pid),
		},
	}

	h.readers.Add(2)
	go h.pump(StreamStdout, stdoutR, c.Sink)
	go h.pump(StreamStderr, stderrR, c.Sink)
	go h.wait()

	return h, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// IsLaunchError reports whether err is a LaunchError
// IsLaunchError 判断 err 是否为 LaunchError
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
