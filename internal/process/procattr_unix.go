//go:build !windows
// +build !windows

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
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcGroupAttr places the search engine in its own process group
// setProcGroupAttr 将搜索引擎放入独立的进程组
// Signals sent to the data node do not reach the engine, and the engine
// together with the helpers it forks can be signalled as one group
// 发给数据节点的信号不会波及引擎，引擎及其派生的子进程可以作为一个组接收信号
func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group / 创建新进程组
	}
}

// signalGroup sends sig to the process group led by pid.
// A group that no longer exists is not an error.
// signalGroup 向以 pid 为组长的进程组发送信号，进程组已不存在不视为错误。
func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func terminate(pid int) error {
	return signalGroup(pid, unix.SIGTERM)
}

func kill(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}
