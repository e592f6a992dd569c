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
	"fmt"
)

// Common errors for process launching
// 进程启动的常见错误
var (
	// ErrHandleTimeout indicates the process handle was not obtained in time.
	// The spawned process, if any, is terminated in the background.
	// ErrHandleTimeout 表示未能在超时内获取进程句柄，已派生的进程会在后台被终止。
	ErrHandleTimeout = errors.New("timed out waiting for process handle / 等待进程句柄超时")

	// ErrNoExecutable indicates the command has no executable path
	// ErrNoExecutable 表示命令缺少可执行文件路径
	ErrNoExecutable = errors.New("executable path is empty / 可执行文件路径为空")

	// ErrInvalidSetting indicates a setting entry is not in key=value form
	// ErrInvalidSetting 表示配置项不是 key=value 格式
	ErrInvalidSetting = errors.New("setting must be in key=value form / 配置项必须为 key=value 格式")
)

// LaunchError is returned when spawning the OS process failed outright
// LaunchError 在派生操作系统进程直接失败时返回
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v / 启动 %s 失败", e.Executable, e.Err, e.Executable)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
