//go:build linux

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
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// clockTicks is USER_HZ, which is 100 on every mainstream Linux architecture
// clockTicks 即 USER_HZ，主流 Linux 架构上均为 100
const clockTicks = 100

// readCPUTime returns utime+stime from /proc/<pid>/stat
// readCPUTime 从 /proc/<pid>/stat 读取 utime+stime
func readCPUTime(pid int) Optional[time.Duration] {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return None[time.Duration]()
	}
	return parseCPUTime(string(data))
}

// parseCPUTime parses the content of a stat file.
// The command name is wrapped in parentheses and may contain spaces, so
// fields are counted from the last ')'.
// parseCPUTime 解析 stat 文件内容。进程名位于括号内且可能包含空格，因此从最后一个 ')' 之后开始计数。
func parseCPUTime(stat string) Optional[time.Duration] {
	end := strings.LastIndexByte(stat, ')')
	if end < 0 {
		return None[time.Duration]()
	}
	// fields[0] is the state (field 3), utime is field 14, stime is field 15
	fields := strings.Fields(stat[end+1:])
	if len(fields) < 13 {
		return None[time.Duration]()
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return None[time.Duration]()
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return None[time.Duration]()
	}
	ticks := utime + stime
	return Some(time.Duration(ticks) * time.Second / clockTicks)
}

// lookupOwner resolves the user owning the process
// lookupOwner 解析进程所属用户
func lookupOwner(pid int) Optional[string] {
	var st unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d", pid), &st); err != nil {
		return None[string]()
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	u, err := user.LookupId(uid)
	if err != nil {
		return Some(uid)
	}
	return Some(u.Username)
}
