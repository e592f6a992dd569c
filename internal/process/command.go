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
	"sort"
	"strings"
)

// DefaultConflictingEnv lists host variables that would override the
// runtime bundled with the search engine
// DefaultConflictingEnv 列出会覆盖搜索引擎自带运行时的宿主环境变量
var DefaultConflictingEnv = []string{
	"JAVA_HOME",
	"JAVA_OPTS",
	"JAVA_TOOL_OPTIONS",
	"OPENSEARCH_JAVA_HOME",
	"OPENSEARCH_JAVA_OPTS",
}

// LineSink consumes completed output lines of a process
// LineSink 消费进程输出的完整行
type LineSink interface {
	OnLine(stream Stream, line string)
}

// LineSinkFunc adapts a function to LineSink
type LineSinkFunc func(stream Stream, line string)

// OnLine implements LineSink
func (f LineSinkFunc) OnLine(stream Stream, line string) {
	f(stream, line)
}

// Command describes a process to launch
// Command 描述要启动的进程
type Command struct {
	// Executable is the absolute path of the binary / 可执行文件的绝对路径
	Executable string
	// Args is the ordered argument vector / 有序参数列表
	Args []string
	// Env is the complete environment, nil inherits the host / 完整环境变量，nil 表示继承宿主
	Env []string
	// Dir is the working directory / 工作目录
	Dir string
	// Sink receives every output line, may be nil / 接收每一行输出，可以为 nil
	Sink LineSink
}

// Setting is a single configuration entry passed on the command line
// Setting 是通过命令行传递的单个配置项
type Setting struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// String renders the setting as key=value
func (s Setting) String() string {
	return s.Key + "=" + s.Value
}

// Arg renders the setting as a single flag token
// Arg 将配置项渲染为单个命令行参数
func (s Setting) Arg() string {
	return "-E" + s.Key + "=" + s.Value
}

// ParseSetting parses a key=value entry. The value may contain '='.
// ParseSetting 解析 key=value 条目，值中可以包含 '='。
func ParseSetting(entry string) (Setting, error) {
	key, value, found := strings.Cut(entry, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return Setting{}, fmt.Errorf("%w: %q", ErrInvalidSetting, entry)
	}
	return Setting{Key: key, Value: value}, nil
}

// ParseSettings parses entries in order
// ParseSettings 按顺序解析配置条目
func ParseSettings(entries []string) ([]Setting, error) {
	settings := make([]Setting, 0, len(entries))
	for _, entry := range entries {
		s, err := ParseSetting(entry)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, nil
}

// BuildArgs renders settings as -E flags, keeping their order.
// A repeated key keeps the position of its first occurrence and the value
// of its last one.
// BuildArgs 将配置项渲染为 -E 参数并保持顺序。
// 重复的键保留首次出现的位置和最后一次的值。
func BuildArgs(settings []Setting, extra ...string) []string {
	index := make(map[string]int, len(settings))
	merged := make([]Setting, 0, len(settings))
	for _, s := range settings {
		if i, ok := index[s.Key]; ok {
			merged[i].Value = s.Value
			continue
		}
		index[s.Key] = len(merged)
		merged = append(merged, s)
	}

	args := make([]string, 0, len(merged)+len(extra))
	for _, s := range merged {
		args = append(args, s.Arg())
	}
	return append(args, extra...)
}

// BuildEnv derives the process environment from the host environment.
// Conflicting keys are dropped, then overrides are applied; overrides always win.
// BuildEnv 从宿主环境推导进程环境：先移除冲突变量，再应用覆盖值，覆盖值始终优先。
func BuildEnv(host []string, conflicting []string, overrides map[string]string) []string {
	drop := make(map[string]struct{}, len(conflicting)+len(overrides))
	for _, k := range conflicting {
		drop[k] = struct{}{}
	}
	for k := range overrides {
		drop[k] = struct{}{}
	}

	env := make([]string, 0, len(host)+len(overrides))
	for _, kv := range host {
		k, _, _ := strings.Cut(kv, "=")
		if _, skip := drop[k]; skip {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
