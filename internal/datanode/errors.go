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

import "errors"

// Error definitions for the datanode package.
// datanode 包的错误定义。
var (
	// ErrNotConfigured indicates start was called before Configure
	// ErrNotConfigured 表示在 Configure 之前调用了 start
	ErrNotConfigured = errors.New("search engine process is not configured / 搜索引擎进程尚未配置")

	// ErrClosed indicates the managed process has been shut down
	// ErrClosed 表示受管进程已关闭
	ErrClosed = errors.New("managed process is closed / 受管进程已关闭")

	// ErrInvalidConfig indicates the process configuration is invalid
	// ErrInvalidConfig 表示进程配置无效
	ErrInvalidConfig = errors.New("invalid process configuration / 无效的进程配置")
)
