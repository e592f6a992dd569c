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

import "sync"

// FailuresCounter counts consecutive restart attempts up to a maximum
// FailuresCounter 统计连续重启次数，上限为给定最大值
type FailuresCounter struct {
	mu    sync.Mutex
	count int
	max   int
}

// NewFailuresCounter creates a counter. A negative max is treated as zero.
// NewFailuresCounter 创建计数器，负数上限视为 0。
func NewFailuresCounter(max int) *FailuresCounter {
	if max < 0 {
		max = 0
	}
	return &FailuresCounter{max: max}
}

// Increment adds one failure, never going beyond max
// Increment 增加一次失败计数，不超过上限
func (c *FailuresCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count < c.max {
		c.count++
	}
}

// Reset clears the failure history
// Reset 清除失败历史
func (c *FailuresCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// Count returns the current number of failures
func (c *FailuresCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Max returns the configured maximum
func (c *FailuresCounter) Max() int {
	return c.max
}

// Failed reports whether the maximum has been reached
// Failed 报告是否已达到上限
func (c *FailuresCounter) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count >= c.max
}
