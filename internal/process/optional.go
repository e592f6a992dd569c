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
	"encoding/json"
	"time"
)

// Optional holds a value the operating system may not be able to provide
// Optional 保存操作系统可能无法提供的值
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present
// Get 返回值以及该值是否存在
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether the value is set
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value or the fallback when absent
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// MarshalJSON encodes an absent value as null
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// Info is a snapshot of what the operating system reports about a process
// Info 是操作系统对进程报告信息的快照
type Info struct {
	PID       int                     `json:"pid"`
	StartTime Optional[time.Time]     `json:"start_time"`
	CPUTime   Optional[time.Duration] `json:"cpu_time"`
	User      Optional[string]        `json:"user"`
}
