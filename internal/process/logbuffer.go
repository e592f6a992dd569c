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

import "sync"

// DefaultLogBufferSize is the default number of lines kept per stream
// DefaultLogBufferSize 是每个流默认保留的行数
const DefaultLogBufferSize = 500

// Stream identifies one of the output streams of a process
// Stream 标识进程的输出流
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Ring is a fixed-capacity FIFO of lines that overwrites the oldest entry when full
// Ring 是固定容量的行 FIFO，满时覆盖最旧的条目
type Ring struct {
	mu    sync.Mutex
	lines []string
	head  int
	count int
}

// NewRing creates a ring holding at most capacity lines
// NewRing 创建最多保存 capacity 行的环形缓冲区
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultLogBufferSize
	}
	return &Ring{lines: make([]string, capacity)}
}

// Offer appends a line, dropping the oldest one on overflow
// Offer 追加一行，溢出时丢弃最旧的一行
func (r *Ring) Offer(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % len(r.lines)
	r.lines[tail] = line
	if r.count < len(r.lines) {
		r.count++
		return
	}
	r.head = (r.head + 1) % len(r.lines)
}

// Snapshot returns a copy of the buffered lines, oldest first
// Snapshot 返回缓冲行的副本，最旧的在前
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.head+i)%len(r.lines)]
	}
	return out
}

// Len returns the number of buffered lines
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the capacity of the ring
func (r *Ring) Cap() int {
	return len(r.lines)
}

// LogBuffer keeps the most recent stdout and stderr lines of a process
// LogBuffer 保存进程最近的 stdout 和 stderr 输出行
type LogBuffer struct {
	stdout *Ring
	stderr *Ring
}

// NewLogBuffer creates a buffer with the given capacity per stream
// NewLogBuffer 创建每个流具有给定容量的缓冲区
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		stdout: NewRing(capacity),
		stderr: NewRing(capacity),
	}
}

// Offer appends a line to the matching stream
// Offer 将一行追加到对应的流
func (b *LogBuffer) Offer(stream Stream, line string) {
	b.ring(stream).Offer(line)
}

// Snapshot returns the buffered lines of a stream, oldest first
// Snapshot 返回某个流的缓冲行，最旧的在前
func (b *LogBuffer) Snapshot(stream Stream) []string {
	return b.ring(stream).Snapshot()
}

// Capacity returns the per-stream capacity
func (b *LogBuffer) Capacity() int {
	return b.stdout.Cap()
}

// OnLine implements LineSink
func (b *LogBuffer) OnLine(stream Stream, line string) {
	b.Offer(stream, line)
}

func (b *LogBuffer) ring(stream Stream) *Ring {
	if stream == StreamStderr {
		return b.stderr
	}
	return b.stdout
}
