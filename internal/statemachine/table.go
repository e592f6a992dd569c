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

package statemachine

// Next returns the destination state for the given state and event.
// The second return value is false when the pair is not in the transition
// table; the event is then ignored and the state does not change.
// Next 返回给定状态和事件对应的目标状态。
// 当该组合不在转换表中时第二个返回值为 false，事件被忽略，状态不变。
func Next(from State, event Event) (State, bool) {
	switch event {
	case EventProcessStarted:
		return StateStarting, true

	case EventProcessStopped:
		return StateStopped, true

	case EventProcessTerminated:
		// A process that was stopped on purpose does not count as crashed
		// 主动停止的进程不算崩溃
		if from == StateStopped {
			return from, false
		}
		return StateTerminated, true

	case EventHealthCheckOK:
		switch from {
		case StateStarting, StateUnavailable:
			return StateAvailable, true
		}

	case EventHealthCheckFailed:
		switch from {
		case StateAvailable, StateRemoving:
			return StateUnavailable, true
		}

	case EventProcessRemove:
		if from == StateAvailable {
			return StateRemoving, true
		}
	}

	return from, false
}
