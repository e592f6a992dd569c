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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type pair struct {
	from  State
	event Event
}

// expectedTable lists every pair that causes a transition; all others are ignored
var expectedTable = map[pair]State{
	{StateStarting, EventProcessStarted}:    StateStarting,
	{StateAvailable, EventProcessStarted}:   StateStarting,
	{StateUnavailable, EventProcessStarted}: StateStarting,
	{StateRemoving, EventProcessStarted}:    StateStarting,
	{StateTerminated, EventProcessStarted}:  StateStarting,
	{StateStopped, EventProcessStarted}:     StateStarting,

	{StateStarting, EventHealthCheckOK}:    StateAvailable,
	{StateUnavailable, EventHealthCheckOK}: StateAvailable,

	{StateAvailable, EventHealthCheckFailed}: StateUnavailable,
	{StateRemoving, EventHealthCheckFailed}:  StateUnavailable,

	{StateAvailable, EventProcessRemove}: StateRemoving,

	{StateStarting, EventProcessTerminated}:    StateTerminated,
	{StateAvailable, EventProcessTerminated}:   StateTerminated,
	{StateUnavailable, EventProcessTerminated}: StateTerminated,
	{StateRemoving, EventProcessTerminated}:    StateTerminated,
	{StateTerminated, EventProcessTerminated}:  StateTerminated,

	{StateStarting, EventProcessStopped}:    StateStopped,
	{StateAvailable, EventProcessStopped}:   StateStopped,
	{StateUnavailable, EventProcessStopped}: StateStopped,
	{StateRemoving, EventProcessStopped}:    StateStopped,
	{StateTerminated, EventProcessStopped}:  StateStopped,
	{StateStopped, EventProcessStopped}:     StateStopped,
}

// TestNext_FullTable checks every (state, event) combination
// TestNext_FullTable 检查每个（状态，事件）组合
func TestNext_FullTable(t *testing.T) {
	for _, from := range AllStates() {
		for _, event := range AllEvents() {
			want, listed := expectedTable[pair{from, event}]
			got, matched := Next(from, event)
			if listed {
				assert.True(t, matched, "%s + %s should match", from, event)
				assert.Equal(t, want, got, "%s + %s", from, event)
			} else {
				assert.False(t, matched, "%s + %s should be ignored", from, event)
				assert.Equal(t, from, got, "ignored event must not change state")
			}
		}
	}
}

func TestNext_StoppedIgnoresTermination(t *testing.T) {
	got, matched := Next(StateStopped, EventProcessTerminated)
	assert.False(t, matched)
	assert.Equal(t, StateStopped, got)
}

func TestNext_AvailableIgnoresHealthy(t *testing.T) {
	_, matched := Next(StateAvailable, EventHealthCheckOK)
	assert.False(t, matched)
}

func TestTransition_IsReentry(t *testing.T) {
	assert.True(t, Transition{Event: EventProcessStarted, Source: StateStarting, Destination: StateStarting}.IsReentry())
	assert.False(t, Transition{Event: EventHealthCheckOK, Source: StateStarting, Destination: StateAvailable}.IsReentry())
}
