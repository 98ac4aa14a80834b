// Copyright 2025 Plansight
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progress declares the job-progress sink the pipeline pushes
// execution updates to. Delivery is at-most-once best effort; the
// transport behind the sink is an external collaborator.
package progress

import "sync"

// ExecutionUpdate is one status push for an execution.
type ExecutionUpdate struct {
	ExecutionID string  `json:"execution_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Error       string  `json:"error,omitempty"`
}

// ToolExecutionUpdate is one tool-level push for an execution.
type ToolExecutionUpdate struct {
	ExecutionID string `json:"execution_id"`
	Payload     any    `json:"payload"`
}

// Sink receives execution updates grouped by execution id.
type Sink interface {
	SendExecutionUpdate(executionID, status string, progress float64, errMsg string)
	SendToolExecutionUpdate(executionID string, payload any)
}

// NopSink discards all updates.
type NopSink struct{}

func (NopSink) SendExecutionUpdate(string, string, float64, string) {}
func (NopSink) SendToolExecutionUpdate(string, any)                 {}

// ChannelSink forwards updates into buffered channels, dropping when
// the consumer lags. Useful for wiring a transport or for tests.
type ChannelSink struct {
	mu      sync.Mutex
	updates chan ExecutionUpdate
	tools   chan ToolExecutionUpdate
	closed  bool
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{
		updates: make(chan ExecutionUpdate, buffer),
		tools:   make(chan ToolExecutionUpdate, buffer),
	}
}

// Updates returns the execution update stream.
func (s *ChannelSink) Updates() <-chan ExecutionUpdate { return s.updates }

// Tools returns the tool update stream.
func (s *ChannelSink) Tools() <-chan ToolExecutionUpdate { return s.tools }

// SendExecutionUpdate pushes an update, dropping it when the buffer is
// full.
func (s *ChannelSink) SendExecutionUpdate(executionID, status string, progressVal float64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- ExecutionUpdate{ExecutionID: executionID, Status: status, Progress: progressVal, Error: errMsg}:
	default:
	}
}

// SendToolExecutionUpdate pushes a tool update, dropping when full.
func (s *ChannelSink) SendToolExecutionUpdate(executionID string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.tools <- ToolExecutionUpdate{ExecutionID: executionID, Payload: payload}:
	default:
	}
}

// Close stops accepting updates and closes the streams.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
	close(s.tools)
}

// Ensure implementations satisfy Sink.
var (
	_ Sink = NopSink{}
	_ Sink = (*ChannelSink)(nil)
)
