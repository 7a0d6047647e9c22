// Copyright 2025 AUTHORS
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

package logdaemon

import "sync"

// hub is the live-topic pub/sub endpoint: the log writer publishes
// every accepted non-no_publish record here, with the app name (or
// "root") as the topic.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Record]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan Record]struct{})}
}

const hubBufferSize = 64

// subscribe returns a channel that receives every Record published on
// topic after this call, and a cancel function that must be called when
// the subscriber is done.
func (h *hub) subscribe(topic string) (ch chan Record, cancel func()) {
	ch = make(chan Record, hubBufferSize)

	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[chan Record]struct{})
		h.subs[topic] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[topic]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
		close(ch)
	}
	return ch, cancel
}

// publish fans rec out to every current subscriber of topic. A
// subscriber whose buffer is full is skipped rather than blocking the
// publisher; a slow WebSocket client must never stall log ingestion.
func (h *hub) publish(topic string, rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- rec:
		default:
		}
	}
}
