// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package topic implements named, fixed-depth channels used for asynchronous
// hand-off between chains (tees, MPSC sources).
package topic

import (
	"fmt"
	"sync"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// DefaultDepth is the channel capacity used when a topology does not
// override it, matching config/topology.rs's channel::<Message>(5).
const DefaultDepth = 5

// Holder owns one bounded channel per declared topic name. Its receiving end
// is single-consumer and is handed out exactly once via GetRx; its sending
// end is cloneable via GetTx.
type Holder struct {
	mu   sync.Mutex
	tx   map[string]chan<- message.Messages
	rx   map[string]chan message.Messages
	used map[string]bool
}

// NewHolder allocates one channel of DefaultDepth per name in names.
func NewHolder(names []string) *Holder {
	return NewHolderWithDepth(names, DefaultDepth)
}

// NewHolderWithDepth is NewHolder with an explicit channel depth.
func NewHolderWithDepth(names []string, depth int) *Holder {
	if depth <= 0 {
		depth = DefaultDepth
	}
	h := &Holder{
		tx:   make(map[string]chan<- message.Messages, len(names)),
		rx:   make(map[string]chan message.Messages, len(names)),
		used: make(map[string]bool, len(names)),
	}
	for _, name := range names {
		ch := make(chan message.Messages, depth)
		h.tx[name] = ch
		h.rx[name] = ch
	}
	return h
}

// GetRx removes and returns the receiving end of a named topic. Calling it
// twice for the same name returns ok=false the second time: the receiver is
// single-consumer by contract.
func (h *Holder) GetRx(name string) (<-chan message.Messages, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.rx[name]
	if !ok {
		return nil, false
	}
	delete(h.rx, name)
	return ch, true
}

// GetTx returns the (cloneable, by virtue of being a plain channel value)
// sending end of a named topic.
func (h *Holder) GetTx(name string) (chan<- message.Messages, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.tx[name]
	return ch, ok
}

// Has reports whether name was declared.
func (h *Holder) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tx[name]
	return ok
}

// TrySend is a non-blocking, best-effort publish used by the tee transform:
// lossy by design under backpressure, and never duplicates (it always sends
// at most once per call).
func TrySend(tx chan<- message.Messages, m message.Messages) bool {
	select {
	case tx <- m:
		return true
	default:
		return false
	}
}

// ErrUnknownTopic is returned by topology construction when a chain
// references a topic name that was not declared in named_topics.
type ErrUnknownTopic struct{ Name string }

func (e ErrUnknownTopic) Error() string {
	return fmt.Sprintf("unknown topic %q: not declared in named_topics", e.Name)
}
