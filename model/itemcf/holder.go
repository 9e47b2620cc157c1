// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package itemcf

import (
	"go.uber.org/atomic"
)

type generation struct {
	id    int64
	model *Model
}

// Holder publishes the current model generation to concurrent readers.
type Holder struct {
	current atomic.Pointer[generation]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Load returns the current model and its generation number. It returns a nil model
// before the first Swap.
func (h *Holder) Load() (*Model, int64) {
	g := h.current.Load()
	if g == nil {
		return nil, 0
	}
	return g.model, g.id
}

// Swap publishes a fully built model and returns its generation number.
func (h *Holder) Swap(model *Model) int64 {
	for {
		prev := h.current.Load()
		next := &generation{id: 1, model: model}
		if prev != nil {
			next.id = prev.id + 1
		}
		if h.current.CompareAndSwap(prev, next) {
			return next.id
		}
	}
}
