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

package dataset

import (
	"github.com/juju/errors"
)

// Unrated is the value of a cell without a rating.
const Unrated = 0

// Matrix is a dense actor×item rating matrix. Rows and columns keep the order in which
// actors and items were first seen. A Matrix is never modified after it is built.
type Matrix struct {
	actors *FreqDict
	items  *FreqDict
	values [][]float64
}

// NewMatrix creates a matrix from ids and dense values. It is used to restore a matrix
// from a snapshot.
func NewMatrix(actorIds, itemIds []string, values [][]float64) (*Matrix, error) {
	if len(values) != len(actorIds) {
		return nil, errors.NotValidf("matrix with %d rows for %d actors", len(values), len(actorIds))
	}
	m := &Matrix{
		actors: NewFreqDict(),
		items:  NewFreqDict(),
		values: values,
	}
	for _, actorId := range actorIds {
		if _, exist := m.actors.Index(actorId); exist {
			return nil, errors.NotValidf("duplicate actor %v", actorId)
		}
		m.actors.Id(actorId)
	}
	for _, itemId := range itemIds {
		if _, exist := m.items.Index(itemId); exist {
			return nil, errors.NotValidf("duplicate item %v", itemId)
		}
		m.items.Id(itemId)
	}
	for i, row := range values {
		if len(row) != len(itemIds) {
			return nil, errors.NotValidf("row %d with %d columns for %d items", i, len(row), len(itemIds))
		}
	}
	return m, nil
}

func (m *Matrix) CountActors() int {
	return m.actors.Count()
}

func (m *Matrix) CountItems() int {
	return m.items.Count()
}

func (m *Matrix) ActorIds() []string {
	return m.actors.Strings()
}

func (m *Matrix) ItemIds() []string {
	return m.items.Strings()
}

func (m *Matrix) ActorIndex(actorId string) (int, bool) {
	return m.actors.Index(actorId)
}

func (m *Matrix) ItemIndex(itemId string) (int, bool) {
	return m.items.Index(itemId)
}

func (m *Matrix) ActorId(index int) string {
	s, _ := m.actors.String(index)
	return s
}

func (m *Matrix) ItemId(index int) string {
	s, _ := m.items.String(index)
	return s
}

// Get returns the rating of an actor on an item by indices.
func (m *Matrix) Get(actorIndex, itemIndex int) float64 {
	return m.values[actorIndex][itemIndex]
}

// Row returns the ratings of an actor. The returned slice must not be modified.
func (m *Matrix) Row(actorIndex int) []float64 {
	return m.values[actorIndex]
}

// Column returns a copy of the ratings on an item across all actors.
func (m *Matrix) Column(itemIndex int) []float64 {
	column := make([]float64, len(m.values))
	for i := range m.values {
		column[i] = m.values[i][itemIndex]
	}
	return column
}

// Rated returns indices of items rated by an actor in column order.
func (m *Matrix) Rated(actorIndex int) []int {
	var rated []int
	for j, v := range m.values[actorIndex] {
		if v > Unrated {
			rated = append(rated, j)
		}
	}
	return rated
}

type cell struct {
	actor int
	item  int
	value float64
}

// MatrixBuilder collects (actor, item, value) triples and builds a dense Matrix.
// If a pair repeats, the last value wins.
type MatrixBuilder struct {
	actors     *FreqDict
	items      *FreqDict
	cells      []cell
	seen       map[[2]int]struct{}
	duplicates int
}

func NewMatrixBuilder() *MatrixBuilder {
	return &MatrixBuilder{
		actors: NewFreqDict(),
		items:  NewFreqDict(),
		seen:   make(map[[2]int]struct{}),
	}
}

func (b *MatrixBuilder) Add(actorId, itemId string, value float64) {
	c := cell{actor: b.actors.Id(actorId), item: b.items.Id(itemId), value: value}
	key := [2]int{c.actor, c.item}
	if _, exist := b.seen[key]; exist {
		b.duplicates++
	} else {
		b.seen[key] = struct{}{}
	}
	b.cells = append(b.cells, c)
}

// Duplicates returns the number of overwritten pairs.
func (b *MatrixBuilder) Duplicates() int {
	return b.duplicates
}

// Build creates the matrix. The builder must not be used afterwards.
func (b *MatrixBuilder) Build() *Matrix {
	values := make([][]float64, b.actors.Count())
	for i := range values {
		values[i] = make([]float64, b.items.Count())
	}
	for _, c := range b.cells {
		values[c.actor][c.item] = c.value
	}
	return &Matrix{
		actors: b.actors,
		items:  b.items,
		values: values,
	}
}
