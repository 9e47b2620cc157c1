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
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/bdm-project/scentcf/dataset"
	"github.com/juju/errors"
)

var (
	ErrActorNotExist = errors.NotFoundf("actor")
	ErrItemNotExist  = errors.NotFoundf("item")
)

// Meta describes a generation of the model.
type Meta struct {
	Created time.Time `json:"created"`
	Source  string    `json:"source"`
	Actors  int       `json:"actors"`
	Items   int       `json:"items"`
}

// Score is an item with its predicted rating.
type Score struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
}

// Model is an item-based collaborative filtering model. It is immutable once built and
// safe for concurrent use.
type Model struct {
	meta       Meta
	matrix     *dataset.Matrix
	similarity *Similarity
}

// Fit computes item similarities of a rating matrix and creates a model.
func Fit(ctx context.Context, matrix *dataset.Matrix, source string, jobs int) (*Model, error) {
	similarity, err := ComputeSimilarity(ctx, matrix, jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewModel(Meta{
		Created: time.Now().UTC(),
		Source:  source,
	}, matrix, similarity)
}

// NewModel creates a model from a rating matrix and its item similarities. Counts in
// meta are filled from the matrix.
func NewModel(meta Meta, matrix *dataset.Matrix, similarity *Similarity) (*Model, error) {
	if similarity.Count() != matrix.CountItems() {
		return nil, errors.NotValidf("similarity of %d items for %d items", similarity.Count(), matrix.CountItems())
	}
	meta.Actors = matrix.CountActors()
	meta.Items = matrix.CountItems()
	return &Model{meta: meta, matrix: matrix, similarity: similarity}, nil
}

func (m *Model) Meta() Meta {
	return m.meta
}

func (m *Model) Matrix() *dataset.Matrix {
	return m.matrix
}

func (m *Model) Similarity() *Similarity {
	return m.similarity
}

// Recommend returns at most topN items the actor has not rated, ordered by predicted
// rating. Items with equal predictions keep their column order.
func (m *Model) Recommend(actorId string, topN int) ([]string, error) {
	scores, err := m.ScoredRecommend(actorId, topN)
	if err != nil {
		return nil, err
	}
	items := make([]string, len(scores))
	for i, score := range scores {
		items[i] = score.Id
	}
	return items, nil
}

// ScoredRecommend is Recommend with predicted ratings.
func (m *Model) ScoredRecommend(actorId string, topN int) ([]Score, error) {
	actorIndex, exist := m.matrix.ActorIndex(actorId)
	if !exist {
		return nil, errors.Annotate(ErrActorNotExist, actorId)
	}
	if topN <= 0 {
		return []Score{}, nil
	}
	row := m.matrix.Row(actorIndex)
	rated := m.matrix.Rated(actorIndex)
	scores := make([]Score, 0, len(row)-len(rated))
	for itemIndex, rating := range row {
		if rating > dataset.Unrated {
			continue
		}
		scores = append(scores, Score{
			Id:    m.matrix.ItemId(itemIndex),
			Score: m.predict(row, rated, itemIndex),
		})
	}
	slices.SortStableFunc(scores, func(a, b Score) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(scores) > topN {
		scores = scores[:topN]
	}
	return scores, nil
}

// Predict returns the predicted rating of an actor on an item. The rating of the item
// itself is left out, so a rated item gets the rating its neighbors suggest.
func (m *Model) Predict(actorId, itemId string) (float64, error) {
	actorIndex, exist := m.matrix.ActorIndex(actorId)
	if !exist {
		return 0, errors.Annotate(ErrActorNotExist, actorId)
	}
	itemIndex, exist := m.matrix.ItemIndex(itemId)
	if !exist {
		return 0, errors.Annotate(ErrItemNotExist, itemId)
	}
	return m.predict(m.matrix.Row(actorIndex), m.matrix.Rated(actorIndex), itemIndex), nil
}

// predict is the similarity-weighted mean of the ratings on rated items. A non-positive
// similarity sum predicts 0.
func (m *Model) predict(row []float64, rated []int, itemIndex int) float64 {
	var weighted, sum float64
	similarities := m.similarity.Row(itemIndex)
	for _, r := range rated {
		if r == itemIndex {
			continue
		}
		weighted += similarities[r] * row[r]
		sum += similarities[r]
	}
	if sum <= 0 {
		return 0
	}
	return weighted / sum
}

// ItemNeighbors returns at most n items most similar to an item. Items with zero
// similarity are left out.
func (m *Model) ItemNeighbors(itemId string, n int) ([]Score, error) {
	itemIndex, exist := m.matrix.ItemIndex(itemId)
	if !exist {
		return nil, errors.Annotate(ErrItemNotExist, itemId)
	}
	if n <= 0 {
		return []Score{}, nil
	}
	var neighbors []Score
	for j, s := range m.similarity.Row(itemIndex) {
		if j != itemIndex && s > 0 {
			neighbors = append(neighbors, Score{Id: m.matrix.ItemId(j), Score: s})
		}
	}
	slices.SortStableFunc(neighbors, func(a, b Score) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(neighbors) > n {
		neighbors = neighbors[:n]
	}
	if neighbors == nil {
		neighbors = []Score{}
	}
	return neighbors, nil
}
