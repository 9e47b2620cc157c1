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
	"context"
	"math"
	"testing"

	"github.com/bdm-project/scentcf/dataset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fit(t *testing.T, matrix *dataset.Matrix) *Model {
	model, err := Fit(context.Background(), matrix, "reviews", 2)
	require.NoError(t, err)
	return model
}

func TestModel_Recommend(t *testing.T) {
	model := fit(t, newTestMatrix())
	assert.Equal(t, Meta{Created: model.Meta().Created, Source: "reviews", Actors: 2, Items: 3}, model.Meta())

	// A rated X=5 and Y=1. sim(Z,X) > 0 and sim(Z,Y) = 0, so Z follows X.
	scores, err := model.ScoredRecommend("A", 5)
	assert.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.Equal(t, "Z", scores[0].Id)
	simZX := 20 / (5 * math.Sqrt(41))
	assert.InDelta(t, (simZX*5+0*1)/(simZX+0), scores[0].Score, 1e-12)

	// B rated X=4 and Z=5. sim(Y,X) > 0 and sim(Y,Z) = 0.
	items, err := model.Recommend("B", 5)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Y"}, items)
	prediction, err := model.Predict("B", "Y")
	assert.NoError(t, err)
	assert.InDelta(t, 4, prediction, 1e-12)
}

func TestModel_Recommend_WeightedAverage(t *testing.T) {
	builder := dataset.NewMatrixBuilder()
	builder.Add("A", "X", 5)
	builder.Add("A", "Y", 1)
	builder.Add("B", "X", 4)
	builder.Add("B", "Y", 2)
	builder.Add("B", "Z", 5)
	builder.Add("C", "Y", 5)
	matrix := builder.Build()
	model := fit(t, matrix)

	// X = (5, 4, 0), Y = (1, 2, 5), Z = (0, 5, 0)
	simZX := Cosine([]float64{0, 5, 0}, []float64{5, 4, 0})
	simZY := Cosine([]float64{0, 5, 0}, []float64{1, 2, 5})
	assert.Greater(t, simZX, simZY)
	expected := (simZX*5 + simZY*1) / (simZX + simZY)
	prediction, err := model.Predict("A", "Z")
	assert.NoError(t, err)
	assert.InDelta(t, expected, prediction, 1e-12)
	// closer to the rating of X than to the rating of Y
	assert.Less(t, math.Abs(prediction-5), math.Abs(prediction-1))

	scores, err := model.ScoredRecommend("A", 1)
	assert.NoError(t, err)
	assert.Equal(t, []Score{{Id: "Z", Score: prediction}}, scores)
}

func TestModel_Recommend_Exclusion(t *testing.T) {
	matrix := newRandomMatrix(12, 9)
	model := fit(t, matrix)
	for _, actorId := range matrix.ActorIds() {
		actorIndex, _ := matrix.ActorIndex(actorId)
		rated := lo.Map(matrix.Rated(actorIndex), func(j int, _ int) string {
			return matrix.ItemId(j)
		})
		items, err := model.Recommend(actorId, matrix.CountItems())
		assert.NoError(t, err)
		// never recommend rated items and return all candidates
		assert.Zero(t, mapset.NewSet(items...).Intersect(mapset.NewSet(rated...)).Cardinality())
		assert.Len(t, items, matrix.CountItems()-len(rated))
		// scores are descending
		scores, err := model.ScoredRecommend(actorId, matrix.CountItems())
		assert.NoError(t, err)
		for i := 1; i < len(scores); i++ {
			assert.GreaterOrEqual(t, scores[i-1].Score, scores[i].Score)
			assert.False(t, math.IsNaN(scores[i].Score))
		}
	}
}

func TestModel_Recommend_TopN(t *testing.T) {
	model := fit(t, newRandomMatrix(12, 9))
	items, err := model.Recommend("a", 0)
	assert.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	items, err = model.Recommend("a", -1)
	assert.NoError(t, err)
	assert.Empty(t, items)
	all, err := model.Recommend("a", 100)
	assert.NoError(t, err)
	top, err := model.Recommend("a", 2)
	assert.NoError(t, err)
	assert.Len(t, top, 2)
	assert.Equal(t, all[:2], top)
}

func TestModel_Recommend_Deterministic(t *testing.T) {
	matrix := newRandomMatrix(12, 9)
	model := fit(t, matrix)
	for _, actorId := range matrix.ActorIds() {
		first, err := model.Recommend(actorId, 5)
		assert.NoError(t, err)
		second, err := model.Recommend(actorId, 5)
		assert.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestModel_Recommend_TieBreak(t *testing.T) {
	// P, Q and R share no raters with X, so all candidates predict 0.
	builder := dataset.NewMatrixBuilder()
	builder.Add("A", "X", 5)
	builder.Add("B", "P", 3)
	builder.Add("B", "Q", 3)
	builder.Add("B", "R", 3)
	model := fit(t, builder.Build())
	scores, err := model.ScoredRecommend("A", 10)
	assert.NoError(t, err)
	assert.Equal(t, []Score{{Id: "P"}, {Id: "Q"}, {Id: "R"}}, scores)
}

func TestModel_Recommend_NotFound(t *testing.T) {
	model := fit(t, newTestMatrix())
	items, err := model.Recommend("unknown", 5)
	assert.Nil(t, items)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.ErrorIs(t, err, ErrActorNotExist)
	assert.ErrorContains(t, err, "unknown")
	_, err = model.Recommend("unknown", 0)
	assert.ErrorIs(t, err, ErrActorNotExist)

	_, err = model.Predict("unknown", "X")
	assert.ErrorIs(t, err, ErrActorNotExist)
	_, err = model.Predict("A", "unknown")
	assert.ErrorIs(t, err, ErrItemNotExist)
	assert.NotErrorIs(t, err, ErrActorNotExist)
}

func TestModel_ItemNeighbors(t *testing.T) {
	model := fit(t, newTestMatrix())
	neighbors, err := model.ItemNeighbors("X", 10)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Y", "Z"}, lo.Map(neighbors, func(s Score, _ int) string { return s.Id }))
	neighbors, err = model.ItemNeighbors("Y", 10)
	assert.NoError(t, err)
	assert.Len(t, neighbors, 1)
	neighbors, err = model.ItemNeighbors("Y", 0)
	assert.NoError(t, err)
	assert.Empty(t, neighbors)
	_, err = model.ItemNeighbors("W", 10)
	assert.ErrorIs(t, err, ErrItemNotExist)
}

func TestNewModel(t *testing.T) {
	similarity, err := NewSimilarity([][]float64{{1}})
	assert.NoError(t, err)
	_, err = NewModel(Meta{}, newTestMatrix(), similarity)
	assert.True(t, errors.Is(err, errors.NotValid))
}
