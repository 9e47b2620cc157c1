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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockAnalyzer map[string]float64

func (m mockAnalyzer) Compound(text string) float64 {
	return m[text]
}

func TestSentimentToRating(t *testing.T) {
	// boundaries are inclusive lower bounds
	assert.Equal(t, 5, SentimentToRating(1))
	assert.Equal(t, 5, SentimentToRating(0.05))
	assert.Equal(t, 4, SentimentToRating(0.0499))
	assert.Equal(t, 4, SentimentToRating(0))
	assert.Equal(t, 3, SentimentToRating(-0.0001))
	assert.Equal(t, 3, SentimentToRating(-0.05))
	assert.Equal(t, 2, SentimentToRating(-0.0501))
	assert.Equal(t, 2, SentimentToRating(-0.3))
	assert.Equal(t, 1, SentimentToRating(-0.3001))
	assert.Equal(t, 1, SentimentToRating(-1))
	// out of range and NaN
	assert.Equal(t, 5, SentimentToRating(1.5))
	assert.Equal(t, 1, SentimentToRating(-1.5))
	assert.Equal(t, 4, SentimentToRating(math.NaN()))
}

func TestSentimentToRating_Monotonic(t *testing.T) {
	ratings := make(map[int]struct{})
	prev := SentimentToRating(-1)
	for i := -1000; i <= 1000; i++ {
		rating := SentimentToRating(float64(i) / 1000)
		assert.GreaterOrEqual(t, rating, prev)
		assert.GreaterOrEqual(t, rating, MinRating)
		assert.LessOrEqual(t, rating, MaxRating)
		ratings[rating] = struct{}{}
		prev = rating
	}
	assert.Len(t, ratings, 5)
}

func TestDeriveRating(t *testing.T) {
	analyzer := mockAnalyzer{
		"lovely":   0.6,
		"charming": 0.6,
		"meh":      -0.02,
		"bad":      -0.5,
	}
	// identical scores yield identical ratings
	assert.Equal(t, DeriveRating(analyzer, "lovely"), DeriveRating(analyzer, "charming"))
	assert.Equal(t, 5, DeriveRating(analyzer, "lovely"))
	assert.Equal(t, 3, DeriveRating(analyzer, "meh"))
	assert.Equal(t, 1, DeriveRating(analyzer, "bad"))
	// empty feedback scores 0
	assert.Equal(t, 4, DeriveRating(analyzer, ""))
}

func TestVADER(t *testing.T) {
	analyzer := NewVADER()
	assert.Zero(t, analyzer.Compound(""))
	assert.Zero(t, analyzer.Compound("   "))
	assert.Greater(t, analyzer.Compound("I love this perfume, it smells wonderful!"), 0.05)
	assert.Less(t, analyzer.Compound("I hate this perfume, it smells terrible and awful."), -0.3)
	assert.Equal(t, 5, DeriveRating(analyzer, "Great scent, absolutely love it"))
	assert.Equal(t, 1, DeriveRating(analyzer, "Horrible, the worst fragrance I have ever bought"))
}
