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
	"strings"

	"github.com/jonreiter/govader"
)

// SentimentAnalyzer scores free text. Compound returns a value in [-1, 1].
type SentimentAnalyzer interface {
	Compound(text string) float64
}

// VADER is the lexicon-based sentiment analyzer used by default.
type VADER struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVADER() *VADER {
	return &VADER{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VADER) Compound(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return v.analyzer.PolarityScores(text).Compound
}

const (
	MinRating = 1
	MaxRating = 5
)

// SentimentToRating maps a compound score to a rating in [MinRating, MaxRating].
// Bands are checked from the top and the first match wins.
func SentimentToRating(score float64) int {
	if math.IsNaN(score) {
		score = 0
	}
	score = max(-1, min(1, score))
	switch {
	case score >= 0.05:
		return 5
	case score >= 0:
		return 4
	case score >= -0.05:
		return 3
	case score >= -0.3:
		return 2
	default:
		return 1
	}
}

// DeriveRating converts a piece of feedback into a rating.
func DeriveRating(analyzer SentimentAnalyzer, feedback string) int {
	if feedback == "" {
		return SentimentToRating(0)
	}
	return SentimentToRating(analyzer.Compound(feedback))
}
