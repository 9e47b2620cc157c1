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

	"github.com/bdm-project/scentcf/common/parallel"
	"github.com/bdm-project/scentcf/dataset"
	"github.com/juju/errors"
)

// Similarity is a square symmetric matrix of item-item cosine similarities.
type Similarity struct {
	values [][]float64
}

// NewSimilarity wraps precomputed similarities, e.g. restored from a snapshot.
func NewSimilarity(values [][]float64) (*Similarity, error) {
	for i, row := range values {
		if len(row) != len(values) {
			return nil, errors.NotValidf("similarity row %d with %d columns for %d items", i, len(row), len(values))
		}
	}
	return &Similarity{values: values}, nil
}

// ComputeSimilarity computes cosine similarities between all item columns of a matrix.
// Rows of the upper triangle are distributed over jobs workers and mirrored.
func ComputeSimilarity(ctx context.Context, matrix *dataset.Matrix, jobs int) (*Similarity, error) {
	n := matrix.CountItems()
	columns := make([][]float64, n)
	norms := make([]float64, n)
	for j := 0; j < n; j++ {
		columns[j] = matrix.Column(j)
		norms[j] = norm(columns[j])
	}
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}
	err := parallel.Parallel(ctx, n, jobs, func(_, i int) error {
		if norms[i] == 0 {
			return nil
		}
		values[i][i] = 1
		for j := i + 1; j < n; j++ {
			if norms[j] == 0 {
				continue
			}
			s := clamp(dot(columns[i], columns[j]) / (norms[i] * norms[j]))
			values[i][j] = s
			values[j][i] = s
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Similarity{values: values}, nil
}

// Cosine returns the cosine similarity of two vectors, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot(a, b) / (na * nb))
}

func (s *Similarity) Count() int {
	return len(s.values)
}

// Get returns the similarity between two items by column indices.
func (s *Similarity) Get(i, j int) float64 {
	return s.values[i][j]
}

// Row returns similarities between an item and all items. The slice must not be modified.
func (s *Similarity) Row(i int) []float64 {
	return s.values[i]
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func clamp(x float64) float64 {
	return max(-1, min(1, x))
}
