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

package master

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelStep = "step"

	StepLoadDataset       = "load_dataset"
	StepComputeSimilarity = "compute_similarity"
	StepSaveSnapshot      = "save_snapshot"
)

var (
	FitStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "fit_step_seconds",
	}, []string{LabelStep})
	FitTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "fit_total_seconds",
	})
	FitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "fit_failures_total",
	})
	ActorsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "actors_total",
	})
	ItemsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "items_total",
	})
	RatingsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "ratings_total",
	})
	DuplicateRatingsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "duplicate_ratings_total",
	})
	ModelGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scentcf",
		Subsystem: "master",
		Name:      "model_generation",
	})
)
