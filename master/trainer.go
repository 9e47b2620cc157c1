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
	"context"
	"time"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/config"
	"github.com/bdm-project/scentcf/dataset"
	"github.com/bdm-project/scentcf/model/itemcf"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/bdm-project/scentcf/storage/warehouse"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const defaultBatchSize = 1000

// Trainer builds item-based models from the warehouse, writes snapshots and publishes
// new generations to a holder.
type Trainer struct {
	database warehouse.Database
	store    blob.Store
	holder   *itemcf.Holder
	config   config.ModelConfig

	Analyzer  itemcf.SentimentAnalyzer
	BatchSize int
}

func NewTrainer(database warehouse.Database, store blob.Store, holder *itemcf.Holder, cfg config.ModelConfig) *Trainer {
	return &Trainer{
		database:  database,
		store:     store,
		holder:    holder,
		config:    cfg,
		Analyzer:  itemcf.NewVADER(),
		BatchSize: defaultBatchSize,
	}
}

// LoadDataset builds the rating matrix. Reviews are rated by sentiment, purchases are
// rated by total quantity per customer and category.
func (t *Trainer) LoadDataset(ctx context.Context) (*dataset.Matrix, error) {
	builder := dataset.NewMatrixBuilder()
	var ratings int
	switch t.config.Source {
	case config.SourcePurchases:
		quantityChan, errChan := t.database.GetCategoryQuantityStream(ctx, t.BatchSize)
		for batch := range quantityChan {
			for _, row := range batch {
				builder.Add(row.CustomerId, row.Category, row.TotalQuantity)
				ratings++
			}
		}
		if err := <-errChan; err != nil {
			return nil, errors.Trace(err)
		}
	case config.SourceReviews:
		reviewChan, errChan := t.database.GetReviewStream(ctx, t.BatchSize)
		for batch := range reviewChan {
			for _, review := range batch {
				builder.Add(review.UserId, review.ItemId, float64(itemcf.DeriveRating(t.Analyzer, review.Review)))
				ratings++
			}
		}
		if err := <-errChan; err != nil {
			return nil, errors.Trace(err)
		}
	default:
		return nil, errors.NotSupportedf("source %v", t.config.Source)
	}
	RatingsTotal.Set(float64(ratings))
	DuplicateRatingsTotal.Set(float64(builder.Duplicates()))
	if builder.Duplicates() > 0 {
		log.Logger().Warn("repeated ratings overwritten", zap.Int("duplicates", builder.Duplicates()))
	}
	return builder.Build(), nil
}

// Fit trains a model, saves its snapshot and swaps it into the holder.
func (t *Trainer) Fit(ctx context.Context) (*itemcf.Model, error) {
	startTime := time.Now()
	log.Logger().Info("start fitting model", zap.String("source", t.config.Source))

	// load dataset
	stepTime := time.Now()
	matrix, err := t.LoadDataset(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ActorsTotal.Set(float64(matrix.CountActors()))
	ItemsTotal.Set(float64(matrix.CountItems()))
	FitStepSecondsVec.WithLabelValues(StepLoadDataset).Set(time.Since(stepTime).Seconds())
	if matrix.CountItems() == 0 {
		log.Logger().Warn("empty rating matrix", zap.String("source", t.config.Source))
	}

	// compute similarity
	stepTime = time.Now()
	model, err := itemcf.Fit(ctx, matrix, t.config.Source, t.config.FitJobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	FitStepSecondsVec.WithLabelValues(StepComputeSimilarity).Set(time.Since(stepTime).Seconds())

	// save snapshot
	stepTime = time.Now()
	if err = SaveSnapshot(t.store, t.config.SnapshotName, model); err != nil {
		return nil, errors.Trace(err)
	}
	FitStepSecondsVec.WithLabelValues(StepSaveSnapshot).Set(time.Since(stepTime).Seconds())

	generation := t.holder.Swap(model)
	ModelGeneration.Set(float64(generation))
	FitTotalSeconds.Set(time.Since(startTime).Seconds())
	log.Logger().Info("complete fitting model",
		zap.Int64("generation", generation),
		zap.Int("n_actors", matrix.CountActors()),
		zap.Int("n_items", matrix.CountItems()),
		zap.Duration("time_used", time.Since(startTime)))
	return model, nil
}

// RunTasksLoop refits the model every fit period until ctx is done. It returns at once
// if the fit period is zero.
func (t *Trainer) RunTasksLoop(ctx context.Context) {
	if t.config.FitPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.FitPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := t.Fit(ctx); err != nil {
			FitFailuresTotal.Inc()
			log.Logger().Error("failed to fit model", zap.Error(err))
		}
	}
}
