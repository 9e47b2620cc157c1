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

package etl

import (
	"context"
	"time"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/config"
	"github.com/bdm-project/scentcf/storage/warehouse"
	"github.com/cenkalti/backoff/v5"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	TaskCreateRawTable        = "create_raw_table"
	TaskLoadDataFromCSV       = "load_data_from_csv"
	TaskCreateCleanedTable    = "create_cleaned_table"
	TaskCleanAndTransformData = "clean_and_transform_data"
)

// Task is a step of the pipeline.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pipeline loads customer shopping data from CSV into the warehouse and cleans it.
type Pipeline struct {
	database warehouse.Database
	config   config.ETLConfig
	blob     config.BlobConfig
	// ShowProgress renders a progress bar while loading CSV.
	ShowProgress bool
	// RetryInterval is the initial delay before retrying a failed task.
	RetryInterval time.Duration
}

func NewPipeline(database warehouse.Database, etlConfig config.ETLConfig, blobConfig config.BlobConfig) *Pipeline {
	return &Pipeline{
		database:      database,
		config:        etlConfig,
		blob:          blobConfig,
		RetryInterval: etlConfig.RetryDelay,
	}
}

// Tasks returns tasks in execution order. Each task depends on the previous one.
func (p *Pipeline) Tasks() []Task {
	return []Task{
		{Name: TaskCreateRawTable, Run: p.CreateRawTable},
		{Name: TaskLoadDataFromCSV, Run: func(ctx context.Context) error {
			_, err := p.LoadDataFromCSV(ctx, p.config.CSVPath)
			return err
		}},
		{Name: TaskCreateCleanedTable, Run: p.CreateCleanedTable},
		{Name: TaskCleanAndTransformData, Run: func(ctx context.Context) error {
			_, err := p.CleanAndTransformData(ctx)
			return err
		}},
	}
}

// Run executes all tasks in order. A failed task is retried and the pipeline stops at
// the first task that keeps failing.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, task := range p.Tasks() {
		if err := p.runTask(ctx, task); err != nil {
			return errors.Annotatef(err, "task %s", task.Name)
		}
	}
	return nil
}

func (p *Pipeline) runTask(ctx context.Context, task Task) error {
	start := time.Now()
	log.Logger().Info("start task", zap.String("task", task.Name))
	exp := backoff.NewExponentialBackOff()
	if p.RetryInterval > 0 {
		exp.InitialInterval = p.RetryInterval
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, task.Run(ctx)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(p.config.Retries+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Logger().Warn("task failed, retrying",
				zap.String("task", task.Name), zap.Duration("delay", delay), zap.Error(err))
		}))
	if err != nil {
		log.Logger().Error("task failed", zap.String("task", task.Name), zap.Error(err))
		return err
	}
	log.Logger().Info("complete task", zap.String("task", task.Name), zap.Duration("duration", time.Since(start)))
	return nil
}

func (p *Pipeline) CreateRawTable(ctx context.Context) error {
	created, err := p.database.CreateRawTable(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if created {
		log.Logger().Info("created raw table")
	} else {
		log.Logger().Info("raw table already exists")
	}
	return nil
}

func (p *Pipeline) CreateCleanedTable(ctx context.Context) error {
	created, err := p.database.CreateCleanedTable(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if created {
		log.Logger().Info("created cleaned table")
	} else {
		log.Logger().Info("cleaned table already exists")
	}
	return nil
}

// CleanAndTransformData replaces the cleaned table with raw rows that pass integrity
// checks. It returns the number of cleaned rows.
func (p *Pipeline) CleanAndTransformData(ctx context.Context) (int64, error) {
	var dropped int
	count, err := p.database.ReplaceCleaned(ctx, func(insert func([]warehouse.CleanedRecord) error) error {
		recordChan, errChan := p.database.GetRawStream(ctx, p.config.BatchSize)
		for batch := range recordChan {
			cleaned := make([]warehouse.CleanedRecord, 0, len(batch))
			for _, raw := range batch {
				if record, ok := Clean(raw, p.config.DayFirst); ok {
					cleaned = append(cleaned, record)
				} else {
					dropped++
				}
			}
			if err := insert(cleaned); err != nil {
				// drain the stream so that the reader exits
				for range recordChan {
				}
				return errors.Trace(err)
			}
		}
		return errors.Trace(<-errChan)
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	log.Logger().Info("cleaned data saved", zap.Int64("rows", count), zap.Int("dropped", dropped))
	return count, nil
}
