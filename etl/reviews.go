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
	"io"
	"strings"

	"github.com/bdm-project/scentcf/base"
	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/bdm-project/scentcf/storage/warehouse"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

var reviewColumns = []string{"user_id", "item_id", "review"}

// LoadReviews appends reviews from a CSV file with user_id, item_id and review columns.
// Rows with invalid ids are skipped. It returns the number of loaded reviews.
func (p *Pipeline) LoadReviews(ctx context.Context, path string) (int, error) {
	if err := p.database.Init(); err != nil {
		return 0, errors.Trace(err)
	}
	file, err := blob.OpenObject(path, p.blob)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer file.Close()
	count, skipped, err := p.loadReviews(ctx, file)
	if err != nil {
		return count, errors.Trace(err)
	}
	log.Logger().Info("loaded reviews", zap.String("path", path), zap.Int("rows", count), zap.Int("skipped", skipped))
	return count, nil
}

func (p *Pipeline) loadReviews(ctx context.Context, r io.Reader) (int, int, error) {
	var (
		columns map[string]int
		batch   []warehouse.Review
		count   int
		skipped int
		err     error
	)
	flush := func() bool {
		if err = p.database.BatchInsertReviews(ctx, batch); err != nil {
			return false
		}
		count += len(batch)
		batch = batch[:0]
		return true
	}
	readErr := base.ReadLines(base.NewScanner(r), ",", func(i int, fields []string) bool {
		if i == 0 {
			columns, err = parseHeader(fields, reviewColumns)
			return err == nil
		}
		field := func(name string) string {
			if i := columns[name]; i < len(fields) {
				return fields[i]
			}
			return ""
		}
		review := warehouse.Review{
			UserId: strings.TrimSpace(field("user_id")),
			ItemId: strings.TrimSpace(field("item_id")),
			Review: field("review"),
		}
		if base.ValidateId(review.UserId) != nil || base.ValidateId(review.ItemId) != nil {
			skipped++
			return true
		}
		batch = append(batch, review)
		if len(batch) >= p.config.BatchSize {
			return flush()
		}
		return true
	})
	if readErr != nil {
		return count, skipped, errors.Trace(readErr)
	}
	if err != nil {
		return count, skipped, errors.Trace(err)
	}
	if columns == nil {
		return 0, 0, errors.NotValidf("empty csv")
	}
	if !flush() {
		return count, skipped, errors.Trace(err)
	}
	return count, skipped, nil
}
