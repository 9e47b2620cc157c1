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
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/bdm-project/scentcf/base"
	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/bdm-project/scentcf/storage/warehouse"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var rawColumns = []string{
	"invoice_no",
	"customer_id",
	"gender",
	"age",
	"category",
	"quantity",
	"price",
	"payment_method",
	"invoice_date",
	"shopping_mall",
}

// LoadDataFromCSV appends rows of a CSV file to the raw table. The path is either a
// local path or an object URI. It returns the number of loaded rows.
func (p *Pipeline) LoadDataFromCSV(ctx context.Context, path string) (int, error) {
	file, err := blob.OpenObject(path, p.blob)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer file.Close()
	var r io.Reader = file
	if p.ShowProgress {
		bar := progressbar.DefaultBytes(-1, "Loading "+path)
		pbReader := progressbar.NewReader(file, bar)
		r = &pbReader
		defer bar.Finish()
	}
	count, err := p.loadRaw(ctx, r)
	if err != nil {
		return count, errors.Trace(err)
	}
	log.Logger().Info("loaded rows into raw table", zap.String("path", path), zap.Int("rows", count))
	return count, nil
}

// loadRaw appends all rows of a CSV in one transaction.
func (p *Pipeline) loadRaw(ctx context.Context, r io.Reader) (int, error) {
	count, err := p.database.AppendRaw(ctx, func(insert func([]warehouse.RawRecord) error) error {
		var (
			columns map[string]int
			batch   []warehouse.RawRecord
			err     error
		)
		readErr := base.ReadLines(base.NewScanner(r), ",", func(i int, fields []string) bool {
			if i == 0 {
				columns, err = parseHeader(fields, rawColumns)
				return err == nil
			}
			if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
				return true
			}
			batch = append(batch, parseRaw(fields, columns))
			if len(batch) >= p.config.BatchSize {
				if err = insert(batch); err != nil {
					return false
				}
				batch = nil
			}
			return true
		})
		if readErr != nil {
			return errors.Trace(readErr)
		}
		if err != nil {
			return errors.Trace(err)
		}
		if columns == nil {
			return errors.NotValidf("empty csv")
		}
		return errors.Trace(insert(batch))
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

// parseHeader maps required column names to field positions.
func parseHeader(fields, required []string) (map[string]int, error) {
	columns := make(map[string]int, len(fields))
	for i, field := range fields {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(field, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, errors.NotValidf("csv without column %s", name)
		}
	}
	return columns, nil
}

func parseRaw(fields []string, columns map[string]int) warehouse.RawRecord {
	field := func(name string) string {
		if i := columns[name]; i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	return warehouse.RawRecord{
		InvoiceNo:     nullString(field("invoice_no")),
		CustomerId:    nullString(field("customer_id")),
		Gender:        nullString(field("gender")),
		Age:           nullInt(field("age")),
		Category:      nullString(field("category")),
		Quantity:      nullInt(field("quantity")),
		Price:         nullFloat(field("price")),
		PaymentMethod: nullString(field("payment_method")),
		InvoiceDate:   nullString(field("invoice_date")),
		ShoppingMall:  nullString(field("shopping_mall")),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(s string) sql.NullInt64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullFloat(s string) sql.NullFloat64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Clean checks a raw row and casts it to a cleaned row. Rows without invoice number or
// customer, with non-positive age, quantity or price, or with an invoice date that is
// present but unparsable are rejected. A missing invoice date stays NULL.
func Clean(raw warehouse.RawRecord, dayFirst bool) (warehouse.CleanedRecord, bool) {
	if !raw.InvoiceNo.Valid || strings.TrimSpace(raw.InvoiceNo.String) == "" ||
		!raw.CustomerId.Valid || strings.TrimSpace(raw.CustomerId.String) == "" {
		return warehouse.CleanedRecord{}, false
	}
	if !raw.Age.Valid || raw.Age.Int64 <= 0 ||
		!raw.Quantity.Valid || raw.Quantity.Int64 <= 0 ||
		!raw.Price.Valid || raw.Price.Float64 <= 0 {
		return warehouse.CleanedRecord{}, false
	}
	var date sql.NullTime
	if raw.InvoiceDate.Valid && strings.TrimSpace(raw.InvoiceDate.String) != "" {
		t, err := ParseDate(raw.InvoiceDate.String, dayFirst)
		if err != nil {
			return warehouse.CleanedRecord{}, false
		}
		date = sql.NullTime{Time: t, Valid: true}
	}
	return warehouse.CleanedRecord{
		InvoiceNo:     raw.InvoiceNo.String,
		CustomerId:    raw.CustomerId.String,
		Gender:        raw.Gender,
		Age:           raw.Age.Int64,
		Category:      raw.Category,
		Quantity:      raw.Quantity.Int64,
		Price:         raw.Price.Float64,
		PaymentMethod: raw.PaymentMethod,
		InvoiceDate:   date,
		ShoppingMall:  raw.ShoppingMall,
	}, true
}

// ParseDate parses a date in any common layout and truncates it to midnight UTC.
func ParseDate(s string, dayFirst bool) (time.Time, error) {
	t, err := dateparse.ParseAny(strings.TrimSpace(s),
		dateparse.PreferMonthFirst(!dayFirst),
		dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
