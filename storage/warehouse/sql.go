// Copyright 2022 gorse Project Authors
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

package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bdm-project/scentcf/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

func (d SQLDriver) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	}
	return fmt.Sprintf("SQLDriver(%d)", int(d))
}

// SQLDatabase stores tables in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

func (d *SQLDatabase) Init() error {
	if d.driver == MySQL {
		return errors.Trace(d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").AutoMigrate(&Review{}))
	}
	return errors.Trace(d.gormDB.AutoMigrate(&Review{}))
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Purge() error {
	return errors.Trace(d.gormDB.Migrator().DropTable(&RawRecord{}, &CleanedRecord{}, &Review{}))
}

func (d *SQLDatabase) createTable(ctx context.Context, model any) (bool, error) {
	migrator := d.gormDB.WithContext(ctx).Migrator()
	if migrator.HasTable(model) {
		return false, nil
	}
	if err := migrator.CreateTable(model); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

func (d *SQLDatabase) CreateRawTable(ctx context.Context) (bool, error) {
	return d.createTable(ctx, &RawRecord{})
}

func (d *SQLDatabase) CreateCleanedTable(ctx context.Context) (bool, error) {
	return d.createTable(ctx, &CleanedRecord{})
}

func (d *SQLDatabase) AppendRaw(ctx context.Context, fill func(insert func([]RawRecord) error) error) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fill(func(records []RawRecord) error {
			if len(records) == 0 {
				return nil
			}
			if err := tx.Create(&records).Error; err != nil {
				return errors.Trace(err)
			}
			count += int64(len(records))
			return nil
		})
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return count, nil
}

func (d *SQLDatabase) count(ctx context.Context, model any) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(model).Count(&count).Error
	return count, errors.Trace(err)
}

func (d *SQLDatabase) CountRaw(ctx context.Context) (int64, error) {
	return d.count(ctx, &RawRecord{})
}

func (d *SQLDatabase) CountCleaned(ctx context.Context) (int64, error) {
	return d.count(ctx, &CleanedRecord{})
}

func (d *SQLDatabase) GetRawStream(ctx context.Context, batchSize int) (chan []RawRecord, chan error) {
	recordChan := make(chan []RawRecord, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(recordChan)
		defer close(errChan)
		// send query
		result, err := d.gormDB.WithContext(ctx).Table(d.RawTable()).
			Select("invoice_no, customer_id, gender, age, category, quantity, price, payment_method, invoice_date, shopping_mall").
			Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		records := make([]RawRecord, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var r RawRecord
			if err = result.Scan(&r.InvoiceNo, &r.CustomerId, &r.Gender, &r.Age, &r.Category, &r.Quantity,
				&r.Price, &r.PaymentMethod, &r.InvoiceDate, &r.ShoppingMall); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			records = append(records, r)
			if len(records) == batchSize {
				recordChan <- records
				records = make([]RawRecord, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(records) > 0 {
			recordChan <- records
		}
		errChan <- nil
	}()
	return recordChan, errChan
}

func (d *SQLDatabase) ReplaceCleaned(ctx context.Context, fill func(insert func([]CleanedRecord) error) error) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CleanedRecord{}).Error; err != nil {
			return errors.Trace(err)
		}
		return fill(func(records []CleanedRecord) error {
			if len(records) == 0 {
				return nil
			}
			if err := tx.Create(&records).Error; err != nil {
				return errors.Trace(err)
			}
			count += int64(len(records))
			return nil
		})
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return count, nil
}

func (d *SQLDatabase) GetCleanedStream(ctx context.Context, batchSize int) (chan []CleanedRecord, chan error) {
	recordChan := make(chan []CleanedRecord, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(recordChan)
		defer close(errChan)
		// send query
		result, err := d.gormDB.WithContext(ctx).Table(d.CleanedTable()).
			Select("invoice_no, customer_id, gender, age, category, quantity, price, payment_method, invoice_date, shopping_mall").
			Order("invoice_no").
			Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		records := make([]CleanedRecord, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var r CleanedRecord
			if err = result.Scan(&r.InvoiceNo, &r.CustomerId, &r.Gender, &r.Age, &r.Category, &r.Quantity,
				&r.Price, &r.PaymentMethod, &r.InvoiceDate, &r.ShoppingMall); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			records = append(records, r)
			if len(records) == batchSize {
				recordChan <- records
				records = make([]CleanedRecord, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(records) > 0 {
			recordChan <- records
		}
		errChan <- nil
	}()
	return recordChan, errChan
}

func (d *SQLDatabase) BatchInsertReviews(ctx context.Context, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&reviews).Error)
}

// GetReviewStream returns reviews in insertion order.
func (d *SQLDatabase) GetReviewStream(ctx context.Context, batchSize int) (chan []Review, chan error) {
	reviewChan := make(chan []Review, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(reviewChan)
		defer close(errChan)
		// send query
		result, err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
			Select("id, user_id, item_id, review").
			Order("id").
			Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		reviews := make([]Review, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var review Review
			var text sql.NullString
			if err = result.Scan(&review.Id, &review.UserId, &review.ItemId, &text); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			review.Review = text.String
			reviews = append(reviews, review)
			if len(reviews) == batchSize {
				reviewChan <- reviews
				reviews = make([]Review, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(reviews) > 0 {
			reviewChan <- reviews
		}
		errChan <- nil
	}()
	return reviewChan, errChan
}

// GetCategoryQuantityStream returns the total quantity of each (customer, category) pair
// in the cleaned table, ordered by customer and category.
func (d *SQLDatabase) GetCategoryQuantityStream(ctx context.Context, batchSize int) (chan []CategoryQuantity, chan error) {
	rowChan := make(chan []CategoryQuantity, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(rowChan)
		defer close(errChan)
		// send query
		result, err := d.gormDB.WithContext(ctx).Table(d.CleanedTable()).
			Select("customer_id, category, SUM(quantity) AS total_quantity").
			Where("category IS NOT NULL").
			Group("customer_id, category").
			Order("customer_id, category").
			Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		rows := make([]CategoryQuantity, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var row CategoryQuantity
			if err = result.Scan(&row.CustomerId, &row.Category, &row.TotalQuantity); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			rows = append(rows, row)
			if len(rows) == batchSize {
				rowChan <- rows
				rows = make([]CategoryQuantity, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(rows) > 0 {
			rowChan <- rows
		}
		errChan <- nil
	}()
	return rowChan, errChan
}
