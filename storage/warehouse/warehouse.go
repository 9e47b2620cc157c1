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
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// RawRecord is a customer shopping row as loaded from CSV. Every field may be missing.
type RawRecord struct {
	InvoiceNo     sql.NullString  `gorm:"column:invoice_no"`
	CustomerId    sql.NullString  `gorm:"column:customer_id"`
	Gender        sql.NullString  `gorm:"column:gender"`
	Age           sql.NullInt64   `gorm:"column:age"`
	Category      sql.NullString  `gorm:"column:category"`
	Quantity      sql.NullInt64   `gorm:"column:quantity"`
	Price         sql.NullFloat64 `gorm:"column:price"`
	PaymentMethod sql.NullString  `gorm:"column:payment_method"`
	InvoiceDate   sql.NullString  `gorm:"column:invoice_date"`
	ShoppingMall  sql.NullString  `gorm:"column:shopping_mall"`
}

// CleanedRecord is a customer shopping row that passed integrity checks.
type CleanedRecord struct {
	InvoiceNo     string         `gorm:"column:invoice_no;type:varchar(256);not null"`
	CustomerId    string         `gorm:"column:customer_id;type:varchar(256);not null"`
	Gender        sql.NullString `gorm:"column:gender"`
	Age           int64          `gorm:"column:age"`
	Category      sql.NullString `gorm:"column:category"`
	Quantity      int64          `gorm:"column:quantity"`
	Price         float64        `gorm:"column:price"`
	PaymentMethod sql.NullString `gorm:"column:payment_method"`
	InvoiceDate   sql.NullTime   `gorm:"column:invoice_date;type:date"`
	ShoppingMall  sql.NullString `gorm:"column:shopping_mall"`
}

// Review is a free-text review of an item by a user. Reviews keep insertion order and a
// user may review the same item more than once.
type Review struct {
	Id     uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserId string `gorm:"column:user_id;type:varchar(256);not null"`
	ItemId string `gorm:"column:item_id;type:varchar(256);not null"`
	Review string `gorm:"column:review;type:text"`
}

// CategoryQuantity is the total quantity a customer bought in a category.
type CategoryQuantity struct {
	CustomerId    string
	Category      string
	TotalQuantity float64
}

type Database interface {
	// Init creates the reviews table.
	Init() error
	Close() error
	Purge() error
	// CreateRawTable creates the raw table. It returns false if the table exists.
	CreateRawTable(ctx context.Context) (bool, error)
	// CreateCleanedTable creates the cleaned table. It returns false if the table exists.
	CreateCleanedTable(ctx context.Context) (bool, error)
	// AppendRaw lets fill insert raw rows in a single transaction. Nothing is appended if
	// fill fails. It returns the number of inserted rows.
	AppendRaw(ctx context.Context, fill func(insert func([]RawRecord) error) error) (int64, error)
	CountRaw(ctx context.Context) (int64, error)
	GetRawStream(ctx context.Context, batchSize int) (chan []RawRecord, chan error)
	// ReplaceCleaned removes all cleaned rows and lets fill insert new rows in a single
	// transaction. It returns the number of inserted rows.
	ReplaceCleaned(ctx context.Context, fill func(insert func([]CleanedRecord) error) error) (int64, error)
	CountCleaned(ctx context.Context) (int64, error)
	GetCleanedStream(ctx context.Context, batchSize int) (chan []CleanedRecord, chan error)
	BatchInsertReviews(ctx context.Context, reviews []Review) error
	GetReviewStream(ctx context.Context, batchSize int) (chan []Review, chan error)
	GetCategoryQuantityStream(ctx context.Context, batchSize int) (chan []CategoryQuantity, chan error)
}

// Open connects to a warehouse. The scheme of path selects the driver.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		gormConfig := storage.NewGORMConfig(tablePrefix)
		gormConfig.Logger = &zapgorm2.Logger{
			ZapLogger:                 log.Logger(),
			LogLevel:                  logger.Warn,
			SlowThreshold:             10 * time.Second,
			SkipCallerLookup:          false,
			IgnoreRecordNotFoundError: false,
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, gormConfig)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("unknown warehouse: %v", log.RedactDBURL(path))
}
