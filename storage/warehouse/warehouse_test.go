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
	"os"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Purge())
	suite.NoError(suite.Database.Close())
}

func str(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (suite *baseTestSuite) TestCreateTables() {
	ctx := context.Background()
	created, err := suite.Database.CreateRawTable(ctx)
	suite.NoError(err)
	suite.True(created)
	created, err = suite.Database.CreateRawTable(ctx)
	suite.NoError(err)
	suite.False(created)

	created, err = suite.Database.CreateCleanedTable(ctx)
	suite.NoError(err)
	suite.True(created)
	created, err = suite.Database.CreateCleanedTable(ctx)
	suite.NoError(err)
	suite.False(created)
}

func (suite *baseTestSuite) TestRaw() {
	ctx := context.Background()
	_, err := suite.Database.CreateRawTable(ctx)
	suite.NoError(err)
	records := lo.Times(25, func(i int) RawRecord {
		return RawRecord{
			InvoiceNo:   str(fmt.Sprintf("I%03d", i)),
			CustomerId:  str(fmt.Sprintf("C%03d", i%5)),
			Age:         sql.NullInt64{Int64: int64(20 + i), Valid: true},
			Category:    str("Clothing"),
			Quantity:    lo.Ternary(i%3 != 0, sql.NullInt64{Int64: int64(i), Valid: true}, sql.NullInt64{}),
			Price:       sql.NullFloat64{Float64: 10.5, Valid: true},
			InvoiceDate: str("5/8/2022"),
		}
	})
	count, err := suite.Database.AppendRaw(ctx, func(insert func([]RawRecord) error) error {
		return insert(records)
	})
	suite.NoError(err)
	suite.Equal(int64(25), count)
	count, err = suite.Database.CountRaw(ctx)
	suite.NoError(err)
	suite.Equal(int64(25), count)

	recordChan, errChan := suite.Database.GetRawStream(ctx, 10)
	var loaded []RawRecord
	for batch := range recordChan {
		suite.LessOrEqual(len(batch), 10)
		loaded = append(loaded, batch...)
	}
	suite.NoError(<-errChan)
	suite.ElementsMatch(records, loaded)
}

func (suite *baseTestSuite) TestAppendRaw() {
	ctx := context.Background()
	_, err := suite.Database.CreateRawTable(ctx)
	suite.NoError(err)
	newRecords := func(prefix string, n int) []RawRecord {
		return lo.Times(n, func(i int) RawRecord {
			return RawRecord{InvoiceNo: str(fmt.Sprintf("%s%03d", prefix, i)), CustomerId: str("C001")}
		})
	}
	count, err := suite.Database.AppendRaw(ctx, func(insert func([]RawRecord) error) error {
		if err := insert(newRecords("A", 3)); err != nil {
			return err
		}
		if err := insert(nil); err != nil {
			return err
		}
		return insert(newRecords("B", 2))
	})
	suite.NoError(err)
	suite.Equal(int64(5), count)
	// failed append rolls back every batch
	_, err = suite.Database.AppendRaw(ctx, func(insert func([]RawRecord) error) error {
		if err := insert(newRecords("C", 3)); err != nil {
			return err
		}
		return errors.New("load failed")
	})
	suite.Error(err)
	count, err = suite.Database.CountRaw(ctx)
	suite.NoError(err)
	suite.Equal(int64(5), count)
}

func (suite *baseTestSuite) TestReplaceCleaned() {
	ctx := context.Background()
	_, err := suite.Database.CreateCleanedTable(ctx)
	suite.NoError(err)
	date := time.Date(2022, 8, 5, 0, 0, 0, 0, time.UTC)
	newRecords := func(prefix string, n int) []CleanedRecord {
		return lo.Times(n, func(i int) CleanedRecord {
			return CleanedRecord{
				InvoiceNo:   fmt.Sprintf("%s%03d", prefix, i),
				CustomerId:  fmt.Sprintf("C%03d", i%3),
				Gender:      str("Female"),
				Age:         30,
				Category:    str([]string{"Shoes", "Books", "Toys"}[i%3]),
				Quantity:    int64(i + 1),
				Price:       1.5,
				InvoiceDate: lo.Ternary(i%2 == 0, sql.NullTime{Time: date, Valid: true}, sql.NullTime{}),
			}
		})
	}
	// first replacement
	count, err := suite.Database.ReplaceCleaned(ctx, func(insert func([]CleanedRecord) error) error {
		return insert(newRecords("A", 4))
	})
	suite.NoError(err)
	suite.Equal(int64(4), count)
	// second replacement drops previous rows
	count, err = suite.Database.ReplaceCleaned(ctx, func(insert func([]CleanedRecord) error) error {
		if err := insert(newRecords("B", 3)); err != nil {
			return err
		}
		return insert(nil)
	})
	suite.NoError(err)
	suite.Equal(int64(3), count)
	// failed replacement rolls back
	_, err = suite.Database.ReplaceCleaned(ctx, func(insert func([]CleanedRecord) error) error {
		if err := insert(newRecords("C", 2)); err != nil {
			return err
		}
		return errors.New("load failed")
	})
	suite.Error(err)
	count, err = suite.Database.CountCleaned(ctx)
	suite.NoError(err)
	suite.Equal(int64(3), count)

	recordChan, errChan := suite.Database.GetCleanedStream(ctx, 2)
	var loaded []CleanedRecord
	for batch := range recordChan {
		loaded = append(loaded, batch...)
	}
	suite.NoError(<-errChan)
	if suite.Len(loaded, 3) {
		suite.Equal([]string{"B000", "B001", "B002"}, lo.Map(loaded, func(r CleanedRecord, _ int) string { return r.InvoiceNo }))
		suite.Equal("2022-08-05", loaded[0].InvoiceDate.Time.Format(time.DateOnly))
		suite.False(loaded[1].InvoiceDate.Valid)
		suite.Equal(str("Books"), loaded[1].Category)
		suite.False(loaded[0].ShoppingMall.Valid)
	}
}

func (suite *baseTestSuite) TestCategoryQuantity() {
	ctx := context.Background()
	_, err := suite.Database.CreateCleanedTable(ctx)
	suite.NoError(err)
	records := []CleanedRecord{
		{InvoiceNo: "1", CustomerId: "C2", Category: str("Shoes"), Age: 20, Quantity: 2, Price: 1},
		{InvoiceNo: "2", CustomerId: "C1", Category: str("Books"), Age: 20, Quantity: 1, Price: 1},
		{InvoiceNo: "3", CustomerId: "C1", Category: str("Books"), Age: 20, Quantity: 4, Price: 1},
		{InvoiceNo: "4", CustomerId: "C1", Category: str("Shoes"), Age: 20, Quantity: 3, Price: 1},
		{InvoiceNo: "5", CustomerId: "C3", Age: 20, Quantity: 3, Price: 1},
	}
	_, err = suite.Database.ReplaceCleaned(ctx, func(insert func([]CleanedRecord) error) error {
		return insert(records)
	})
	suite.NoError(err)

	rowChan, errChan := suite.Database.GetCategoryQuantityStream(ctx, 2)
	var rows []CategoryQuantity
	for batch := range rowChan {
		rows = append(rows, batch...)
	}
	suite.NoError(<-errChan)
	suite.Equal([]CategoryQuantity{
		{CustomerId: "C1", Category: "Books", TotalQuantity: 5},
		{CustomerId: "C1", Category: "Shoes", TotalQuantity: 3},
		{CustomerId: "C2", Category: "Shoes", TotalQuantity: 2},
	}, rows)
}

func (suite *baseTestSuite) TestReviews() {
	ctx := context.Background()
	reviews := []Review{
		{UserId: "u2", ItemId: "p1", Review: "Lovely scent"},
		{UserId: "u1", ItemId: "p2", Review: ""},
		{UserId: "u2", ItemId: "p1", Review: "Changed my mind, it fades fast"},
	}
	suite.NoError(suite.Database.BatchInsertReviews(ctx, reviews))
	suite.NoError(suite.Database.BatchInsertReviews(ctx, []Review{{UserId: "u3", ItemId: "p3", Review: "ok"}}))

	reviewChan, errChan := suite.Database.GetReviewStream(ctx, 3)
	var loaded []Review
	for batch := range reviewChan {
		loaded = append(loaded, batch...)
	}
	suite.NoError(<-errChan)
	if suite.Len(loaded, 4) {
		// insertion order is kept
		suite.Equal("Lovely scent", loaded[0].Review)
		suite.Equal("", loaded[1].Review)
		suite.Equal("Changed my mind, it fades fast", loaded[2].Review)
		suite.Equal("u3", loaded[3].UserId)
		for i := 1; i < len(loaded); i++ {
			suite.Less(loaded[i-1].Id, loaded[i].Id)
		}
	}
}

type SQLiteTestSuite struct {
	baseTestSuite
}

func (suite *SQLiteTestSuite) SetupTest() {
	var err error
	path := fmt.Sprintf("sqlite://%s/warehouse.db", suite.T().TempDir())
	suite.Database, err = Open(path, "scentcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
}

func TestSQLite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}

type MySQLTestSuite struct {
	baseTestSuite
}

func (suite *MySQLTestSuite) SetupTest() {
	var err error
	suite.Database, err = Open(os.Getenv("MYSQL_URI"), "scentcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Purge())
	suite.NoError(suite.Database.Init())
}

func TestMySQL(t *testing.T) {
	if os.Getenv("MYSQL_URI") == "" {
		t.Skip("MYSQL_URI is not set")
	}
	suite.Run(t, new(MySQLTestSuite))
}

type PostgresTestSuite struct {
	baseTestSuite
}

func (suite *PostgresTestSuite) SetupTest() {
	var err error
	suite.Database, err = Open(os.Getenv("POSTGRES_URI"), "scentcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Purge())
	suite.NoError(suite.Database.Init())
}

func TestPostgres(t *testing.T) {
	if os.Getenv("POSTGRES_URI") == "" {
		t.Skip("POSTGRES_URI is not set")
	}
	suite.Run(t, new(PostgresTestSuite))
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("redis://localhost:6379", "")
	assert.Error(t, err)
}
