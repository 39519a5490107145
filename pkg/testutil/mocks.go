package testutil

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// MockDB pairs a wrapped database with its sqlmock controller
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a sqlmock-backed database for repository unit tests.
// The connection is closed and expectations verified when the test ends.
//
// Usage:
//
//	mockDB := testutil.NewMockDB(t)
//	mockDB.Mock.ExpectQuery(`SELECT .* FROM products`).WillReturnRows(...)
//	dir := repository.NewPostgresDirectory(mockDB.DB)
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	m := &MockDB{
		DB:   database.Wrap(sqlx.NewDb(db, "postgres"), logger.Nop()),
		Mock: mock,
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled mock expectations: %v", err)
		}
		db.Close()
	})
	return m
}

// ExpectLockingBegin expects the transaction preamble written by
// database.LockingTransaction.
func (m *MockDB) ExpectLockingBegin(lockTimeout, statementTimeout time.Duration) {
	m.Mock.ExpectBegin()
	m.Mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds()))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.Mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", statementTimeout.Milliseconds()))).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// MockRows creates a new mock rows object
func MockRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

// AnyTime is a matcher for any time.Time value
type AnyTime struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// AnyUUID is a matcher for any UUID string
type AnyUUID struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}
