package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"smart_bottle/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

const selectPrefix = "SELECT path, body, version, updated_at FROM documents"

var docCols = []string{"path", "body", "version", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestDocumentSQLite_Load_NoRowsReturnsZeroValue(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).
		WithArgs("bottle/telemetry").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background(), "bottle/telemetry")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.Version != 0 || got.Body != nil {
		t.Fatalf("Load() expected zero document, got %+v", got)
	}
}

func TestDocumentSQLite_Load_HappyPathUTC(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	locNY, _ := time.LoadLocation("America/New_York")
	ts := time.Date(2024, 2, 1, 8, 30, 0, 0, locNY)

	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).
		WithArgs("bottle/telemetry").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("bottle/telemetry", `{"temperature":36.7}`, int64(4), ts))

	got, err := repo.Load(context.Background(), "bottle/telemetry")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.Path != "bottle/telemetry" || got.Version != 4 || string(got.Body) != `{"temperature":36.7}` {
		t.Fatalf("Load() unexpected fields: %+v", got)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("UpdatedAt not UTC: %v", got.UpdatedAt.Location())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentSQLite_Load_ErrorIsWrapped(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	boom := errors.New("db down")
	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).WillReturnError(boom)

	if _, err := repo.Load(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("want wrapped db error, got %v", err)
	}
}

func TestDocumentSQLite_Merge_PreservesSiblingsAndBumpsVersion(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).
		WithArgs("bottle/control").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("bottle/control", `{"owner":"device","setpoint":30}`, int64(2), time.Now()))

	wantBody := `{"owner":"device","setpoint":42}`
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("bottle/control", jsonArg(wantBody), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Merge(context.Background(), "bottle/control", map[string]any{"setpoint": 42.0})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got.Version != 3 {
		t.Errorf("Version: want 3, got %d", got.Version)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Errorf("UpdatedAt should be UTC")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentSQLite_Merge_FirstWriteCreatesDocument(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("bottle/control", jsonArg(`{"setpoint":42}`), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := repo.Merge(context.Background(), "bottle/control", map[string]any{"setpoint": 42}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentSQLite_Replace_NilDeletes(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).
		WillReturnRows(sqlmock.NewRows(docCols).AddRow("a", `{"x":1}`, int64(7), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Replace(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if got.Version != 0 || got.Body != nil {
		t.Fatalf("deleted document should be zero-versioned, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentSQLite_Replace_ExecErrorRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewDocumentSQLite(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPrefix)).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := repo.Replace(context.Background(), "a", []byte(`{"x":1}`)); err == nil {
		t.Fatalf("Replace() expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// jsonArg matches a JSON string argument semantically.
type jsonArg string

func (j jsonArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var got, want any
	if json.Unmarshal([]byte(s), &got) != nil || json.Unmarshal([]byte(j), &want) != nil {
		return false
	}
	gb, _ := json.Marshal(got)
	wb, _ := json.Marshal(want)
	return string(gb) == string(wb)
}
