// pkg/loader/loader_test.go
package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

func str(s string) *string { return &s }

func mockLoader(t *testing.T) (*BulkLoader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBulkLoader(sqlx.NewDb(db, "postgres"), zap.NewNop()), mock
}

func paisesChunk() (*model.TableConfig, *model.Chunk) {
	cfg := &model.TableConfig{Kind: "paises", TableName: "paises", Columns: []string{"codigo", "nome"}}
	chunk := model.NewChunk("paises", 0, cfg.Columns)
	chunk.Rows = [][]*string{
		{str("105"), str("BRASIL")},
		{str("073"), nil},
	}
	return cfg, chunk
}

func TestLoadChunkCopiesOneTransaction(t *testing.T) {
	l, mock := mockLoader(t)
	cfg, chunk := paisesChunk()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`COPY "paises" \("codigo", "nome"\) FROM STDIN`)
	prep.ExpectExec().WithArgs("105", "BRASIL").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("073", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0)) // flush
	mock.ExpectCommit()

	n, err := l.LoadChunk(context.Background(), cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows loaded = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoadChunkRollsBackOnCopyError(t *testing.T) {
	l, mock := mockLoader(t)
	cfg, chunk := paisesChunk()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`COPY "paises" \("codigo", "nome"\) FROM STDIN`)
	prep.ExpectExec().WithArgs("105", "BRASIL").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if _, err := l.LoadChunk(context.Background(), cfg, chunk); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoadChunkSkipsEmptyChunk(t *testing.T) {
	l, mock := mockLoader(t)
	cfg, _ := paisesChunk()
	empty := model.NewChunk("paises", 3, cfg.Columns)

	n, err := l.LoadChunk(context.Background(), cfg, empty)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rows loaded = %d, want 0", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestVerifyRowCount(t *testing.T) {
	l, mock := mockLoader(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM paises`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))

	ok, actual, err := l.VerifyRowCount(context.Background(), "paises", 200)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || actual != 250 {
		t.Errorf("ok=%v actual=%d", ok, actual)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM paises`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	ok, _, err = l.VerifyRowCount(context.Background(), "paises", 200)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("short table passed verification")
	}
}

func TestTruncateTable(t *testing.T) {
	l, mock := mockLoader(t)
	mock.ExpectExec(`TRUNCATE TABLE paises`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := l.TruncateTable(context.Background(), "paises"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
