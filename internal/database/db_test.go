package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

// TestOpen_ReturnsDBForAnyURL はsql.Openは接続を試行しないため、
// 不正なURLでもDBオブジェクトが返ることを検証する。
func TestOpen_ReturnsDBForAnyURL(t *testing.T) {
	db, err := Open("postgres://invalid")
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	if db == nil {
		t.Fatal("expected non-nil db")
	}
	defer db.Close()
}

// TestWithTx_Commit はfnが成功した場合にコミットされることを検証する。
func TestWithTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pending_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE pending_requests SET pending = true")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestWithTx_RollbackOnError はfnがエラーを返した場合にロールバックし、
// 元のエラーをそのまま返すことを検証する。
func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "users_username_key"}
	wrapped := fmt.Errorf("insert user: %w", dup)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected unique violation for any constraint")
	}
	if !IsUniqueViolation(wrapped, "users_username_key") {
		t.Error("expected unique violation for matching constraint")
	}
	if IsUniqueViolation(wrapped, "divisions_name_role_key") {
		t.Error("constraint name mismatch should not match")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Error("foreign key violation should not match")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("non-pq error should not match")
	}
}
