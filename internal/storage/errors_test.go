package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should return nil")
	}
}

func TestClassifyNoRows(t *testing.T) {
	err := Classify(pgx.ErrNoRows)
	if !Is(err, NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClassifyDuplicateKey(t *testing.T) {
	tests := []struct {
		constraint string
		wantColumn string
	}{
		{"app_user_email_key", "email"},
		{"client_uuid_key", "uuid"},
		{"product_origin_client_id_origin_client_object_id_key", "origin_client_object_id"},
	}
	for _, tt := range tests {
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: tt.constraint, Message: "duplicate key"}
		err := Classify(pgErr)
		if !Is(err, DuplicateKey) {
			t.Fatalf("constraint %q: expected DuplicateKey, got %v", tt.constraint, err)
		}
		var se *Error
		errors.As(err, &se)
		if se.Column != tt.wantColumn {
			t.Errorf("constraint %q: Column = %q, want %q", tt.constraint, se.Column, tt.wantColumn)
		}
	}
}

func TestClassifyDeadlock(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	if !Is(Classify(pgErr), Deadlock) {
		t.Fatal("expected Deadlock")
	}
	pgErr2 := &pgconn.PgError{Code: "40001", Message: "serialization failure"}
	if !Is(Classify(pgErr2), Deadlock) {
		t.Fatal("expected Deadlock for serialization_failure")
	}
}

func TestClassifyConnection(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	if !Is(Classify(pgErr), Connection) {
		t.Fatal("expected Connection")
	}
}

func TestClassifyOther(t *testing.T) {
	err := Classify(errors.New("boom"))
	if !Is(err, Other) {
		t.Fatalf("expected Other, got %v", err)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Classify(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
