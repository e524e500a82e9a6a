package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct{ pgx.Tx }

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestContextWithTx_RoundTrip(t *testing.T) {
	tx := &fakeTx{}
	ctx := ContextWithTx(context.Background(), tx)
	if got := TxFromContext(ctx); got != tx {
		t.Errorf("expected stored tx, got %v", got)
	}
	if q := Conn(ctx, nil); q != Querier(tx) {
		t.Error("Conn should prefer the transaction in context")
	}
}

func TestRunInTx_JoinsOuterTransaction(t *testing.T) {
	outer := &fakeTx{}
	ctx := ContextWithTx(context.Background(), outer)

	// A nil pool would panic on BeginTx, so reaching fn proves the join.
	r := NewTxRunner(nil)
	called := false
	err := r.RunInTx(ctx, func(inner context.Context) error {
		called = true
		if TxFromContext(inner) != outer {
			t.Error("inner context should carry the outer transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestRunInTx_JoinedErrorPropagates(t *testing.T) {
	ctx := ContextWithTx(context.Background(), &fakeTx{})
	boom := errors.New("boom")
	if err := NewTxRunner(nil).RunInTx(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "connection_requests_one_pending"}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected unique violation")
	}
	if !IsUniqueViolation(wrapped, "connection_requests_one_pending") {
		t.Error("expected match on constraint name")
	}
	if IsUniqueViolation(wrapped, "profiles_pkey") {
		t.Error("different constraint must not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: CodeForeignKeyViolation}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match")
	}
}
