package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx       *fakeTx
	begins   int
	beginErr error
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.begins++
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestWithTx_Commit(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	var sawTx bool
	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		sawTx = TxFromContext(ctx) != nil
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawTx {
		t.Error("expected transaction on context")
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)
	boom := errors.New("boom")

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed {
		t.Error("expected no commit")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
		if !b.tx.rolledBack {
			t.Error("expected rollback after panic")
		}
	}()

	_ = m.WithTx(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		return m.WithTx(ctx, func(inner context.Context) error {
			if TxFromContext(inner) != TxFromContext(ctx) {
				t.Error("expected nested call to reuse outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 1 {
		t.Errorf("expected 1 begin, got %d", b.begins)
	}
}

func TestWithTx_BeginError(t *testing.T) {
	b := &fakeBeginner{beginErr: errors.New("pool closed")}
	m := NewTxManager(b)

	called := false
	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("fn must not run when begin fails")
	}
}

func TestWithTx_CommitError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	m := NewTxManager(b)

	err := m.WithTx(context.Background(), func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected commit error")
	}
}

type stubQuerier struct{ Querier }

func TestConn_FallsBackWithoutTx(t *testing.T) {
	fallback := &stubQuerier{}
	if got := Conn(context.Background(), fallback); got != fallback {
		t.Error("expected fallback querier")
	}

	tx := &fakeTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))
	if got := Conn(ctx, fallback); got != tx {
		t.Error("expected transaction from context")
	}
}

func TestUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
	name, ok := UniqueViolation(err)
	if !ok || name != "users_username_key" {
		t.Errorf("expected users_username_key, got %q (%v)", name, ok)
	}

	if _, ok := UniqueViolation(errors.New("other")); ok {
		t.Error("expected plain error not to be a unique violation")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected foreign key violation")
	}
	if !IsNoRows(pgx.ErrNoRows) {
		t.Error("expected IsNoRows for pgx.ErrNoRows")
	}
}
