package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeLocks mimics app_locks without expiry.
type fakeLocks struct {
	mu      sync.Mutex
	holders map[string]string
}

type row struct {
	val string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.val
	return nil
}

func (f *fakeLocks) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	holder, held := f.holders[key]
	switch sql {
	case tryAcquireSQL:
		if held && holder != token {
			return row{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return row{val: key}
	case renewSQL:
		if holder != token {
			return row{err: pgx.ErrNoRows}
		}
		return row{val: key}
	}
	return row{err: errors.New("unexpected query")}
}

func (f *fakeLocks) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.holders[key] == token {
		delete(f.holders, key)
	}
	return pgconn.CommandTag{}, nil
}

func TestWithLease_SecondHolderIsBusy(t *testing.T) {
	db := &fakeLocks{holders: map[string]string{}}
	c := New(db, Options{TTL: time.Minute})
	key := DocumentKey("doc-1")

	err := c.WithLease(context.Background(), key, func(ctx context.Context) error {
		inner := c.WithLease(ctx, key, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		if !errors.Is(inner, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLease() error = %v", err)
	}
	if len(db.holders) != 0 {
		t.Fatalf("lease not released: %v", db.holders)
	}

	if err := c.WithLease(context.Background(), key, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("lease should be free again: %v", err)
	}
}

func TestWithLease_PropagatesError(t *testing.T) {
	c := New(&fakeLocks{holders: map[string]string{}}, Options{})
	boom := errors.New("boom")
	if err := c.WithLease(context.Background(), "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{TTL: time.Second, RenewEvery: 5 * time.Second}.withDefaults()
	if o.RenewEvery != time.Second {
		t.Fatalf("RenewEvery = %v, want 1s floor", o.RenewEvery)
	}
	if d := (Options{}).withDefaults(); d.TTL != 2*time.Minute || d.RenewEvery != time.Minute {
		t.Fatalf("unexpected defaults %+v", d)
	}
}
