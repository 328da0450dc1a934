package apperror

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"app error passes through", New(KindInsufficientStock, "x"), KindInsufficientStock},
		{"wrapped app error", fmt.Errorf("ctx: %w", New(KindOrderNotDelivered, "")), KindOrderNotDelivered},
		{"no rows", sql.ErrNoRows, KindNotFound},
		{"bad conn", driver.ErrBadConn, KindConnectionError},
		{"deadline", context.DeadlineExceeded, KindConnectionError},
		{"unique violation", &pq.Error{Code: "23505", Constraint: "coupons_code_key"}, KindConstraintViolation},
		{"check violation", &pq.Error{Code: "23514"}, KindConstraintViolation},
		{"admin shutdown", &pq.Error{Code: "57P01"}, KindConnectionError},
		{"serialization failure", &pq.Error{Code: "40001"}, KindConnectionError},
		{"syntax error", &pq.Error{Code: "42601"}, KindInternal},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("transfer: %w", Newf(KindInsufficientStock, "need %d", 5))
	if !errors.Is(err, New(KindInsufficientStock, "")) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(err, New(KindInvalidBranchPair, "")) {
		t.Fatalf("unexpected match on different kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	if HTTPStatus(KindConnectionError) != http.StatusServiceUnavailable {
		t.Fatalf("connection error should map to 503")
	}
	if HTTPStatus(KindInvalidBranchPair) != http.StatusBadRequest {
		t.Fatalf("invalid branch pair should map to 400")
	}
	if HTTPStatus(KindInsufficientStock) != http.StatusConflict {
		t.Fatalf("insufficient stock should map to 409")
	}
	if HTTPStatus("whatever") != http.StatusInternalServerError {
		t.Fatalf("unknown kind should map to 500")
	}
}

func TestRetry(t *testing.T) {
	p := RetryPolicy{Attempts: 3, BaseWait: time.Millisecond}

	t.Run("retries transient then succeeds", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, func(context.Context) error {
			calls++
			if calls < 3 {
				return driver.ErrBadConn
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("expected success after 3 calls, got err=%v calls=%d", err, calls)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, func(context.Context) error {
			calls++
			return driver.ErrBadConn
		})
		if calls != 3 || !IsKind(err, KindConnectionError) {
			t.Fatalf("expected 3 calls and ConnectionError, got calls=%d err=%v", calls, err)
		}
	})

	t.Run("does not retry fatal", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, func(context.Context) error {
			calls++
			return &pq.Error{Code: "23505"}
		})
		if calls != 1 || !IsKind(err, KindConstraintViolation) {
			t.Fatalf("expected single call and ConstraintViolation, got calls=%d err=%v", calls, err)
		}
	})

	t.Run("does not retry validation", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, func(context.Context) error {
			calls++
			return New(KindInsufficientStock, "")
		})
		if calls != 1 || !IsKind(err, KindInsufficientStock) {
			t.Fatalf("expected single call, got calls=%d err=%v", calls, err)
		}
	})
}
