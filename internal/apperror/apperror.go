package apperror

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

type Kind string

const (
	KindInsufficientStock       Kind = "InsufficientStock"
	KindInvalidBranchPair       Kind = "InvalidBranchPair"
	KindOrderNotDelivered       Kind = "OrderNotDelivered"
	KindCouponNotFound          Kind = "CouponNotFound"
	KindCouponExpired           Kind = "CouponExpired"
	KindCouponNotYetValid       Kind = "CouponNotYetValid"
	KindBelowMinimumOrder       Kind = "BelowMinimumOrder"
	KindUsageLimitExceeded      Kind = "UsageLimitExceeded"
	KindPerUserLimitExceeded    Kind = "PerUserLimitExceeded"
	KindInvalidReturnQuantity   Kind = "InvalidReturnQuantity"
	KindInvalidRefundAmount     Kind = "InvalidRefundAmount"
	KindInvalidStatusTransition Kind = "InvalidStatusTransition"
	KindReturnAlreadyExists     Kind = "ReturnAlreadyExists"
	KindNotFound                Kind = "NotFound"
	KindValidationFailed        Kind = "ValidationFailed"
	KindForbidden               Kind = "Forbidden"
	KindBusy                    Kind = "Busy"
	KindConnectionError         Kind = "ConnectionError"
	KindConstraintViolation     Kind = "ConstraintViolation"
	KindInternal                Kind = "Internal"
)

// Error carries a kind for the transport layer plus optional template data
// used when localizing the message.
type Error struct {
	Kind   Kind
	Detail string
	Data   map[string]any
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test errors.Is(err, apperror.New(KindX, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) WithData(key string, v any) *Error {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data[key] = v
	return e
}

// KindOf returns the kind of err, classifying raw storage errors on the way.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Classify(err).Kind
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Classify maps driver and network failures onto ConnectionError (retryable)
// or ConstraintViolation (fatal). Anything else becomes Internal.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(KindNotFound, err, "")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "57", "53":
			return Wrap(KindConnectionError, err, "")
		case "23":
			return Wrap(KindConstraintViolation, err, pqErr.Constraint)
		case "40":
			// serialization failure / deadlock: safe to retry the whole unit
			return Wrap(KindConnectionError, err, string(pqErr.Code))
		}
		return Wrap(KindInternal, err, "")
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return Wrap(KindConnectionError, err, "")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindConnectionError, err, "")
	}

	return Wrap(KindInternal, err, "")
}

// Retryable reports whether the failure is transient.
func Retryable(err error) bool {
	return KindOf(err) == KindConnectionError
}

// HTTPStatus maps a kind onto the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidBranchPair, KindValidationFailed, KindInvalidReturnQuantity,
		KindInvalidRefundAmount, KindCouponNotFound, KindCouponExpired,
		KindCouponNotYetValid, KindBelowMinimumOrder:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInvalidStatusTransition, KindReturnAlreadyExists,
		KindConstraintViolation, KindUsageLimitExceeded, KindPerUserLimitExceeded:
		return http.StatusConflict
	case KindOrderNotDelivered:
		return http.StatusUnprocessableEntity
	case KindBusy:
		return http.StatusTooManyRequests
	case KindConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
