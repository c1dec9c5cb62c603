package usecase

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// 注文まわりの失敗の種類。HTTPError.Err に入れて errors.Is で判定する
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrCartEmpty           = errors.New("cart empty")
	ErrProductNotFound     = errors.New("product not found")
	ErrVariantNotFound     = errors.New("variant not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrSequenceUnavailable = errors.New("sequence unavailable")
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderInProgress     = errors.New("order in progress")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
)

var errorCodes = map[error]string{
	ErrInvalidInput:        "INVALID_INPUT",
	ErrCartEmpty:           "CART_EMPTY",
	ErrProductNotFound:     "PRODUCT_NOT_FOUND",
	ErrVariantNotFound:     "VARIANT_NOT_FOUND",
	ErrInsufficientStock:   "INSUFFICIENT_STOCK",
	ErrSequenceUnavailable: "SEQUENCE_UNAVAILABLE",
	ErrPersistenceFailed:   "PERSISTENCE_FAILED",
	ErrInvalidTransition:   "INVALID_TRANSITION",
	ErrOrderInProgress:     "ORDER_IN_PROGRESS",
	ErrNotFound:            "NOT_FOUND",
	ErrForbidden:           "FORBIDDEN",
}

type HTTPError struct {
	Status  int
	Message string
	// 種類（ErrCartEmpty など）。無ければ nil
	Err error
	// ログ用の原因。レスポンスには出さない
	Cause error
}

func (e *HTTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// レスポンス用のコード。種類が無ければ空
func (e *HTTPError) Code() string {
	for kind, code := range errorCodes {
		if errors.Is(e.Err, kind) {
			return code
		}
	}
	return ""
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func newKindError(status int, kind error, message string) error {
	return &HTTPError{Status: status, Message: message, Err: kind}
}

func newDBError(cause error) error {
	return &HTTPError{Status: http.StatusInternalServerError, Message: "db error", Cause: cause}
}

func invalidInput(message string) error {
	return newKindError(http.StatusBadRequest, ErrInvalidInput, message)
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// どのバリアントが何個足りなかったか
type InsufficientStockError struct {
	ProductID int64
	VariantID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: variant=%d available=%d requested=%d", e.VariantID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
