// Package apperror provides structured error handling for the inventory ledger.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeInsufficientLotStock   = "INSUFFICIENT_LOT_STOCK"
	CodeProductBlocked         = "PRODUCT_BLOCKED"
	CodeLotBlocked             = "LOT_BLOCKED"
	CodeInvalidMovementType    = "INVALID_MOVEMENT_TYPE"
	CodeValuationUnavailable   = "VALUATION_UNAVAILABLE"
	CodeWarehouseInactive      = "WAREHOUSE_INACTIVE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict  = "CONFLICT"
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type for the ledger.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error for non-lot products.
func NewInsufficientStock(productID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewInsufficientLotStock creates a shortage error for lot-controlled products.
// Shortfall is the quantity that eligible lots could not cover.
func NewInsufficientLotStock(productID string, requested, shortfall float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientLotStock,
		Message:    "Eligible lots cannot cover requested quantity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"shortfall":  shortfall,
		},
	}
}

// NewProductBlocked creates an error for movements on a blocked product.
func NewProductBlocked(productID string) *AppError {
	return &AppError{
		Code:       CodeProductBlocked,
		Message:    "Product is blocked for stock movements",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product_id": productID},
	}
}

// NewLotBlocked creates an error for direct operations on a blocked lot.
func NewLotBlocked(lotID string) *AppError {
	return &AppError{
		Code:       CodeLotBlocked,
		Message:    "Lot is blocked",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"lot_id": lotID},
	}
}

// NewInvalidMovementType creates an error for unknown movement types.
func NewInvalidMovementType(movementType string) *AppError {
	return &AppError{
		Code:       CodeInvalidMovementType,
		Message:    "Invalid movement type",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"type": movementType},
	}
}

// NewValuationUnavailable creates an error when no exchange rate exists for a date.
func NewValuationUnavailable(currencyID, date string) *AppError {
	return &AppError{
		Code:       CodeValuationUnavailable,
		Message:    "No exchange rate available for date",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"currency_id": currencyID, "date": date},
	}
}

// NewWarehouseInactive creates an error for movements on a deactivated warehouse.
func NewWarehouseInactive(warehouseID string) *AppError {
	return &AppError{
		Code:       CodeWarehouseInactive,
		Message:    "Warehouse is not active",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"warehouse_id": warehouseID},
	}
}

// NewConcurrentModification creates a lock acquisition error.
// Callers should retry with backoff.
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record is being modified by another operation. Retry later.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}

// IsConflict reports conflict or duplicate-entry errors.
func IsConflict(err error) bool {
	return IsCode(err, CodeConflict) || IsCode(err, CodeDuplicate)
}

// IsShortage reports either of the two stock shortage codes.
func IsShortage(err error) bool {
	return IsCode(err, CodeInsufficientStock) || IsCode(err, CodeInsufficientLotStock)
}
