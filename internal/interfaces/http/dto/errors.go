package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	// ErrCodeSessionRequired is used when the tenant or device header is missing
	ErrCodeSessionRequired = "ERR_SESSION_REQUIRED"
)

// Lookup error codes
const (
	ErrCodeNotFound        = "ERR_NOT_FOUND"
	ErrCodeOrderNotFound   = "ERR_ORDER_NOT_FOUND"
	ErrCodeLineNotFound    = "ERR_LINE_NOT_FOUND"
	ErrCodeBarcodeNotFound = "ERR_BARCODE_NOT_FOUND"
)

// Intake rule error codes
const (
	ErrCodeInvalidState    = "ERR_INVALID_STATE"
	ErrCodeInvalidQuantity = "ERR_INVALID_QUANTITY"
	ErrCodeInvalidEntry    = "ERR_INVALID_ENTRY"
	ErrCodeAlreadyReceived = "ERR_ALREADY_RECEIVED"
	ErrCodeEmptyQueue      = "ERR_EMPTY_QUEUE"
	ErrCodeSessionClosed   = "ERR_SESSION_CLOSED"
)

// Upstream error codes
const (
	// ErrCodeUpstream is used when the ERP could not be reached or refused a call
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeInvalidOrder is used when the ERP returned an order that fails validation
	ErrCodeInvalidOrder = "ERR_INVALID_ORDER"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation and input errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeInvalidInput:       http.StatusBadRequest,
	ErrCodeInvalidJSON:        http.StatusBadRequest,
	ErrCodeSessionRequired:    http.StatusBadRequest,

	// Lookups -> 404 Not Found
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeOrderNotFound:   http.StatusNotFound,
	ErrCodeLineNotFound:    http.StatusNotFound,
	ErrCodeBarcodeNotFound: http.StatusNotFound,

	// Intake rules -> 422 Unprocessable Entity
	ErrCodeInvalidState:    http.StatusUnprocessableEntity,
	ErrCodeInvalidQuantity: http.StatusUnprocessableEntity,
	ErrCodeInvalidEntry:    http.StatusUnprocessableEntity,
	ErrCodeAlreadyReceived: http.StatusUnprocessableEntity,
	ErrCodeEmptyQueue:      http.StatusUnprocessableEntity,
	ErrCodeSessionClosed:   http.StatusConflict,

	// Upstream -> 502 Bad Gateway
	ErrCodeUpstream:     http.StatusBadGateway,
	ErrCodeInvalidOrder: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":         ErrCodeNotFound,
	"INVALID_INPUT":     ErrCodeInvalidInput,
	"VALIDATION_ERROR":  ErrCodeValidation,
	"BAD_REQUEST":       ErrCodeBadRequest,
	"INTERNAL_ERROR":    ErrCodeInternal,
	"ORDER_NOT_FOUND":   ErrCodeOrderNotFound,
	"LINE_NOT_FOUND":    ErrCodeLineNotFound,
	"BARCODE_NOT_FOUND": ErrCodeBarcodeNotFound,
	"INVALID_STATE":     ErrCodeInvalidState,
	"INVALID_QUANTITY":  ErrCodeInvalidQuantity,
	"INVALID_ENTRY":     ErrCodeInvalidEntry,
	"ALREADY_RECEIVED":  ErrCodeAlreadyReceived,
	"EMPTY_QUEUE":       ErrCodeEmptyQueue,
	"SESSION_CLOSED":    ErrCodeSessionClosed,
	"TRANSPORT_FAILURE": ErrCodeUpstream,
	"INVALID_ORDER":     ErrCodeInvalidOrder,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
