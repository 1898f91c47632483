package receiving

import (
	"context"
	"errors"

	"github.com/erp/receiving/internal/domain/shared"
)

// Error codes raised by the receiving workflow
const (
	CodeBarcodeNotFound  = "BARCODE_NOT_FOUND"
	CodeOrderNotFound    = "ORDER_NOT_FOUND"
	CodeLineNotFound     = "LINE_NOT_FOUND"
	CodeInvalidQuantity  = "INVALID_QUANTITY"
	CodeInvalidEntry     = "INVALID_ENTRY"
	CodeInvalidOrder     = "INVALID_ORDER"
	CodeAlreadyReceived  = "ALREADY_RECEIVED"
	CodeTransportFailure = "TRANSPORT_FAILURE"
	CodeInvalidState     = "INVALID_STATE"
	CodeEmptyQueue       = "EMPTY_QUEUE"
	CodeSessionClosed    = "SESSION_CLOSED"
)

// Warning codes attached to successful outcomes
const (
	WarningOverReceipt        = "OVER_RECEIPT"
	WarningDuplicateBarcode   = "DUPLICATE_BARCODE"
	WarningJournalWriteFailed = "JOURNAL_WRITE_FAILED"
)

// ErrorKind is the coarse taxonomy callers branch on
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindInvalidQuantity  ErrorKind = "INVALID_QUANTITY"
	KindAlreadyReceived  ErrorKind = "ALREADY_RECEIVED"
	KindTransportFailure ErrorKind = "TRANSPORT_FAILURE"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindUnknown          ErrorKind = "UNKNOWN"
)

// IsLocal returns true for kinds that are recoverable without leaving the current state
func (k ErrorKind) IsLocal() bool {
	switch k {
	case KindNotFound, KindInvalidQuantity, KindAlreadyReceived, KindInvalidState:
		return true
	}
	return false
}

// KindOf classifies err into the receiving error taxonomy
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch shared.ErrorCode(err) {
	case CodeBarcodeNotFound, CodeOrderNotFound, CodeLineNotFound:
		return KindNotFound
	case CodeInvalidQuantity, CodeInvalidEntry:
		return KindInvalidQuantity
	case CodeAlreadyReceived:
		return KindAlreadyReceived
	case CodeTransportFailure, CodeInvalidOrder:
		return KindTransportFailure
	case CodeInvalidState, CodeEmptyQueue, CodeSessionClosed:
		return KindInvalidState
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransportFailure
	}
	return KindUnknown
}

// NewTransportError wraps an I/O failure talking to the catalog or the gateway
func NewTransportError(message string, cause error) *shared.DomainError {
	return shared.WrapDomainError(CodeTransportFailure, message, cause)
}

// NewOrderNotFoundError is returned when the catalog has no such order
func NewOrderNotFoundError(message string, cause error) *shared.DomainError {
	return shared.WrapDomainError(CodeOrderNotFound, message, cause)
}

// Warning is a non-blocking notice attached to a successful operation
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
