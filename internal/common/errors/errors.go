// Package errors provides standardized error handling for the admission workers and API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Validation
const (
	ErrCodeInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidSection        ErrorCode = "INVALID_SECTION"
	ErrCodeInvalidSectionPayload ErrorCode = "INVALID_SECTION_PAYLOAD"
	ErrCodeInvalidPaymentDetails ErrorCode = "INVALID_PAYMENT_DETAILS"
)

// Lookup / conflict
const (
	ErrCodeDraftNotFound       ErrorCode = "DRAFT_NOT_FOUND"
	ErrCodeDraftAlreadyExists  ErrorCode = "DRAFT_ALREADY_EXISTS"
	ErrCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentNotCompleted ErrorCode = "PAYMENT_NOT_COMPLETED"
)

// External / technical
const (
	ErrCodeGatewayError             ErrorCode = "GATEWAY_ERROR"
	ErrCodeGatewayTimeout           ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeIntegrityViolation       ErrorCode = "INTEGRITY_VIOLATION"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError creates a non-retryable error for malformed job variables or request bodies.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false)
}

// NewInvalidSectionError creates a non-retryable error for an unrecognised section name.
func NewInvalidSectionError(section string) *StandardError {
	return newError(ErrCodeInvalidSection, "Unrecognised application section",
		fmt.Sprintf("section: %s", section), false)
}

// NewInvalidSectionPayloadError creates a non-retryable schema validation error.
func NewInvalidSectionPayloadError(section string, problems []string) *StandardError {
	err := newError(ErrCodeInvalidSectionPayload, "Section payload failed validation",
		strings.Join(problems, "; "), false)
	err.Metadata = map[string]interface{}{"section": section}
	return err
}

// NewInvalidPaymentDetailsError creates a non-retryable error carrying field-level reasons.
func NewInvalidPaymentDetailsError(fields map[string]string) *StandardError {
	parts := make([]string, 0, len(fields))
	for field, reason := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, reason))
	}
	err := newError(ErrCodeInvalidPaymentDetails, "Invalid payment details", strings.Join(parts, "; "), false)
	meta := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	err.Metadata = map[string]interface{}{"fields": meta}
	return err
}

// NewDraftNotFoundError creates a terminal not-found error.
func NewDraftNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeDraftNotFound, "Application draft not found",
		fmt.Sprintf("applicationId: %s", applicationID), false)
}

// NewDraftAlreadyExistsError creates a conflict error for a second start of the same application.
func NewDraftAlreadyExistsError(applicationID string) *StandardError {
	return newError(ErrCodeDraftAlreadyExists, "Application already started",
		fmt.Sprintf("applicationId: %s", applicationID), false)
}

// NewPaymentNotFoundError is returned when finalize cannot resolve a payment attempt.
func NewPaymentNotFoundError(applicationID, paymentID string) *StandardError {
	details := fmt.Sprintf("applicationId: %s", applicationID)
	if paymentID != "" {
		details += fmt.Sprintf(", paymentId: %s", paymentID)
	}
	return newError(ErrCodePaymentNotFound, "Payment attempt not found", details, false)
}

// NewPaymentNotCompletedError is returned when the resolved attempt is not COMPLETED.
func NewPaymentNotCompletedError(paymentID, status string) *StandardError {
	return newError(ErrCodePaymentNotCompleted, "Payment has not completed",
		fmt.Sprintf("paymentId: %s, status: %s", paymentID, status), false)
}

// NewGatewayError creates a retryable error for a gateway call that returned no charge.
func NewGatewayError(err error) *StandardError {
	e := newError(ErrCodeGatewayError, "Payment gateway error", err.Error(), true)
	e.cause = err
	return e
}

// NewGatewayTimeoutError creates a retryable error for a gateway call that hit its deadline.
func NewGatewayTimeoutError(err error) *StandardError {
	e := newError(ErrCodeGatewayTimeout, "Payment gateway timeout", err.Error(), true)
	e.cause = err
	return e
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	e := newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
	e.cause = err
	return e
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	e := newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
	e.cause = err
	return e
}

// NewDatabaseInsertFailedError creates a retryable insert error.
func NewDatabaseInsertFailedError(entity string, err error) *StandardError {
	e := newError(ErrCodeDatabaseInsertFailed, "Database insert error",
		fmt.Sprintf("entity: %s, error: %s", entity, err.Error()), true)
	e.cause = err
	return e
}

// NewIntegrityViolationError describes a draft that outlived its admission record.
func NewIntegrityViolationError(applicationID string, err error) *StandardError {
	details := fmt.Sprintf("applicationId: %s: draft and admission both present", applicationID)
	if err != nil {
		details += ": " + err.Error()
	}
	e := newError(ErrCodeIntegrityViolation, "Draft and admission coexist", details, false)
	e.cause = err
	return e
}

// ==========================
// 4. Error Conversion
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeGatewayError:
		return 3
	case ErrCodeGatewayTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// HTTPStatus maps a code onto the API status family.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeInvalidSection, ErrCodeInvalidSectionPayload, ErrCodeInvalidPaymentDetails:
		return http.StatusBadRequest
	case ErrCodeDraftNotFound, ErrCodePaymentNotFound:
		return http.StatusNotFound
	case ErrCodeDraftAlreadyExists:
		return http.StatusConflict
	case ErrCodePaymentNotCompleted:
		return http.StatusPaymentRequired
	case ErrCodeGatewayError, ErrCodeGatewayTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard returns the StandardError in err's chain, wrapping unknown errors as INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "ALREADY_EXISTS"), strings.Contains(codeStr, "NOT_COMPLETED"):
		return "CONFLICT"
	case strings.Contains(codeStr, "GATEWAY"):
		return "EXTERNAL"
	case strings.Contains(codeStr, "DATABASE"), strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "INTEGRITY"):
		return "INTEGRITY"
	default:
		return "OTHER"
	}
}
