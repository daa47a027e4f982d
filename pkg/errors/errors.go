package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	ErrInvalidEMITerms                   = errors.New("invalid emi terms")
	ErrInvalidTerms                      = errors.New("invalid schedule terms")
	ErrDuplicateAgreement                = errors.New("emi agreement already exists")
	ErrAlreadyProcessed                  = errors.New("transaction already processed")
	ErrTransactionAlreadyApplied         = errors.New("transaction already applied to another agreement")
	ErrNoActiveAgreement                 = errors.New("no active emi agreement")
	ErrAgreementNotFound                 = errors.New("emi agreement not found")
	ErrConcurrentUpdate                  = errors.New("concurrent update conflict")
	ErrInvalidStatusTransition           = errors.New("invalid status transition")
	ErrNotificationDispatchFailed        = errors.New("notification dispatch failed")
	ErrUpstreamPaymentVerificationFailed = errors.New("upstream payment verification failed")
	ErrPaymentPending                    = errors.New("payment is pending")
	ErrPaymentNotSucceeded               = errors.New("payment did not succeed")
	ErrPaymentAmountMismatch             = errors.New("payment amount does not cover the installment")
	ErrCourseNotFound                    = errors.New("course not found")
	ErrOfflineRecordNotFound             = errors.New("offline emi record not found")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidEMITerms                   = "INVALID_EMI_TERMS"
	ErrCodeInvalidTerms                      = "INVALID_TERMS"
	ErrCodeDuplicateAgreement                = "DUPLICATE_AGREEMENT"
	ErrCodeAlreadyProcessed                  = "ALREADY_PROCESSED"
	ErrCodeTransactionAlreadyApplied         = "TRANSACTION_ALREADY_APPLIED"
	ErrCodeNoActiveAgreement                 = "NO_ACTIVE_AGREEMENT"
	ErrCodeAgreementNotFound                 = "AGREEMENT_NOT_FOUND"
	ErrCodeConcurrentUpdateConflict          = "CONCURRENT_UPDATE_CONFLICT"
	ErrCodeInvalidStatusTransition           = "INVALID_STATUS_TRANSITION"
	ErrCodeNotificationDispatchFailed        = "NOTIFICATION_DISPATCH_FAILED"
	ErrCodeUpstreamPaymentVerificationFailed = "UPSTREAM_PAYMENT_VERIFICATION_FAILED"
	ErrCodePaymentPending                    = "PAYMENT_PENDING"
	ErrCodePaymentNotSucceeded               = "PAYMENT_NOT_SUCCEEDED"
	ErrCodePaymentAmountMismatch             = "PAYMENT_AMOUNT_MISMATCH"
	ErrCodeCourseNotFound                    = "COURSE_NOT_FOUND"
	ErrCodeOfflineRecordNotFound             = "OFFLINE_RECORD_NOT_FOUND"
	ErrCodeDatabaseError                     = "DATABASE_ERROR"
	ErrCodeCacheError                        = "CACHE_ERROR"
)

var statusByCode = map[string]int{
	ErrCodeInvalidEMITerms:                   http.StatusBadRequest,
	ErrCodeInvalidTerms:                      http.StatusBadRequest,
	ErrCodePaymentAmountMismatch:             http.StatusBadRequest,
	ErrCodePaymentNotSucceeded:               http.StatusPaymentRequired,
	ErrCodeDuplicateAgreement:                http.StatusConflict,
	ErrCodeInvalidStatusTransition:           http.StatusConflict,
	ErrCodeTransactionAlreadyApplied:         http.StatusConflict,
	ErrCodeConcurrentUpdateConflict:          http.StatusServiceUnavailable,
	ErrCodeAlreadyProcessed:                  http.StatusOK,
	ErrCodePaymentPending:                    http.StatusAccepted,
	ErrCodeNoActiveAgreement:                 http.StatusNotFound,
	ErrCodeAgreementNotFound:                 http.StatusNotFound,
	ErrCodeCourseNotFound:                    http.StatusNotFound,
	ErrCodeOfflineRecordNotFound:             http.StatusNotFound,
	ErrCodeUpstreamPaymentVerificationFailed: http.StatusBadGateway,
	ErrCodeNotificationDispatchFailed:        http.StatusBadGateway,
}

// StatusCode maps an error to the HTTP status the API surfaces for it
func StatusCode(err error) int {
	var be *BusinessError
	if errors.As(err, &be) {
		if status, ok := statusByCode[be.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the business error code carried by err, or an empty string
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapInvalidEMITerms(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidEMITerms,
		reason,
		ErrInvalidEMITerms,
	)
}

func WrapInvalidTerms(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTerms,
		reason,
		ErrInvalidTerms,
	)
}

func WrapDuplicateAgreement(userID, courseID, txnID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateAgreement,
		fmt.Sprintf("EMI agreement for user %s, course %s and transaction %s already exists", userID, courseID, txnID),
		ErrDuplicateAgreement,
	)
}

func WrapOpenAgreementExists(userID, courseID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateAgreement,
		fmt.Sprintf("User %s already has an open EMI agreement for course %s", userID, courseID),
		ErrDuplicateAgreement,
	)
}

func WrapAlreadyProcessed(txnID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyProcessed,
		fmt.Sprintf("Transaction %s has already been reconciled", txnID),
		ErrAlreadyProcessed,
	)
}

func WrapTransactionAlreadyApplied(txnID, agreementID string) *BusinessError {
	return NewBusinessError(
		ErrCodeTransactionAlreadyApplied,
		fmt.Sprintf("Transaction %s was already applied to EMI agreement %s", txnID, agreementID),
		ErrTransactionAlreadyApplied,
	)
}

func WrapNoActiveAgreement(userID, courseID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoActiveAgreement,
		fmt.Sprintf("No active EMI agreement for user %s and course %s", userID, courseID),
		ErrNoActiveAgreement,
	)
}

func WrapAgreementNotFound(id string) *BusinessError {
	return NewBusinessError(
		ErrCodeAgreementNotFound,
		fmt.Sprintf("EMI agreement %s not found", id),
		ErrAgreementNotFound,
	)
}

func WrapConcurrentUpdateConflict(id string, attempts int) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrentUpdateConflict,
		fmt.Sprintf("EMI agreement %s kept changing after %d attempts, retry later", id, attempts),
		ErrConcurrentUpdate,
	)
}

func WrapInvalidStatusTransition(from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidStatusTransition,
		fmt.Sprintf("EMI agreement cannot move from %s to %s", from, to),
		ErrInvalidStatusTransition,
	)
}

func WrapNotificationDispatchFailed(template string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeNotificationDispatchFailed,
		fmt.Sprintf("Failed to dispatch %s notification", template),
		errors.Join(ErrNotificationDispatchFailed, err),
	)
}

func WrapUpstreamPaymentVerificationFailed(txnID string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeUpstreamPaymentVerificationFailed,
		fmt.Sprintf("Could not verify transaction %s with the payment gateway, status unknown", txnID),
		errors.Join(ErrUpstreamPaymentVerificationFailed, err),
	)
}

func WrapPaymentPending(txnID string) *BusinessError {
	return NewBusinessError(
		ErrCodePaymentPending,
		fmt.Sprintf("Transaction %s is still pending", txnID),
		ErrPaymentPending,
	)
}

func WrapPaymentNotSucceeded(txnID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodePaymentNotSucceeded,
		fmt.Sprintf("Transaction %s ended with status %s", txnID, status),
		ErrPaymentNotSucceeded,
	)
}

func WrapPaymentAmountMismatch(expected, actual string) *BusinessError {
	return NewBusinessError(
		ErrCodePaymentAmountMismatch,
		fmt.Sprintf("Payment amount %s does not cover expected installment %s", actual, expected),
		ErrPaymentAmountMismatch,
	)
}

func WrapCourseNotFound(courseID string) *BusinessError {
	return NewBusinessError(
		ErrCodeCourseNotFound,
		fmt.Sprintf("Course %s not found", courseID),
		ErrCourseNotFound,
	)
}

func WrapOfflineRecordNotFound(id string) *BusinessError {
	return NewBusinessError(
		ErrCodeOfflineRecordNotFound,
		fmt.Sprintf("Offline EMI record %s not found", id),
		ErrOfflineRecordNotFound,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
