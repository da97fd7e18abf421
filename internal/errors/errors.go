package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the prospect scan worker
 *
 * Isolated errors (one image failing) are absorbed by the pipeline and logged.
 * Scan-level errors end in the failed state with the message attached.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Per-image errors, isolated
	ErrorPreprocessFailed  ErrorCode = "PREPROCESS_FAILED"
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"

	// Scan-level errors
	ErrorStageFailed       ErrorCode = "STAGE_FAILED"
	ErrorInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorInvalidRequest    ErrorCode = "INVALID_REQUEST"
)

// ErrNotFound is returned by stores when a scan id is unknown
var ErrNotFound = stderrors.New("not found")

// ScanError represents a structured pipeline error
type ScanError struct {
	Code      ErrorCode
	Message   string
	ScanID    string
	Stage     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewPreprocessFailedError(imageID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorPreprocessFailed,
		Message:   fmt.Sprintf("Preprocessing failed for image %s", imageID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_id": imageID,
		},
		Cause: cause,
	}
}

func NewRecognitionFailedError(imageID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorRecognitionFailed,
		Message:   fmt.Sprintf("Text recognition failed for image %s", imageID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_id": imageID,
		},
		Cause: cause,
	}
}

func NewStageFailedError(scanID string, stage string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorStageFailed,
		Message:   fmt.Sprintf("Stage %s failed", stage),
		ScanID:    scanID,
		Stage:     stage,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidTransitionError(scanID string, from string, to string) *ScanError {
	return &ScanError{
		Code:      ErrorInvalidTransition,
		Message:   fmt.Sprintf("Illegal transition %s -> %s", from, to),
		ScanID:    scanID,
		Stage:     from,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	}
}

func NewStorageFailedError(scanID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store scan results",
		ScanID:    scanID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidRequestError(message string) *ScanError {
	return &ScanError{
		Code:      ErrorInvalidRequest,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// HasCode reports whether err (or anything it wraps) is a ScanError with the given code
func HasCode(err error, code ErrorCode) bool {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code == code
	}
	return false
}

// ToMap converts error to map for status metadata
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Stage != "" {
		result["stage"] = e.Stage
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
