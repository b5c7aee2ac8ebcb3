package services

import (
	"errors"
	"fmt"

	apperrors "github.com/EduForge-2025/cat-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal error")

	// Session specific errors
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionClosed          = errors.New("session is not accepting operations")
	ErrSessionNotInProgress   = errors.New("session is not in progress")
	ErrConcurrentModification = errors.New("session is being modified by another operation")
	ErrGradesPending          = errors.New("free-response grades still pending")
	ErrMaxQuestionsReached    = errors.New("maximum question count reached, session must be completed")

	// Response specific errors
	ErrInvalidResponse   = errors.New("response does not match the pending item")
	ErrDuplicateResponse = errors.New("item already answered")
	ErrNoPendingItem     = errors.New("no item is pending for this session")

	// Item bank specific errors
	ErrItemBankExhausted      = errors.New("no eligible item remains in the bank")
	ErrItemNotFound           = errors.New("item not found")
	ErrTestDefinitionNotFound = errors.New("test definition not found")

	// Integrity specific errors
	ErrFlagNotFound        = errors.New("security flag not found")
	ErrFlagAlreadyResolved = errors.New("security flag already resolved")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrTestDefinitionNotFound) ||
		errors.Is(err, ErrFlagNotFound)
}

// IsSessionClosed checks if error represents an operation on a closed session
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrSessionNotInProgress)
}

// IsConflict checks if error represents a state conflict the caller can
// resolve by resynchronizing
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicateResponse) ||
		errors.Is(err, ErrGradesPending) ||
		errors.Is(err, ErrMaxQuestionsReached)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}
