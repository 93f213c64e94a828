package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Token Ledger (TOK) ----

// CodeConcurrentModification is referenced by callers that retry on it,
// so it gets a name instead of a repeated literal.
const CodeConcurrentModification = "TOK_003"

func ErrInvalidInput(message string) *AppError {
	return New("TOK_001", message, http.StatusBadRequest)
}

func ErrInsufficientTokens() *AppError {
	return New("TOK_002", "Token balance cannot cover the requested cost", http.StatusPaymentRequired)
}

func ErrConcurrentModification() *AppError {
	return New(CodeConcurrentModification, "Concurrent modification detected, please retry", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("TOK_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDuplicateReference() *AppError {
	return New("TOK_005", "Reference ID has already been used", http.StatusConflict)
}

// ---- Campaign Escrow (CMP) ----

func ErrInsufficientBudget() *AppError {
	return New("CMP_001", "Campaign budget cannot cover the agreed price", http.StatusUnprocessableEntity)
}

func ErrInvalidTransition(from string, event string) *AppError {
	return New("CMP_002", fmt.Sprintf("Job in status %s does not permit %s", from, event), http.StatusConflict)
}

func ErrNotJobParty() *AppError {
	return New("CMP_003", "Account is not a party to this job", http.StatusForbidden)
}

// ---- Earnings (ERN) ----

func ErrInsufficientEarnings() *AppError {
	return New("ERN_001", "Available earnings cannot cover the withdrawal", http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAccountSuspended() *AppError {
	return New("AUTH_004", "Account is suspended", http.StatusForbidden)
}

func ErrWrongRole() *AppError {
	return New("AUTH_005", "Account role does not permit this operation", http.StatusForbidden)
}

// ---- Ad-serving API security (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_002", "Encryption service failure", http.StatusInternalServerError, err)
}

// Validation returns a TOK_001-style validation error.
func Validation(message string) *AppError {
	return ErrInvalidInput(message)
}
