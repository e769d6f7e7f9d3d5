package errors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeEngineConfig     = "ENGINE_CONFIG_INVALID"
	ErrCodeSandboxViolation = "SANDBOX_VIOLATION"
	ErrCodeApprovalDenied   = "APPROVAL_DENIED"
	ErrCodeToolExecution    = "TOOL_EXECUTION_FAILED"
	ErrCodeFileOperation    = "FILE_OPERATION_FAILED"
	ErrCodeShellSpawn       = "SHELL_SPAWN_FAILED"
	ErrCodeProviderFailed   = "PROVIDER_FAILED"
	ErrCodeProviderAuth     = "PROVIDER_AUTH_FAILED"
	ErrCodeElevationBlocked = "ELEVATION_BLOCKED"
	ErrCodeProtocol         = "PROTOCOL_ERROR"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
)
