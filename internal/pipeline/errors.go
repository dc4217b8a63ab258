package pipeline

import "errors"

// Stable error codes surfaced as error.code in job views and as errorCode in
// HTTP error responses. These are wire contract; do not rename.
const (
	CodeInvalidURL             = "INVALID_URL"
	CodeDependencyMissing      = "DEPENDENCY_MISSING"
	CodeDownloadFailed         = "YOUTUBE_DOWNLOAD_FAILED"
	CodeConvertFailed          = "AUDIO_CONVERT_FAILED"
	CodeASRModelUnavailable    = "ASR_MODEL_UNAVAILABLE"
	CodeASRTranscribeFailed    = "ASR_TRANSCRIBE_FAILED"
	CodeIOWriteFailed          = "IO_WRITE_FAILED"
	CodeLLMRequestFailed       = "LLM_REQUEST_FAILED"
	CodeHooksExtractionFailed  = "HOOKS_EXTRACTION_FAILED"
	CodeDraftsGenerationFailed = "DRAFTS_GENERATION_FAILED"
	CodeJobCancelled           = "JOB_CANCELLED"
)

// Subcodes carried in error details for structured-output failures.
const (
	SubcodeHooksJSONInvalid       = "HOOKS_JSON_INVALID"
	SubcodeDraftsValidationFailed = "DRAFTS_VALIDATION_FAILED"
)

// Error is the typed pipeline failure. Every stage failure carries a stable
// code, a human-readable message and optional structured details that are
// surfaced verbatim in the job view.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

// NewError creates a pipeline Error without details.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message, Details: map[string]any{}}
}

// NewErrorWithDetails creates a pipeline Error carrying structured details.
func NewErrorWithDetails(code, message string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Message: message, Details: details}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// AsError extracts a typed pipeline Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// errCancelled is the canonical cancellation failure raised at stage
// boundaries and inside blocking loops.
func errCancelled() *Error {
	return NewError(CodeJobCancelled, "Job cancelled by user.")
}
