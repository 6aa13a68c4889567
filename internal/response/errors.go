package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrContentUnavailable  ErrCode = "CONTENT_UNAVAILABLE"
	ErrActiveSessionExists ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrAnswerLocked        ErrCode = "ANSWER_LOCKED"
	ErrInvalidState        ErrCode = "INVALID_STATE"
	ErrSubmissionFailed    ErrCode = "SUBMISSION_FAILED"
	ErrSubmissionRunning   ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrAlreadySubmitted    ErrCode = "ALREADY_SUBMITTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrContentUnavailable:
		return "No questions are available for the selected subjects yet."
	case ErrActiveSessionExists:
		return "You already have an exam in progress. Resume or abandon it first."
	case ErrNoActiveSession:
		return "There is no exam in progress."
	case ErrAnswerLocked:
		return "This answer was already checked and can no longer be changed."
	case ErrInvalidState:
		return "This action is not allowed at this point of the exam."
	case ErrSubmissionFailed:
		return "We could not submit your exam. Your answers are safe, please try again."
	case ErrSubmissionRunning:
		return "Your exam is being submitted."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
