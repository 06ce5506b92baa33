package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrUnauthorizedEmail  ErrCode = "UNAUTHORIZED_EMAIL"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam & session ────────────────────────────────────────────────
	ErrExamNotFound          ErrCode = "EXAM_NOT_FOUND"
	ErrNoActiveExam          ErrCode = "NO_ACTIVE_EXAM"
	ErrAccessDeniedToExam    ErrCode = "ACCESS_DENIED_TO_EXAM"
	ErrSessionNotFound       ErrCode = "SESSION_NOT_FOUND"
	ErrSessionCompleted      ErrCode = "SESSION_COMPLETED"
	ErrQuestionNotFound      ErrCode = "QUESTION_NOT_FOUND"
	ErrInvalidQuestion       ErrCode = "INVALID_QUESTION"
	ErrInvalidSubmissionType ErrCode = "INVALID_SUBMISSION_TYPE"

	// ─── Groups ────────────────────────────────────────────────────────
	ErrGroupNotFound         ErrCode = "GROUP_NOT_FOUND"
	ErrGroupNameExists       ErrCode = "GROUP_NAME_EXISTS"
	ErrStudentAlreadyInGroup ErrCode = "STUDENT_ALREADY_IN_GROUP"
	ErrStudentNotInGroup     ErrCode = "STUDENT_NOT_IN_GROUP"
	ErrStudentNotFound       ErrCode = "STUDENT_NOT_FOUND"
	ErrEmailExists           ErrCode = "EMAIL_EXISTS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrUnauthorizedEmail:
		return "This email is not authorized to sign in."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrSessionInvalidated:
		return "Your login has ended. Please sign in again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

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

	// ─── Exam & session ────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrNoActiveExam:
		return "There is no active exam right now."
	case ErrAccessDeniedToExam:
		return "You do not have access to this exam."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrSessionCompleted:
		return "This exam session has already been completed."
	case ErrQuestionNotFound:
		return "Question not found in this exam."
	case ErrInvalidQuestion:
		return "Multiple choice questions need at least two options and a valid correct option."
	case ErrInvalidSubmissionType:
		return "Unknown submission type."

	// ─── Groups ────────────────────────────────────────────────────────
	case ErrGroupNotFound:
		return "Group not found."
	case ErrGroupNameExists:
		return "A group with this name already exists."
	case ErrStudentAlreadyInGroup:
		return "The student is already a member of this group."
	case ErrStudentNotInGroup:
		return "The student is not a member of this group."
	case ErrStudentNotFound:
		return "Student not found."
	case ErrEmailExists:
		return "This email is already registered."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
