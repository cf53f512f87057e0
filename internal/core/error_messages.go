// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors (InvalidTransitionError, ErrConflict, ErrNotFound, StageError,
// QualityError, ExternalServiceError, PersistenceError, ErrTooManyStages) are
// resolved first with errors.Is/As. Anything else falls back to substring
// patterns on the error text.
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Invalid transition: This step cannot run in the session's current state
//	         Action: Run the stages in order: analyze, extract, load
//	         Typed: *InvalidTransitionError
//
//	SES002 - Conflict: Another request is already running this step
//	         Action: Wait for it to finish, then refresh the session
//	         Typed: ErrConflict
//
//	SES003 - Not found: Session or dataset not found
//	         Action: Check the identifier or upload the paper again
//	         Typed: ErrNotFound
//
//	SES004 - Stage failed: A pipeline stage failed
//	         Action: Reset the session and retry the failed stage
//	         Typed: *StageError (when no more specific code applies)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing column: Required column is missing from the table
//	         Patterns: "missing required column"
//	VAL002 - Invalid number: A numeric field holds text
//	         Patterns: "must be a number"
//	VAL003 - Invalid integer: An integer field holds a fraction
//	         Patterns: "must be an integer"
//	VAL004 - Out of range: A value is outside its allowed range
//	         Patterns: "must be >=", "must be <="
//	VAL005 - Invalid format: A value does not match its expected format
//	         Patterns: "format is invalid"
//	VAL006 - Empty table: The table has no data rows
//	         Patterns: "csv is empty", "no data rows"
//
// # Extraction Errors (EXT001-EXT099)
//
//	EXT001 - Analysis timeout: The analysis service did not answer in time
//	         Typed: ErrTimeout
//	EXT002 - Analysis failed: The analysis service could not process the request
//	         Typed: *ExternalServiceError
//	EXT003 - Quality check: The extracted table failed structural checks
//	         Typed: *QualityError
//	EXT004 - Invalid PDF: The uploaded file is not a readable PDF
//	         Patterns: "invalid pdf", "not a pdf"
//	EXT005 - File too large: The PDF exceeds the size limit
//	         Patterns: "file too large"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	DB002 - Unique constraint: This value must be unique but already exists
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	DB010 - Persistence: Saving results failed
//	        Typed: *PersistenceError
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Storage write: Storing generated files failed
//	         Typed: *PersistenceError with a "storage" operation
//	STO002 - Missing artifact: A file from an earlier stage is missing
//	         Patterns: "nosuchkey", "no such file"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	         Patterns: "context canceled"
//	REQ002 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//	RATE002 - Pipeline busy: Too many stages are running
//	          Typed: ErrTooManyStages
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgInvalidTransition = UserMessage{
		Message: "This step cannot run in the session's current state",
		Action:  "Run the stages in order: analyze, extract, load",
		Code:    "SES001",
	}
	msgConflict = UserMessage{
		Message: "Another request is already running this step",
		Action:  "Wait for it to finish, then refresh the session",
		Code:    "SES002",
	}
	msgNotFound = UserMessage{
		Message: "Session or dataset not found",
		Action:  "Check the identifier or upload the paper again",
		Code:    "SES003",
	}
	msgStageFailed = UserMessage{
		Message: "A pipeline stage failed",
		Action:  "Reset the session and retry the failed stage",
		Code:    "SES004",
	}
	msgTimeout = UserMessage{
		Message: "The analysis service did not answer in time",
		Action:  "Reset the session and retry; large papers may need a longer timeout",
		Code:    "EXT001",
	}
	msgExternal = UserMessage{
		Message: "The analysis service could not process the request",
		Action:  "Reset the session and retry the stage",
		Code:    "EXT002",
	}
	msgQuality = UserMessage{
		Message: "The extracted table failed quality checks",
		Action:  "Retry extraction for this table or correct it manually",
		Code:    "EXT003",
	}
	msgPersistence = UserMessage{
		Message: "Saving results failed",
		Action:  "Please try again in a few moments",
		Code:    "DB010",
	}
	msgStorage = UserMessage{
		Message: "Storing generated files failed",
		Action:  "Please try again in a few moments",
		Code:    "STO001",
	}
	msgBusy = UserMessage{
		Message: "Too many pipeline stages are running",
		Action:  "Please wait a moment and try again",
		Code:    "RATE002",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Validation Errors (VAL001-VAL006)
	// =========================================================================
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the table",
			Action:  "Check that the extracted table includes every required column",
			Code:    "VAL001",
		},
	},
	{
		pattern: "must be a number",
		msg: UserMessage{
			Message: "A numeric field holds text",
			Action:  "Correct the listed cells and resubmit",
			Code:    "VAL002",
		},
	},
	{
		pattern: "must be an integer",
		msg: UserMessage{
			Message: "An integer field holds a fractional value",
			Action:  "Correct the listed cells and resubmit",
			Code:    "VAL003",
		},
	},
	{
		pattern: "must be >=",
		msg: UserMessage{
			Message: "A value is outside its allowed range",
			Action:  "Check units and decimal places in the listed cells",
			Code:    "VAL004",
		},
	},
	{
		pattern: "must be <=",
		msg: UserMessage{
			Message: "A value is outside its allowed range",
			Action:  "Check units and decimal places in the listed cells",
			Code:    "VAL004",
		},
	},
	{
		pattern: "format is invalid",
		msg: UserMessage{
			Message: "A value does not match its expected format",
			Action:  "Correct the listed cells and resubmit",
			Code:    "VAL005",
		},
	},
	{
		pattern: "csv is empty",
		msg: UserMessage{
			Message: "The table has no data rows",
			Action:  "Retry extraction for this table",
			Code:    "VAL006",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The table has no data rows",
			Action:  "Retry extraction for this table",
			Code:    "VAL006",
		},
	},

	// =========================================================================
	// Upload Errors (EXT004-EXT005)
	// =========================================================================
	{
		pattern: "invalid pdf",
		msg: UserMessage{
			Message: "The uploaded file is not a readable PDF",
			Action:  "Upload the publisher PDF of the paper",
			Code:    "EXT004",
		},
	},
	{
		pattern: "not a pdf",
		msg: UserMessage{
			Message: "The uploaded file is not a readable PDF",
			Action:  "Upload the publisher PDF of the paper",
			Code:    "EXT004",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The PDF exceeds the size limit",
			Action:  "Upload a smaller file or remove embedded supplements",
			Code:    "EXT005",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB007)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Reload the session to see the existing dataset",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Reload the session to see the existing dataset",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Reload the session to see the existing dataset",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Storage Errors (STO002)
	// =========================================================================
	{
		pattern: "nosuchkey",
		msg: UserMessage{
			Message: "A file from an earlier stage is missing",
			Action:  "Reset the session and rerun the earlier stage",
			Code:    "STO002",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "A file from an earlier stage is missing",
			Action:  "Reset the session and rerun the earlier stage",
			Code:    "STO002",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ002)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// mapTyped resolves pipeline error types. More specific causes are checked
// before the StageError wrapper that carries them.
func mapTyped(err error) (UserMessage, bool) {
	var (
		transition *InvalidTransitionError
		quality    *QualityError
		external   *ExternalServiceError
		persist    *PersistenceError
		stage      *StageError
	)
	switch {
	case errors.As(err, &transition):
		return msgInvalidTransition, true
	case errors.Is(err, ErrConflict):
		return msgConflict, true
	case errors.Is(err, ErrNotFound):
		return msgNotFound, true
	case errors.Is(err, ErrTooManyStages):
		return msgBusy, true
	case errors.Is(err, ErrTimeout):
		return msgTimeout, true
	case errors.As(err, &quality):
		return msgQuality, true
	case errors.As(err, &external):
		return msgExternal, true
	case errors.As(err, &persist):
		if strings.HasPrefix(persist.Op, "storage") {
			return msgStorage, true
		}
		return msgPersistence, true
	case errors.As(err, &stage):
		if msg, ok := matchPattern(stage.Err); ok {
			return msg, true
		}
		return msgStageFailed, true
	}
	return UserMessage{}, false
}

func matchPattern(err error) (UserMessage, bool) {
	if err == nil {
		return UserMessage{}, false
	}
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// MapError converts a technical error to a user-friendly message.
// Typed pipeline errors are resolved first, then known text patterns.
// If nothing matches, a generic fallback message with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := mapTyped(err); ok {
		return msg
	}
	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known type or pattern.
// Returns false for the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
