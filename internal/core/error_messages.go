package core

// error_messages.go maps technical errors to user-facing messages.
//
// Error codes are grouped by category so users can quote them to support:
//
//	FILE001 - File too large            Action: Upload a smaller workbook
//	FILE002 - No file                   Action: Select a spreadsheet to upload
//	FILE003 - Unsupported format        Action: Save the workbook as .xlsx or .xlsm
//	FILE004 - Unreadable workbook       Action: Re-save the workbook and retry
//	RULE001 - Invalid rules             Action: Reload the rules and try again
//	ENG001  - Engine unavailable        Action: Contact the administrator
//	ENG002  - Engine could not start    Action: Contact the administrator
//	ENG003  - Engine reported a failure Action: Fix the workbook and retry
//	ENG004  - Engine busy               Action: Wait a moment and retry
//	ART001  - Result file not found     Action: Run the operation again
//	RATE001 - Rate limited              Action: Wait before retrying
//	ERR000  - Unknown error             Action: Check the application logs
//
// Sentinel and typed errors are matched first with errors.Is/As. Anything
// else falls back to case-insensitive substring patterns; the first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/RuleSheet/internal/engine"
	"github.com/JonMunkholm/RuleSheet/internal/scratch"
	"github.com/JonMunkholm/RuleSheet/internal/workbook"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Upload a smaller workbook",
		Code:    "FILE001",
	}
	msgNoFile = UserMessage{
		Message: "No file was selected",
		Action:  "Please select a spreadsheet to upload",
		Code:    "FILE002",
	}
	msgUnsupported = UserMessage{
		Message: "The uploaded file is not a supported spreadsheet",
		Action:  "Save the workbook as .xlsx or .xlsm and upload it again",
		Code:    "FILE003",
	}
	msgUnreadable = UserMessage{
		Message: "The uploaded workbook could not be read",
		Action:  "Open the file in Excel, save it again, and upload the new copy",
		Code:    "FILE004",
	}
	msgInvalidRules = UserMessage{
		Message: "Invalid rules format",
		Action:  "Reload the rules from the workbook and try again",
		Code:    "RULE001",
	}
	msgUnavailable = UserMessage{
		Message: engine.ErrUnavailable.Error(),
		Action:  "Contact the administrator to install or configure the engine",
		Code:    "ENG001",
	}
	msgLaunch = UserMessage{
		Message: "The computation engine could not be started",
		Action:  "Contact the administrator",
		Code:    "ENG002",
	}
	msgExecution = UserMessage{
		Message: "The computation engine reported a failure",
		Action:  "Review the message, fix the workbook, and try again",
		Code:    "ENG003",
	}
	msgBusy = UserMessage{
		Message: "The computation engine is busy with other requests",
		Action:  "Please wait a moment and try again",
		Code:    "ENG004",
	}
	msgArtifactNotFound = UserMessage{
		Message: "The requested result file was not found",
		Action:  "Run the operation again to produce a new file",
		Code:    "ART001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that arrive as plain text, e.g. from the HTTP
// layer. Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{pattern: "request body too large", msg: msgFileTooLarge},
	{pattern: "file too large", msg: msgFileTooLarge},
	{pattern: "no file provided", msg: msgNoFile},
	{pattern: "unsupported spreadsheet", msg: msgUnsupported},
	{pattern: "invalid rules", msg: msgInvalidRules},
	{pattern: "too many concurrent engine", msg: msgBusy},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. An engine
// execution failure carries the engine's diagnostic as its message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var execErr *ExecutionError
	var launchErr *engine.LaunchError
	switch {
	case errors.Is(err, ErrNoFile):
		return msgNoFile
	case errors.Is(err, ErrInvalidRules):
		return msgInvalidRules
	case errors.Is(err, workbook.ErrUnsupportedFormat):
		return msgUnsupported
	case errors.Is(err, workbook.ErrUnreadable):
		return msgUnreadable
	case errors.Is(err, engine.ErrUnavailable):
		return msgUnavailable
	case errors.Is(err, ErrEngineBusy):
		return msgBusy
	case errors.Is(err, scratch.ErrNotFound):
		return msgArtifactNotFound
	case errors.As(err, &execErr):
		msg := msgExecution
		if d := strings.TrimSpace(execErr.Diagnostic); d != "" {
			msg.Message = d
		}
		return msg
	case errors.As(err, &launchErr):
		return msgLaunch
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
