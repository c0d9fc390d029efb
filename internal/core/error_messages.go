package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Error Codes Reference
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large        Patterns: "file too large", "request body too large"
//	FILE002 - Unsupported format    Sentinel: tabular.ErrUnsupportedFormat
//	FILE003 - Malformed text file   Patterns: "parse error", "wrong number of fields"
//	FILE004 - No file provided      Sentinel: ErrNoFiles
//	FILE005 - Empty file            Patterns: "empty file"
//	FILE006 - Sheet not found       Sentinel: tabular.ErrSheetNotFound
//	FILE007 - Unreadable workbook   Patterns: "open workbook", "zip: not a valid zip file"
//	FILE008 - Upload not saved      Sentinel: ErrSaveUpload
//
// Database errors (DB001-DB099):
//
//	DB001 - Duplicate key           Patterns: "duplicate key", "unique constraint"
//	DB002 - Value out of range      Patterns: "numeric field overflow", "out of range"
//	DB003 - Schema missing          Patterns: "no such table", "does not exist"
//	DB004 - Connection refused      Patterns: "connection refused"
//	DB005 - Connection reset        Patterns: "connection reset"
//	DB006 - Timeout                 Patterns: "timeout"
//	DB007 - Deadlock / busy         Patterns: "deadlock", "database is locked"
//
// Export errors (EXP001-EXP099):
//
//	EXP001 - Export failed          Type: *tabular.ExportError
//
// Upload errors (UPL001-UPL099):
//
//	UPL001 - No readable files      Sentinel: ErrNoReadableFiles
//	UPL002 - System busy            Sentinel: ErrTooManyUploads
//	UPL004 - Request cancelled      Sentinel: context.Canceled
//	UPL005 - Request timeout        Sentinel: context.DeadlineExceeded
//
// Request errors (REQ001-REQ099):
//
//	REQ001 - Bad request parameters Patterns: "invalid date", "date_from is after", "invalid multipart form"
//
// Rate limiting: RATE001. Fallback: ERR000.
//
// Sentinels and types are checked with errors.Is / errors.As first, then the
// message is matched case-insensitively against the pattern table. The first
// match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/datalab/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var (
	msgUnsupportedFormat = UserMessage{
		Message: "File type is not supported",
		Action:  "Upload a .csv, .tsv, .txt, .xlsx or .xlsm file",
		Code:    "FILE002",
	}
	msgNoFiles = UserMessage{
		Message: "No file was selected",
		Action:  "Please select at least one file to upload",
		Code:    "FILE004",
	}
	msgSheetNotFound = UserMessage{
		Message: "The requested sheet does not exist in the workbook",
		Action:  "Check the sheet name or leave it empty to use the first sheet",
		Code:    "FILE006",
	}
	msgSaveUpload = UserMessage{
		Message: "The uploaded file could not be stored on the server",
		Action:  "Please try again or contact support",
		Code:    "FILE008",
	}
	msgExportFailed = UserMessage{
		Message: "The export file could not be written",
		Action:  "Please try again or contact support",
		Code:    "EXP001",
	}
	msgNoReadableFiles = UserMessage{
		Message: "None of the uploaded files could be read",
		Action:  "Check that the files are valid spreadsheets",
		Code:    "UPL001",
	}
	msgBadRequest = UserMessage{
		Message: "The request parameters are invalid",
		Action:  "Check the query or form fields and try again",
		Code:    "REQ001",
	}
	msgTooManyUploads = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL005",
	}
)

// sentinels are matched with errors.Is before any pattern.
var sentinels = []struct {
	target error
	msg    UserMessage
}{
	{ErrSaveUpload, msgSaveUpload},
	{ErrNoFiles, msgNoFiles},
	{ErrNoReadableFiles, msgNoReadableFiles},
	{ErrTooManyUploads, msgTooManyUploads},
	{tabular.ErrUnsupportedFormat, msgUnsupportedFormat},
	{tabular.ErrSheetNotFound, msgSheetNotFound},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgDeadline},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// Order matters: specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "File is not a valid delimited text file",
			Action:  "Check quoting and separators, and save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "wrong number of fields",
		msg: UserMessage{
			Message: "File is not a valid delimited text file",
			Action:  "Check quoting and separators, and save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Re-save the file as .xlsx and try again",
			Code:    "FILE007",
		},
	},
	{
		pattern: "zip: not a valid zip file",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Re-save the file as .xlsx and try again",
			Code:    "FILE007",
		},
	},

	// Database errors
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this SKU already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this SKU already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "numeric field overflow",
		msg: UserMessage{
			Message: "A value is too large to store",
			Action:  "Check prices and quantities in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "A value is too large to store",
			Action:  "Check prices and quantities in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Database schema is not initialized",
			Action:  "Contact support",
			Code:    "DB003",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Database schema is not initialized",
			Action:  "Contact support",
			Code:    "DB003",
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
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try uploading a smaller file or try again later",
			Code:    "DB006",
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
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Request errors
	{
		pattern: "invalid date",
		msg:     msgBadRequest,
	},
	{
		pattern: "date_from is after",
		msg:     msgBadRequest,
	},
	{
		pattern: "invalid multipart form",
		msg:     msgBadRequest,
	},

	// Rate limiting
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
// should check the logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&tabular.ReadError{File: "a.pdf", Err: tabular.ErrUnsupportedFormat})
//	// msg.Code == "FILE002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinels {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	var exportErr *tabular.ExportError
	if errors.As(err, &exportErr) {
		return msgExportFailed
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
