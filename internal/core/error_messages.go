package core

// error_messages.go maps technical errors to messages a store operator can act on.
//
// Each message carries a code terminals display next to the failure so
// support staff can find the cause quickly:
//
//	DB001  Duplicate record          "duplicate key"
//	DB002  Unique constraint         "unique constraint", "violates unique"
//	DB003  Missing parent record     "foreign key constraint", "violates foreign key"
//	DB004  Database unreachable      "connection refused"
//	DB005  Connection interrupted    "connection reset", "broken pipe"
//	DB006  Timeout                   "timeout"
//	DB007  Deadlock                  "deadlock"
//	VAL001 Required field missing    "required field", "violates not-null", "not null constraint"
//	VAL002 Invalid value             "invalid input syntax", "violates check constraint"
//	VAL003 No identity               "requires an identity key"
//	SYNC001 Unknown entity           "unknown entity"
//	SYNC002 Empty batch              "empty batch"
//	SYNC003 Server busy              "too many concurrent batches"
//	SYNC004 Invalid payload          "invalid payload"
//	SYNC005 Chunk rolled back        "chunk rolled back"
//	REQ001 Request cancelled         "context canceled"
//	REQ002 Request timed out         "context deadline exceeded"
//	ERR000 Unknown error             fallback
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicate = UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Resend the record with a newer utime to overwrite it",
		Code:    "DB001",
	}
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check the terminal for two records sharing a key",
		Code:    "DB002",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Sync the parent records before their dependents",
		Code:    "DB003",
	}
	msgRequired = UserMessage{
		Message: "Required field is empty",
		Action:  "Fill in every required field before syncing",
		Code:    "VAL001",
	}
	msgInvalid = UserMessage{
		Message: "A field has an invalid value",
		Action:  "Check numbers and dates on the terminal",
		Code:    "VAL002",
	}
)

var errorPatterns = []errorPattern{
	// Constraints
	{pattern: "duplicate key", msg: msgDuplicate},
	{pattern: "unique constraint", msg: msgUnique},
	{pattern: "violates unique", msg: msgUnique},
	{pattern: "foreign key constraint", msg: msgForeignKey},
	{pattern: "violates foreign key", msg: msgForeignKey},

	// Connectivity
	{pattern: "connection refused", msg: UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{pattern: "connection reset", msg: UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{pattern: "broken pipe", msg: UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{pattern: "context canceled", msg: UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{pattern: "context deadline exceeded", msg: UserMessage{
		Message: "Request timed out",
		Action:  "Send smaller batches or try again later",
		Code:    "REQ002",
	}},
	{pattern: "timeout", msg: UserMessage{
		Message: "Operation timed out",
		Action:  "Send smaller batches or try again later",
		Code:    "DB006",
	}},
	{pattern: "deadlock", msg: UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	// Validation
	{pattern: "required field", msg: msgRequired},
	{pattern: "violates not-null", msg: msgRequired},
	{pattern: "not null constraint", msg: msgRequired},
	{pattern: "invalid input syntax", msg: msgInvalid},
	{pattern: "violates check constraint", msg: msgInvalid},
	{pattern: "requires an identity key", msg: UserMessage{
		Message: "Record has no identifying fields",
		Action:  "Include the primary key of the record",
		Code:    "VAL003",
	}},

	// Batches
	{pattern: "unknown entity", msg: UserMessage{
		Message: "Unknown entity",
		Action:  "Check the sync route on the terminal",
		Code:    "SYNC001",
	}},
	{pattern: "empty batch", msg: UserMessage{
		Message: "The batch contains no records",
		Action:  "Send at least one record",
		Code:    "SYNC002",
	}},
	{pattern: "too many concurrent batches", msg: UserMessage{
		Message: "Server is busy processing other batches",
		Action:  "Please wait a moment and try again",
		Code:    "SYNC003",
	}},
	{pattern: "invalid payload", msg: UserMessage{
		Message: "The request body could not be read",
		Action:  "Send a JSON object with a data array",
		Code:    "SYNC004",
	}},
	{pattern: "chunk rolled back", msg: UserMessage{
		Message: "Part of the batch was rolled back",
		Action:  "Resend the failed records",
		Code:    "SYNC005",
	}},
}

// defaultMessage is returned when no pattern matches. Check the server logs
// for the original error when a terminal reports ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the ERR000 fallback when no pattern matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
