package types

import (
	"errors"
	"fmt"
)

// ErrorType is the categorical error kind carried in every reply.
type ErrorType int

const (
	ErrNone ErrorType = iota
	ErrInvalidInput
	ErrInvalidFileName
	ErrOpenFile
	ErrReadFile
	ErrWriteFile
	ErrUnauthorized
	ErrNotFound
	ErrChildProcess
	ErrApplication
	ErrUnknown
)

var errorTypeNames = map[ErrorType]string{
	ErrNone:            "None",
	ErrInvalidInput:    "InvalidInput",
	ErrInvalidFileName: "InvalidFileName",
	ErrOpenFile:        "OpenFile",
	ErrReadFile:        "ReadFile",
	ErrWriteFile:       "WriteFile",
	ErrUnauthorized:    "Unauthorized",
	ErrNotFound:        "NotFound",
	ErrChildProcess:    "ChildProcess",
	ErrApplication:     "Application",
	ErrUnknown:         "Unknown",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseErrorType maps a wire name back to its ErrorType. Unrecognized
// names parse as ErrUnknown.
func ParseErrorType(name string) ErrorType {
	for t, n := range errorTypeNames {
		if n == name {
			return t
		}
	}
	return ErrUnknown
}

// Error is a categorized error with a human-readable diagnostic. The
// diagnostic is what crosses the wire; no stack traces do.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a categorized error with a formatted diagnostic.
func NewError(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// TypeOf returns the categorical kind of err: ErrNone for nil, the carried
// type for a *Error, ErrUnknown otherwise.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrNone
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrUnknown
}
