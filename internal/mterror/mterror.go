// Package mterror defines the enumerated MTConnect error codes and the
// typed error that carries one to the HTTP layer for rendering as a
// client-facing error document (spec.md §7, §9's "ParameterError becomes a
// typed validation error" design note). Grounded on the teacher's
// internal/rpcserver/rpcerr.go shape: a fixed code plus a sanitized detail
// message, distinct from plain wrapped Go errors used for internal faults.
package mterror

import (
	"errors"
	"fmt"
)

// Code is one of the fixed MTConnect error codes spec.md §6/§7 enumerates.
type Code string

const (
	Unsupported    Code = "UNSUPPORTED"
	QueryError     Code = "QUERY_ERROR"
	OutOfRange     Code = "OUT_OF_RANGE"
	NoDevice       Code = "NO_DEVICE"
	InvalidXPath   Code = "INVALID_XPATH"
	InvalidRequest Code = "INVALID_REQUEST"
	AssetNotFound  Code = "ASSET_NOT_FOUND"
	ServerException Code = "SERVER_EXCEPTION"
	InternalError  Code = "INTERNAL_ERROR"
)

// Error is a client-facing validation/request error. It is rendered as an
// MTConnect error document with HTTP status 200, per spec.md §7's
// historical-behavior note — the status code is the HTTP layer's choice,
// not this type's.
type Error struct {
	Code   Code
	Detail string
}

func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// As reports whether err (or something it wraps) is an *Error, unwrapping
// it for callers that need the code to choose an HTTP status or document
// shape.
func As(err error) (*Error, bool) {
	var me *Error
	ok := errors.As(err, &me)
	return me, ok
}
