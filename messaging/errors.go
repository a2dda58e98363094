// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// MatrixError is a structured error response from the homeserver.
// Every non-2xx response from a [Client] or [DirectSession] call is
// returned as one, wrapped with the operation that failed:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.StatusCode == http.StatusTooManyRequests {
//	    ...
//	}
type MatrixError struct {
	// Code is the Matrix error code, e.g. "M_NOT_FOUND".
	Code string `json:"errcode"`
	// Message is the server's human-readable description.
	Message string `json:"error"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Matrix error codes this module inspects.
const (
	// ErrCodeNotFound on an account data read means the user never
	// set that type.
	ErrCodeNotFound = "M_NOT_FOUND"
	// ErrCodeForbidden is returned for state reads of rooms the user
	// is not in and for state writes above the user's power level.
	ErrCodeForbidden = "M_FORBIDDEN"
	// ErrCodeUnknownToken and ErrCodeMissingToken mean the access
	// token was rejected.
	ErrCodeUnknownToken = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken = "M_MISSING_TOKEN"
)

// IsMatrixError reports whether err wraps a *MatrixError with the
// given code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is an M_NOT_FOUND response.
func IsNotFound(err error) bool {
	return IsMatrixError(err, ErrCodeNotFound)
}

// IsAuthFailure reports whether err means the session's access token
// is missing, expired, or revoked. Retrying such a request cannot
// succeed.
func IsAuthFailure(err error) bool {
	return IsMatrixError(err, ErrCodeUnknownToken) || IsMatrixError(err, ErrCodeMissingToken)
}
