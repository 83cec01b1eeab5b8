// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

// Package errors defines the error taxonomy shared by every layer of the
// session transport. Callers match on codes with errors.Is against the
// sentinel values below; the concrete *Error carries message, details and
// cause for logging.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies an error kind. Codes are part of the wire contract:
// counterpart error envelopes carry these strings.
type Code string

const (
	CodeInvalidInput              Code = "InvalidInput"
	CodeCryptoUnavailable         Code = "CryptoUnavailable"
	CodeRecoveryFailed            Code = "RecoveryFailed"
	CodeVerificationFailed        Code = "VerificationFailed"
	CodeDecryptionFailed          Code = "DecryptionFailed"
	CodeEncryptionNotSupported    Code = "EncryptionNotSupported"
	CodeTimeout                   Code = "Timeout"
	CodeTransportClosed           Code = "TransportClosed"
	CodeNetworkVerificationFailed Code = "NetworkVerificationFailed"
	CodeNotFound                  Code = "NotFound"
	CodeUnauthorized              Code = "Unauthorized"
	CodeRateLimited               Code = "RateLimited"
)

// Error is a coded error with optional structured details and a cause.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports code equality so errors.Is(err, ErrDecryptionFailed) matches
// any error of that kind, regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key/value pair and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel values for errors.Is matching. Never mutate these.
var (
	ErrInvalidInput              = New(CodeInvalidInput, "invalid input")
	ErrCryptoUnavailable         = New(CodeCryptoUnavailable, "crypto primitive unavailable")
	ErrRecoveryFailed            = New(CodeRecoveryFailed, "public key recovery failed")
	ErrVerificationFailed        = New(CodeVerificationFailed, "signature verification failed")
	ErrDecryptionFailed          = New(CodeDecryptionFailed, "decryption failed")
	ErrEncryptionNotSupported    = New(CodeEncryptionNotSupported, "counterpart does not support encryption")
	ErrTimeout                   = New(CodeTimeout, "operation timed out")
	ErrTransportClosed           = New(CodeTransportClosed, "transport closed")
	ErrNetworkVerificationFailed = New(CodeNetworkVerificationFailed, "network write not verified")
	ErrNotFound                  = New(CodeNotFound, "not found")
	ErrUnauthorized              = New(CodeUnauthorized, "unauthorized")
)

// FromCode maps a counterpart-signalled code string to a coded error.
// Unknown codes map to a generic invalid-input error carrying the raw code.
func FromCode(code, message string) *Error {
	switch Code(code) {
	case CodeEncryptionNotSupported, CodeDecryptionFailed, CodeUnauthorized,
		CodeRateLimited, CodeTimeout, CodeNotFound, CodeInvalidInput:
		return New(Code(code), message)
	default:
		return New(CodeInvalidInput, message).WithDetail("code", code)
	}
}
