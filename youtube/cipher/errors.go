package cipher

import (
	"errors"
	"fmt"

	"github.com/ytget/ytfetch/errs"
)

// Error codes
const (
	ErrCodePlayerJSNotFound  = "PLAYER_JS_NOT_FOUND"
	ErrCodePlayerJSDownload  = "PLAYER_JS_DOWNLOAD_FAILED"
	ErrCodeSignatureNotFound = "SIGNATURE_NOT_FOUND"
	ErrCodeSignatureInvalid  = "SIGNATURE_INVALID"
	ErrCodeJSExecutionFailed = "JS_EXECUTION_FAILED"
	ErrCodeJSParsingFailed   = "JS_PARSING_FAILED"
)

// Error is a cipher failure with a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is makes every cipher Error match errs.ErrCipherFailed.
func (e *Error) Is(target error) bool { return target == errs.ErrCipherFailed }

// NewError creates an Error with an optional cause.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func hasCode(err error, codes ...string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsNotFound reports a missing player script or signature.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodePlayerJSNotFound, ErrCodeSignatureNotFound)
}

// IsInvalid reports a malformed signatureCipher.
func IsInvalid(err error) bool { return hasCode(err, ErrCodeSignatureInvalid) }

// IsJSError reports a failure to extract or run player functions.
func IsJSError(err error) bool {
	return hasCode(err, ErrCodeJSExecutionFailed, ErrCodeJSParsingFailed)
}
