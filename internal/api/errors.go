package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CodeAttachmentTooLarge is the error code the backend uses for oversized
// chat attachments.
const CodeAttachmentTooLarge = "ATTACHMENT_TOO_LARGE"

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Status     string
	Code       string
	Detail     string
	Body       string
}

func newError(resp *http.Response, body []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	var payload struct {
		Code    string `json:"code"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code = strings.TrimSpace(payload.Code)
		for _, s := range []string{payload.Detail, payload.Message, payload.Error} {
			if s = strings.TrimSpace(s); s != "" {
				e.Detail = s
				break
			}
		}
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error: %s: %s", e.Status, e.Detail)
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("api error: %s", e.Status)
	}
	return fmt.Sprintf("api error: %s: %s", e.Status, bt)
}

// TransportError wraps failures that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Kind is the error taxonomy the sync clients react to.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindUnauthorized
	KindValidation
	KindNotFound
	KindRejected
	KindServer
)

func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return KindServer
	}
	switch {
	case ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden:
		return KindUnauthorized
	case ae.StatusCode == http.StatusNotFound:
		return KindNotFound
	case ae.StatusCode == http.StatusRequestEntityTooLarge, ae.StatusCode == http.StatusBadRequest,
		ae.StatusCode == http.StatusUnprocessableEntity:
		return KindValidation
	case ae.StatusCode == http.StatusConflict || ae.StatusCode == http.StatusPaymentRequired:
		return KindRejected
	}
	return KindServer
}

func IsNotFound(err error) bool { return Classify(err) == KindNotFound }

func IsUnauthorized(err error) bool { return Classify(err) == KindUnauthorized }

// IsAttachmentTooLarge reports the "attachment too large" error class: a
// 413 response or an explicit ATTACHMENT_TOO_LARGE code.
func IsAttachmentTooLarge(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == http.StatusRequestEntityTooLarge || strings.EqualFold(ae.Code, CodeAttachmentTooLarge)
}

// Detail returns the server-provided error detail, if any.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return ""
}
