// Package apierr decodes the error payloads returned by the chat backend.
//
// The backend reports failures in a JSON body whose "detail" field is either
// a list of validation errors, a single error object, or a plain string.
package apierr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Kind categorizes a backend error payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindSingle
	KindPlain
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSingle:
		return "single"
	case KindPlain:
		return "plain"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

const (
	fieldRequired     = "Field required"
	valueErrorPrefix  = "Value error, "
	defaultMessage    = "operation failed"
	sessionExpiredMsg = "session expired, please log in again"
)

// FieldError is one entry of a validation error list.
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// Field returns the last string element of Loc, which names the offending
// field.
func (f FieldError) Field() string {
	for i := len(f.Loc) - 1; i >= 0; i-- {
		if s, ok := f.Loc[i].(string); ok {
			return s
		}
	}
	return ""
}

func (f FieldError) hasLoc(name string) bool {
	return slices.ContainsFunc(f.Loc, func(v any) bool {
		s, ok := v.(string)
		return ok && s == name
	})
}

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Kind    Kind
	Message string       // User-facing message
	Fields  []FieldError // Set for KindValidation and KindSessionExpired
	Body    []byte       // Raw response body
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Unauthorized reports whether the response was a 401.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Parse builds an Error from a response status and body. It never fails:
// bodies it cannot understand produce KindUnknown.
func Parse(status int, body []byte) *Error {
	e := &Error{Status: status, Kind: KindUnknown, Message: defaultMessage, Body: body}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	detail := bytes.TrimSpace(payload.Detail)
	if len(detail) == 0 {
		return e
	}

	switch detail[0] {
	case '[':
		var fields []FieldError
		if err := json.Unmarshal(detail, &fields); err != nil {
			return e
		}
		e.Fields = fields
		parseFieldErrors(e, fields)
	case '{':
		var single FieldError
		if err := json.Unmarshal(detail, &single); err != nil || single.Msg == "" {
			return e
		}
		e.Kind = KindSingle
		e.Message = cleanMessage(single.Msg)
	case '"':
		var s string
		if err := json.Unmarshal(detail, &s); err != nil {
			return e
		}
		e.Kind = KindPlain
		e.Message = cleanMessage(s)
	}

	return e
}

func parseFieldErrors(e *Error, fields []FieldError) {
	if len(fields) == 0 {
		return
	}

	// First error that is not a missing-field complaint wins.
	for _, f := range fields {
		if f.Msg != fieldRequired {
			e.Kind = KindValidation
			e.Message = cleanMessage(fieldMessage(f))
			return
		}
	}

	last := fields[len(fields)-1]
	if last.hasLoc("cookie") && last.hasLoc("refresh_token") {
		e.Kind = KindSessionExpired
		e.Message = sessionExpiredMsg
		return
	}
	e.Kind = KindValidation
	e.Message = cleanMessage(fieldMessage(last))
}

func fieldMessage(f FieldError) string {
	switch {
	case f.Msg != "":
		return f.Msg
	case f.Type != "":
		return f.Type
	default:
		b, _ := json.Marshal(f)
		return string(b)
	}
}

func cleanMessage(msg string) string {
	msg = strings.Replace(msg, valueErrorPrefix, "", 1)
	if msg == "" {
		return defaultMessage
	}
	return msg
}

// UserMessage returns a message suitable for showing to the user for any
// error. Backend errors yield their decoded message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsSessionExpired reports whether err is a backend error saying the refresh
// credential is missing.
func IsSessionExpired(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSessionExpired
}

// IsStatus reports whether err is a backend error with the given status.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
