package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
)

// errorBody covers the error shapes of both endpoint families: the auth
// service reports {code, error_code, msg} or the OAuth style {error,
// error_description}, the table service reports {code, message}.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(operation string, status int, body []byte) *auth.ProviderError {
	perr := &auth.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Status:    status,
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		perr.Message = strings.TrimSpace(string(body))
		if perr.Message == "" {
			perr.Message = http.StatusText(status)
		}
		return perr
	}

	perr.Code = firstNonEmpty(eb.ErrorCode, rawCode(eb.Code), eb.Error)
	perr.Message = firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, eb.Error, http.StatusText(status))
	return perr
}

// rawCode returns string codes as is. Numeric codes mirror the HTTP status
// and carry no extra information.
func rawCode(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	s, err := strconv.Unquote(string(raw))
	if err != nil {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func networkError(operation string, err error) *auth.ProviderError {
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

func responseError(operation string, status int, err error) *auth.ProviderError {
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Status:    status,
		Code:      "invalid_response",
		Message:   "failed to decode response",
		Err:       err,
	}
}

// sessionExpired reports a session that ended while a table call was made.
func sessionExpired(operation string, cause *auth.ProviderError) *auth.ProviderError {
	perr := &auth.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Status:    http.StatusUnauthorized,
		Code:      auth.CodeSessionExpired,
		Message:   auth.MsgInvalidRefresh,
	}
	if cause != nil {
		perr.Message = cause.Message
		perr.Err = cause
	}
	return perr
}

// sessionRejected reports whether the backend refused a refresh token, as
// opposed to being unreachable.
func sessionRejected(err error) bool {
	if auth.IsExpiredSessionError(err) {
		return true
	}
	perr, ok := asProviderError(err)
	if !ok {
		return false
	}
	return perr.Status >= 400 && perr.Status < 500 && perr.Status != http.StatusTooManyRequests
}

func asProviderError(err error) (*auth.ProviderError, bool) {
	var perr *auth.ProviderError
	if errors.As(err, &perr) && perr != nil {
		return perr, true
	}
	return nil, false
}
