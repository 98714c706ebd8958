package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNotFound means the row does not exist or is not visible.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means row-level security rejected the request.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated means the request needs a signed-in user.
	ErrUnauthenticated = errors.New("user must be authenticated")
)

const (
	codeNoRows     = "PGRST116"
	codeJWTInvalid = "PGRST301"
)

// APIError is a failed backend response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
	Path    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is maps backend codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == codeNoRows || e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Code == codeJWTInvalid || e.Status == http.StatusForbidden
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized && e.Code != codeJWTInvalid
	}
	return false
}

// errorBody covers both the REST and the auth error shapes.
type errorBody struct {
	Code             any    `json:"code"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func decodeError(resp *http.Response) *APIError {
	e := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return e
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Message = string(raw)
		return e
	}
	// Auth responses use a numeric code and put the symbolic one in error_code.
	if code, ok := body.Code.(string); ok {
		e.Code = code
	}
	if e.Code == "" {
		e.Code = body.ErrorCode
	}
	e.Details = body.Details
	e.Hint = body.Hint
	for _, m := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}
