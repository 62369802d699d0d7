package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRemote matches every *Error with errors.Is.
var ErrRemote = errors.New("remote request failed")

// Error is a non-accepted HTTP response. Code and Message come from the
// JSON error body when the server sent one: CouchDB uses error/reason,
// GitHub uses message.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s (%s)", e.Method, e.Path, e.StatusCode, msg, e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *Error) Is(target error) bool {
	return target == ErrRemote
}

// Temporary reports whether a later attempt might succeed.
func (e *Error) Temporary() bool {
	return isRetryableStatus(e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
}

func newError(req *http.Request, status int, body []byte) *Error {
	e := &Error{Method: req.Method, Path: req.URL.Path, StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Code = eb.Code
		if e.Code == "" {
			e.Code = eb.Error
		}
		for _, m := range []string{eb.Reason, eb.Message, eb.Detail} {
			if m != "" {
				e.Message = m
				break
			}
		}
		return e
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 512 {
		e.Message = msg
	}
	return e
}
