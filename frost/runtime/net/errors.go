// frost/runtime/net/errors.go
// 错误类别 <-> HTTP 状态码 / X-Frost-Error 头

package net

import (
	"errors"
	"fmt"
	"net/http"

	"frostsign/frost/runtime"
)

// HeaderError 携带错误类别名
const HeaderError = "X-Frost-Error"

var kindNames = map[error]string{
	runtime.ErrInvalidUserState:         "invalid_user_state",
	runtime.ErrParticipantNotFound:      "participant_not_found",
	runtime.ErrParticipantExists:        "participant_exists",
	runtime.ErrInsufficientParticipants: "insufficient_participants",
	runtime.ErrSessionNotFound:          "session_not_found",
	runtime.ErrInternal:                 "internal",
	runtime.ErrTransport:                "transport",
	runtime.ErrInvalidRequest:           "invalid_request",
}

// KindName 未归类的错误视为 internal
func KindName(err error) string {
	if name, ok := kindNames[runtime.KindOf(err)]; ok {
		return name
	}
	return kindNames[runtime.ErrInternal]
}

// KindByName 未知名称返回 nil
func KindByName(name string) error {
	for kind, n := range kindNames {
		if n == name {
			return kind
		}
	}
	return nil
}

// StatusCode 错误类别对应的 HTTP 状态码
func StatusCode(err error) int {
	switch runtime.KindOf(err) {
	case runtime.ErrInvalidUserState, runtime.ErrParticipantExists:
		return http.StatusConflict
	case runtime.ErrSessionNotFound, runtime.ErrParticipantNotFound:
		return http.StatusNotFound
	case runtime.ErrInvalidRequest, runtime.ErrInsufficientParticipants:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type httpStatusError struct {
	op         string
	statusCode int
	body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body %s", e.op, e.statusCode, e.body)
}

// StatusOf 取出远端返回的状态码，非 HTTP 错误返回 0
func StatusOf(err error) int {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.statusCode
	}
	return 0
}
