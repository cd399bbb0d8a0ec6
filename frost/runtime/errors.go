// frost/runtime/errors.go
// 错误分类：调用方只需要 errors.Is(err, ErrXxx) 判断类别

package runtime

import (
	"errors"
	"fmt"
	"strings"

	"frostsign/frost/runtime/types"
)

// ========== 错误定义 ==========

var (
	// ErrInvalidUserState 状态机顺序错误（round2 早于 round1、重复 DKG 等）
	ErrInvalidUserState = errors.New("invalid user state")
	// ErrParticipantNotFound 未知参与者
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrParticipantExists 参与者已存在
	ErrParticipantExists = errors.New("participant already exists")
	// ErrInsufficientParticipants 参与者少于门限
	ErrInsufficientParticipants = errors.New("insufficient participants")
	// ErrSessionNotFound 会话不存在或已过期
	ErrSessionNotFound = errors.New("session not found")
	// ErrInternal 协议不变式被破坏（包不一致、验签失败、密码库错误）
	ErrInternal = errors.New("internal error")
	// ErrTransport SignerClient 调用失败
	ErrTransport = errors.New("signer transport error")
	// ErrInvalidRequest 请求内容本身不合法（消息不匹配、缺字段）
	ErrInvalidRequest = errors.New("invalid request")
)

// Kinds 所有错误类别，传输层据此还原类型
var Kinds = []error{
	ErrInvalidUserState,
	ErrParticipantNotFound,
	ErrParticipantExists,
	ErrInsufficientParticipants,
	ErrSessionNotFound,
	ErrInternal,
	ErrTransport,
	ErrInvalidRequest,
}

// KindOf 返回 err 所属类别，无法归类时返回 nil
func KindOf(err error) error {
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// InsufficientParticipantsError 携带实际数量与门限
type InsufficientParticipantsError struct {
	Got  int
	Need int
}

func (e *InsufficientParticipantsError) Error() string {
	return fmt.Sprintf("insufficient participants: got %d, need %d", e.Got, e.Need)
}

func (e *InsufficientParticipantsError) Is(target error) bool {
	return target == ErrInsufficientParticipants
}

// Error 带上下文的运行时错误，不包含任何秘密材料
type Error struct {
	Kind      error
	Op        string
	MusigID   *types.MusigID
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.MusigID != nil {
		fmt.Fprintf(&b, " [%s", e.MusigID)
		if e.SessionID != "" {
			fmt.Fprintf(&b, " session=%s", e.SessionID)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap 同时暴露类别与底层原因
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, id types.MusigID, err error) *Error {
	return &Error{Kind: kind, Op: op, MusigID: &id, Err: err}
}

func newSessionError(kind error, op string, id types.MusigID, sessionID string, err error) *Error {
	return &Error{Kind: kind, Op: op, MusigID: &id, SessionID: sessionID, Err: err}
}

func invalidState(op string, id types.MusigID, format string, args ...interface{}) *Error {
	return newError(ErrInvalidUserState, op, id, fmt.Errorf(format, args...))
}

// ensureKind 已归类的错误原样返回，其余归为 kind
func ensureKind(kind error, op string, id types.MusigID, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return newError(kind, op, id, err)
}
