package util

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的错误种类标识，直接序列化到响应的 error_kind 字段
type ErrorKind string

const (
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindAlreadyCompleted       ErrorKind = "already_completed"
	KindAlreadyInProgress      ErrorKind = "already_in_progress"
	KindAlreadyActive          ErrorKind = "already_active"
	KindNotInProgress          ErrorKind = "not_in_progress"
	KindCannotSkipCompleted    ErrorKind = "cannot_skip_completed"
	KindSkipLimitExceeded      ErrorKind = "skip_limit_exceeded"
	KindSequenceViolation      ErrorKind = "sequence_violation"
	KindNotFound               ErrorKind = "not_found"
	KindConfigurationMissing   ErrorKind = "configuration_missing"
	KindPersistenceConflict    ErrorKind = "persistence_conflict"
)

// AppError 状态机以显式错误值拒绝非法调用，调用方据 Kind 决定 HTTP 状态
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf 提取错误种类，非 AppError 一律视为内部错误
func KindOf(err error) (ErrorKind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// IsKind 判断错误是否属于指定种类
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
