package xerr

import (
	"errors"
	"fmt"
)

// CodeError 在服务层传递带有业务码的错误
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

func (e *CodeError) Error() string {
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// NewCodeError 创建一个 CodeError 实例
func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

// Wrap 给错误附加一个分类哨兵，保留原始错误链
// 例如 Wrap(ErrInternalStore, err) 同时满足 errors.Is(_, ErrInternalStore) 和 errors.Is(_, err)
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Is 判断错误链中是否包含 target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// CodeOf 返回错误对应的业务码
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case err == nil:
		return SuccessCode
	case errors.Is(err, ErrValidation):
		return ValidationFailedCode
	case errors.Is(err, ErrWeakPassword):
		return WeakPasswordCode
	case errors.Is(err, ErrAliasTaken):
		return AliasTakenCode
	case errors.Is(err, ErrRateLimited):
		return RateLimitedCode
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDeniedCode
	case errors.Is(err, ErrLinkStillActive):
		return LinkStillActiveCode
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTokenInvalid):
		return UnauthorizedCode
	case errors.Is(err, ErrAuthenticationFailure),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrExhausted),
		errors.Is(err, ErrForbidden):
		return AccessDeniedCode
	case errors.Is(err, ErrInternalStore):
		return StoreUnavailableCode
	case errors.Is(err, ErrStorageError):
		return StorageErrorCode
	default:
		return InternalServerErrorCode
	}
}

// DenialError 访问被拒绝的具体原因
// Reason 只用于审计和日志，对外响应只看 Kind
type DenialError struct {
	Reason string
	Kind   error
}

func (e *DenialError) Error() string {
	return e.Reason + ": " + e.Kind.Error()
}

func (e *DenialError) Unwrap() error {
	return e.Kind
}

// Deny 创建一个带原因的拒绝错误
func Deny(kind error, reason string) error {
	return &DenialError{Reason: reason, Kind: kind}
}

// ReasonOf 返回拒绝原因，非 DenialError 时返回 "error"
func ReasonOf(err error) string {
	var de *DenialError
	if errors.As(err, &de) {
		return de.Reason
	}
	return "error"
}

// IsDenial 错误是否属于对外统一为 "access denied" 的类别
func IsDenial(err error) bool {
	return CodeOf(err) == AccessDeniedCode
}
