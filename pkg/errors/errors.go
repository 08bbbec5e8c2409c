package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConnectFailed ErrorCode = "CONNECT_FAILED"
	CodeBackfillPage  ErrorCode = "BACKFILL_PAGE"
	CodeStoreWrite    ErrorCode = "STORE_WRITE"
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewConnectError 创建通道连接错误（本地重试恢复，不致命）
func NewConnectError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeConnectFailed,
		Message: message,
		Err:     cause,
	}
}

// NewBackfillPageError 创建历史分页拉取错误（放弃该会话，其它会话不受影响）
func NewBackfillPageError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeBackfillPage,
		Message: message,
		Err:     cause,
	}
}

// NewStoreWriteError 创建存储写入错误
func NewStoreWriteError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeStoreWrite,
		Message: message,
		Err:     cause,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool {
	return hasCode(err, CodeInvalidInput)
}

// IsConnectFailed 判断是否为通道连接错误
func IsConnectFailed(err error) bool {
	return hasCode(err, CodeConnectFailed)
}

// IsBackfillPage 判断是否为历史分页错误
func IsBackfillPage(err error) bool {
	return hasCode(err, CodeBackfillPage)
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
