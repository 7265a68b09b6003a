package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
//
// 错误分为三个族，对应元数据系统的三个失败面：
//   - SCHEMA_*   定义期错误：致命，描述符发布前必须中止编译；
//   - LOAD_*     行加载期错误：作用域限定在单行/单字段，不影响描述符本身；
//   - DISPATCH_* 分发表错误：配置错误，必须与解码错误明确区分。
const (
	// 通用错误代码
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// 定义期错误代码（编译致命）
	ErrCodeDuplicateField       ErrorCode = "SCHEMA_DUPLICATE_FIELD"
	ErrCodeDuplicateAssociation ErrorCode = "SCHEMA_DUPLICATE_ASSOCIATION"
	ErrCodeInvalidType          ErrorCode = "SCHEMA_INVALID_TYPE"
	ErrCodeInvalidOption        ErrorCode = "SCHEMA_INVALID_OPTION"
	ErrCodeInvalidName          ErrorCode = "SCHEMA_INVALID_NAME"
	ErrCodeInvalidSource        ErrorCode = "SCHEMA_INVALID_SOURCE"
	ErrCodePrimaryKeyConflict   ErrorCode = "SCHEMA_PRIMARY_KEY_CONFLICT"
	ErrCodeAutogenerateConflict ErrorCode = "SCHEMA_AUTOGENERATE_CONFLICT"
	ErrCodeForeignKeyConflict   ErrorCode = "SCHEMA_FOREIGN_KEY_CONFLICT"
	ErrCodeUnknownAssociation   ErrorCode = "SCHEMA_UNKNOWN_ASSOCIATION"
	ErrCodeIncludeUnsupported   ErrorCode = "SCHEMA_INCLUDE_UNSUPPORTED"
	ErrCodeTypeRegistry         ErrorCode = "SCHEMA_TYPE_REGISTRY"

	// 行加载期错误代码（单行作用域）
	ErrCodeDecodeFailed  ErrorCode = "LOAD_DECODE_FAILED"
	ErrCodeMissingColumn ErrorCode = "LOAD_MISSING_COLUMN"
	ErrCodeRowShape      ErrorCode = "LOAD_ROW_SHAPE"

	// 分发表错误代码（配置错误）
	ErrCodeUnknownSource   ErrorCode = "DISPATCH_UNKNOWN_SOURCE"
	ErrCodeDuplicateSource ErrorCode = "DISPATCH_DUPLICATE_SOURCE"
	ErrCodeDispatchRebuild ErrorCode = "DISPATCH_REBUILD"
	ErrCodeNoDiscriminator ErrorCode = "DISPATCH_NO_DISCRIMINATOR"
)

// IError 错误接口
type IError interface {
	error

	// 获取错误代码
	Code() ErrorCode

	// 获取错误消息
	Message() string

	// 获取原始错误
	Cause() error

	// 获取错误详情
	Details() map[string]any

	// 获取堆栈信息
	Stack() string

	// 是否为指定类型的错误
	Is(target error) bool

	// 包装错误
	Wrap(msg string) IError

	// 添加详情
	WithDetails(details map[string]any) IError

	// 添加上下文
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewErrorWithCause 创建带原因的错误
func NewErrorWithCause(code ErrorCode, message string, cause error) IError {
	return &AppError{
		code:    code,
		message: message,
		cause:   cause,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}

	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 获取错误代码
func (e *AppError) Code() ErrorCode {
	return e.code
}

// Message 获取错误消息
func (e *AppError) Message() string {
	return e.message
}

// Cause 获取原始错误
func (e *AppError) Cause() error {
	return e.cause
}

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Stack 获取堆栈信息
func (e *AppError) Stack() string {
	return e.stack
}

// Is 检查是否为指定类型的错误
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// Wrap 包装错误
func (e *AppError) Wrap(msg string) IError {
	return &AppError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", msg, e.message),
		cause:   e,
		details: copyMap(e.details),
		stack:   captureStack(),
	}
}

// WithDetails 添加详情
func (e *AppError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// WithContext 添加上下文
func (e *AppError) WithContext(key string, value any) IError {
	newDetails := copyMap(e.details)
	newDetails[key] = value

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// IsDefinitionError 检查是否为定义期错误（SCHEMA_ 族）
//
// 定义期错误是致命的：携带它的描述符编译必须中止，描述符不得发布。
func IsDefinitionError(err error) bool {
	return hasCodePrefix(err, "SCHEMA_")
}

// IsDecodeError 检查是否为行加载期错误（LOAD_ 族）
//
// 此类错误作用域限定在单行/单字段，不会使描述符失效，也不触发重试。
func IsDecodeError(err error) bool {
	return hasCodePrefix(err, "LOAD_")
}

// IsDispatchMiss 检查是否为分发表未命中
//
// 未命中意味着行的来源描述符没有提供给分发表构建器，属于配置错误，
// 不允许与解码错误混为一谈，也不允许被静默兜底。
func IsDispatchMiss(err error) bool {
	return IsErrorCode(err, ErrCodeUnknownSource)
}

// IsDuplicateField 检查是否为重复字段错误
func IsDuplicateField(err error) bool {
	return IsErrorCode(err, ErrCodeDuplicateField)
}

// IsErrorCode 检查是否为指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}

	return false
}

// GetErrorCode 获取错误代码
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}

// hasCodePrefix 检查错误代码是否具有指定前缀
func hasCodePrefix(err error, prefix string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return strings.HasPrefix(string(appErr.code), prefix)
	}

	return false
}

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))

		if !more {
			break
		}
	}

	return builder.String()
}

// copyMap 复制映射
func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return make(map[string]any)
	}

	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}

	return copied
}
